package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/caseforge/caseforge/pkg/engine"
	"github.com/caseforge/caseforge/pkg/manifest"
	"github.com/caseforge/caseforge/pkg/policy"
	"github.com/caseforge/caseforge/pkg/registry"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

type planView struct {
	FeatureDescriptor string             `json:"feature_descriptor"`
	Active            []string           `json:"active"`
	Skipped           []registry.Skip    `json:"skipped"`
	Violations        []policy.Violation `json:"violations,omitempty"`
	Warnings          []policy.Violation `json:"warnings,omitempty"`
	RunID             string             `json:"run_id,omitempty"`
}

func newPlanView(fd engine.FeatureDescriptor, active *registry.Active, result *policy.Result) planView {
	v := planView{
		FeatureDescriptor: fd.String(),
		Active:            append([]string{}, active.Names()...),
		Skipped:           []registry.Skip{},
	}
	if active != nil {
		v.Skipped = append(v.Skipped, active.Skipped...)
	}
	if result != nil {
		v.Violations = result.Violations
		v.Warnings = result.Warnings
	}
	return v
}

func printPlan(w io.Writer, v planView) {
	fmt.Fprintf(w, "Feature descriptor: %s\n", v.FeatureDescriptor)
	fmt.Fprintf(w, "Active components (%d):\n", len(v.Active))
	for _, name := range v.Active {
		fmt.Fprintf(w, "  + %s\n", name)
	}
	if len(v.Skipped) > 0 {
		fmt.Fprintf(w, "Skipped (%d):\n", len(v.Skipped))
		for _, sk := range v.Skipped {
			switch {
			case len(sk.Missing) > 0:
				fmt.Fprintf(w, "  - %s (missing: %s)\n", sk.Component, strings.Join(sk.Missing, ", "))
			case sk.Reason != "":
				fmt.Fprintf(w, "  - %s (%s)\n", sk.Component, sk.Reason)
			default:
				fmt.Fprintf(w, "  - %s\n", sk.Component)
			}
		}
	}
	for _, viol := range v.Violations {
		fmt.Fprintf(w, "Denied [%s]: %s\n", viol.Policy, viol.Message)
	}
	for _, warn := range v.Warnings {
		fmt.Fprintf(w, "Warning [%s]: %s\n", warn.Policy, warn.Message)
	}
	if v.RunID != "" {
		fmt.Fprintf(w, "Run: %s\n", v.RunID)
	}
}

func printManifest(w io.Writer, m *engine.Manifest) {
	tw := newTable(w)
	fmt.Fprintln(tw, "COMPONENT\tKIND\tNAME\tVALUE")
	for _, e := range m.Entries() {
		for _, k := range engine.InputBag(e.Inputs).Keys() {
			fmt.Fprintf(tw, "%s\tinput\t%s\t%v\n", e.Name, k, e.Inputs[k])
		}
		for _, k := range engine.InputBag(e.Outputs).Keys() {
			fmt.Fprintf(tw, "%s\toutput\t%s\t%v\n", e.Name, k, e.Outputs[k])
		}
		if len(e.Inputs) == 0 && len(e.Outputs) == 0 {
			fmt.Fprintf(tw, "%s\t-\t-\t-\n", e.Name)
		}
	}
	_ = tw.Flush()
}

func printReport(w io.Writer, r *manifest.Report) {
	for _, name := range r.Added {
		fmt.Fprintf(w, "+ %s\n", name)
	}
	for _, name := range r.Removed {
		fmt.Fprintf(w, "- %s\n", name)
	}
	for _, c := range r.Changed {
		fmt.Fprintf(w, "~ %s\n", c.Component)
		for _, o := range c.Outputs {
			fmt.Fprintf(w, "    %s: %s -> %s\n", o.Name, o.Before, o.After)
		}
	}
	if r.Empty() {
		fmt.Fprintf(w, "No differences (%d components unchanged)\n", len(r.Unchanged))
	}
}

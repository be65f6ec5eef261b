package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caseforge/caseforge/pkg/component"
	"github.com/caseforge/caseforge/pkg/engine"
)

type componentView struct {
	Name         string                  `json:"name"`
	Description  string                  `json:"description,omitempty"`
	RequiredFor  []string                `json:"required_for,omitempty"`
	AllowedFor   []string                `json:"allowed_for,omitempty"`
	ForbiddenFor []string                `json:"forbidden_for,omitempty"`
	Inputs       []component.InputParam  `json:"inputs"`
	Outputs      []component.OutputParam `json:"outputs"`
	Status       string                  `json:"status,omitempty"`
}

func newComponentsCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "components",
		Short: "Inspect the component catalog",
	}

	cmd.AddCommand(newComponentsListCommand(s))

	return cmd
}

func newComponentsListCommand(s *session) *cobra.Command {
	var fd string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered components",
		Long: `List the built-in and declarative components in registration order, which
is also the apply order. With --for, each component is marked required,
eligible or ineligible for that feature descriptor.`,
		Example: `  caseforge components list
  caseforge components list --for 1850_DATM%JRA_SLND_SICE_MOM6_DROF%GLOFAS`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := s.newRegistry(s.cfg.CaseDir)
			if err != nil {
				return err
			}

			descriptor := engine.FeatureDescriptor(fd)
			var views []componentView
			for _, d := range reg.Descriptors() {
				v := componentView{
					Name:         d.Key(),
					Description:  d.Description,
					RequiredFor:  d.RequiredFor,
					AllowedFor:   d.AllowedFor,
					ForbiddenFor: d.ForbiddenFor,
					Inputs:       d.Inputs,
					Outputs:      d.Outputs,
				}
				if fd != "" {
					switch {
					case d.IsRequired(descriptor):
						v.Status = "required"
					case d.IsEligible(descriptor):
						v.Status = "eligible"
					default:
						v.Status = "ineligible"
					}
				}
				views = append(views, v)
			}

			if s.json {
				return printJSON(s.out, views)
			}

			tw := newTable(s.out)
			if fd != "" {
				fmt.Fprintln(tw, "NAME\tSTATUS\tINPUTS\tOUTPUTS\tDESCRIPTION")
			} else {
				fmt.Fprintln(tw, "NAME\tREQUIRED FOR\tALLOWED FOR\tFORBIDDEN FOR\tDESCRIPTION")
			}
			for _, v := range views {
				if fd != "" {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", v.Name, v.Status, len(v.Inputs), len(v.Outputs), v.Description)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.Name,
					list(v.RequiredFor), list(v.AllowedFor), list(v.ForbiddenFor), v.Description)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&fd, "for", "", "feature descriptor to evaluate predicates against")

	return cmd
}

func list(tokens []string) string {
	if len(tokens) == 0 {
		return "-"
	}
	return strings.Join(tokens, ",")
}

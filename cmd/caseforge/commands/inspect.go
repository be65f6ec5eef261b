package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caseforge/caseforge/pkg/engine"
	"github.com/caseforge/caseforge/pkg/manifest"
	"github.com/caseforge/caseforge/pkg/registry"
	"github.com/caseforge/caseforge/pkg/stores"
	"github.com/caseforge/caseforge/pkg/telemetry"
)

func newInspectCommand(s *session) *cobra.Command {
	var (
		output   string
		noRecord bool
	)

	cmd := &cobra.Command{
		Use:   "inspect [FEATURE_DESCRIPTOR]",
		Short: "Rebuild the manifest from the case's sinks",
		Long: `Read every required or eligible component's outputs back from the case's
user_nl files and XML registry and print the resulting manifest.

Components with no entries in their text sinks are reported as skipped.`,
		Example: `  # Show what the case currently carries
  caseforge inspect

  # Save the live state as a manifest
  caseforge inspect -o live.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			fd, err := s.featureDescriptor(args)
			if err != nil {
				return err
			}

			op := telemetry.StartOperation(cmd.Context(), "caseforge.inspect", telemetry.AttrFeatureDescriptor.String(fd.String()))
			defer func() { op.End(err) }()
			ctx := op.Ctx

			var rec *stores.RunRecorder
			if !noRecord {
				if rec, err = s.beginRun(ctx, "inspect", fd); err != nil {
					return err
				}
			}

			active, m, err := s.inspect(ctx, s.cfg.CaseDir, fd)
			if rec != nil {
				rec.Complete(ctx, m, err)
			}
			if err != nil {
				return err
			}

			if output != "" {
				if err := manifest.WriteFile(output, m); err != nil {
					return err
				}
			}

			if s.json {
				return manifest.Encode(s.out, m)
			}
			printManifest(s.out, m)
			for _, sk := range active.Skipped {
				fmt.Fprintf(s.out, "skipped %s: %s\n", sk.Component, sk.Reason)
			}
			if output != "" {
				fmt.Fprintf(s.out, "Manifest: %s\n", output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the inspected manifest to this file")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "do not record the run in history")

	return cmd
}

// inspect reads caseDir's sinks into instances and their manifest.
func (s *session) inspect(ctx context.Context, caseDir string, fd engine.FeatureDescriptor) (*registry.Active, *engine.Manifest, error) {
	reg, err := s.newRegistry(caseDir)
	if err != nil {
		return nil, nil, err
	}
	active, err := reg.InspectAll(ctx, fd)
	if err != nil {
		return nil, nil, err
	}
	m := engine.NewManifest()
	for _, inst := range active.Instances() {
		m.Add(inst.Serialize())
	}
	return active, m, nil
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/caseforge/caseforge/pkg/engine"
	"github.com/caseforge/caseforge/pkg/manifest"
	"github.com/caseforge/caseforge/pkg/registry"
	"github.com/caseforge/caseforge/pkg/telemetry"
)

var errDifferences = errors.New("snapshots differ")

func newDiffCommand(s *session) *cobra.Command {
	var (
		from     string
		to       string
		exitCode bool
	)

	cmd := &cobra.Command{
		Use:   "diff [FEATURE_DESCRIPTOR]",
		Short: "Compare two snapshots of a case",
		Long: `Compare two snapshots of a case component by component. Each side is a
manifest file or a case directory; directories are inspected live.

By default the configured manifest is compared with the configured case
directory, which shows drift since the last apply.`,
		Example: `  # Drift since the last apply
  caseforge diff

  # Compare two case directories
  caseforge diff --from ../case_a --to ../case_b

  # Compare two manifests and fail if they differ
  caseforge diff --from old.json --to new.json --exit-code`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			fd, err := s.featureDescriptor(args)
			if err != nil {
				return err
			}
			if from == "" {
				from = s.cfg.ManifestPath
			}
			if to == "" {
				to = s.cfg.CaseDir
			}

			op := telemetry.StartOperation(cmd.Context(), "caseforge.diff", telemetry.AttrFeatureDescriptor.String(fd.String()))
			defer func() { op.End(err) }()

			before, err := s.snapshot(op.Ctx, from, fd)
			if err != nil {
				return fmt.Errorf("%s: %w", from, err)
			}
			after, err := s.snapshot(op.Ctx, to, fd)
			if err != nil {
				return fmt.Errorf("%s: %w", to, err)
			}

			report := registry.Diff(before, after)
			if s.json {
				err = printJSON(s.out, report)
			} else {
				printReport(s.out, report)
			}
			if err == nil && exitCode && !report.Empty() {
				return errDifferences
			}
			return err
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "manifest file or case directory (default: configured manifest)")
	cmd.Flags().StringVar(&to, "to", "", "manifest file or case directory (default: configured case dir)")
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "exit with status 3 when the snapshots differ")

	return cmd
}

// snapshot restores a manifest file or inspects a case directory.
func (s *session) snapshot(ctx context.Context, path string, fd engine.FeatureDescriptor) (*registry.Active, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		active, _, err := s.inspect(ctx, path, fd)
		return active, err
	}

	m, err := manifest.ReadFile(path)
	if err != nil {
		return nil, err
	}
	reg, err := s.newRegistry(s.cfg.CaseDir)
	if err != nil {
		return nil, err
	}
	return reg.Restore(m)
}

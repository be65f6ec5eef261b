package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/caseforge/caseforge/pkg/engine"
	"github.com/caseforge/caseforge/pkg/export"
	"github.com/caseforge/caseforge/pkg/manifest"
	"github.com/caseforge/caseforge/pkg/policy"
	"github.com/caseforge/caseforge/pkg/registry"
	"github.com/caseforge/caseforge/pkg/telemetry"
)

type applyResult struct {
	planView
	Manifest string          `json:"manifest,omitempty"`
	Digest   string          `json:"digest,omitempty"`
	Exported []export.Result `json:"exported,omitempty"`
	DryRun   bool            `json:"dry_run,omitempty"`
}

func newApplyCommand(s *session) *cobra.Command {
	var (
		in           inputFlags
		manifestPath string
		dryRun       bool
		noExport     bool
	)

	cmd := &cobra.Command{
		Use:   "apply [FEATURE_DESCRIPTOR]",
		Short: "Configure the case and write the manifest",
		Long: `Resolve the active components, pass them through the policy gate and apply
each one's outputs to its sinks in registration order.

This command:
  - Fails before any sink write if a required component lacks inputs
  - Stops at the first component that fails; earlier writes are kept
  - Writes the manifest only after every component succeeds
  - Records the run and per-component outcomes in the run history
  - Exports file-valued outputs when an export target is configured`,
		Example: `  # Apply the configured case
  caseforge apply

  # Apply with an explicit manifest location
  caseforge apply MOM6_MARBL -i bgc.yaml --manifest out/manifest.json

  # Check the plan against policies without writing anything
  caseforge apply --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fd, err := s.featureDescriptor(args)
			if err != nil {
				return err
			}
			if manifestPath == "" {
				manifestPath = s.cfg.ManifestPath
			}
			return s.apply(cmd.Context(), fd, in, manifestPath, dryRun, !noExport)
		},
	}

	in.register(cmd)
	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "manifest output path (overrides config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve and evaluate policies without applying")
	cmd.Flags().BoolVar(&noExport, "no-export", false, "skip artifact export")

	return cmd
}

func (s *session) apply(ctx context.Context, fd engine.FeatureDescriptor, in inputFlags, manifestPath string, dryRun, doExport bool) (err error) {
	op := telemetry.StartOperation(ctx, "caseforge.apply", telemetry.AttrFeatureDescriptor.String(fd.String()))
	defer func() { op.End(err) }()
	ctx = op.Ctx

	rec, err := s.beginRun(ctx, "apply", fd)
	if err != nil {
		return err
	}
	op.Span.SetAttributes(telemetry.AttrRunID.String(rec.ID()))

	bag, err := s.inputs(in.files, in.sets)
	if err != nil {
		return s.completeRun(ctx, rec, err)
	}
	reg, err := s.newRegistry(s.cfg.CaseDir, rec)
	if err != nil {
		return s.completeRun(ctx, rec, err)
	}

	active, err := reg.Resolve(ctx, fd, bag)
	if err != nil {
		return err
	}

	eng, err := s.policyEngine(ctx)
	if err != nil {
		return s.completeRun(ctx, rec, err)
	}
	input := policy.NewInput(fd, active, "apply")
	input.Remote = s.cfg.Remote.Enabled
	result, err := eng.Gate(ctx, input)
	view := applyResult{planView: newPlanView(fd, active, result), DryRun: dryRun}
	view.RunID = rec.ID()
	if err != nil {
		if engine.IsKind(err, engine.ErrorKindPolicyDenied) {
			rec.Deny(ctx, err)
			s.render(view)
		} else {
			rec.Complete(ctx, nil, err)
		}
		return err
	}

	if dryRun {
		if err := s.completeRun(ctx, rec, nil); err != nil {
			return err
		}
		return s.render(view)
	}

	rec.HoldSuccess()
	m, err := applyToFile(ctx, reg, active, manifestPath)
	if err != nil {
		rec.Complete(ctx, nil, err)
		return err
	}
	rec.Complete(ctx, m, nil)
	if err := rec.Err(); err != nil {
		s.logger.Warn().Err(err).Str("run_id", rec.ID()).Msg("run history incomplete")
	}

	view.Manifest = manifestPath
	if view.Digest, err = manifest.Digest(m); err != nil {
		return err
	}

	if doExport && s.cfg.Export.Target != "" {
		results, err := s.export(ctx, active)
		view.Exported = results
		if err != nil {
			_ = s.render(view)
			return err
		}
	}

	return s.render(view)
}

// applyToFile applies active with the manifest streamed to a temporary file
// that replaces path only on success.
func applyToFile(ctx context.Context, reg *registry.Registry, active *registry.Active, path string) (*engine.Manifest, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create manifest directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest: %w", err)
	}
	defer os.Remove(tmp.Name())

	m, err := reg.Apply(ctx, active, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to write manifest: %w", cerr)
	}
	if err != nil {
		return nil, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return m, nil
}

func (s *session) export(ctx context.Context, active *registry.Active) ([]export.Result, error) {
	var target export.Target
	switch s.cfg.Export.Target {
	case "local":
		target = export.NewLocalTarget(s.cfg.Export.Dir)
	case "sftp":
		client, err := s.sshClient(ctx)
		if err != nil {
			return nil, err
		}
		target = export.NewSFTPTarget(client, s.cfg.Export.Dir)
	default:
		return nil, fmt.Errorf("unknown export target %q", s.cfg.Export.Target)
	}
	return export.New(target, s.tel.Logger.Zerolog()).ExportActive(ctx, s.cfg.CaseDir, active)
}

func (s *session) render(view applyResult) error {
	if s.json {
		return printJSON(s.out, view)
	}
	printPlan(s.out, view.planView)
	if view.DryRun {
		fmt.Fprintln(s.out, "Dry run: no sinks were written")
	}
	if view.Manifest != "" {
		fmt.Fprintf(s.out, "Manifest: %s (blake3 %s)\n", view.Manifest, view.Digest)
	}
	for _, r := range view.Exported {
		fmt.Fprintf(s.out, "Exported %s -> %s\n", r.Source, r.Destination)
	}
	return nil
}

package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/caseforge/caseforge/pkg/config"
	"github.com/caseforge/caseforge/pkg/engine"
	"github.com/caseforge/caseforge/pkg/policy"
	"github.com/caseforge/caseforge/pkg/stores"
	"github.com/caseforge/caseforge/pkg/telemetry"
)

// inputFlags are the input bag flags shared by resolve and apply.
type inputFlags struct {
	files []string
	sets  []string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.files, "input", "i", nil, "input bag file (CUE, YAML or JSON), layered after configured inputs")
	cmd.Flags().StringArrayVar(&f.sets, "set", nil, "input assignment NAME=VALUE, applied last")
}

func newResolveCommand(s *session) *cobra.Command {
	var (
		in       inputFlags
		watch    bool
		noRecord bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [FEATURE_DESCRIPTOR]",
		Short: "Show which components a case activates",
		Long: `Resolve the active component set for a feature descriptor and input bag
without touching any sink.

This command:
  - Loads the configured and given input files, then --set assignments
  - Selects required components and eligible optional ones
  - Fails if any required component lacks inputs, naming every gap
  - Evaluates the policy gate and reports what it would deny`,
		Example: `  # Resolve using the configured feature descriptor
  caseforge resolve

  # Resolve a compset with an extra input file
  caseforge resolve "1850_DATM%JRA_SLND_SICE_MOM6_DROF%GLOFAS" -i inputs.cue

  # Re-resolve whenever inputs or definitions change
  caseforge resolve --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fd, err := s.featureDescriptor(args)
			if err != nil {
				return err
			}

			if !watch {
				return s.resolveOnce(cmd.Context(), fd, in, !noRecord)
			}

			if err := s.resolveOnce(cmd.Context(), fd, in, false); err != nil {
				s.logger.Error().Err(err).Msg("resolution failed")
			}
			paths := append(append(append([]string{}, s.cfg.Inputs...), in.files...), s.cfg.Components...)
			paths = append(paths, s.cfg.Policies...)
			if len(paths) == 0 {
				return errors.New("--watch needs input, component or policy paths to watch")
			}
			return config.NewWatcher(s.tel.Logger.Zerolog()).Watch(cmd.Context(), paths, func(ctx context.Context, changed []string) error {
				s.logger.Info().Strs("changed", changed).Msg("re-resolving")
				return s.resolveOnce(ctx, fd, in, false)
			})
		},
	}

	in.register(cmd)
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-resolve when watched files change")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "do not record the run in history")

	return cmd
}

func (s *session) resolveOnce(ctx context.Context, fd engine.FeatureDescriptor, in inputFlags, record bool) (err error) {
	op := telemetry.StartOperation(ctx, "caseforge.resolve", telemetry.AttrFeatureDescriptor.String(fd.String()))
	defer func() { op.End(err) }()

	var observers []engine.ApplyObserver
	var rec *stores.RunRecorder
	if record {
		rec, err = s.beginRun(op.Ctx, "resolve", fd)
		if err != nil {
			return err
		}
		observers = append(observers, rec)
	}

	bag, err := s.inputs(in.files, in.sets)
	if err != nil {
		return s.completeRun(op.Ctx, rec, err)
	}
	reg, err := s.newRegistry(s.cfg.CaseDir, observers...)
	if err != nil {
		return s.completeRun(op.Ctx, rec, err)
	}

	active, err := reg.Resolve(op.Ctx, fd, bag)
	if err != nil {
		return s.completeRun(op.Ctx, rec, err)
	}

	eng, err := s.policyEngine(op.Ctx)
	if err != nil {
		return s.completeRun(op.Ctx, rec, err)
	}
	input := policy.NewInput(fd, active, "resolve")
	input.Remote = s.cfg.Remote.Enabled
	result, err := eng.Evaluate(op.Ctx, input)
	if err != nil {
		return s.completeRun(op.Ctx, rec, err)
	}

	view := newPlanView(fd, active, result)
	if rec != nil {
		view.RunID = rec.ID()
	}
	if err := s.completeRun(op.Ctx, rec, nil); err != nil {
		return err
	}

	if s.json {
		return printJSON(s.out, view)
	}
	printPlan(s.out, view)
	return nil
}

// completeRun closes a resolve or inspect run record, if any, and returns
// err.
func (s *session) completeRun(ctx context.Context, rec *stores.RunRecorder, err error) error {
	if rec == nil {
		return err
	}
	rec.Complete(ctx, nil, err)
	if err != nil {
		return err
	}
	return rec.Err()
}

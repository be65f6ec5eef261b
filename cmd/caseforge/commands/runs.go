package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/caseforge/caseforge/pkg/engine"
	"github.com/caseforge/caseforge/pkg/stores"
)

func newRunsCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse the run history",
	}

	cmd.AddCommand(newRunsListCommand(s))
	cmd.AddCommand(newRunsShowCommand(s))

	return cmd
}

func newRunsListCommand(s *session) *cobra.Command {
	var (
		status string
		fd     string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Example: `  caseforge runs list
  caseforge runs list --status failed --limit 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := stores.RunFilter{FeatureDescriptor: fd, Limit: limit}
			if status != "" {
				st := engine.RunStatus(status)
				if err := st.Validate(); err != nil {
					return err
				}
				filter.Status = st
			}

			store, err := s.openStore(cmd.Context())
			if err != nil {
				return err
			}
			runs, err := store.ListRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if s.json {
				if runs == nil {
					runs = []*stores.Run{}
				}
				return printJSON(s.out, runs)
			}

			tw := newTable(s.out)
			fmt.Fprintln(tw, "ID\tOPERATION\tSTATUS\tSTARTED\tDURATION\tFEATURE DESCRIPTOR")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Operation, r.Status, r.StartedAt.Local().Format(time.DateTime), runDuration(r), r.FeatureDescriptor)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (running, succeeded, failed, denied)")
	cmd.Flags().StringVar(&fd, "for", "", "filter by feature descriptor")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to show (0 for all)")

	return cmd
}

func newRunsShowCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a run and its component outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.openStore(cmd.Context())
			if err != nil {
				return err
			}
			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			outcomes, err := store.ListOutcomes(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			if s.json {
				if outcomes == nil {
					outcomes = []*stores.ComponentOutcome{}
				}
				return printJSON(s.out, struct {
					Run      *stores.Run                `json:"run"`
					Outcomes []*stores.ComponentOutcome `json:"outcomes"`
				}{run, outcomes})
			}

			fmt.Fprintf(s.out, "Run:       %s\n", run.ID)
			fmt.Fprintf(s.out, "Operation: %s\n", run.Operation)
			fmt.Fprintf(s.out, "Status:    %s\n", run.Status)
			fmt.Fprintf(s.out, "Case:      %s\n", run.CaseDir)
			fmt.Fprintf(s.out, "Features:  %s\n", run.FeatureDescriptor)
			fmt.Fprintf(s.out, "Duration:  %s\n", runDuration(run))
			if run.Error != nil {
				fmt.Fprintf(s.out, "Error:     %s\n", *run.Error)
			}
			if run.ManifestDigest != nil {
				fmt.Fprintf(s.out, "Digest:    %s\n", *run.ManifestDigest)
			}
			if len(outcomes) == 0 {
				return nil
			}

			fmt.Fprintln(s.out)
			tw := newTable(s.out)
			fmt.Fprintln(tw, "#\tCOMPONENT\tOUTCOME\tDURATION\tERROR")
			for _, o := range outcomes {
				msg := ""
				if o.Error != nil {
					msg = *o.Error
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", o.Position, o.Component, o.Outcome, o.Duration.Round(time.Millisecond), msg)
			}
			return tw.Flush()
		},
	}

	return cmd
}

func runDuration(r *stores.Run) string {
	if r.CompletedAt == nil {
		return "-"
	}
	return r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}

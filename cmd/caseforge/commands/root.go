package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/caseforge/caseforge/pkg/engine"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath   string
	caseDir      string
	databasePath string
	logLevel     string
	jsonOutput   bool
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd, s := newRootCommand(version, commit, buildDate)
	err := rootCmd.ExecuteContext(ctx)
	return errors.Join(err, s.close(context.WithoutCancel(ctx)))
}

// ExitCode maps an error to the process exit status: 2 for a policy denial,
// 3 for a diff with differences, 1 otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case engine.IsKind(err, engine.ErrorKindPolicyDenied):
		return 2
	case errors.Is(err, errDifferences):
		return 3
	default:
		return 1
	}
}

func newRootCommand(version, commit, buildDate string) (*cobra.Command, *session) {
	opts := &rootOptions{}
	s := &session{}

	rootCmd := &cobra.Command{
		Use:   "caseforge",
		Short: "caseforge - ocean model case configuration engine",
		Long: `caseforge resolves which capability components a case needs from its
feature descriptor (compset) and inputs, applies their outputs to the case's
user_nl files and XML registry, and records a reproducible manifest.

Features:
  - Built-in ocean configurators plus declarative components (YAML + Starlark + CEL)
  - Input bags in CUE, YAML or JSONC
  - Rego policy gate before apply
  - Run history in SQLite
  - Remote registry commands and artifact export over SSH`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logLevel == "" {
				opts.logLevel = os.Getenv("LOG_LEVEL")
			}
			return s.open(cmd, opts)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file path (default ./caseforge.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.caseDir, "case-dir", "", "case directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.databasePath, "db", "", "run history database (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newResolveCommand(s))
	rootCmd.AddCommand(newApplyCommand(s))
	rootCmd.AddCommand(newInspectCommand(s))
	rootCmd.AddCommand(newDiffCommand(s))
	rootCmd.AddCommand(newManifestCommand(s))
	rootCmd.AddCommand(newComponentsCommand(s))
	rootCmd.AddCommand(newRunsCommand(s))

	return rootCmd, s
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caseforge/caseforge/pkg/manifest"
)

func newManifestCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Work with manifest files",
	}

	cmd.AddCommand(newManifestShowCommand(s))

	return cmd
}

func newManifestShowCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [FILE]",
		Short: "Validate and print a manifest",
		Long: `Load a manifest, validate it against the manifest schema and print its
entries in apply order together with its blake3 digest.`,
		Example: `  caseforge manifest show
  caseforge manifest show caseforge.manifest.json --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := s.cfg.ManifestPath
			if len(args) > 0 {
				path = args[0]
			}

			m, err := manifest.ReadFile(path)
			if err != nil {
				return err
			}
			digest, err := manifest.Digest(m)
			if err != nil {
				return err
			}

			if s.json {
				return manifest.Encode(s.out, m)
			}
			fmt.Fprintf(s.out, "Manifest: %s\nComponents: %d\nDigest: %s\n\n", path, m.Len(), digest)
			printManifest(s.out, m)
			return nil
		},
	}

	return cmd
}

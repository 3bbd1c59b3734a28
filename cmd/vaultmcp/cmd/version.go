package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaultmcp/vaultmcp/pkg/version"
)

type versionOptions struct {
	asJSON bool
	short  bool
}

// newVersionCmd creates the version command. Useful when reporting bugs:
// the default output carries commit, build date, and toolchain alongside
// the release number.
func newVersionCmd() *cobra.Command {
	var opts versionOptions

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show build and version details",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVersion(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Emit version details as JSON")
	cmd.Flags().BoolVar(&opts.short, "short", false, "Emit only the bare version number")

	return cmd
}

func runVersion(cmd *cobra.Command, opts versionOptions) error {
	out := cmd.OutOrStdout()

	switch {
	case opts.short:
		_, err := fmt.Fprintln(out, version.Short())
		return err
	case opts.asJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(version.GetInfo())
	default:
		_, err := fmt.Fprintln(out, version.String())
		return err
	}
}

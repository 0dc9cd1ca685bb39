// Package version implements the version command.
package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maia-sdr/spectrometerd/internal/buildinfo"
)

// Command prints build information.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := buildinfo.New()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "spectrometerd %s (built %s, %s)\n", info.Version, info.BuildDate, info.GoVersion)
			return err
		},
	}
}

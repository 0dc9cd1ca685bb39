// Package cmd builds the spectrometerd command line.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/maia-sdr/spectrometerd/cmd/decode"
	"github.com/maia-sdr/spectrometerd/cmd/serve"
	"github.com/maia-sdr/spectrometerd/cmd/version"
	"github.com/maia-sdr/spectrometerd/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "spectrometerd",
		Short:         "Maia SDR spectrometer daemon",
		Long:          "spectrometerd reads integrated spectra from the Maia SDR IP core and streams them to clients.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: search ., ~/.config/spectrometerd, /etc/spectrometerd)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	load := func() (*conf.Settings, error) {
		return conf.Load(configFile)
	}

	rootCmd.AddCommand(
		serve.Command(load),
		decode.Command(),
		version.Command(),
	)

	return rootCmd
}

// Package cmd implements sentinelctl, the offline companion to the sentinel
// daemon: replay event files, simulate attacks and manage patterns.
package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/cli/pkg/output"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

var (
	cfgFile      string
	outputFormat string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "sentinelctl",
	Short: "TelHawk Sentinel CLI",
	Long: `sentinelctl runs the TelHawk Sentinel correlation engine in-process.

Replay recorded security events, generate synthetic attack traffic and
validate pattern catalogues without a running daemon.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return output.ValidateFormat(outputFormat)
	},
}

// Execute runs the root command and returns the process exit code: 0 on
// success, 2 for invalid input, 1 for anything else.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		printerFor(rootCmd).Error("%v", err)
		return exitCode(err)
	}
	return 0
}

func exitCode(err error) int {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return 2
	}
	return 1
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "sentinel config file (engine settings)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", output.FormatTable, "output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log engine activity to stderr")
}

func printerFor(cmd *cobra.Command) *output.Printer {
	return &output.Printer{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr()}
}

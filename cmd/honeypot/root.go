package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

// newRootCmd builds the honeypot CLI
func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "honeypot",
		Short:         "Scam honeypot that engages fraudsters and reports what they reveal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml, ./config/config.yaml or /etc/scam-honeypot/config.yaml)")

	root.AddCommand(
		newServeCmd(&cfgFile),
		newAnalyzeCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "honeypot version %s\n", version)
			},
		},
	)

	return root
}

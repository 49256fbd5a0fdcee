package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/msageha/shopfloor/internal/setup"
)

var setupOpts setup.Options

var setupCmd = &cobra.Command{
	Use:         "setup <project_dir>",
	Short:       "Initialize .shopfloor/ in a directory",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"state": "none"},
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := setup.Run(args[0], setupOpts)
		if err != nil {
			return fmt.Errorf("setup: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", base)
		return nil
	},
}

func init() {
	setupCmd.Flags().StringVar(&setupOpts.ServerURL, "server", "", "Base URL of the production server")
	setupCmd.Flags().IntVar(&setupOpts.OperatorID, "operator-id", 0, "Operator using this station")
	setupCmd.Flags().StringVar(&setupOpts.OperatorName, "operator-name", "", "Operator display name")
}

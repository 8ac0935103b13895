package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "Print a full diagnostics report (remotes, mounts, recent events)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCore(cmd)
		if err != nil {
			return err
		}
		defer c.Shutdown()

		fmt.Print(c.Diagnostics())
		return nil
	},
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sshfsmond/sshfsmond/pkg/types"
)

var connectCmd = &cobra.Command{
	Use:   "connect ID",
	Short: "Connect a remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCore(cmd)
		if err != nil {
			return err
		}
		defer c.Shutdown()

		draft, _ := cmd.Flags().GetString("password")
		status, err := c.Connect(context.Background(), args[0], draft)
		if err != nil {
			return fmt.Errorf("connecting %s: %w", args[0], err)
		}
		printStatus(status)
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect ID",
	Short: "Disconnect a remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCore(cmd)
		if err != nil {
			return err
		}
		defer c.Shutdown()

		status, err := c.Disconnect(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("disconnecting %s: %w", args[0], err)
		}
		printStatus(status)
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh ID",
	Short: "Force a status refresh for a remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCore(cmd)
		if err != nil {
			return err
		}
		defer c.Shutdown()

		status, err := c.Refresh(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("refreshing %s: %w", args[0], err)
		}
		printStatus(status)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [ID]",
	Short: "Show status for one remote, or a summary of all remotes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCore(cmd)
		if err != nil {
			return err
		}
		defer c.Shutdown()

		if len(args) == 1 {
			printStatus(c.Status(args[0]))
			return nil
		}

		s := c.Summary()
		fmt.Printf("Total: %d  Connected: %d  Connecting: %d  Disconnected: %d  Errored: %d\n",
			s.Total, s.Connected, s.Connecting, s.Disconnected, s.Errored)
		return nil
	},
}

func init() {
	connectCmd.Flags().String("password", "", "Explicit password for this connect attempt (overrides cache/secret store)")
}

func printStatus(status types.RemoteStatus) {
	fmt.Printf("%s\t%s", status.RemoteID, status.State)
	if status.MountedPath != "" {
		fmt.Printf("\t%s", status.MountedPath)
	}
	if status.LastError != "" {
		fmt.Printf("\terror=%s", status.LastError)
	}
	fmt.Println()
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sshfsmond/sshfsmond/pkg/types"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Manage remembered SSHFS remotes",
}

var remoteAddCmd = &cobra.Command{
	Use:   "add ID",
	Short: "Add or update a remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCore(cmd)
		if err != nil {
			return err
		}
		defer c.Shutdown()

		displayName, _ := cmd.Flags().GetString("display-name")
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		username, _ := cmd.Flags().GetString("username")
		remoteDir, _ := cmd.Flags().GetString("remote-dir")
		localPath, _ := cmd.Flags().GetString("local-path")
		authMode, _ := cmd.Flags().GetString("auth-mode")
		keyPath, _ := cmd.Flags().GetString("private-key")
		autoConnect, _ := cmd.Flags().GetBool("auto-connect")

		remote := types.RemoteConfig{
			ID:              args[0],
			DisplayName:     displayName,
			Host:            host,
			Port:            port,
			Username:        username,
			RemoteDirectory: remoteDir,
			LocalMountPath:  localPath,
			AuthMode:        types.AuthMode(authMode),
			PrivateKeyPath:  keyPath,
			AutoConnect:     autoConnect,
		}
		if err := c.AddRemote(remote); err != nil {
			return fmt.Errorf("adding remote: %w", err)
		}
		fmt.Printf("Added remote %q\n", remote.ID)
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remembered remotes and their current status",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCore(cmd)
		if err != nil {
			return err
		}
		defer c.Shutdown()

		remotes := c.Remotes()
		if len(remotes) == 0 {
			fmt.Println("No remotes configured.")
			return nil
		}
		for _, r := range remotes {
			status := c.Status(r.ID)
			fmt.Printf("%s\t%s@%s:%d\t%s\t%s\n", r.ID, r.Username, r.Host, r.Port, status.State, r.LocalMountPath)
		}
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Remove a remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCore(cmd)
		if err != nil {
			return err
		}
		defer c.Shutdown()

		if err := c.RemoveRemote(args[0]); err != nil {
			return fmt.Errorf("removing remote: %w", err)
		}
		fmt.Printf("Removed remote %q\n", args[0])
		return nil
	},
}

func init() {
	remoteAddCmd.Flags().String("display-name", "", "Human-readable name")
	remoteAddCmd.Flags().String("host", "", "SSH host")
	remoteAddCmd.Flags().Int("port", 22, "SSH port")
	remoteAddCmd.Flags().String("username", "", "SSH username")
	remoteAddCmd.Flags().String("remote-dir", "/", "Remote directory to mount")
	remoteAddCmd.Flags().String("local-path", "", "Local mount point (absolute path)")
	remoteAddCmd.Flags().String("auth-mode", string(types.AuthModePassword), "Auth mode: password or private-key")
	remoteAddCmd.Flags().String("private-key", "", "Private key path (required for private-key auth mode)")
	remoteAddCmd.Flags().Bool("auto-connect", false, "Auto-connect this remote on startup/wake")

	remoteCmd.AddCommand(remoteAddCmd)
	remoteCmd.AddCommand(remoteListCmd)
	remoteCmd.AddCommand(remoteRemoveCmd)
}

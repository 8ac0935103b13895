// Command sshfsmond is a headless CLI standing in for the GUI: it
// drives the same Core an embedder would, one invocation at a time (or,
// via `serve`, for the life of a long-running process).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sshfsmond/sshfsmond/pkg/core"
	"github.com/sshfsmond/sshfsmond/pkg/log"
	"github.com/sshfsmond/sshfsmond/pkg/password"
	"github.com/sshfsmond/sshfsmond/pkg/secretstore"
	"github.com/sshfsmond/sshfsmond/pkg/store"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "sshfsmond",
	Short:   "Headless SSHFS mount monitor and controller",
	Version: Version,
	Long: `sshfsmond manages a set of remembered SSHFS mounts: connecting,
disconnecting, auto-reconnecting on wake/network changes, and reporting
diagnostics. This CLI is the non-GUI control surface; it drives the
same core an embedding GUI would.`,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sshfsmond version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "./sshfsmond-data", "Directory holding the remote list and cached secrets")
	rootCmd.PersistentFlags().String("secret-passphrase", "", "Passphrase protecting the on-disk secret store (falls back to $SSHFSMOND_SECRET_PASSPHRASE)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(diagnosticsCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// buildCore constructs a Core from the root command's persistent flags.
// Every subcommand shares this so a single invocation sees the same
// store and secret backend `serve` would.
func buildCore(cmd *cobra.Command) (*core.Core, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	passphrase, _ := cmd.Flags().GetString("secret-passphrase")
	if passphrase == "" {
		passphrase = os.Getenv("SSHFSMOND_SECRET_PASSPHRASE")
	}

	st := store.NewFile(filepath.Join(dataDir, "remotes.yaml"))

	cfg := core.Config{Store: st}
	if passphrase != "" {
		secrets, err := secretstore.NewFile(filepath.Join(dataDir, "secrets.json"), passphrase)
		if err != nil {
			return nil, fmt.Errorf("opening secret store: %w", err)
		}
		cfg.Secrets = password.SecretStore(secrets)
	}

	c, err := core.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("starting core: %w", err)
	}
	return c, nil
}

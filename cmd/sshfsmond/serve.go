package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sshfsmond/sshfsmond/pkg/log"
	"github.com/sshfsmond/sshfsmond/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the recovery loop (and optional HTTP diagnostics server) until signaled",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildCore(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		c.Start(ctx)

		httpAddr, _ := cmd.Flags().GetString("http-addr")
		var httpServer *http.Server
		if httpAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ok"))
			})
			mux.HandleFunc("/diagnostics", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				_, _ = w.Write([]byte(c.Diagnostics()))
			})
			httpServer = &http.Server{
				Addr:         httpAddr,
				Handler:      mux,
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 10 * time.Second,
				IdleTimeout:  60 * time.Second,
			}
			go func() {
				log.Logger.Info().Str("addr", httpAddr).Msg("diagnostics http server listening")
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Logger.Error().Err(err).Msg("diagnostics http server failed")
				}
			}()
		}

		fmt.Println("sshfsmond running. Press Ctrl+C to stop.")
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		if httpServer != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}
		cancel()
		c.Shutdown()
		fmt.Println("Shutdown complete.")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("http-addr", "", "Optional address for /metrics, /healthz, /diagnostics (disabled if empty)")
}

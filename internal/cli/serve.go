package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/repoindexer/repoindexer/internal/httpapi"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the status/healthz/metrics HTTP surface and block until signaled",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx)
		if err != nil {
			exitCode = 3
			return err
		}
		defer a.Close()

		srv := &httpapi.Server{
			Orchestrator: a.Orchestrator,
			Logger:       a.Logger,
			JWTManager:   a.JWTManager,
			StartedAt:    time.Now(),
		}

		addr := fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port)
		httpServer := &http.Server{
			Addr:              addr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			if a.Logger != nil {
				a.Logger.Info("serve: listening", "addr", addr)
			}
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		case err := <-errCh:
			exitCode = 3
			return err
		}
	},
}

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"mailflowAdmin/internal/api"
	"mailflowAdmin/internal/observability/logging"
	"mailflowAdmin/internal/refresh"
)

func newServeCommand(a *app) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the queue administration HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := a.setup(ctx, true); err != nil {
				return err
			}

			addr, _ := cmd.Flags().GetString("listen")
			if addr == "" {
				addr = a.config.ListenAddr
			}
			shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")

			return serve(ctx, a, addr, shutdownTimeout)
		},
	}
	serveCmd.Flags().String("listen", "", "HTTP listen address (overrides MAILFLOW_LISTEN_ADDR)")
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "Maximum time to wait for in-flight requests on shutdown")
	return serveCmd
}

func serve(ctx context.Context, a *app, addr string, shutdownTimeout time.Duration) error {
	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(addr, api.NewRouter(a.service))

	var poller *refresh.Poller
	if a.config.RefreshInterval > 0 {
		p, err := refresh.NewPoller("queues", a.config.RefreshInterval, func(ctx context.Context) error {
			_, err := a.service.ListQueues(ctx)
			return err
		})
		if err != nil {
			return err
		}
		if err := p.Start(ctx); err != nil {
			return err
		}
		poller = p
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.WithError(err).Error("Failed to shut down HTTP server")
	}
	if poller != nil {
		if err := poller.Stop(shutdownCtx); err != nil {
			logging.WithError(err).Error("Failed to stop queue refresh")
		}
	}
	a.shutdown(shutdownCtx)

	logging.Info("Server shutdown complete")
	return runErr
}

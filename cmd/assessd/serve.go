package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	httpserver "github.com/fyrsmithlabs/assessd/internal/http"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		port   int
		warmup bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the recommendation HTTP API",
		Long: `Serve GET /health, POST /api/v1/recommend and GET /metrics.

The index is opened or built on the first query unless --warmup is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, root, appOptions{requireLLM: true})
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			if warmup || a.cfg.Server.Warmup {
				if err := a.orch.Init(ctx); err != nil {
					a.logger.Warn(ctx, "index warmup failed, retrying on first query", zap.Error(err))
				}
			}

			srv, err := httpserver.NewServer(a.orch, a.logger.Underlying().Named("http"), &httpserver.Config{
				Host: a.cfg.Server.Host,
				Port: a.cfg.Server.Port,
			})
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 5000, "listen port (overrides server.port)")
	cmd.Flags().BoolVar(&warmup, "warmup", false, "open or build the index before accepting requests")
	return cmd
}

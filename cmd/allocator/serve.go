package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/allocator/internal/di"
	"github.com/aristath/allocator/internal/modules/runs/handlers"
	"github.com/aristath/allocator/internal/server"
	"github.com/spf13/cobra"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd, root)
			if err != nil {
				return exitError(cmd, err)
			}
			if port > 0 {
				cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			container, _, err := di.Wire(ctx, cfg, log)
			if err != nil {
				return exitError(cmd, err)
			}
			defer container.Close()

			srv := server.New(server.Config{
				Log:     log,
				Port:    cfg.Port,
				DevMode: cfg.DevMode,
				System: server.NewSystemHandlers(
					container.DB, container.Loader, cfg.PricesDir, container.RunRepo, log),
				Modules: []server.RouteRegistrar{
					handlers.NewHandler(container.RunService, container.RunRepo, container.EventBus, log),
				},
				Metrics:  container.Metrics,
				Gatherer: container.Registry,
			})

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			container.Scheduler.Start()
			log.Info().Int("port", cfg.Port).Msg("Allocator started")

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					container.Scheduler.Stop()
					return exitError(cmd, err)
				}
			}

			log.Info().Msg("Shutting down...")
			container.Scheduler.Stop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Server forced to shutdown")
			}

			for _, db := range container.Databases() {
				if err := db.WALCheckpoint("TRUNCATE"); err != nil {
					log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
				}
			}
			log.Info().Msg("Server stopped")
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides GO_PORT)")
	return cmd
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/routes"
)

func newServeCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the linkage HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := cmdCtx.ensure()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing(), logger)
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(flushCtx); err != nil {
					logger.WithError(err).Error("Failed to flush traces")
				}
			}()

			a := newApp(cfg, logger, appOptions{migrate: cfg.DatabaseMigrateOnStart})
			if err := a.start(ctx); err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := a.stop(stopCtx); err != nil {
					logger.WithError(err).Error("Failed to stop dependencies")
				}
			}()

			service, err := a.service()
			if err != nil {
				return err
			}
			containerID, err := a.container(service)
			if err != nil {
				return err
			}
			checker := a.healthChecker()
			e := routes.NewServer(routes.ServerConfig{
				ServiceName: cfg.AppName,
				BodyLimit:   cfg.HttpServerBodyLimit,
				ContainerID: containerID,
			}, checker, logger)

			srv := &http.Server{
				Addr:         fmt.Sprintf(":%d", cfg.Port),
				Handler:      e,
				ReadTimeout:  time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
				WriteTimeout: time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
				IdleTimeout:  time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Infof("Listening on %s", srv.Addr)
				serveErr <- srv.ListenAndServe()
			}()
			checker.SetReady(true)

			select {
			case err := <-serveErr:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			checker.SetReady(false)
			logger.Info("Shutting down HTTP server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

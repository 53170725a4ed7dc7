package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"meetflow/internal/server"
)

func newServeCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(); err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, c)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default server.addr)")
	cmd.Flags().Int64("max-runs", 0, "Concurrent workflow limit (default server.max_concurrent_runs)")
	bindFlags(c.v, cmd, map[string]string{
		"server.addr":                "addr",
		"server.max_concurrent_runs": "max-runs",
	})
	return cmd
}

func serve(ctx context.Context, c *cli) error {
	app, err := buildContainer(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(context.Background()) }()

	srv, err := server.New(server.Dependencies{
		Runner:      app.orchestrator,
		Calendar:    app.store,
		Broadcaster: app.broadcaster,
		Health:      app.health,
		Gatherer:    app.registry,
		Logger:      app.logger,
		Config: server.Config{
			AllowedOrigins:    c.cfg.Server.AllowedOrigins,
			MaxConcurrentRuns: c.cfg.Server.MaxConcurrentRuns,
			RunHistory:        c.cfg.Server.RunHistory,
			HeartbeatInterval: c.cfg.Progress.HeartbeatInterval,
			AutoExecute:       c.cfg.Pipeline.AutoExecute,
			SlotSearchDays:    c.cfg.Pipeline.SlotSearchDays,
			Hours:             app.hours,
			Debug:             c.cfg.Logging.Level == "debug",
		},
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              c.cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.logger.Info("Server listening on %s (model=%s, calendar=%s)", c.cfg.Server.Addr, app.generator.Model(), c.cfg.Calendar.Backend)
		if c.configUsed != "" {
			app.logger.Info("Using config %s", c.configUsed)
		}
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	app.logger.Info("Server stopped")
	return err
}

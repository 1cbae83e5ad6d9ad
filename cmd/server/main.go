package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/sheetpipe/internal/application"
	"github.com/JonMunkholm/sheetpipe/internal/config"
	"github.com/JonMunkholm/sheetpipe/internal/logging"
	"github.com/JonMunkholm/sheetpipe/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := application.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Error("close store", "error", err)
		}
	}()

	server := web.NewServer(app.Service, *cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		app.Service.StartHistoryPruner(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop taking requests first, then let running stages finish.
		err := server.Shutdown(shutdownCtx)

		limiter := app.Service.Limiter()
		if active := limiter.ActiveCount(); active > 0 {
			slog.Info("waiting for runs to complete", "active", active)
			if derr := limiter.WaitForDrain(shutdownCtx); derr != nil {
				slog.Warn("runs did not complete in time", "error", derr)
			} else {
				slog.Info("all runs completed")
			}
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("server stopped")
	return nil
}

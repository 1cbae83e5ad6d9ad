// Package application wires configuration into a table store and the
// pipeline service. The server and the CLI both start here.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/sheetpipe/internal/config"
	"github.com/JonMunkholm/sheetpipe/internal/core"
	"github.com/JonMunkholm/sheetpipe/internal/store"
	"github.com/JonMunkholm/sheetpipe/internal/store/memory"
	"github.com/JonMunkholm/sheetpipe/internal/store/postgres"
	"github.com/JonMunkholm/sheetpipe/internal/store/xlsx"
)

// App is an opened store plus the service running on it.
type App struct {
	Config  *config.Config
	Store   store.Store
	Service *core.Service

	closers []func() error
}

// Open opens the configured store, creates the pipeline tables when
// Store.CreateMissing is set and builds the service. Call Close when done.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	st, err := app.openStore(ctx)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Store = st

	if cfg.Store.CreateMissing {
		created, err := EnsureTables(ctx, st, pipelineTables(cfg.Pipeline)...)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		if len(created) > 0 {
			slog.Info("created missing tables", "tables", created)
			if s, ok := st.(interface{ Save() error }); ok {
				if err := s.Save(); err != nil {
					_ = app.Close()
					return nil, err
				}
			}
		}
	}

	app.Service = core.NewService(st, cfg.Pipeline)
	return app, nil
}

func (a *App) openStore(ctx context.Context) (store.Store, error) {
	cfg := a.Config
	switch strings.ToLower(cfg.Store.Driver) {
	case config.DriverMemory:
		slog.Info("store opened", "driver", config.DriverMemory)
		return memory.New(), nil

	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Database.URL, postgres.PoolOptions{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })

		st := postgres.New(pool)
		if err := st.Migrate(ctx); err != nil {
			return nil, err
		}
		slog.Info("store opened", "driver", config.DriverPostgres, "max_conns", cfg.Database.MaxConns)
		return st, nil

	case config.DriverXLSX, "":
		st, err := xlsx.Open(cfg.Store.Path, cfg.Store.CreateMissing)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		slog.Info("store opened", "driver", config.DriverXLSX, "path", cfg.Store.Path)
		return st, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// Close releases the store, newest resource first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// EnsureTables creates each named table that does not exist yet and
// returns the names it created.
func EnsureTables(ctx context.Context, st store.Store, names ...string) ([]string, error) {
	var created []string
	for _, name := range names {
		_, err := st.Table(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrTableNotFound) {
			return created, fmt.Errorf("lookup %q: %w", name, err)
		}
		if _, err := st.CreateTable(ctx, name); err != nil {
			return created, fmt.Errorf("create %q: %w", name, err)
		}
		created = append(created, name)
	}
	return created, nil
}

// pipelineTables lists the configured tables once each, in config order.
func pipelineTables(p config.PipelineConfig) []string {
	var names []string
	seen := make(map[string]bool)
	for _, n := range []string{p.SourceTable, p.DestTable, p.HeaderTable} {
		if n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}

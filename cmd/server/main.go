package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/zetlen/csvstream/internal/config"
	"github.com/zetlen/csvstream/internal/core"
	"github.com/zetlen/csvstream/internal/database"
	"github.com/zetlen/csvstream/internal/logging"
	"github.com/zetlen/csvstream/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"ingest_max_concurrent", cfg.Ingest.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	store := database.New(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	if err := registerDatasets(cfg.Ingest.DatasetsFile); err != nil {
		slog.Error("failed to register datasets", "error", err)
		os.Exit(1)
	}
	slog.Info("datasets registered", "count", core.DatasetCount())

	service := core.NewService(store, slog.Default(), core.Options{
		MaxConcurrent:    cfg.Ingest.MaxConcurrent,
		MaxWait:          cfg.Ingest.MaxWaitTime,
		BatchSize:        cfg.Ingest.BatchSize,
		Timeout:          cfg.Ingest.Timeout,
		ProgressInterval: progressInterval(cfg.Ingest.ProgressInterval),
		FragmentSize:     cfg.Ingest.FragmentSize,
		CleanupDelay:     cfg.Ingest.CleanupDelay,
	})

	server := web.NewServer(service, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		status := service.Limiter().Status()
		if status.Active > 0 {
			slog.Info("waiting for ingests to complete", "active", status.Active)
			if err := service.Drain(shutdownCtx); err != nil {
				slog.Warn("ingests did not complete in time", "error", err)
			} else {
				slog.Info("all ingests completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && err != http.ErrServerClosed {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// registerDatasets loads dataset definitions from an optional JSON file and
// always registers the built-in generic dataset, which captures whatever
// header the file carries and applies no validation.
func registerDatasets(path string) error {
	if path != "" {
		datasets, err := core.LoadDatasets(path)
		if err != nil {
			return err
		}
		if err := core.RegisterAll(datasets); err != nil {
			return err
		}
	}

	if _, ok := core.GetDataset("generic"); !ok {
		if err := core.Register(core.Dataset{Key: "generic", Label: "Generic CSV"}); err != nil {
			return err
		}
	}
	return nil
}

// progressInterval maps the operator-facing setting, where zero disables
// progress events, onto the parser's convention of a negative interval.
func progressInterval(v int) int {
	if v == 0 {
		return -1
	}
	return v
}

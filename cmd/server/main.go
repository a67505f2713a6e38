package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/csvtable/internal/cache"
	"github.com/JonMunkholm/csvtable/internal/config"
	"github.com/JonMunkholm/csvtable/internal/core"
	_ "github.com/JonMunkholm/csvtable/internal/core/tables" // Register compiled schemas
	"github.com/JonMunkholm/csvtable/internal/logging"
	"github.com/JonMunkholm/csvtable/internal/metrics"
	"github.com/JonMunkholm/csvtable/internal/schema"
	"github.com/JonMunkholm/csvtable/internal/web"
)

func main() {
	// A .env file overrides the process environment when present
	var files []string
	if _, err := os.Stat(".env"); err == nil {
		files = append(files, ".env")
	}

	cfg, err := config.Load(files...)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"env_files", files,
		"port", cfg.Server.Port,
		"forgiving", cfg.Table.Forgiving,
		"workers", cfg.Table.Workers,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	if err := registerSchemas(cfg.Schema); err != nil {
		slog.Error("failed to register schemas", "error", err)
		os.Exit(1)
	}
	slog.Info("schemas registered", "count", core.Count())
	for _, def := range core.All() {
		slog.Debug("schema", "name", def.Name, "description", def.Description)
	}

	ctx := context.Background()
	rec := metrics.New()
	opts := []web.Option{web.WithMetrics(rec)}

	if cfg.Database.Enabled() {
		pool, err := connectDatabase(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		opts = append(opts, web.WithDatabase(pool))
	} else {
		slog.Info("no database configured, loading is disabled")
	}

	if cfg.Redis.Enabled() {
		store := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			cache.WithTTL(cfg.Redis.TTL),
			cache.WithPrefix(cfg.Redis.Prefix),
		)
		defer store.Close()
		if err := store.Ping(ctx); err != nil {
			// The cache is an optimization; start without it.
			slog.Warn("redis unavailable, caching disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			slog.Info("connected to redis", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
			opts = append(opts, web.WithCache(store))
		}
	}

	server, err := web.NewServer(cfg, opts...)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if active := server.Limiter().ActiveCount(); active > 0 {
			slog.Info("waiting for builds to complete", "active", active)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown did not complete in time", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}

// registerSchemas adds the embedded schema documents and any found in the
// configured directory to the registry.
func registerSchemas(cfg config.SchemaConfig) error {
	var defs []core.Definition
	if cfg.Builtin {
		builtin, err := schema.Builtin()
		if err != nil {
			return err
		}
		defs = append(defs, builtin...)
	}
	if cfg.Dir != "" {
		loaded, err := schema.LoadDir(cfg.Dir)
		if err != nil {
			return err
		}
		slog.Info("schema documents loaded", "dir", cfg.Dir, "count", len(loaded))
		defs = append(defs, loaded...)
	}
	return schema.Register(defs)
}

func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}

	// Apply pool configuration from config
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

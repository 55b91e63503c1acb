// Package main is the entry point for the gallery server. It loads
// configuration, establishes storage connections, wires together the
// plugins and widgets, and starts the HTTP server.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/gallery/internal/app"
	"github.com/keyxmakerx/gallery/internal/config"
	"github.com/keyxmakerx/gallery/internal/database"
)

// rateLimitCleanupInterval is how often idle per-IP buckets are dropped.
const rateLimitCleanupInterval = 10 * time.Minute

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// Configure structured logging based on environment.
	setupLogging(cfg)

	slog.Info("starting gallery",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
		slog.String("storage", cfg.Storage.Driver),
	)

	// --- Connect to MariaDB ---
	// The memory driver keeps everything in process and needs no database.
	var db *sql.DB
	if cfg.Storage.Driver == config.DriverMariaDB {
		db, err = database.NewMariaDB(cfg.Database)
		if err != nil {
			slog.Error("failed to connect to MariaDB", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("connected to MariaDB")

		if cfg.Storage.AutoMigrate {
			if err := database.RunMigrations(db, cfg.Storage.MigrationsPath); err != nil {
				slog.Error("failed to run migrations", slog.Any("error", err))
				os.Exit(1)
			}
		}
	}

	// --- Connect to Redis ---
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = database.NewRedis(cfg.Redis)
		if err != nil {
			slog.Error("failed to connect to Redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer rdb.Close()
		slog.Info("connected to Redis")
	} else {
		slog.Info("REDIS_URL not set, filter options will not be cached")
	}

	// --- Create Application ---
	application := app.New(cfg, db, rdb)

	// Register all routes (operational and API).
	application.RegisterRoutes()

	stopCleanup := make(chan struct{})
	go application.RateLimiter.Run(rateLimitCleanupInterval, stopCleanup)

	// --- Graceful Shutdown ---
	// Listen for interrupt/term signals to drain connections cleanly.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server...")
		close(stopCleanup)

		// Give in-flight requests 10 seconds to complete.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := application.Echo.Shutdown(ctx); err != nil {
			slog.Error("server forced shutdown", slog.Any("error", err))
		}
	}()

	// --- Start Server ---
	if err := application.Start(); err != nil {
		// Echo returns http.ErrServerClosed on graceful shutdown, which is expected.
		slog.Info("server stopped", slog.Any("reason", err))
	}
}

// setupLogging configures the global slog logger based on the environment.
// Development uses text format for readability. Production uses JSON for
// structured log aggregation. LOG_LEVEL overrides the environment default.
func setupLogging(cfg *config.Config) {
	var handler slog.Handler

	level := slog.LevelInfo
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}
	if cfg.LogLevel != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.LogLevel))); err != nil {
			slog.Warn("ignoring invalid LOG_LEVEL", slog.String("value", cfg.LogLevel))
		}
	}

	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	slog.SetDefault(slog.New(handler))
}

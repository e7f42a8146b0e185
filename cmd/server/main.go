// Package main is the entry point for the npm registry server binary.
// It dispatches four subcommands (serve, migrate, token, version) via a switch on
// os.Args. The serve command applies migrations on startup unless
// database.auto_migrate is disabled.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/npm-registry/npm-registry/internal/api"
	"github.com/npm-registry/npm-registry/internal/auth"
	"github.com/npm-registry/npm-registry/internal/config"
	"github.com/npm-registry/npm-registry/internal/db"
	"github.com/npm-registry/npm-registry/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}
	if command == "version" {
		fmt.Printf("npm registry v%s\n", version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level, cfg.Telemetry.ServiceName)

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "token":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s token <username>", os.Args[0])
		}
		return issueToken(cfg, os.Args[2])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, token, version", command)
	}
}

func serve(cfg *config.Config) error {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	api.Version = version

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.DevMode)
	if err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("connecting to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port,
		"dbname", cfg.Database.Name, "user", cfg.Database.User, "sslmode", cfg.Database.SSLMode)
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	database, err := db.Connect(connectCtx, cfg.Database.GetDSN(),
		cfg.Database.MaxConnections, cfg.Database.MinIdleConnections, cfg.Database.ConnMaxLifetime)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if cfg.Database.AutoMigrate {
		slog.Info("running database migrations")
		if err := db.RunMigrations(database.DB, "up"); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	if v, dirty, err := db.GetMigrationVersion(database.DB); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", v, "dirty", dirty)
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Metrics.Enabled {
		telemetry.StartDBStatsCollector(ctx, database, cfg.Telemetry.Metrics.DBStatsInterval)
		metrics := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort),
			Handler:      metricsMux(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("starting Prometheus metrics server", "addr", metrics.Addr)
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		}()
		defer metrics.Close()
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      api.NewRouter(cfg, database, tokens),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", server.Addr, "base_url", cfg.Server.BaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("server stopped gracefully")
	return nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(context.Background(), cfg.Database.GetDSN(),
		cfg.Database.MaxConnections, cfg.Database.MinIdleConnections, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)
	if err := db.RunMigrations(database.DB, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	v, dirty, err := db.GetMigrationVersion(database.DB)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	slog.Info("migration completed", "version", v, "dirty", dirty)
	return nil
}

// issueToken prints a bearer token for username, signed with the configured secret.
// Tokens are the only credential the registry accepts; there is no login endpoint.
func issueToken(cfg *config.Config, username string) error {
	if cfg.Auth.DevMode && cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("dev mode generates a per-process secret; set auth.jwt_secret to issue tokens")
	}
	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.DevMode)
	if err != nil {
		return err
	}
	token, err := tokens.Generate(username)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}
	fmt.Println(token)
	return nil
}

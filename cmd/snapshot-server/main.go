// Package main runs the self-hosted snapshot server that matchup-companion
// clients push their bucket counts to and list everyone's snapshots from.
//
// Settings come from flags, then the environment (a .env file is honoured):
//
//	SNAPSHOT_ADDR          listen address (default ":8420")
//	SNAPSHOT_DATABASE_URL  Postgres DSN; when set, Postgres is used instead of SQLite
//	SNAPSHOT_DB_PATH       SQLite file (default ~/.matchup-companion/snapshots.db)
//	DEBUG                  "1" or "true" enables debug logging
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ramonehamilton/matchup-companion/internal/api"
	"github.com/ramonehamilton/matchup-companion/internal/app"
	"github.com/ramonehamilton/matchup-companion/internal/config"
	"github.com/ramonehamilton/matchup-companion/internal/metrics"
	"github.com/ramonehamilton/matchup-companion/internal/remote"
	"github.com/ramonehamilton/matchup-companion/internal/storage"
	"github.com/ramonehamilton/matchup-companion/internal/storage/postgres"
)

var (
	addr        = flag.String("addr", "", "Listen address (default: $SNAPSHOT_ADDR or :8420)")
	dbPath      = flag.String("db-path", "", "SQLite database path (default: $SNAPSHOT_DB_PATH or ~/.matchup-companion/snapshots.db)")
	databaseURL = flag.String("database-url", "", "Postgres DSN (default: $SNAPSHOT_DATABASE_URL)")
	debug       = flag.Bool("debug", false, "Enable debug logging")
)

// backend is a snapshot store the server can health check and release.
type backend struct {
	store remote.Store
	ping  func(context.Context) error
	close func() error
	name  string
}

func main() {
	flag.Parse()
	_ = godotenv.Load()

	logger := app.NewLogger(os.Stderr, *debug || asBool(os.Getenv("DEBUG")))
	if err := run(logger); err != nil {
		logger.Error("snapshot server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.close(); err != nil {
			logger.Warn("error closing database", "error", err)
		}
	}()

	listen := firstNonEmpty(*addr, os.Getenv("SNAPSHOT_ADDR"), api.DefaultConfig().Addr)
	server := api.NewServer(&api.Config{
		Addr:   listen,
		Logger: logger,
	}, api.Deps{
		Snapshots: b.store,
		Metrics:   metrics.NewServerMetrics(),
		Ping:      b.ping,
	})
	if err := server.Start(); err != nil {
		return err
	}

	fmt.Println("Matchup Companion - Snapshot Server")
	fmt.Println("===================================")
	fmt.Printf("Storage: %s\n", b.name)
	fmt.Printf("Listening on %s\n", listen)
	fmt.Println("Press Ctrl+C to stop")

	<-ctx.Done()
	fmt.Println()
	fmt.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	fmt.Println("Snapshot server stopped.")
	return nil
}

func openBackend(ctx context.Context, logger *slog.Logger) (*backend, error) {
	if dsn := firstNonEmpty(*databaseURL, os.Getenv("SNAPSHOT_DATABASE_URL")); dsn != "" {
		pg, err := postgres.Open(ctx, dsn, logger)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("apply postgres schema: %w", err)
		}
		return &backend{
			store: pg,
			ping:  pg.Ping,
			close: func() error { pg.Close(); return nil },
			name:  "postgres",
		}, nil
	}

	path := firstNonEmpty(*dbPath, os.Getenv("SNAPSHOT_DB_PATH"))
	if path == "" {
		dir, err := config.Dir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "snapshots.db")
	}
	db, err := storage.Open(storage.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return &backend{
		store: storage.NewSnapshotStore(db, logger),
		ping:  func(context.Context) error { return db.Ping() },
		close: db.Close,
		name:  "sqlite " + path,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func asBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

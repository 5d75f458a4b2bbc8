// Package storage persists the local aggregator, the refined stat curve, and the
// snapshot table of a self-hosted snapshot server in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// DB is an open companion database. Repositories share its pool.
type DB struct {
	conn *sql.DB
}

// Config describes how to open the companion database. The recorder CLI and
// the daemon open the same file.
type Config struct {
	Path string

	// Pool limits. Defaults: 8 open, 2 idle, 5 minute lifetime.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long a writer waits for the other process's lock.
	BusyTimeout time.Duration

	// JournalMode and Synchronous are passed through as pragmas (WAL, NORMAL).
	JournalMode string
	Synchronous string

	// AutoMigrate brings the schema up to date on Open.
	AutoMigrate bool
}

// DefaultConfig returns the settings used for the file at path.
func DefaultConfig(path string) *Config {
	return &Config{
		Path:            path,
		MaxOpenConns:    8,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		BusyTimeout:     5 * time.Second,
		JournalMode:     "WAL",
		Synchronous:     "NORMAL",
		AutoMigrate:     true,
	}
}

// dsn builds the modernc DSN. Transactions take the write lock up front so that a
// read-modify-write never fails on lock upgrade.
func (c *Config) dsn() string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(%s)&_pragma=synchronous(%s)&_pragma=foreign_keys(1)&_txlock=immediate",
		filepath.ToSlash(c.Path),
		c.BusyTimeout.Milliseconds(),
		c.JournalMode,
		c.Synchronous,
	)
}

// Open creates a new database connection with the given configuration, running
// migrations first when AutoMigrate is set.
func Open(config *Config) (*DB, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.Path == "" {
		return nil, fmt.Errorf("database path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	if config.AutoMigrate {
		if err := Migrate(config.Path); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite", config.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(config.MaxOpenConns)
	conn.SetMaxIdleConns(config.MaxIdleConns)
	conn.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("database %s is not usable: %w", config.Path, err)
	}

	return &DB{conn: conn}, nil
}

// Close releases the pool. A zero DB closes cleanly.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Conn exposes the pool for statements outside the repositories, such as backups.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping backs the health endpoints.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

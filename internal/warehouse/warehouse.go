// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

// Package warehouse owns the DuckDB connection and the warehouse schema.
//
// Raw fact tables are append-only and populated by ingestion collaborators;
// they are created here IF NOT EXISTS so a fresh database (or an in-memory
// test database) starts usable. Derived tables belong to the pipeline and
// are rebuilt wholesale on every run via build-then-swap (see BuildTableAs
// and PublishTable).
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/attic-audio/attic/internal/config"
	"github.com/attic-audio/attic/internal/logging"
)

// DB wraps the DuckDB connection and provides schema and swap helpers.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New opens the DuckDB database and ensures the raw schema exists.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "2GB"
	}

	// Ensure the parent directory exists for file-backed databases.
	if cfg.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dbDir, err)
			}
		}
	}

	// Disable extension auto-install/auto-load to prevent hangs in
	// restricted network environments.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}

	// DuckDB is embedded; a single writer connection avoids write-write
	// conflicts between pipeline steps.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := db.createRawTables(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return db, nil
}

// Conn returns the underlying SQL connection for packages that need
// direct access, such as pipeline steps.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Close checkpoints and closes the database connection. The checkpoint
// flushes the WAL so the next open does not replay it.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
	}

	return db.conn.Close()
}

// Ping checks if the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// TableExists reports whether a table is present in the main schema.
func (db *DB) TableExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_name = ?`, name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return count > 0, nil
}

// TableRowCount returns the row count of a table. The name is interpolated,
// so it must come from code, never from input.
func (db *DB) TableRowCount(ctx context.Context, name string) (int64, error) {
	var count int64
	err := db.conn.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", name)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", name, err)
	}
	return count, nil
}

func closeQuietly(c *sql.DB) {
	if err := c.Close(); err != nil {
		logging.Debug().Err(err).Msg("Error closing database connection")
	}
}

// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

package warehouse

import (
	"context"
	"fmt"

	"github.com/attic-audio/attic/internal/logging"
)

// buildSuffix marks the staging copy of a derived table while it is being
// built. Readers never see a __build table: a step either publishes it
// whole or the prior table stays in place.
const buildSuffix = "__build"

// BuildName returns the staging name for a derived table.
func BuildName(table string) string {
	return table + buildSuffix
}

// BuildTableAs materializes a SELECT into the staging copy of a derived
// table and publishes it. This is the whole lifecycle for pure-SQL models.
//
// Table names are code-owned constants, never input, so interpolation here
// is safe.
func (db *DB) BuildTableAs(ctx context.Context, table, query string, args ...any) error {
	stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS %s", BuildName(table), query)
	if _, err := db.conn.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("build %s: %w", table, err)
	}
	return db.PublishTable(ctx, table)
}

// CreateBuildTable creates an empty staging table with the given column
// definitions. Steps that decode payloads in Go insert into it and then
// call PublishTable.
func (db *DB) CreateBuildTable(ctx context.Context, table, columns string) error {
	stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", BuildName(table), columns)
	if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create build table for %s: %w", table, err)
	}
	return nil
}

// PublishTable atomically replaces a derived table with its staging copy.
// The drop and rename happen in one transaction; a reader sees either the
// old table or the new one, never a partial write.
func (db *DB) PublishTable(ctx context.Context, table string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("publish %s: begin: %w", table, err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err.Error() != "sql: transaction has already been committed or rolled back" {
			logging.Debug().Err(err).Str("table", table).Msg("Rollback after publish")
		}
	}()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
		return fmt.Errorf("publish %s: drop old: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", BuildName(table), table)); err != nil {
		return fmt.Errorf("publish %s: rename: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("publish %s: commit: %w", table, err)
	}
	return nil
}

// DiscardBuild drops a staging table after a failed build. Best effort;
// a leftover __build table is harmless and overwritten on the next run.
func (db *DB) DiscardBuild(ctx context.Context, table string) {
	if _, err := db.conn.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", BuildName(table))); err != nil {
		logging.Debug().Err(err).Str("table", table).Msg("Failed to discard build table")
	}
}

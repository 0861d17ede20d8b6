// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/attic-audio/attic/internal/pipeline"
	"github.com/attic-audio/attic/internal/warehouse"
)

// model is the common Step shape: a name (also the output table), its
// upstream step names, and a build function.
type model struct {
	name  string
	deps  []string
	build func(ctx context.Context, run *pipeline.Run) error
}

func (m *model) Name() string   { return m.name }
func (m *model) Deps() []string { return m.deps }

func (m *model) Build(ctx context.Context, run *pipeline.Run) error {
	return m.build(ctx, run)
}

// sqlModel is a pure-SQL transformation: one SELECT materialized into the
// step's output table.
func sqlModel(name string, deps []string, query func(run *pipeline.Run) (string, []any)) pipeline.Step {
	return &model{
		name: name,
		deps: deps,
		build: func(ctx context.Context, run *pipeline.Run) error {
			q, args := query(run)
			return run.DB.BuildTableAs(ctx, name, q, args...)
		},
	}
}

// insertRows bulk-inserts decoded rows into the staging copy of a table
// inside one transaction. placeholders is the VALUES clause column count.
func insertRows(ctx context.Context, db *warehouse.DB, table string, placeholders int, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	marks := make([]string, placeholders)
	for i := range marks {
		marks[i] = "?"
	}
	stmt := fmt.Sprintf("INSERT INTO %s VALUES (%s)", warehouse.BuildName(table), strings.Join(marks, ", "))

	tx, err := db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert into %s: begin: %w", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("insert into %s: prepare: %w", table, err)
	}
	defer prepared.Close()

	for _, row := range rows {
		if _, err := prepared.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert into %s: commit: %w", table, err)
	}
	return nil
}

// windowedCounts renders FILTERed aggregates for each trailing window.
// Each agg is {aggregate expression, output column prefix}; a window of 90
// days with prefix "listen_count" yields listen_count_90d. recency_days
// must be in scope in the surrounding SELECT.
func windowedCounts(windows []int, aggs [][2]string) string {
	var b strings.Builder
	for _, w := range windows {
		for _, agg := range aggs {
			fmt.Fprintf(&b, ",\n\t\t%s FILTER (WHERE recency_days <= %d) AS %s_%dd", agg[0], w, agg[1], w)
		}
	}
	return b.String()
}

// windowCol names the windowed column for a prefix and window length.
func windowCol(prefix string, days int) string {
	return fmt.Sprintf("%s_%dd", prefix, days)
}

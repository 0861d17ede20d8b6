// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

package warehouse

import (
	"context"
	"testing"

	"github.com/attic-audio/attic/internal/config"
)

// setupTestDB creates a new in-memory warehouse for a test.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "1GB"})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})
	return db
}

func TestNewCreatesRawSchema(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rawTables := []string{
		"listens", "feedback", "local_files", "catalog_annotations",
		"artist_stats", "similar_user_activity", "cf_artist_scores",
		"file_embeddings", "name_mappings", "playlist_collections",
		"playlist_tracks",
	}

	for _, table := range rawTables {
		exists, err := db.TableExists(ctx, table)
		if err != nil {
			t.Fatalf("TableExists(%s): %v", table, err)
		}
		if !exists {
			t.Errorf("raw table %s missing after New", table)
		}
	}
}

func TestNewIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	// A second schema pass over the same database must not error.
	if err := db.createRawTables(); err != nil {
		t.Fatalf("second createRawTables failed: %v", err)
	}
}

func TestBuildTableAsPublishes(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.BuildTableAs(ctx, "derived_numbers", "SELECT * FROM (VALUES (1), (2), (3)) AS t(n)"); err != nil {
		t.Fatalf("BuildTableAs: %v", err)
	}

	count, err := db.TableRowCount(ctx, "derived_numbers")
	if err != nil {
		t.Fatalf("TableRowCount: %v", err)
	}
	if count != 3 {
		t.Errorf("derived_numbers rows = %d, want 3", count)
	}

	// The staging table must be gone after publish.
	exists, err := db.TableExists(ctx, BuildName("derived_numbers"))
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("build table still present after publish")
	}
}

func TestPublishReplacesPriorVersion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.BuildTableAs(ctx, "derived_numbers", "SELECT 1 AS n"); err != nil {
		t.Fatal(err)
	}
	if err := db.BuildTableAs(ctx, "derived_numbers", "SELECT * FROM (VALUES (1), (2)) AS t(n)"); err != nil {
		t.Fatal(err)
	}

	count, err := db.TableRowCount(ctx, "derived_numbers")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("rows after rebuild = %d, want 2", count)
	}
}

func TestFailedBuildLeavesPriorTable(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.BuildTableAs(ctx, "derived_numbers", "SELECT 1 AS n"); err != nil {
		t.Fatal(err)
	}

	// A broken query must not disturb the published table.
	if err := db.BuildTableAs(ctx, "derived_numbers", "SELECT * FROM no_such_table"); err == nil {
		t.Fatal("expected error from broken build query")
	}
	db.DiscardBuild(ctx, "derived_numbers")

	count, err := db.TableRowCount(ctx, "derived_numbers")
	if err != nil {
		t.Fatalf("prior table unreadable after failed build: %v", err)
	}
	if count != 1 {
		t.Errorf("prior table rows = %d, want 1", count)
	}
}

func TestCreateBuildTableAndPublish(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.CreateBuildTable(ctx, "staged", "id INTEGER, name TEXT"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Conn().ExecContext(ctx,
		"INSERT INTO "+BuildName("staged")+" VALUES (?, ?)", 1, "one"); err != nil {
		t.Fatal(err)
	}
	if err := db.PublishTable(ctx, "staged"); err != nil {
		t.Fatal(err)
	}

	count, err := db.TableRowCount(ctx, "staged")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("staged rows = %d, want 1", count)
	}
}

// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

package warehouse

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createRawTables creates the append-only fact tables populated by the
// ingestion collaborators. Derived tables are not created here; each
// pipeline step publishes its own output table.
func (db *DB) createRawTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range rawTableDDL() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("execute schema statement: %s: %w", query, err)
		}
	}

	return nil
}

// rawTableDDL returns the raw fact table definitions.
//
// Payload columns are stored as TEXT holding JSON; the staging steps decode
// them in Go. MBID columns are DuckDB UUIDs.
func rawTableDDL() []string {
	return []string{
		// Listen events (scrobbles). One row per listen; listen_md5 is the
		// ingestion-side content hash of the raw payload.
		`CREATE TABLE IF NOT EXISTS listens (
			listen_md5 TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			json_data TEXT NOT NULL,
			listen_at TIMESTAMP NOT NULL,
			inserted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Love/feedback events.
		`CREATE TABLE IF NOT EXISTS feedback (
			feedback_md5 TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			recording_mbid UUID,
			track_name TEXT,
			artist_name TEXT,
			loved_at TIMESTAMP NOT NULL,
			inserted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Local file tag snapshots.
		`CREATE TABLE IF NOT EXISTS local_files (
			filepath TEXT PRIMARY KEY,
			json_data TEXT NOT NULL,
			file_created_at TIMESTAMP NOT NULL,
			file_modified_at TIMESTAMP NOT NULL,
			inserted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Catalog annotation payloads, one row per (mbid, entity) fetch.
		// payload_json is NULL while enrichment has not caught up.
		`CREATE TABLE IF NOT EXISTS catalog_annotations (
			mbid UUID NOT NULL,
			entity TEXT NOT NULL,
			payload_json TEXT,
			fetched_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (mbid, entity)
		)`,

		// Global per-artist listen statistics from the catalog's stats API.
		`CREATE TABLE IF NOT EXISTS artist_stats (
			artist_mbid UUID PRIMARY KEY,
			payload_json TEXT,
			fetched_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Similar-listener top-entity payloads.
		// entity: artists | releases | recordings
		// time_range: month | year | all_time
		`CREATE TABLE IF NOT EXISTS similar_user_activity (
			payload_id TEXT PRIMARY KEY,
			from_username TEXT NOT NULL,
			to_username TEXT NOT NULL,
			entity TEXT NOT NULL,
			time_range TEXT NOT NULL,
			user_similarity DOUBLE NOT NULL,
			json_data TEXT NOT NULL,
			inserted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Externally trained pairwise artist collaborative-filtering scores.
		// Stored one direction; consumers union both directions.
		`CREATE TABLE IF NOT EXISTS cf_artist_scores (
			artist_mbid_a UUID NOT NULL,
			artist_mbid_b UUID NOT NULL,
			score DOUBLE NOT NULL,
			PRIMARY KEY (artist_mbid_a, artist_mbid_b)
		)`,

		// Opaque embedding vectors from the external ML job. Stored, never
		// interpreted by the pipeline.
		`CREATE TABLE IF NOT EXISTS file_embeddings (
			filepath TEXT PRIMARY KEY,
			success BOOLEAN NOT NULL,
			fail_reason TEXT,
			duration_seconds DOUBLE,
			embedding DOUBLE[],
			inserted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Output of the external fuzzy name-matching job: content key to
		// canonical id, per entity kind (track | release | artist).
		`CREATE TABLE IF NOT EXISTS name_mappings (
			entity TEXT NOT NULL,
			content_key UUID NOT NULL,
			mbid UUID NOT NULL,
			confidence DOUBLE NOT NULL DEFAULT 1.0,
			PRIMARY KEY (entity, content_key, mbid)
		)`,

		// Stored playlist collections and their playlists.
		`CREATE TABLE IF NOT EXISTS playlist_collections (
			collection_id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			collection_name TEXT NOT NULL,
			refreshed_at TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS playlist_tracks (
			collection_id TEXT NOT NULL,
			playlist_index INTEGER NOT NULL,
			playlist_title TEXT,
			track_index INTEGER NOT NULL,
			filepath TEXT NOT NULL,
			PRIMARY KEY (collection_id, playlist_index, track_index)
		)`,
	}
}

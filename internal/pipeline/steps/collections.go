// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

package steps

import (
	"fmt"
	"strings"

	"github.com/attic-audio/attic/internal/pipeline"
)

// LovedTracks resolves loved-track feedback to canonical recordings and
// attaches a playable local file where one exists. Feedback without a
// recording MBID resolves through the fuzzy name mapping; feedback that
// resolves to nothing is dropped. Repeated loves of one recording collapse
// to the latest.
func LovedTracks() pipeline.Step {
	deps := []string{"stg_feedback", "map_file_recording", "stg_local_files", "catalog_entities"}
	return sqlModel("loved_tracks", deps,
		func(run *pipeline.Run) (string, []any) {
			return `
				WITH track_map AS (
					SELECT content_key, min(mbid) AS mbid
					FROM name_mappings WHERE entity = 'track' GROUP BY content_key
				),
				resolved AS (
					SELECT f.username,
						coalesce(f.recording_mbid, tm.mbid) AS recording_mbid,
						f.loved_at
					FROM stg_feedback f
					LEFT JOIN track_map tm ON tm.content_key = f.track_key
				),
				playable AS (
					SELECT m.mbid AS recording_mbid,
						arg_min(m.filepath, sf.path_hash) AS filepath
					FROM map_file_recording m
					JOIN stg_local_files sf ON sf.filepath = m.filepath
					GROUP BY m.mbid
				)
				SELECT r.username, r.recording_mbid,
					ce.title, ce.artist_name,
					p.filepath,
					max(r.loved_at) AS loved_at
				FROM resolved r
				LEFT JOIN playable p ON p.recording_mbid = r.recording_mbid
				LEFT JOIN catalog_entities ce
					ON ce.entity = 'recording' AND ce.mbid = r.recording_mbid
				WHERE r.recording_mbid IS NOT NULL
				GROUP BY r.username, r.recording_mbid, ce.title, ce.artist_name, p.filepath`, nil
		})
}

// PlaylistFileCounts counts, per listener and file, how many distinct
// playlists currently reference the file, and which collections they live
// in. System-reserved collections (the auto-generated loved and revisit
// playlists) are excluded so the count reflects deliberate curation only.
func PlaylistFileCounts() pipeline.Step {
	return sqlModel("playlist_file_counts", nil,
		func(run *pipeline.Run) (string, []any) {
			reserved := run.Cfg.Collections.ReservedNames

			where := ""
			args := make([]any, 0, len(reserved))
			if len(reserved) > 0 {
				marks := strings.TrimSuffix(strings.Repeat("?, ", len(reserved)), ", ")
				where = fmt.Sprintf("WHERE c.collection_name NOT IN (%s)", marks)
				for _, name := range reserved {
					args = append(args, name)
				}
			}

			query := fmt.Sprintf(`
				SELECT c.username, t.filepath,
					count(DISTINCT c.collection_id || ':' || CAST(t.playlist_index AS TEXT)) AS playlist_count,
					string_agg(DISTINCT c.collection_name, ', ' ORDER BY c.collection_name) AS collection_names
				FROM playlist_tracks t
				JOIN playlist_collections c ON c.collection_id = t.collection_id
				%s
				GROUP BY c.username, t.filepath`, where)
			return query, args
		})
}

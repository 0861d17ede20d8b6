// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

package steps

import (
	"fmt"

	"github.com/attic-audio/attic/internal/pipeline"
)

// RevisitReleases classifies release groups worth revisiting: a meaningful
// lifetime history, sized between single and box set, few or no recent
// listens, a body of older listens exceeding a multiple of the entity
// size, and a revisit score above the floor. Every threshold comes from
// configuration.
func RevisitReleases() pipeline.Step {
	return sqlModel("revisit_releases", []string{"listener_release_group_stats", "catalog_entities"},
		func(run *pipeline.Run) (string, []any) {
			rv := run.Cfg.Revisit
			recent := windowCol("listen_count", rv.RecentWindowDays)
			query := fmt.Sprintf(`
				WITH candidates AS (
					SELECT s.username, s.release_group_mbid,
						ce.title, ce.artist_name,
						s.revisit_score, s.recency_score,
						s.lifetime_listen_count, s.lifetime_recording_count,
						s.%[1]s AS recent_listen_count,
						s.last_listen_at
					FROM listener_release_group_stats s
					LEFT JOIN catalog_entities ce
						ON ce.entity = 'release-group' AND ce.mbid = s.release_group_mbid
					WHERE s.lifetime_listen_count >= ?
						AND s.lifetime_recording_count BETWEEN ? AND ?
						AND s.%[1]s <= ?
						AND (s.lifetime_listen_count - s.%[1]s) > ? * s.lifetime_recording_count
						AND s.revisit_score > ?
				)
				SELECT username,
					row_number() OVER (
						PARTITION BY username
						ORDER BY revisit_score DESC, release_group_mbid
					) AS revisit_rank,
					release_group_mbid, title, artist_name,
					revisit_score, recency_score,
					lifetime_listen_count, lifetime_recording_count,
					recent_listen_count, last_listen_at
				FROM candidates`, recent)
			return query, []any{
				rv.MinLifetimeListens,
				rv.MinRecordings, rv.MaxRecordings,
				rv.MaxRecentListens,
				rv.OldListenMultiple,
				rv.ScoreFloor,
			}
		})
}

// RevisitTracks classifies individual recordings worth revisiting and
// attaches one playable local file to each. When several files map to a
// recording the one with the smallest path hash wins, so repeated runs
// always pick the same file. Recordings with no local file are dropped;
// this output exists to be played.
func RevisitTracks() pipeline.Step {
	deps := []string{
		"listener_recording_stats", "map_file_recording",
		"stg_local_files", "catalog_links", "catalog_entities",
	}
	return sqlModel("revisit_tracks", deps,
		func(run *pipeline.Run) (string, []any) {
			rv := run.Cfg.Revisit
			recent := windowCol("listen_count", rv.RecentWindowDays)
			query := fmt.Sprintf(`
				WITH playable AS (
					SELECT m.mbid AS recording_mbid,
						arg_min(m.filepath, f.path_hash) AS filepath
					FROM map_file_recording m
					JOIN stg_local_files f ON f.filepath = m.filepath
					GROUP BY m.mbid
				),
				recording_artist AS (
					SELECT from_mbid, min(to_mbid) AS artist_mbid
					FROM catalog_links WHERE link_type = 'recording-artist' GROUP BY from_mbid
				),
				recording_group AS (
					SELECT rr.from_mbid, min(rg.to_mbid) AS release_group_mbid
					FROM catalog_links rr
					JOIN catalog_links rg
						ON rg.link_type = 'release-release_group' AND rg.from_mbid = rr.to_mbid
					WHERE rr.link_type = 'recording-release'
					GROUP BY rr.from_mbid
				),
				group_artist AS (
					SELECT from_mbid, min(to_mbid) AS artist_mbid
					FROM catalog_links WHERE link_type = 'release_group-artist' GROUP BY from_mbid
				),
				candidates AS (
					SELECT s.username, s.recording_mbid, p.filepath,
						ce.title, ce.artist_name,
						ra.artist_mbid,
						coalesce(ga.artist_mbid, ra.artist_mbid) AS album_artist_mbid,
						s.revisit_score, s.lifetime_listen_count,
						s.%[1]s AS recent_listen_count,
						s.last_listen_at
					FROM listener_recording_stats s
					JOIN playable p ON p.recording_mbid = s.recording_mbid
					LEFT JOIN catalog_entities ce
						ON ce.entity = 'recording' AND ce.mbid = s.recording_mbid
					LEFT JOIN recording_artist ra ON ra.from_mbid = s.recording_mbid
					LEFT JOIN recording_group rgm ON rgm.from_mbid = s.recording_mbid
					LEFT JOIN group_artist ga ON ga.from_mbid = rgm.release_group_mbid
					WHERE s.lifetime_listen_count >= ?
						AND s.%[1]s <= ?
						AND s.revisit_score > ?
				)
				SELECT username,
					row_number() OVER (
						PARTITION BY username
						ORDER BY revisit_score DESC, recording_mbid
					) AS revisit_rank,
					recording_mbid, filepath, title, artist_name,
					artist_mbid, album_artist_mbid,
					revisit_score, lifetime_listen_count,
					recent_listen_count, last_listen_at
				FROM candidates
				QUALIFY revisit_rank <= ?`, recent)
			return query, []any{
				rv.MinLifetimeListens,
				rv.MaxRecentListens,
				rv.TrackScoreFloor,
				rv.TrackLimit,
			}
		})
}

// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

package steps

import (
	"fmt"

	"github.com/attic-audio/attic/internal/pipeline"
)

// qualifiedListens is the scoring population: listens with a resolved
// recording, a resolved release, and at least one resolved artist. Partial
// resolution is excluded from scoring entirely. recency_days is measured
// against the run's injected baseline, bound as the single query argument.
const qualifiedListens = `
	qualified AS (
		SELECT lr.listen_md5, lr.username, lr.listen_at,
			lr.recording_mbid, lr.release_mbid, lr.release_group_mbid,
			greatest(0, date_diff('day', lr.listen_at, CAST(? AS TIMESTAMP))) AS recency_days
		FROM listen_resolution lr
		WHERE lr.recording_mbid IS NOT NULL
			AND lr.release_mbid IS NOT NULL
			AND EXISTS (
				SELECT 1 FROM listen_artist_resolution la
				WHERE la.listen_md5 = lr.listen_md5
			)
	)`

// scoreExprs renders the recency and revisit score aggregates for the
// given decay rate.
//
// recency_pct decays exponentially per day; inv_recency_pct is its
// complement floored at one day old, so a same-day listen cannot zero the
// staleness product. revisit_score multiplies staleness across listens and
// scales by ln(listens+1): more history raises the ceiling.
func scoreExprs(decay float64) string {
	return fmt.Sprintf(`
		sum(exp(-%[1]g * recency_days)) AS recency_score,
		exp(sum(ln(1 - least(exp(-%[1]g * recency_days), exp(-%[1]g))))) * ln(count(*) + 1) AS revisit_score`,
		decay)
}

// ListenerReleaseGroupStats aggregates qualified listens per (listener,
// release group): lifetime and windowed counts plus recency and revisit
// scores. Fully recomputed each run.
func ListenerReleaseGroupStats() pipeline.Step {
	return sqlModel("listener_release_group_stats", []string{"listen_resolution", "listen_artist_resolution"},
		func(run *pipeline.Run) (string, []any) {
			query := fmt.Sprintf(`
				WITH %s
				SELECT username, release_group_mbid,
					count(*) AS lifetime_listen_count,
					count(DISTINCT recording_mbid) AS lifetime_recording_count,
					count(DISTINCT release_mbid) AS lifetime_release_count,
					min(listen_at) AS first_listen_at,
					max(listen_at) AS last_listen_at,
					%s%s
				FROM qualified
				WHERE release_group_mbid IS NOT NULL
				GROUP BY username, release_group_mbid`,
				qualifiedListens,
				scoreExprs(run.Cfg.Scoring.DecayRate),
				windowedCounts(run.Cfg.Scoring.WindowsDays, [][2]string{
					{"count(*)", "listen_count"},
					{"count(DISTINCT recording_mbid)", "recording_count"},
					{"count(DISTINCT release_mbid)", "release_count"},
				}))
			return query, []any{run.Now}
		})
}

// ListenerRecordingStats aggregates qualified listens per (listener,
// recording), the grain behind revisit_tracks.
func ListenerRecordingStats() pipeline.Step {
	return sqlModel("listener_recording_stats", []string{"listen_resolution", "listen_artist_resolution"},
		func(run *pipeline.Run) (string, []any) {
			query := fmt.Sprintf(`
				WITH %s
				SELECT username, recording_mbid,
					count(*) AS lifetime_listen_count,
					min(listen_at) AS first_listen_at,
					max(listen_at) AS last_listen_at,
					%s%s
				FROM qualified
				GROUP BY username, recording_mbid`,
				qualifiedListens,
				scoreExprs(run.Cfg.Scoring.DecayRate),
				windowedCounts(run.Cfg.Scoring.WindowsDays, [][2]string{
					{"count(*)", "listen_count"},
				}))
			return query, []any{run.Now}
		})
}

// ListenerArtistCounts counts listens per (listener, artist) and ranks each
// listener's artists by lifetime listens. Unlike the scoring stats this
// needs only a resolved artist, so a listen with an unresolved release
// still marks its artist as known. listen_rank 1 is the most-listened.
func ListenerArtistCounts() pipeline.Step {
	return sqlModel("listener_artist_counts", []string{"listen_resolution", "listen_artist_resolution"},
		func(run *pipeline.Run) (string, []any) {
			query := fmt.Sprintf(`
				WITH listens AS (
					SELECT lr.username, la.artist_mbid,
						greatest(0, date_diff('day', lr.listen_at, CAST(? AS TIMESTAMP))) AS recency_days
					FROM listen_resolution lr
					JOIN listen_artist_resolution la ON la.listen_md5 = lr.listen_md5
				),
				counted AS (
					SELECT username, artist_mbid,
						count(*) AS lifetime_listen_count%s
					FROM listens
					GROUP BY username, artist_mbid
				)
				SELECT *,
					row_number() OVER (
						PARTITION BY username
						ORDER BY lifetime_listen_count DESC, artist_mbid
					) AS listen_rank
				FROM counted`,
				windowedCounts(run.Cfg.Scoring.WindowsDays, [][2]string{
					{"count(*)", "listen_count"},
				}))
			return query, []any{run.Now}
		})
}

// FileListenCounts counts listens per (listener, local file) through the
// file-to-recording multi-map. A file mapped to several recordings earns
// the listens of each.
func FileListenCounts() pipeline.Step {
	return sqlModel("file_listen_counts", []string{"listen_resolution", "map_file_recording"},
		func(run *pipeline.Run) (string, []any) {
			query := fmt.Sprintf(`
				WITH listens AS (
					SELECT lr.username, m.filepath, lr.listen_at,
						greatest(0, date_diff('day', lr.listen_at, CAST(? AS TIMESTAMP))) AS recency_days
					FROM listen_resolution lr
					JOIN map_file_recording m ON m.mbid = lr.recording_mbid
				)
				SELECT username, filepath,
					count(*) AS lifetime_listen_count,
					max(listen_at) AS last_listen_at%s
				FROM listens
				GROUP BY username, filepath`,
				windowedCounts(run.Cfg.Scoring.WindowsDays, [][2]string{
					{"count(*)", "listen_count"},
				}))
			return query, []any{run.Now}
		})
}

// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

package steps

import (
	"github.com/attic-audio/attic/internal/pipeline"
)

// The recommendation models share one similarity aggregate: each similar
// listener contributes user_similarity * ln(listen_count + 1) per entity,
// summed per (listener, entity, time range). Ranking is deterministic:
// score descending with the entity id as tie-break, truncated to top K.

// FreshReleases ranks release groups heard by similar listeners that the
// listener has neither played nor shelved. A release group is also dropped
// when any of its artists is already familiar (lifetime listens above the
// configured threshold): a known artist's unheard release is not a
// discovery.
func FreshReleases() pipeline.Step {
	deps := []string{
		"stg_similar_user_activity", "catalog_links",
		"listener_release_group_stats", "listener_artist_counts",
		"map_file_release_group", "catalog_entities",
	}
	return sqlModel("fresh_releases", deps,
		func(run *pipeline.Run) (string, []any) {
			query := `
				WITH release_group AS (
					SELECT from_mbid, min(to_mbid) AS to_mbid
					FROM catalog_links WHERE link_type = 'release-release_group' GROUP BY from_mbid
				),
				signal AS (
					SELECT a.from_username AS username, a.time_range,
						rg.to_mbid AS release_group_mbid,
						sum(a.user_similarity * ln(a.listen_count + 1)) AS similarity_score
					FROM stg_similar_user_activity a
					JOIN release_group rg ON rg.from_mbid = a.mbid
					WHERE a.entity = 'releases'
					GROUP BY 1, 2, 3
				),
				familiar_artist_groups AS (
					SELECT DISTINCT c.username, l.from_mbid AS release_group_mbid
					FROM catalog_links l
					JOIN listener_artist_counts c ON c.artist_mbid = l.to_mbid
					WHERE l.link_type = 'release_group-artist' AND c.lifetime_listen_count > ?
				),
				candidates AS (
					SELECT s.username, s.time_range, s.release_group_mbid,
						ce.title, ce.artist_name, s.similarity_score
					FROM signal s
					LEFT JOIN catalog_entities ce
						ON ce.entity = 'release-group' AND ce.mbid = s.release_group_mbid
					WHERE NOT EXISTS (
							SELECT 1 FROM listener_release_group_stats k
							WHERE k.username = s.username AND k.release_group_mbid = s.release_group_mbid
						)
						AND NOT EXISTS (
							SELECT 1 FROM map_file_release_group lib
							WHERE lib.mbid = s.release_group_mbid
						)
						AND NOT EXISTS (
							SELECT 1 FROM familiar_artist_groups fam
							WHERE fam.username = s.username AND fam.release_group_mbid = s.release_group_mbid
						)
				)
				SELECT username, time_range,
					row_number() OVER (
						PARTITION BY username, time_range
						ORDER BY similarity_score DESC, release_group_mbid
					) AS candidate_rank,
					release_group_mbid, title, artist_name, similarity_score
				FROM candidates
				QUALIFY candidate_rank <= ?`
			return query, []any{
				run.Cfg.Ranker.KnownArtistListenThreshold,
				run.Cfg.Ranker.TopK,
			}
		})
}

// ArtistRecommends ranks discovery artists from two signals: similar
// listeners' top artists, and collaborative-filtering neighbors of the
// artists the listener already plays (surfaced under the all_time time
// range). The combined score is scaled by a novelty factor so globally
// ubiquitous artists rank below comparably similar obscure ones. The
// listener's top N most-listened artists and any artist in the local
// library never appear.
func ArtistRecommends() pipeline.Step {
	deps := []string{
		"stg_similar_user_activity", "listener_artist_counts",
		"catalog_artist_popularity", "map_file_artist", "catalog_entities",
	}
	return sqlModel("artist_recommends", deps,
		func(run *pipeline.Run) (string, []any) {
			query := `
				WITH similar_signal AS (
					SELECT from_username AS username, time_range, mbid AS artist_mbid,
						sum(user_similarity * ln(listen_count + 1)) AS score
					FROM stg_similar_user_activity
					WHERE entity = 'artists'
					GROUP BY 1, 2, 3
				),
				cf_pairs AS (
					SELECT artist_mbid_a AS seed_mbid, artist_mbid_b AS candidate_mbid, score
					FROM cf_artist_scores
					UNION ALL
					SELECT artist_mbid_b, artist_mbid_a, score
					FROM cf_artist_scores
				),
				cf_signal AS (
					SELECT c.username, 'all_time' AS time_range, p.candidate_mbid AS artist_mbid,
						sum(p.score * ln(c.lifetime_listen_count + 1)) AS score
					FROM listener_artist_counts c
					JOIN cf_pairs p ON p.seed_mbid = c.artist_mbid
					GROUP BY 1, 2, 3
				),
				combined AS (
					SELECT username, time_range, artist_mbid, sum(score) AS similarity_score
					FROM (
						SELECT * FROM similar_signal
						UNION ALL
						SELECT * FROM cf_signal
					)
					GROUP BY 1, 2, 3
				),
				mean_pop AS (
					SELECT avg(total_listen_count) AS mean_listen_count
					FROM catalog_artist_popularity
				),
				candidates AS (
					SELECT c.username, c.time_range, c.artist_mbid,
						ce.title AS artist_name,
						c.similarity_score,
						coalesce(
							ln(mp.mean_listen_count + 1)
								/ nullif(ln(coalesce(p.total_listen_count, mp.mean_listen_count) + 1), 0),
							1.0
						) AS novelty_factor
					FROM combined c
					CROSS JOIN mean_pop mp
					LEFT JOIN catalog_artist_popularity p ON p.artist_mbid = c.artist_mbid
					LEFT JOIN catalog_entities ce ON ce.entity = 'artist' AND ce.mbid = c.artist_mbid
					WHERE NOT EXISTS (
							SELECT 1 FROM listener_artist_counts heard
							WHERE heard.username = c.username
								AND heard.artist_mbid = c.artist_mbid
								AND heard.listen_rank <= ?
						)
						AND NOT EXISTS (
							SELECT 1 FROM map_file_artist lib
							WHERE lib.mbid = c.artist_mbid
						)
				)
				SELECT username, time_range,
					row_number() OVER (
						PARTITION BY username, time_range
						ORDER BY similarity_score * novelty_factor DESC, artist_mbid
					) AS candidate_rank,
					artist_mbid, artist_name,
					similarity_score, novelty_factor,
					similarity_score * novelty_factor AS combined_score
				FROM candidates
				QUALIFY candidate_rank <= ?`
			return query, []any{
				run.Cfg.Ranker.TopArtistExcludeN,
				run.Cfg.Ranker.TopK,
			}
		})
}

// LibraryAdditions ranks recordings heard by similar listeners that exist
// neither in the listener's history nor in the local library: the shopping
// list for acquisition.
func LibraryAdditions() pipeline.Step {
	deps := []string{
		"stg_similar_user_activity", "listen_resolution",
		"map_file_recording", "catalog_entities",
	}
	return sqlModel("library_additions", deps,
		func(run *pipeline.Run) (string, []any) {
			query := `
				WITH signal AS (
					SELECT a.from_username AS username, a.time_range, a.mbid AS recording_mbid,
						sum(a.user_similarity * ln(a.listen_count + 1)) AS similarity_score
					FROM stg_similar_user_activity a
					WHERE a.entity = 'recordings'
					GROUP BY 1, 2, 3
				),
				candidates AS (
					SELECT s.username, s.time_range, s.recording_mbid,
						ce.title, ce.artist_name, s.similarity_score
					FROM signal s
					LEFT JOIN catalog_entities ce
						ON ce.entity = 'recording' AND ce.mbid = s.recording_mbid
					WHERE NOT EXISTS (
							SELECT 1 FROM listen_resolution heard
							WHERE heard.username = s.username AND heard.recording_mbid = s.recording_mbid
						)
						AND NOT EXISTS (
							SELECT 1 FROM map_file_recording lib
							WHERE lib.mbid = s.recording_mbid
						)
				)
				SELECT username, time_range,
					row_number() OVER (
						PARTITION BY username, time_range
						ORDER BY similarity_score DESC, recording_mbid
					) AS candidate_rank,
					recording_mbid, title, artist_name, similarity_score
				FROM candidates
				QUALIFY candidate_rank <= ?`
			return query, []any{run.Cfg.Ranker.TopK}
		})
}

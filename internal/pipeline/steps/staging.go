// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/attic-audio/attic/internal/identity"
	"github.com/attic-audio/attic/internal/logging"
	"github.com/attic-audio/attic/internal/pipeline"
)

// StgListens decodes raw scrobble payloads into one typed row per listen.
// A payload that does not decode is skipped with a warning, never fatal.
func StgListens() pipeline.Step {
	const table = "stg_listens"
	return &model{
		name: table,
		build: func(ctx context.Context, run *pipeline.Run) error {
			raw, err := run.DB.Conn().QueryContext(ctx,
				"SELECT listen_md5, username, listen_at, json_data FROM listens")
			if err != nil {
				return fmt.Errorf("read listens: %w", err)
			}
			defer raw.Close()

			var rows [][]any
			skipped := 0
			for raw.Next() {
				var md5, username, data string
				var listenAt time.Time
				if err := raw.Scan(&md5, &username, &listenAt, &data); err != nil {
					return fmt.Errorf("scan listen: %w", err)
				}
				p, err := decodeListen(data)
				if err != nil {
					logging.Warn().Err(err).Str("listen_md5", md5).Msg("Skipping undecodable listen payload")
					skipped++
					continue
				}

				trackKey, trackOK := identity.TrackKey(p.TrackName, p.ArtistName)
				releaseKey, releaseOK := identity.ReleaseKey(p.ReleaseName, p.ArtistName)
				artistKey, artistOK := identity.ArtistKey(p.ArtistName)

				rows = append(rows, []any{
					md5, username, listenAt,
					textOrNil(p.TrackName), textOrNil(p.ArtistName), textOrNil(p.ReleaseName),
					mbidOrNil(p.RecordingMBID), mbidOrNil(p.ReleaseMBID),
					keyOrNil(trackKey, trackOK), keyOrNil(releaseKey, releaseOK), keyOrNil(artistKey, artistOK),
				})
			}
			if err := raw.Err(); err != nil {
				return fmt.Errorf("read listens: %w", err)
			}
			if skipped > 0 {
				logging.Warn().Int("skipped", skipped).Msg("Listens skipped for undecodable payloads")
			}

			if err := run.DB.CreateBuildTable(ctx, table, `
				listen_md5 TEXT NOT NULL,
				username TEXT NOT NULL,
				listen_at TIMESTAMP NOT NULL,
				track_name TEXT,
				artist_name TEXT,
				release_name TEXT,
				recording_mbid UUID,
				release_mbid UUID,
				track_key UUID,
				release_key UUID,
				artist_key UUID`); err != nil {
				return err
			}
			if err := insertRows(ctx, run.DB, table, 11, rows); err != nil {
				return err
			}
			return run.DB.PublishTable(ctx, table)
		},
	}
}

// StgListenArtists explodes the per-listen artist MBID list into relational
// rows. One listen row per credited artist, deduplicated.
func StgListenArtists() pipeline.Step {
	const table = "stg_listen_artists"
	return &model{
		name: table,
		build: func(ctx context.Context, run *pipeline.Run) error {
			raw, err := run.DB.Conn().QueryContext(ctx, "SELECT listen_md5, json_data FROM listens")
			if err != nil {
				return fmt.Errorf("read listens: %w", err)
			}
			defer raw.Close()

			seen := make(map[string]struct{})
			var rows [][]any
			for raw.Next() {
				var md5, data string
				if err := raw.Scan(&md5, &data); err != nil {
					return fmt.Errorf("scan listen: %w", err)
				}
				p, err := decodeListen(data)
				if err != nil {
					continue // already reported by stg_listens
				}
				for _, candidate := range p.ArtistMBIDs {
					mbid, ok := identity.ParseMBID(candidate)
					if !ok {
						continue
					}
					key := md5 + "\x1f" + mbid.String()
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}
					rows = append(rows, []any{md5, mbid.String()})
				}
			}
			if err := raw.Err(); err != nil {
				return fmt.Errorf("read listens: %w", err)
			}

			if err := run.DB.CreateBuildTable(ctx, table,
				"listen_md5 TEXT NOT NULL, artist_mbid UUID NOT NULL"); err != nil {
				return err
			}
			if err := insertRows(ctx, run.DB, table, 2, rows); err != nil {
				return err
			}
			return run.DB.PublishTable(ctx, table)
		},
	}
}

// StgLocalFiles decodes local file tag snapshots. The excluded flag marks
// files under administratively flagged path prefixes; such files keep their
// direct tag identifiers but are skipped for indirect and transitive
// mapping downstream.
func StgLocalFiles() pipeline.Step {
	const table = "stg_local_files"
	return &model{
		name: table,
		build: func(ctx context.Context, run *pipeline.Run) error {
			raw, err := run.DB.Conn().QueryContext(ctx, "SELECT filepath, json_data FROM local_files")
			if err != nil {
				return fmt.Errorf("read local_files: %w", err)
			}
			defer raw.Close()

			var rows [][]any
			skipped := 0
			for raw.Next() {
				var path, data string
				if err := raw.Scan(&path, &data); err != nil {
					return fmt.Errorf("scan local file: %w", err)
				}
				tags, err := decodeFileTags(data)
				if err != nil {
					logging.Warn().Err(err).Str("filepath", path).Msg("Skipping undecodable file tags")
					skipped++
					continue
				}

				// Release keys prefer the album artist; a compilation's
				// track artists must not split the release apart.
				releaseArtist := tags.AlbumArtist
				if identity.NormalizeName(releaseArtist) == "" {
					releaseArtist = tags.Artist
				}

				trackKey, trackOK := identity.TrackKey(tags.Title, tags.Artist)
				releaseKey, releaseOK := identity.ReleaseKey(tags.Album, releaseArtist)
				artistKey, artistOK := identity.ArtistKey(tags.Artist)
				albumArtistKey, albumArtistOK := identity.ArtistKey(tags.AlbumArtist)

				rows = append(rows, []any{
					path, identity.PathHash(path),
					textOrNil(tags.Title), textOrNil(tags.Artist), textOrNil(tags.Album), textOrNil(tags.AlbumArtist),
					mbidOrNil(tags.TrackMBID), mbidOrNil(tags.ReleaseMBID), mbidOrNil(tags.ReleaseGroupMBID),
					mbidOrNil(tags.ArtistMBID), mbidOrNil(tags.AlbumArtistMBID),
					keyOrNil(trackKey, trackOK), keyOrNil(releaseKey, releaseOK),
					keyOrNil(artistKey, artistOK), keyOrNil(albumArtistKey, albumArtistOK),
					pathExcluded(path, run.Cfg.Resolution.ExcludedPathPrefixes),
				})
			}
			if err := raw.Err(); err != nil {
				return fmt.Errorf("read local_files: %w", err)
			}
			if skipped > 0 {
				logging.Warn().Int("skipped", skipped).Msg("Local files skipped for undecodable tags")
			}

			if err := run.DB.CreateBuildTable(ctx, table, `
				filepath TEXT NOT NULL,
				path_hash TEXT NOT NULL,
				title TEXT,
				artist TEXT,
				album TEXT,
				album_artist TEXT,
				recording_mbid UUID,
				release_mbid UUID,
				release_group_mbid UUID,
				artist_mbid UUID,
				album_artist_mbid UUID,
				track_key UUID,
				release_key UUID,
				artist_key UUID,
				album_artist_key UUID,
				excluded BOOLEAN NOT NULL`); err != nil {
				return err
			}
			if err := insertRows(ctx, run.DB, table, 16, rows); err != nil {
				return err
			}
			return run.DB.PublishTable(ctx, table)
		},
	}
}

// StgFeedback types loved-track feedback and computes the content key used
// to resolve feedback rows that carry names but no recording MBID.
func StgFeedback() pipeline.Step {
	const table = "stg_feedback"
	return &model{
		name: table,
		build: func(ctx context.Context, run *pipeline.Run) error {
			raw, err := run.DB.Conn().QueryContext(ctx, `
				SELECT feedback_md5, username, CAST(recording_mbid AS TEXT), track_name, artist_name, loved_at
				FROM feedback`)
			if err != nil {
				return fmt.Errorf("read feedback: %w", err)
			}
			defer raw.Close()

			var rows [][]any
			for raw.Next() {
				var md5, username string
				var mbid, trackName, artistName *string
				var lovedAt time.Time
				if err := raw.Scan(&md5, &username, &mbid, &trackName, &artistName, &lovedAt); err != nil {
					return fmt.Errorf("scan feedback: %w", err)
				}

				var mbidVal any
				if mbid != nil {
					mbidVal = mbidOrNil(*mbid)
				}
				var keyVal any
				if trackName != nil && artistName != nil {
					key, ok := identity.TrackKey(*trackName, *artistName)
					keyVal = keyOrNil(key, ok)
				}
				rows = append(rows, []any{md5, username, lovedAt, mbidVal, keyVal})
			}
			if err := raw.Err(); err != nil {
				return fmt.Errorf("read feedback: %w", err)
			}

			if err := run.DB.CreateBuildTable(ctx, table, `
				feedback_md5 TEXT NOT NULL,
				username TEXT NOT NULL,
				loved_at TIMESTAMP NOT NULL,
				recording_mbid UUID,
				track_key UUID`); err != nil {
				return err
			}
			if err := insertRows(ctx, run.DB, table, 5, rows); err != nil {
				return err
			}
			return run.DB.PublishTable(ctx, table)
		},
	}
}

// StgSimilarUserActivity decodes the similar-listener top-entity feed.
// Only the latest snapshot per (from, to, entity, time range) survives;
// the raw table keeps the full append-only history.
func StgSimilarUserActivity() pipeline.Step {
	const table = "stg_similar_user_activity"
	return &model{
		name: table,
		build: func(ctx context.Context, run *pipeline.Run) error {
			raw, err := run.DB.Conn().QueryContext(ctx, `
				SELECT from_username, to_username, entity, time_range, user_similarity, json_data
				FROM (
					SELECT *, row_number() OVER (
						PARTITION BY from_username, to_username, entity, time_range
						ORDER BY inserted_at DESC, payload_id
					) AS rn
					FROM similar_user_activity
				)
				WHERE rn = 1`)
			if err != nil {
				return fmt.Errorf("read similar_user_activity: %w", err)
			}
			defer raw.Close()

			var rows [][]any
			skipped := 0
			for raw.Next() {
				var fromUser, toUser, entity, timeRange, data string
				var similarity float64
				if err := raw.Scan(&fromUser, &toUser, &entity, &timeRange, &similarity, &data); err != nil {
					return fmt.Errorf("scan similar activity: %w", err)
				}
				entries, err := decodeSimilarActivity(data)
				if err != nil {
					logging.Warn().Err(err).
						Str("from", fromUser).Str("to", toUser).
						Str("entity", entity).Str("time_range", timeRange).
						Msg("Skipping undecodable similar activity payload")
					skipped++
					continue
				}
				for _, e := range entries {
					mbid, ok := identity.ParseMBID(e.MBID)
					if !ok || e.ListenCount <= 0 {
						continue
					}
					rows = append(rows, []any{fromUser, toUser, entity, timeRange, similarity, mbid.String(), e.ListenCount})
				}
			}
			if err := raw.Err(); err != nil {
				return fmt.Errorf("read similar_user_activity: %w", err)
			}
			if skipped > 0 {
				logging.Warn().Int("skipped", skipped).Msg("Similar activity payloads skipped")
			}

			if err := run.DB.CreateBuildTable(ctx, table, `
				from_username TEXT NOT NULL,
				to_username TEXT NOT NULL,
				entity TEXT NOT NULL,
				time_range TEXT NOT NULL,
				user_similarity DOUBLE NOT NULL,
				mbid UUID NOT NULL,
				listen_count BIGINT NOT NULL`); err != nil {
				return err
			}
			if err := insertRows(ctx, run.DB, table, 7, rows); err != nil {
				return err
			}
			return run.DB.PublishTable(ctx, table)
		},
	}
}

// pathExcluded reports whether a file path falls under any flagged prefix.
func pathExcluded(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

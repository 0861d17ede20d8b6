// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

package steps

import (
	"github.com/attic-audio/attic/internal/pipeline"
)

// The map_file_* models are union-distinct multi-maps from local file to
// canonical id. Three mapping paths feed each union:
//
//   - direct:     the file's own tags embed the canonical id
//   - indirect:   the file's content key matches a fuzzy name-mapping row
//   - transitive: an already-mapped id links onward through catalog_links
//
// A pair appears once no matter how many paths produced it. Ambiguity is
// preserved: one file may map to several recordings and vice versa.
// Excluded files (flagged path prefixes) contribute direct pairs only.

// MapFileRecording maps local files to recording MBIDs. Recordings are the
// finest grain, so there is no transitive path into them.
func MapFileRecording() pipeline.Step {
	return sqlModel("map_file_recording", []string{"stg_local_files"},
		func(run *pipeline.Run) (string, []any) {
			return `
				SELECT filepath, recording_mbid AS mbid
				FROM stg_local_files
				WHERE recording_mbid IS NOT NULL
				UNION
				SELECT f.filepath, nm.mbid
				FROM stg_local_files f
				JOIN name_mappings nm ON nm.entity = 'track' AND nm.content_key = f.track_key
				WHERE NOT f.excluded`, nil
		})
}

// MapFileRelease maps local files to release MBIDs, including releases
// reached through the file's mapped recordings.
func MapFileRelease() pipeline.Step {
	return sqlModel("map_file_release", []string{"stg_local_files", "map_file_recording", "catalog_links"},
		func(run *pipeline.Run) (string, []any) {
			return `
				SELECT filepath, release_mbid AS mbid
				FROM stg_local_files
				WHERE release_mbid IS NOT NULL
				UNION
				SELECT f.filepath, nm.mbid
				FROM stg_local_files f
				JOIN name_mappings nm ON nm.entity = 'release' AND nm.content_key = f.release_key
				WHERE NOT f.excluded
				UNION
				SELECT m.filepath, l.to_mbid
				FROM map_file_recording m
				JOIN catalog_links l ON l.link_type = 'recording-release' AND l.from_mbid = m.mbid
				JOIN stg_local_files f ON f.filepath = m.filepath
				WHERE NOT f.excluded`, nil
		})
}

// MapFileReleaseGroup maps local files to release-group MBIDs.
func MapFileReleaseGroup() pipeline.Step {
	return sqlModel("map_file_release_group", []string{"stg_local_files", "map_file_release", "catalog_links"},
		func(run *pipeline.Run) (string, []any) {
			return `
				SELECT filepath, release_group_mbid AS mbid
				FROM stg_local_files
				WHERE release_group_mbid IS NOT NULL
				UNION
				SELECT m.filepath, l.to_mbid
				FROM map_file_release m
				JOIN catalog_links l ON l.link_type = 'release-release_group' AND l.from_mbid = m.mbid
				JOIN stg_local_files f ON f.filepath = m.filepath
				WHERE NOT f.excluded`, nil
		})
}

// MapFileArtist maps local files to artist MBIDs. Track artist and album
// artist tags both contribute direct pairs.
func MapFileArtist() pipeline.Step {
	return sqlModel("map_file_artist", []string{"stg_local_files", "map_file_recording", "catalog_links"},
		func(run *pipeline.Run) (string, []any) {
			return `
				SELECT filepath, artist_mbid AS mbid
				FROM stg_local_files
				WHERE artist_mbid IS NOT NULL
				UNION
				SELECT filepath, album_artist_mbid AS mbid
				FROM stg_local_files
				WHERE album_artist_mbid IS NOT NULL
				UNION
				SELECT f.filepath, nm.mbid
				FROM stg_local_files f
				JOIN name_mappings nm ON nm.entity = 'artist' AND nm.content_key = f.artist_key
				WHERE NOT f.excluded
				UNION
				SELECT f.filepath, nm.mbid
				FROM stg_local_files f
				JOIN name_mappings nm ON nm.entity = 'artist' AND nm.content_key = f.album_artist_key
				WHERE NOT f.excluded
				UNION
				SELECT m.filepath, l.to_mbid
				FROM map_file_recording m
				JOIN catalog_links l ON l.link_type = 'recording-artist' AND l.from_mbid = m.mbid
				JOIN stg_local_files f ON f.filepath = m.filepath
				WHERE NOT f.excluded`, nil
		})
}

// ListenResolution resolves each listen to canonical recording, release and
// release-group ids. Payload MBIDs win; the fuzzy name mapping fills gaps;
// catalog links fill the rest. Where the name mapping or catalog offers
// several candidates at listen grain, the smallest MBID is taken so the
// resolution is deterministic.
func ListenResolution() pipeline.Step {
	return sqlModel("listen_resolution", []string{"stg_listens", "catalog_links"},
		func(run *pipeline.Run) (string, []any) {
			return `
				WITH track_map AS (
					SELECT content_key, min(mbid) AS mbid
					FROM name_mappings WHERE entity = 'track' GROUP BY content_key
				),
				release_map AS (
					SELECT content_key, min(mbid) AS mbid
					FROM name_mappings WHERE entity = 'release' GROUP BY content_key
				),
				recording_release AS (
					SELECT from_mbid, min(to_mbid) AS to_mbid
					FROM catalog_links WHERE link_type = 'recording-release' GROUP BY from_mbid
				),
				release_group AS (
					SELECT from_mbid, min(to_mbid) AS to_mbid
					FROM catalog_links WHERE link_type = 'release-release_group' GROUP BY from_mbid
				),
				base AS (
					SELECT l.listen_md5, l.username, l.listen_at,
						coalesce(l.recording_mbid, tm.mbid) AS recording_mbid,
						coalesce(l.release_mbid, rm.mbid) AS tagged_release_mbid
					FROM stg_listens l
					LEFT JOIN track_map tm ON tm.content_key = l.track_key
					LEFT JOIN release_map rm ON rm.content_key = l.release_key
				),
				resolved AS (
					SELECT b.listen_md5, b.username, b.listen_at, b.recording_mbid,
						coalesce(b.tagged_release_mbid, rr.to_mbid) AS release_mbid
					FROM base b
					LEFT JOIN recording_release rr ON rr.from_mbid = b.recording_mbid
				)
				SELECT r.listen_md5, r.username, r.listen_at,
					r.recording_mbid, r.release_mbid,
					rg.to_mbid AS release_group_mbid
				FROM resolved r
				LEFT JOIN release_group rg ON rg.from_mbid = r.release_mbid`, nil
		})
}

// ListenArtistResolution resolves the credited artists of each listen:
// artists named in the payload itself, plus the catalog credits of the
// resolved recording.
func ListenArtistResolution() pipeline.Step {
	return sqlModel("listen_artist_resolution", []string{"stg_listen_artists", "listen_resolution", "catalog_links"},
		func(run *pipeline.Run) (string, []any) {
			return `
				SELECT listen_md5, artist_mbid
				FROM stg_listen_artists
				UNION
				SELECT lr.listen_md5, l.to_mbid AS artist_mbid
				FROM listen_resolution lr
				JOIN catalog_links l ON l.link_type = 'recording-artist' AND l.from_mbid = lr.recording_mbid
				WHERE lr.recording_mbid IS NOT NULL`, nil
		})
}

// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

// Package steps contains the transformation models of the pipeline DAG.
//
// Staging steps decode raw JSON payloads in Go and bulk-insert typed rows;
// everything downstream is SQL over staged tables. Every step publishes
// exactly one derived table named after the step.
package steps

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/attic-audio/attic/internal/identity"
)

// listenPayload is the scrobble payload stored in listens.json_data.
type listenPayload struct {
	TrackName     string   `json:"track_name"`
	ArtistName    string   `json:"artist_name"`
	ReleaseName   string   `json:"release_name"`
	RecordingMBID string   `json:"recording_mbid"`
	ReleaseMBID   string   `json:"release_mbid"`
	ArtistMBIDs   []string `json:"artist_mbids"`
}

// fileTags is the tag snapshot stored in local_files.json_data. Tag names
// follow the common Vorbis/ID3 mapping for MusicBrainz identifiers;
// musicbrainz_trackid carries the recording MBID.
type fileTags struct {
	Title            string `json:"title"`
	Artist           string `json:"artist"`
	Album            string `json:"album"`
	AlbumArtist      string `json:"albumartist"`
	TrackMBID        string `json:"musicbrainz_trackid"`
	ReleaseMBID      string `json:"musicbrainz_albumid"`
	ArtistMBID       string `json:"musicbrainz_artistid"`
	AlbumArtistMBID  string `json:"musicbrainz_albumartistid"`
	ReleaseGroupMBID string `json:"musicbrainz_releasegroupid"`
}

// annotationPayload is the catalog (MusicBrainz ws/2) annotation payload.
// Only the fields the link extractor needs are mapped; the rest of the
// payload is ignored.
type annotationPayload struct {
	Title        string           `json:"title"`
	Name         string           `json:"name"` // artist payloads use name, not title
	ArtistCredit []artistCredit   `json:"artist-credit"`
	Releases     []releaseRef     `json:"releases"`
	ReleaseGroup *releaseGroupRef `json:"release-group"`
}

type artistCredit struct {
	Name   string    `json:"name"`
	Artist artistRef `json:"artist"`
}

type artistRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type releaseRef struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	ReleaseGroup *releaseGroupRef `json:"release-group"`
}

type releaseGroupRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// artistStatsPayload is the catalog's global per-artist listen statistics.
type artistStatsPayload struct {
	TotalListenCount int64 `json:"total_listen_count"`
	ListenerCount    int64 `json:"listeners"`
}

// similarActivityEntry is one element of the similar-listener top-entity
// list in similar_user_activity.json_data.
type similarActivityEntry struct {
	MBID        string `json:"mbid"`
	ListenCount int64  `json:"listen_count"`
}

func decodeListen(data string) (*listenPayload, error) {
	var p listenPayload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode listen payload: %w", err)
	}
	return &p, nil
}

func decodeFileTags(data string) (*fileTags, error) {
	var p fileTags
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode file tags: %w", err)
	}
	return &p, nil
}

func decodeAnnotation(data string) (*annotationPayload, error) {
	var p annotationPayload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode annotation payload: %w", err)
	}
	return &p, nil
}

func decodeArtistStats(data string) (*artistStatsPayload, error) {
	var p artistStatsPayload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode artist stats payload: %w", err)
	}
	return &p, nil
}

func decodeSimilarActivity(data string) ([]similarActivityEntry, error) {
	var entries []similarActivityEntry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, fmt.Errorf("decode similar activity payload: %w", err)
	}
	return entries, nil
}

// mbidOrNil converts a tag/payload identifier to a bind value: a parsed
// UUID string, or nil when absent or malformed.
func mbidOrNil(s string) any {
	if id, ok := identity.ParseMBID(s); ok {
		return id.String()
	}
	return nil
}

// keyOrNil converts an (id, ok) content-key pair to a bind value.
func keyOrNil(key uuid.UUID, ok bool) any {
	if !ok {
		return nil
	}
	return key.String()
}

// textOrNil converts a trimmed name to a bind value, nil when empty.
func textOrNil(s string) any {
	if identity.NormalizeName(s) == "" {
		return nil
	}
	return s
}

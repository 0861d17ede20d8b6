// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

// Package identity derives stable content keys from free-text music metadata.
//
// When a record carries no canonical MusicBrainz identifier, the warehouse
// falls back to a content key: a deterministic UUID computed from the
// normalized (trimmed, lower-cased) name tuple. Two records naming the same
// track by the same artist share a key regardless of casing or stray
// whitespace. Name collisions are accepted: same name means same entity.
//
// A missing component poisons the composite key. A track without an artist
// name has no track key; downstream models exclude such rows from keyed
// joins rather than treating them as errors.
package identity

import (
	"strings"

	"github.com/google/uuid"
)

// Domain-separated namespaces. Keys for different entity kinds never
// collide even when the underlying text is identical.
var (
	nsTrackArtist   = uuid.NewSHA1(uuid.NameSpaceOID, []byte("attic:key:track-artist"))
	nsReleaseArtist = uuid.NewSHA1(uuid.NameSpaceOID, []byte("attic:key:release-artist"))
	nsArtist        = uuid.NewSHA1(uuid.NameSpaceOID, []byte("attic:key:artist"))
	nsPath          = uuid.NewSHA1(uuid.NameSpaceOID, []byte("attic:key:filepath"))
)

// componentSep joins tuple components before hashing. A unit separator
// cannot appear in sane metadata, so ("ab","c") and ("a","bc") hash apart.
const componentSep = "\x1f"

// NormalizeName trims and lower-cases a free-text name. The empty string
// means "unknown": a name that is empty after trimming normalizes to "".
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// TrackKey returns the content key for a (track, artist) name tuple.
// Returns false if either component normalizes to empty.
func TrackKey(track, artist string) (uuid.UUID, bool) {
	return composite(nsTrackArtist, track, artist)
}

// ReleaseKey returns the content key for a (release, artist) name tuple.
// Returns false if either component normalizes to empty.
func ReleaseKey(release, artist string) (uuid.UUID, bool) {
	return composite(nsReleaseArtist, release, artist)
}

// ArtistKey returns the content key for an artist name.
// Returns false if the name normalizes to empty.
func ArtistKey(artist string) (uuid.UUID, bool) {
	return composite(nsArtist, artist)
}

// PathHash returns a stable hash of a file path, used as the deterministic
// tie-break when exactly one file must be attached to a recording. Repeated
// runs over the same library always pick the same file.
func PathHash(path string) string {
	return uuid.NewSHA1(nsPath, []byte(path)).String()
}

// ParseMBID parses a canonical MusicBrainz identifier from a tag value.
// Tag values are untrusted; anything that is not a UUID reads as absent.
func ParseMBID(s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// composite hashes normalized components under the given namespace,
// propagating absence: any empty component yields no key.
func composite(ns uuid.UUID, components ...string) (uuid.UUID, bool) {
	normalized := make([]string, len(components))
	for i, c := range components {
		n := NormalizeName(c)
		if n == "" {
			return uuid.Nil, false
		}
		normalized[i] = n
	}
	return uuid.NewSHA1(ns, []byte(strings.Join(normalized, componentSep))), true
}

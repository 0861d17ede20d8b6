// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

package identity

import (
	"testing"

	"github.com/google/uuid"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "Windowlicker", "windowlicker"},
		{"leading and trailing space", "  Aphex Twin  ", "aphex twin"},
		{"already normalized", "boards of canada", "boards of canada"},
		{"only whitespace", "   \t ", ""},
		{"empty", "", ""},
		{"interior whitespace preserved", "in  a  beautiful place", "in  a  beautiful place"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeName(tt.input); got != tt.expected {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTrackKeyDeterministic(t *testing.T) {
	a, ok := TrackKey("Windowlicker", "Aphex Twin")
	if !ok {
		t.Fatal("expected key for complete tuple")
	}
	b, ok := TrackKey("  windowlicker ", "APHEX TWIN")
	if !ok {
		t.Fatal("expected key for equivalent tuple")
	}
	if a != b {
		t.Errorf("equivalent tuples produced different keys: %s vs %s", a, b)
	}

	c, _ := TrackKey("Windowlicker", "Someone Else")
	if a == c {
		t.Error("different artists produced the same track key")
	}
}

func TestKeyNullPropagation(t *testing.T) {
	tests := []struct {
		name  string
		track string
		art   string
	}{
		{"missing artist", "Windowlicker", ""},
		{"missing track", "", "Aphex Twin"},
		{"whitespace artist", "Windowlicker", "  "},
		{"both missing", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if key, ok := TrackKey(tt.track, tt.art); ok {
				t.Errorf("TrackKey(%q, %q) = %s, want no key", tt.track, tt.art, key)
			}
			if key, ok := ReleaseKey(tt.track, tt.art); ok {
				t.Errorf("ReleaseKey(%q, %q) = %s, want no key", tt.track, tt.art, key)
			}
		})
	}

	if _, ok := ArtistKey(" "); ok {
		t.Error("ArtistKey of whitespace should have no key")
	}
}

func TestDomainSeparation(t *testing.T) {
	// The same text tuple must key differently per entity kind.
	track, _ := TrackKey("Drukqs", "Aphex Twin")
	release, _ := ReleaseKey("Drukqs", "Aphex Twin")
	if track == release {
		t.Error("track and release keys collide for identical text")
	}

	artist, _ := ArtistKey("Drukqs")
	if artist == track || artist == release {
		t.Error("artist key collides with composite keys")
	}
}

func TestComponentBoundary(t *testing.T) {
	// ("ab", "c") and ("a", "bc") must not collide.
	x, _ := TrackKey("ab", "c")
	y, _ := TrackKey("a", "bc")
	if x == y {
		t.Error("component boundary ambiguity: keys collide")
	}
}

func TestPathHashStable(t *testing.T) {
	p := "/mnt/music/aphex twin/drukqs/01 jynweythek.flac"
	if PathHash(p) != PathHash(p) {
		t.Error("PathHash not stable across calls")
	}
	if PathHash(p) == PathHash(p+"x") {
		t.Error("distinct paths hash identically")
	}
}

func TestParseMBID(t *testing.T) {
	id := uuid.MustParse("f54ba4c6-12dd-4358-9136-c64ad89fa4ff")

	tests := []struct {
		name  string
		input string
		want  uuid.UUID
		ok    bool
	}{
		{"valid", "f54ba4c6-12dd-4358-9136-c64ad89fa4ff", id, true},
		{"valid with whitespace", "  f54ba4c6-12dd-4358-9136-c64ad89fa4ff ", id, true},
		{"garbage", "not-an-mbid", uuid.Nil, false},
		{"empty", "", uuid.Nil, false},
		{"nil uuid", "00000000-0000-0000-0000-000000000000", uuid.Nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseMBID(tt.input)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseMBID(%q) = (%s, %v), want (%s, %v)", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

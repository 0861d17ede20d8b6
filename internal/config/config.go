// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

// Package config defines and loads the Attic configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variables. Every scoring threshold is a knob here rather
// than a literal in SQL; the pipeline receives the loaded Config and never
// reads the environment itself.
package config

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the attic pipeline runner.
type Config struct {
	Logging     LoggingConfig     `koanf:"logging"`
	Database    DatabaseConfig    `koanf:"database"`
	Debug       DebugConfig       `koanf:"debug"`
	Scoring     ScoringConfig     `koanf:"scoring"`
	Revisit     RevisitConfig     `koanf:"revisit"`
	Ranker      RankerConfig      `koanf:"ranker"`
	Resolution  ResolutionConfig  `koanf:"resolution"`
	Collections CollectionsConfig `koanf:"collections"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal"`

	// Format is json or console.
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller includes caller file/line in log output.
	Caller bool `koanf:"caller"`
}

// DatabaseConfig controls the DuckDB warehouse connection.
type DatabaseConfig struct {
	// Path is the DuckDB database file, or ":memory:".
	Path string `koanf:"path" validate:"required"`

	// MaxMemory is the DuckDB memory limit, e.g. "2GB".
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 uses runtime.NumCPU().
	Threads int `koanf:"threads" validate:"min=0"`
}

// DebugConfig controls the optional debug listener served while a run is
// in flight (/healthz, /metrics).
type DebugConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// ScoringConfig parameterizes the recency decay model.
type ScoringConfig struct {
	// DecayRate is the per-day exponential decay constant. With the default
	// 0.1, a listen carries ~50% weight at 7 days and ~5% at 30 days.
	DecayRate float64 `koanf:"decay_rate" validate:"gt=0"`

	// WindowsDays are the trailing windows, in days, for windowed listen
	// counts. Order does not matter; they are sorted on load.
	WindowsDays []int `koanf:"windows_days" validate:"min=1,dive,gt=0"`
}

// RevisitConfig holds the revisit-candidate classification thresholds.
// These are tuned heuristics, not invariants.
type RevisitConfig struct {
	// MinLifetimeListens is the minimum lifetime listen count for an entity
	// to be considered at all.
	MinLifetimeListens int `koanf:"min_lifetime_listens" validate:"min=1"`

	// MinRecordings and MaxRecordings bound the entity size at release-group
	// grain, excluding singles below and box sets above.
	MinRecordings int `koanf:"min_recordings" validate:"min=1"`
	MaxRecordings int `koanf:"max_recordings" validate:"min=1"`

	// RecentWindowDays is the trailing window treated as "recent". It must
	// be one of Scoring.WindowsDays.
	RecentWindowDays int `koanf:"recent_window_days" validate:"gt=0"`

	// MaxRecentListens is the most listens allowed inside the recent window
	// for an entity to still count as neglected.
	MaxRecentListens int `koanf:"max_recent_listens" validate:"min=0"`

	// OldListenMultiple requires lifetime listens beyond the recent window
	// to exceed this multiple of the entity's recording count.
	OldListenMultiple float64 `koanf:"old_listen_multiple" validate:"gte=0"`

	// ScoreFloor is the minimum revisit_score for release-group candidates.
	ScoreFloor float64 `koanf:"score_floor" validate:"gte=0"`

	// TrackScoreFloor is the minimum revisit_score at recording grain.
	// Recording-level scores run lower than release-group scores because a
	// single recent listen caps the staleness product, so this floor sits
	// below ScoreFloor.
	TrackScoreFloor float64 `koanf:"track_score_floor" validate:"gte=0"`

	// TrackLimit caps the revisit_tracks output per listener.
	TrackLimit int `koanf:"track_limit" validate:"min=1"`
}

// RankerConfig holds the similarity/recommendation ranking knobs.
type RankerConfig struct {
	// TopK truncates each ranked candidate family per (listener, time range).
	TopK int `koanf:"top_k" validate:"min=1"`

	// KnownArtistListenThreshold excludes a release group from fresh-release
	// output when any of its artists has more lifetime listens than this.
	KnownArtistListenThreshold int `koanf:"known_artist_listen_threshold" validate:"min=0"`

	// TopArtistExcludeN drops the listener's N most-listened artists from
	// artist discovery output.
	TopArtistExcludeN int `koanf:"top_artist_exclude_n" validate:"min=0"`
}

// ResolutionConfig controls the entity-resolution graph builder.
type ResolutionConfig struct {
	// ExcludedPathPrefixes are local-file path prefixes known not to exist
	// in the external catalog. Files under them keep their direct tag
	// mappings but are skipped for indirect and transitive mapping.
	ExcludedPathPrefixes []string `koanf:"excluded_path_prefixes"`
}

// CollectionsConfig controls playlist aggregation.
type CollectionsConfig struct {
	// ReservedNames are auto-generated collections excluded from
	// per-file playlist counts.
	ReservedNames []string `koanf:"reserved_names"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Database: DatabaseConfig{
			Path:      "/data/attic.duckdb",
			MaxMemory: "2GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Debug: DebugConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9182",
		},
		Scoring: ScoringConfig{
			DecayRate:   0.1,
			WindowsDays: []int{14, 30, 60, 90, 120, 150},
		},
		Revisit: RevisitConfig{
			MinLifetimeListens: 2,
			MinRecordings:      5,
			MaxRecordings:      30,
			RecentWindowDays:   90,
			MaxRecentListens:   2,
			OldListenMultiple:  2.0,
			ScoreFloor:         1.05,
			TrackScoreFloor:    0.5,
			TrackLimit:         1000,
		},
		Ranker: RankerConfig{
			TopK:                       100,
			KnownArtistListenThreshold: 5,
			TopArtistExcludeN:          50,
		},
		Resolution: ResolutionConfig{
			ExcludedPathPrefixes: nil,
		},
		Collections: CollectionsConfig{
			ReservedNames: []string{"loved-tracks", "revisit-releases", "revisit-tracks"},
		},
	}
}

// Validate checks field constraints and cross-field consistency.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if c.Revisit.MaxRecordings < c.Revisit.MinRecordings {
		return fmt.Errorf("revisit.max_recordings (%d) must be >= revisit.min_recordings (%d)",
			c.Revisit.MaxRecordings, c.Revisit.MinRecordings)
	}

	sort.Ints(c.Scoring.WindowsDays)
	for i := 1; i < len(c.Scoring.WindowsDays); i++ {
		if c.Scoring.WindowsDays[i] == c.Scoring.WindowsDays[i-1] {
			return fmt.Errorf("scoring.windows_days contains duplicate window %d", c.Scoring.WindowsDays[i])
		}
	}

	if !containsInt(c.Scoring.WindowsDays, c.Revisit.RecentWindowDays) {
		return fmt.Errorf("revisit.recent_window_days (%d) must be one of scoring.windows_days %v",
			c.Revisit.RecentWindowDays, c.Scoring.WindowsDays)
	}

	return nil
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

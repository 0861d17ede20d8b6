// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"attic.yaml",
	"attic.yml",
	"/etc/attic/attic.yaml",
	"/etc/attic/attic.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "ATTIC_CONFIG"

// Load builds the configuration with layered sources:
//  1. Defaults from Default()
//  2. Optional YAML config file
//  3. Environment variables (highest precedence)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile returns the config file path to use, or "" for none.
func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps environment variable names to config paths. Unmapped
// variables are skipped so ambient environment noise cannot reach config.
func envTransform(key string) string {
	mappings := map[string]string{
		"ATTIC_LOG_LEVEL":  "logging.level",
		"ATTIC_LOG_FORMAT": "logging.format",
		"ATTIC_LOG_CALLER": "logging.caller",

		"ATTIC_DUCKDB_PATH":       "database.path",
		"ATTIC_DUCKDB_MAX_MEMORY": "database.max_memory",
		"ATTIC_DUCKDB_THREADS":    "database.threads",

		"ATTIC_DEBUG_ENABLED": "debug.enabled",
		"ATTIC_DEBUG_ADDR":    "debug.addr",

		"ATTIC_SCORING_DECAY_RATE": "scoring.decay_rate",

		"ATTIC_REVISIT_MIN_LIFETIME_LISTENS": "revisit.min_lifetime_listens",
		"ATTIC_REVISIT_MIN_RECORDINGS":       "revisit.min_recordings",
		"ATTIC_REVISIT_MAX_RECORDINGS":       "revisit.max_recordings",
		"ATTIC_REVISIT_RECENT_WINDOW_DAYS":   "revisit.recent_window_days",
		"ATTIC_REVISIT_MAX_RECENT_LISTENS":   "revisit.max_recent_listens",
		"ATTIC_REVISIT_OLD_LISTEN_MULTIPLE":  "revisit.old_listen_multiple",
		"ATTIC_REVISIT_SCORE_FLOOR":          "revisit.score_floor",
		"ATTIC_REVISIT_TRACK_SCORE_FLOOR":    "revisit.track_score_floor",
		"ATTIC_REVISIT_TRACK_LIMIT":          "revisit.track_limit",

		"ATTIC_RANKER_TOP_K":                  "ranker.top_k",
		"ATTIC_RANKER_KNOWN_ARTIST_THRESHOLD": "ranker.known_artist_listen_threshold",
		"ATTIC_RANKER_TOP_ARTIST_EXCLUDE_N":   "ranker.top_artist_exclude_n",
	}

	if mapped, ok := mappings[strings.ToUpper(key)]; ok {
		return mapped
	}
	return ""
}

// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateCrossField(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults pass",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name: "max recordings below min",
			mutate: func(c *Config) {
				c.Revisit.MinRecordings = 10
				c.Revisit.MaxRecordings = 5
			},
			wantErr: true,
		},
		{
			name: "recent window not in windows",
			mutate: func(c *Config) {
				c.Revisit.RecentWindowDays = 45
			},
			wantErr: true,
		},
		{
			name: "duplicate window",
			mutate: func(c *Config) {
				c.Scoring.WindowsDays = []int{30, 90, 90}
			},
			wantErr: true,
		},
		{
			name: "zero decay rate",
			mutate: func(c *Config) {
				c.Scoring.DecayRate = 0
			},
			wantErr: true,
		},
		{
			name: "bad log level",
			mutate: func(c *Config) {
				c.Logging.Level = "verbose"
			},
			wantErr: true,
		},
		{
			name: "zero top k",
			mutate: func(c *Config) {
				c.Ranker.TopK = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSortsWindows(t *testing.T) {
	cfg := Default()
	cfg.Scoring.WindowsDays = []int{90, 14, 30}
	cfg.Revisit.RecentWindowDays = 90
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	for i := 1; i < len(cfg.Scoring.WindowsDays); i++ {
		if cfg.Scoring.WindowsDays[i] < cfg.Scoring.WindowsDays[i-1] {
			t.Fatalf("windows not sorted after Validate: %v", cfg.Scoring.WindowsDays)
		}
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "attic.yaml")
	yaml := `
logging:
  level: debug
revisit:
  score_floor: 1.5
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("ATTIC_REVISIT_SCORE_FLOOR", "1.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// File overrides default.
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug (from file)", cfg.Logging.Level)
	}
	// Env overrides file.
	if cfg.Revisit.ScoreFloor != 1.25 {
		t.Errorf("revisit.score_floor = %v, want 1.25 (from env)", cfg.Revisit.ScoreFloor)
	}
	// Untouched values keep defaults.
	if cfg.Ranker.TopK != 100 {
		t.Errorf("ranker.top_k = %d, want default 100", cfg.Ranker.TopK)
	}
}

func TestEnvTransformSkipsUnmapped(t *testing.T) {
	if got := envTransform("PATH"); got != "" {
		t.Errorf("envTransform(PATH) = %q, want empty", got)
	}
	if got := envTransform("attic_log_level"); got != "logging.level" {
		t.Errorf("envTransform is not case-insensitive: got %q", got)
	}
}

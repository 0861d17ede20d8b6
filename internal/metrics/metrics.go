// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

// Package metrics provides Prometheus instrumentation for pipeline runs.
// The runner's debug listener exposes these on /metrics while a run is
// in flight.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StepDuration tracks how long each transformation step takes.
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attic_step_duration_seconds",
			Help:    "Duration of pipeline transformation steps in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	// StepRows records the row count of each published derived table.
	StepRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "attic_step_rows",
			Help: "Rows in each derived table after its last successful build",
		},
		[]string{"step"},
	)

	// StepErrors counts failed step builds.
	StepErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attic_step_errors_total",
			Help: "Total number of failed pipeline step builds",
		},
		[]string{"step"},
	)

	// RunsTotal counts pipeline runs by outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attic_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"status"}, // "success", "failure", "canceled"
	)

	// RunDuration tracks full pipeline run duration.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attic_run_duration_seconds",
			Help:    "Duration of full pipeline runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)
)

// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

// Package pipeline models the transformation DAG.
//
// Each Step reads already-materialized upstream tables and publishes exactly
// one derived table (build-then-atomic-swap, see the warehouse package). The
// DAG resolves dependencies by step name and executes steps sequentially in
// deterministic topological order: no two steps write the same table, and a
// canceled run stops between steps with every published table intact.
//
// The run's "now" baseline is injected once and used by every step, so two
// runs over the same raw snapshot with the same baseline produce identical
// derived tables.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/attic-audio/attic/internal/config"
	"github.com/attic-audio/attic/internal/logging"
	"github.com/attic-audio/attic/internal/metrics"
	"github.com/attic-audio/attic/internal/warehouse"
)

// Run carries everything a step needs. Steps must take the time baseline
// from Now, never from the wall clock.
type Run struct {
	DB  *warehouse.DB
	Cfg *config.Config
	Now time.Time
}

// Step is one transformation model. Name doubles as the output table name;
// Deps name the steps whose outputs this step reads.
type Step interface {
	Name() string
	Deps() []string
	Build(ctx context.Context, run *Run) error
}

// DAG is a registry of steps with dependency resolution.
type DAG struct {
	steps map[string]Step
}

// NewDAG returns an empty DAG.
func NewDAG() *DAG {
	return &DAG{steps: make(map[string]Step)}
}

// Register adds a step. Duplicate names are an error: two steps must never
// write the same table.
func (d *DAG) Register(steps ...Step) error {
	for _, s := range steps {
		if _, exists := d.steps[s.Name()]; exists {
			return fmt.Errorf("duplicate step %q", s.Name())
		}
		d.steps[s.Name()] = s
	}
	return nil
}

// Order returns the steps in topological order. Ready steps are taken in
// name order, so the order is stable across runs. Unknown dependencies and
// cycles are errors.
func (d *DAG) Order() ([]Step, error) {
	indegree := make(map[string]int, len(d.steps))
	dependents := make(map[string][]string, len(d.steps))

	for name, step := range d.steps {
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for _, dep := range step.Deps() {
			if _, ok := d.steps[dep]; !ok {
				return nil, fmt.Errorf("step %q depends on unknown step %q", name, dep)
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	ordered := make([]Step, 0, len(d.steps))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, d.steps[name])

		var unlocked []string
		for _, dependent := range dependents[name] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				unlocked = append(unlocked, dependent)
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
	}

	if len(ordered) != len(d.steps) {
		var stuck []string
		for name, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("dependency cycle involving steps %v", stuck)
	}

	return ordered, nil
}

// Execute runs every step in topological order. It stops at the first
// failure or when ctx is canceled; a stopped run never leaves a partially
// written table behind, only fully published ones.
func (d *DAG) Execute(ctx context.Context, run *Run) error {
	ordered, err := d.Order()
	if err != nil {
		return err
	}

	logging.Info().
		Int("steps", len(ordered)).
		Time("baseline", run.Now).
		Msg("Pipeline run starting")

	runStart := time.Now()
	for _, step := range ordered {
		if err := ctx.Err(); err != nil {
			metrics.RunsTotal.WithLabelValues("canceled").Inc()
			return fmt.Errorf("run canceled before step %q: %w", step.Name(), err)
		}

		stepStart := time.Now()
		if err := step.Build(ctx, run); err != nil {
			run.DB.DiscardBuild(ctx, step.Name())
			metrics.StepErrors.WithLabelValues(step.Name()).Inc()
			metrics.RunsTotal.WithLabelValues("failure").Inc()
			return fmt.Errorf("step %q: %w", step.Name(), err)
		}
		elapsed := time.Since(stepStart)
		metrics.StepDuration.WithLabelValues(step.Name()).Observe(elapsed.Seconds())

		rows, err := run.DB.TableRowCount(ctx, step.Name())
		if err != nil {
			metrics.RunsTotal.WithLabelValues("failure").Inc()
			return fmt.Errorf("step %q published no readable table: %w", step.Name(), err)
		}
		metrics.StepRows.WithLabelValues(step.Name()).Set(float64(rows))

		logging.Info().
			Str("step", step.Name()).
			Int64("rows", rows).
			Dur("elapsed", elapsed).
			Msg("Step complete")
	}

	metrics.RunsTotal.WithLabelValues("success").Inc()
	metrics.RunDuration.Observe(time.Since(runStart).Seconds())
	logging.Info().Dur("elapsed", time.Since(runStart)).Msg("Pipeline run complete")
	return nil
}

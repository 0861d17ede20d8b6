// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/attic-audio/attic/internal/config"
	"github.com/attic-audio/attic/internal/warehouse"
)

// fakeStep builds its output table from a literal query, or fails.
type fakeStep struct {
	name  string
	deps  []string
	fail  bool
	order *[]string
}

func (s *fakeStep) Name() string   { return s.name }
func (s *fakeStep) Deps() []string { return s.deps }

func (s *fakeStep) Build(ctx context.Context, run *Run) error {
	*s.order = append(*s.order, s.name)
	if s.fail {
		return errors.New("synthetic failure")
	}
	return run.DB.BuildTableAs(ctx, s.name, "SELECT 1 AS n")
}

func testRun(t *testing.T) *Run {
	t.Helper()
	db, err := warehouse.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "1GB"})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &Run{
		DB:  db,
		Cfg: config.Default(),
		Now: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestOrderRespectsDependencies(t *testing.T) {
	var got []string
	d := NewDAG()
	err := d.Register(
		&fakeStep{name: "c", deps: []string{"b"}, order: &got},
		&fakeStep{name: "b", deps: []string{"a"}, order: &got},
		&fakeStep{name: "a", order: &got},
	)
	if err != nil {
		t.Fatal(err)
	}

	ordered, err := d.Order()
	if err != nil {
		t.Fatal(err)
	}

	names := make([]string, len(ordered))
	for i, s := range ordered {
		names[i] = s.Name()
	}
	if !reflect.DeepEqual(names, []string{"a", "b", "c"}) {
		t.Errorf("order = %v, want [a b c]", names)
	}
}

func TestOrderIsDeterministic(t *testing.T) {
	build := func() *DAG {
		var got []string
		d := NewDAG()
		_ = d.Register(
			&fakeStep{name: "z", order: &got},
			&fakeStep{name: "m", order: &got},
			&fakeStep{name: "a", order: &got},
			&fakeStep{name: "k", deps: []string{"a", "z"}, order: &got},
		)
		return d
	}

	first, err := build().Order()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := build().Order()
		if err != nil {
			t.Fatal(err)
		}
		for j := range first {
			if first[j].Name() != again[j].Name() {
				t.Fatalf("order not deterministic: %v vs %v at %d", first[j].Name(), again[j].Name(), j)
			}
		}
	}
}

func TestOrderDetectsCycle(t *testing.T) {
	var got []string
	d := NewDAG()
	_ = d.Register(
		&fakeStep{name: "a", deps: []string{"b"}, order: &got},
		&fakeStep{name: "b", deps: []string{"a"}, order: &got},
	)
	if _, err := d.Order(); err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestOrderDetectsUnknownDep(t *testing.T) {
	var got []string
	d := NewDAG()
	_ = d.Register(&fakeStep{name: "a", deps: []string{"missing"}, order: &got})
	if _, err := d.Order(); err == nil {
		t.Fatal("expected unknown dependency error")
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	var got []string
	d := NewDAG()
	if err := d.Register(&fakeStep{name: "a", order: &got}); err != nil {
		t.Fatal(err)
	}
	if err := d.Register(&fakeStep{name: "a", order: &got}); err == nil {
		t.Fatal("expected duplicate step error")
	}
}

func TestExecuteRunsAllSteps(t *testing.T) {
	run := testRun(t)
	var got []string
	d := NewDAG()
	_ = d.Register(
		&fakeStep{name: "beta", deps: []string{"alpha"}, order: &got},
		&fakeStep{name: "alpha", order: &got},
	)

	if err := d.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"alpha", "beta"}) {
		t.Errorf("execution order = %v", got)
	}

	for _, table := range []string{"alpha", "beta"} {
		rows, err := run.DB.TableRowCount(context.Background(), table)
		if err != nil || rows != 1 {
			t.Errorf("table %s rows = %d, err = %v", table, rows, err)
		}
	}
}

func TestExecuteStopsAtFailure(t *testing.T) {
	run := testRun(t)
	var got []string
	d := NewDAG()
	_ = d.Register(
		&fakeStep{name: "a", order: &got},
		&fakeStep{name: "b", deps: []string{"a"}, fail: true, order: &got},
		&fakeStep{name: "c", deps: []string{"b"}, order: &got},
	)

	err := d.Execute(context.Background(), run)
	if err == nil {
		t.Fatal("expected failure")
	}
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("steps run = %v, want [a b]", got)
	}

	// The failing step must not have published anything.
	if exists, _ := run.DB.TableExists(context.Background(), "b"); exists {
		t.Error("failed step published a table")
	}
}

func TestExecuteHonorsCancellation(t *testing.T) {
	run := testRun(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var got []string
	d := NewDAG()
	_ = d.Register(&fakeStep{name: "a", order: &got})

	if err := d.Execute(ctx, run); err == nil {
		t.Fatal("expected cancellation error")
	}
	if len(got) != 0 {
		t.Errorf("steps ran despite canceled context: %v", got)
	}
}

func TestExecuteIsIdempotent(t *testing.T) {
	run := testRun(t)
	var got []string
	d := NewDAG()
	_ = d.Register(&fakeStep{name: "tbl", order: &got})

	for i := 0; i < 2; i++ {
		if err := d.Execute(context.Background(), run); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	rows, err := run.DB.TableRowCount(context.Background(), "tbl")
	if err != nil || rows != 1 {
		t.Errorf("rows = %d, err = %v, want 1 row", rows, err)
	}
}

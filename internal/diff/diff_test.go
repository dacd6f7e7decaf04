package diff

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"firemon/internal/feed"
)

func record(id string, acres, contained float64) feed.Record {
	return feed.Record{
		ID:               id,
		Name:             "Test " + id,
		Acres:            acres,
		PercentContained: contained,
		Updated:          time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func TestSnapshotsDetectsNewAndChanged(t *testing.T) {
	t.Parallel()

	prev := feed.Snapshot{
		"a": record("a", 100, 10),
		"b": record("b", 200, 50),
	}
	cur := feed.Snapshot{
		"a": record("a", 150, 10), // grew
		"b": record("b", 200, 50), // unchanged
		"c": record("c", 50, 0),   // new
	}

	changes := Snapshots(prev, cur)
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2: %+v", len(changes), changes)
	}
	// Sorted by incident ID.
	if changes[0].ID != "a" || changes[1].ID != "c" {
		t.Fatalf("order = %s,%s", changes[0].ID, changes[1].ID)
	}
	if !reflect.DeepEqual(changes[0].Fields, []string{"Acres"}) {
		t.Errorf("fields = %v, want [Acres]", changes[0].Fields)
	}
	if !changes[1].New() {
		t.Errorf("c should be new")
	}
	if changes[0].Previous == nil || changes[0].Previous.Acres != 100 {
		t.Errorf("previous not captured: %+v", changes[0].Previous)
	}
}

func TestSnapshotsEqualTimestampsAreNotChanges(t *testing.T) {
	t.Parallel()

	r := record("a", 100, 10)
	prev := feed.Snapshot{"a": r}
	cur := feed.Snapshot{"a": r}
	// Same instant in a different zone is still equal.
	loc := time.FixedZone("PDT", -7*3600)
	mod := cur["a"]
	mod.Updated = mod.Updated.In(loc)
	cur["a"] = mod

	if changes := Snapshots(prev, cur); len(changes) != 0 {
		t.Fatalf("got %d changes, want 0: %+v", len(changes), changes)
	}
}

func TestSignificant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		change Change
		want   bool
	}{
		{"new incident", Change{ID: "x", Current: record("x", 1, 0)}, true},
		{"acres changed", Change{ID: "x", Previous: &feed.Record{}, Fields: []string{"Acres"}}, true},
		{"containment changed", Change{ID: "x", Previous: &feed.Record{}, Fields: []string{"PercentContained"}}, true},
		{"cost only", Change{ID: "x", Previous: &feed.Record{}, Fields: []string{"Cost"}}, false},
		{"personnel and location", Change{ID: "x", Previous: &feed.Record{}, Fields: []string{"Location", "Personnel"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.change.Significant(); got != tt.want {
				t.Errorf("Significant() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMagnitude(t *testing.T) {
	t.Parallel()

	c := Change{Current: feed.Record{Acres: 1000, PopulationNearby: 5000}}
	if got := c.Magnitude(0); got != 1000 {
		t.Errorf("unweighted = %v, want 1000", got)
	}
	if got := c.Magnitude(0.1); got != 1500 {
		t.Errorf("weighted = %v, want 1500", got)
	}
}

func TestUpdateID(t *testing.T) {
	t.Parallel()

	c := Change{ID: "2026-CAKNF-001", Current: record("2026-CAKNF-001", 1, 0)}
	want := "update-20260830T120000Z-of-2026-CAKNF-001"
	if got := UpdateID(c); got != want {
		t.Fatalf("UpdateID = %q, want %q", got, want)
	}
}

func TestAuditorWritesChangeAndCycleFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := NewAuditor(dir)

	prev := feed.Snapshot{"a": record("a", 100, 10)}
	cur := feed.Snapshot{"a": record("a", 150, 10)}
	changes := Snapshots(prev, cur)
	if len(changes) != 1 {
		t.Fatalf("want 1 change, got %d", len(changes))
	}

	if err := a.Change(changes[0]); err != nil {
		t.Fatalf("Change: %v", err)
	}
	if err := a.Cycle("cycle-1", prev, cur, changes); err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	for _, name := range []string{
		"diff-" + UpdateID(changes[0]) + ".yaml",
		"global-diff-cycle-1.yaml",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing audit file %s: %v", name, err)
		}
	}
}

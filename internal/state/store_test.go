package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"firemon/internal/feed"
)

func TestLoadMissingFileIsFirstRun(t *testing.T) {
	t.Parallel()

	s := NewStore(filepath.Join(t.TempDir(), "current-fires.yaml"))
	snap, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap != nil {
		t.Fatalf("want nil snapshot for missing file, got %v", snap)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "current-fires.yaml")
	s := NewStore(path)

	snap := feed.Snapshot{
		"2026-CAKNF-001": {
			ID:               "2026-CAKNF-001",
			Name:             "Horse Creek",
			Hashtag:          "#HorseCreekFire",
			Acres:            1520.5,
			PercentContained: 35,
			Updated:          time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		},
	}
	if err := s.Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r := got["2026-CAKNF-001"]
	if r.Name != "Horse Creek" || r.Acres != 1520.5 {
		t.Fatalf("round trip lost data: %+v", r)
	}
	if !r.Updated.Equal(snap["2026-CAKNF-001"].Updated) {
		t.Errorf("Updated = %v", r.Updated)
	}
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "state.yaml"))
	if err := s.Save(feed.Snapshot{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.yaml" {
		t.Fatalf("unexpected directory contents: %v", entries)
	}
}

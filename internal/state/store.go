// Package state persists the last committed snapshot between cycles.
//
// The file is YAML so operators can inspect and, if needed, hand-edit it.
// There is exactly one writer: the cycle coordinator at commit time.
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	yaml "go.yaml.in/yaml/v3"

	"firemon/internal/feed"
)

// Store reads and writes the persisted snapshot file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load returns the persisted snapshot, or (nil, nil) when none exists yet.
func (s *Store) Load() (feed.Snapshot, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state %s: %w", s.path, err)
	}

	var snap feed.Snapshot
	if err := yaml.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", s.path, err)
	}
	return snap, nil
}

// Save atomically replaces the persisted snapshot (write temp, rename).
// A crash mid-save leaves the previous state file intact.
func (s *Store) Save(snap feed.Snapshot) error {
	b, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	logx "firemon/pkg/logx"
)

const itemExt = ".yaml"

// dirQueue stores one YAML file per item under dir, with exhausted items
// relocated to a sibling deadletter directory.
type dirQueue struct {
	dir        string
	deadletter string
	log        logx.Logger
}

func openDir(cfg Config, log logx.Logger) (Queue, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, errors.New("queue.dir is required for the dir driver")
	}
	dl := filepath.Join(filepath.Dir(dir), "deadletter")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dl, 0o755); err != nil {
		return nil, err
	}
	return &dirQueue{dir: dir, deadletter: dl, log: log}, nil
}

func (q *dirQueue) Enqueue(ctx context.Context, it Item) error {
	_ = ctx
	b, err := yaml.Marshal(it)
	if err != nil {
		return fmt.Errorf("encode queue item: %w", err)
	}

	name := it.Name() + itemExt
	// Temp prefix "." keeps half-written files out of List().
	tmp := filepath.Join(q.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(q.dir, name)); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	q.log.Debug("queue item written", logx.String("item", name))
	return nil
}

func (q *dirQueue) List(ctx context.Context) ([]Ref, error) {
	_ = ctx
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, err
	}
	refs := make([]Ref, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, itemExt) {
			continue
		}
		refs = append(refs, Ref{Name: name})
	}
	// Filename order is priority order.
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

func (q *dirQueue) Load(ctx context.Context, ref Ref) (Item, error) {
	_ = ctx
	b, err := os.ReadFile(filepath.Join(q.dir, ref.Name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	var it Item
	if err := yaml.Unmarshal(b, &it); err != nil {
		return Item{}, fmt.Errorf("decode queue item %s: %w", ref.Name, err)
	}
	return it, nil
}

func (q *dirQueue) Remove(ctx context.Context, ref Ref) error {
	_ = ctx
	err := os.Remove(filepath.Join(q.dir, ref.Name))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

func (q *dirQueue) Deadletter(ctx context.Context, ref Ref) error {
	_ = ctx
	err := os.Rename(filepath.Join(q.dir, ref.Name), filepath.Join(q.deadletter, ref.Name))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err == nil {
		q.log.Warn("queue item deadlettered", logx.String("item", ref.Name))
	}
	return err
}

func (q *dirQueue) Close() error { return nil }

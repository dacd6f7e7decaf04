package cycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"firemon/internal/diff"
	"firemon/internal/feed"
	"firemon/internal/gate"
	"firemon/internal/queue"
	"firemon/internal/state"
	logx "firemon/pkg/logx"
)

type fakeFetcher struct {
	mu     sync.Mutex
	snaps  []feed.Snapshot
	errs   []error
	perims map[string]feed.Perimeter
	calls  int
}

func (f *fakeFetcher) Fetch(context.Context) (feed.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.snaps) {
		i = len(f.snaps) - 1
	}
	return f.snaps[i].Clone(), nil
}

func (f *fakeFetcher) Perimeters(context.Context) (map[string]feed.Perimeter, error) {
	return f.perims, nil
}

type fakeProducer struct {
	mu       sync.Mutex
	produced []string
	fail     map[string]bool
}

func (p *fakeProducer) Produce(_ context.Context, c diff.Change, _ []feed.Ring) (queue.Item, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[c.ID] {
		return queue.Item{}, errors.New("render exploded")
	}
	p.produced = append(p.produced, c.ID)
	return queue.Item{
		ID:        diff.UpdateID(c),
		Text:      "post " + c.ID,
		Priority:  queue.EncodeKey(c.Magnitude(0)),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (p *fakeProducer) producedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.produced...)
}

type fakeKicker struct {
	mu    sync.Mutex
	kicks int
}

func (k *fakeKicker) Kick() {
	k.mu.Lock()
	k.kicks++
	k.mu.Unlock()
}

func rec(id string, acres float64) feed.Record {
	return feed.Record{
		ID:      id,
		Name:    "Fire " + id,
		Acres:   acres,
		Updated: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

type fixture struct {
	coord    *Coordinator
	fetcher  *fakeFetcher
	producer *fakeProducer
	kicker   *fakeKicker
	store    *state.Store
	queue    queue.Queue
	auditDir string
}

func newFixture(t *testing.T, fetcher *fakeFetcher, cfg Config) *fixture {
	t.Helper()
	dir := t.TempDir()

	q, err := queue.Open(queue.Config{Dir: filepath.Join(dir, "queue")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { q.Close() })

	if cfg.Schedule == (Schedule{}) {
		sched, err := ParseSchedule("65s")
		if err != nil {
			t.Fatal(err)
		}
		cfg.Schedule = sched
	}

	producer := &fakeProducer{}
	kicker := &fakeKicker{}
	store := state.NewStore(filepath.Join(dir, "current-fires.yaml"))
	auditDir := filepath.Join(dir, "audits")
	coord := NewCoordinator(cfg, fetcher, producer, q, store,
		diff.NewAuditor(auditDir), gate.New(1), kicker, logx.Nop())
	coord.fatal = func(n int64) { t.Fatalf("outstanding counter underflow: %d", n) }

	return &fixture{coord: coord, fetcher: fetcher, producer: producer, kicker: kicker,
		store: store, queue: q, auditDir: auditDir}
}

func TestFirstRunCommitsWithoutPublishing(t *testing.T) {
	t.Parallel()

	snap := feed.Snapshot{"a": rec("a", 100), "b": rec("b", 500)}
	fx := newFixture(t, &fakeFetcher{snaps: []feed.Snapshot{snap}}, Config{})

	if err := fx.coord.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if got := fx.producer.producedIDs(); len(got) != 0 {
		t.Fatalf("first run produced %v, want nothing", got)
	}
	saved, err := fx.store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 2 {
		t.Fatalf("baseline not committed: %v", saved)
	}
}

func TestFirstRunWritesCycleSummaryOnly(t *testing.T) {
	t.Parallel()

	before := feed.Snapshot{"a": rec("a", 100), "b": rec("b", 500), "c": rec("c", 900)}
	after := before.Clone()
	grown := after["a"]
	grown.Acres = 400
	after["a"] = grown

	fx := newFixture(t, &fakeFetcher{snaps: []feed.Snapshot{before, after}}, Config{})

	ctx := context.Background()
	if err := fx.coord.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	for _, name := range auditNames(t, fx.auditDir) {
		if strings.HasPrefix(name, "diff-") {
			t.Errorf("baseline cycle wrote per-change audit %s", name)
		}
	}

	// Later cycles audit their changes as usual.
	if err := fx.coord.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	var perChange int
	for _, name := range auditNames(t, fx.auditDir) {
		if strings.HasPrefix(name, "diff-") {
			perChange++
		}
	}
	if perChange != 1 {
		t.Fatalf("second cycle wrote %d per-change audits, want 1", perChange)
	}
}

func auditNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestChangedIncidentIsProducedAndQueued(t *testing.T) {
	t.Parallel()

	before := feed.Snapshot{"a": rec("a", 100), "b": rec("b", 500)}
	after := before.Clone()
	grown := after["a"]
	grown.Acres = 250
	after["a"] = grown

	fx := newFixture(t, &fakeFetcher{snaps: []feed.Snapshot{before, after}}, Config{})

	ctx := context.Background()
	if err := fx.coord.RunOnce(ctx); err != nil { // baseline
		t.Fatal(err)
	}
	if err := fx.coord.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}

	if got := fx.producer.producedIDs(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("produced %v, want [a]", got)
	}
	refs, err := fx.queue.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 {
		t.Fatalf("queue has %d items, want 1", len(refs))
	}
	if fx.kicker.kicks == 0 {
		t.Error("publisher was never kicked")
	}
	saved, _ := fx.store.Load()
	if saved["a"].Acres != 250 {
		t.Fatalf("state not advanced: %+v", saved["a"])
	}
}

func TestFetchFailureLeavesStateAlone(t *testing.T) {
	t.Parallel()

	snap := feed.Snapshot{"a": rec("a", 100)}
	fx := newFixture(t, &fakeFetcher{
		snaps: []feed.Snapshot{snap},
		errs:  []error{nil, errors.New("feed down")},
	}, Config{})

	ctx := context.Background()
	if err := fx.coord.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	before, _ := fx.store.Load()

	if err := fx.coord.RunOnce(ctx); err == nil {
		t.Fatal("RunOnce succeeded despite fetch failure")
	}
	after, _ := fx.store.Load()
	if len(after) != len(before) {
		t.Fatalf("state changed across failed fetch: %v -> %v", before, after)
	}
}

func TestInsignificantChangeIsAuditedNotQueued(t *testing.T) {
	t.Parallel()

	before := feed.Snapshot{"a": rec("a", 100)}
	after := before.Clone()
	r := after["a"]
	r.Personnel = 99 // not a publish trigger
	after["a"] = r

	fx := newFixture(t, &fakeFetcher{snaps: []feed.Snapshot{before, after}}, Config{})

	ctx := context.Background()
	if err := fx.coord.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if err := fx.coord.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}

	if got := fx.producer.producedIDs(); len(got) != 0 {
		t.Fatalf("produced %v for an insignificant change", got)
	}
	// But the state still advances.
	saved, _ := fx.store.Load()
	if saved["a"].Personnel != 99 {
		t.Fatalf("state not advanced: %+v", saved["a"])
	}
}

func TestProducerFailureDoesNotBlockCommit(t *testing.T) {
	t.Parallel()

	before := feed.Snapshot{"a": rec("a", 100), "b": rec("b", 500)}
	after := before.Clone()
	for _, id := range []string{"a", "b"} {
		r := after[id]
		r.Acres += 50
		after[id] = r
	}

	fx := newFixture(t, &fakeFetcher{snaps: []feed.Snapshot{before, after}}, Config{})
	fx.producer.fail = map[string]bool{"a": true}

	ctx := context.Background()
	if err := fx.coord.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if err := fx.coord.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}

	refs, _ := fx.queue.List(ctx)
	if len(refs) != 1 {
		t.Fatalf("queue has %d items, want 1 (b only)", len(refs))
	}
	saved, _ := fx.store.Load()
	if saved["a"].Acres != 150 {
		t.Fatalf("failed task blocked the commit: %+v", saved["a"])
	}
}

func TestForceAllQueuesEverything(t *testing.T) {
	t.Parallel()

	snap := feed.Snapshot{"a": rec("a", 100), "b": rec("b", 500)}
	fx := newFixture(t, &fakeFetcher{snaps: []feed.Snapshot{snap}}, Config{ForceAll: true})

	if err := fx.coord.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := fx.producer.producedIDs(); len(got) != 2 {
		t.Fatalf("produced %v, want both incidents", got)
	}
}

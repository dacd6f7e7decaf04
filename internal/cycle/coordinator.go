// Package cycle runs the poll/diff/fan-out/commit loop.
//
// The loop's one hard rule: persisted state advances only after every task
// fanned out for the cycle has finished (enqueued its item, degraded, or
// given up). A crash mid-cycle therefore re-detects the same changes on the
// next run instead of losing them.
package cycle

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"firemon/internal/diff"
	"firemon/internal/feed"
	"firemon/internal/gate"
	"firemon/internal/queue"
	"firemon/internal/state"
	logx "firemon/pkg/logx"
)

// Phase is the coordinator's current position in the cycle.
type Phase string

const (
	PhaseFetching   Phase = "fetching"
	PhaseDiffing    Phase = "diffing"
	PhaseFanningOut Phase = "fanning-out"
	PhaseDraining   Phase = "draining"
	PhaseCommitting Phase = "committing"
	PhaseSleeping   Phase = "sleeping"
)

// Fetcher provides the two remote reads a cycle needs.
type Fetcher interface {
	Fetch(ctx context.Context) (feed.Snapshot, error)
	Perimeters(ctx context.Context) (map[string]feed.Perimeter, error)
}

// Producer turns one significant change into a queued publication.
type Producer interface {
	Produce(ctx context.Context, c diff.Change, perimeter []feed.Ring) (queue.Item, error)
}

// Kicker is notified when new work lands in the queue.
type Kicker interface{ Kick() }

// Config tunes the cycle loop.
type Config struct {
	// Schedule drives the poll cadence.
	Schedule Schedule
	// RetryDelay is the shortened sleep after a failed fetch.
	RetryDelay time.Duration
	// ForceAll treats every current incident as changed and significant.
	// Debug aid; pairs with a short poll interval.
	ForceAll bool
	// Lane names the admission lane expensive production work runs under.
	Lane string
}

// Coordinator owns the cycle loop and the persisted snapshot.
type Coordinator struct {
	cfg      Config
	fetcher  Fetcher
	producer Producer
	q        queue.Queue
	store    *state.Store
	audit    *diff.Auditor
	adm      *gate.Gate
	kicker   Kicker
	log      logx.Logger

	prev   feed.Snapshot
	loaded bool

	// fatal handles an outstanding-counter underflow. Overridable in tests;
	// the default logs and exits because the commit gate is no longer sound.
	fatal func(n int64)
}

func NewCoordinator(cfg Config, fetcher Fetcher, producer Producer, q queue.Queue,
	store *state.Store, audit *diff.Auditor, adm *gate.Gate, kicker Kicker, log logx.Logger) *Coordinator {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 15 * time.Second
	}
	if cfg.Lane == "" {
		cfg.Lane = "render"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Coordinator{
		cfg:      cfg,
		fetcher:  fetcher,
		producer: producer,
		q:        q,
		store:    store,
		audit:    audit,
		adm:      adm,
		kicker:   kicker,
		log:      log,
	}
	c.fatal = func(n int64) {
		c.log.Error("outstanding task counter went negative; state commits are no longer trustworthy",
			logx.Int64("count", n))
		os.Exit(2)
	}
	return c
}

// Run executes cycles until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		sleep := c.nextSleep(c.RunOnce(ctx))
		if ctx.Err() != nil {
			return nil
		}
		c.log.Debug("cycle complete", logx.String("phase", string(PhaseSleeping)),
			logx.Duration("sleep", sleep))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}
	}
}

func (c *Coordinator) nextSleep(err error) time.Duration {
	if err != nil {
		return c.cfg.RetryDelay
	}
	return time.Until(c.cfg.Schedule.Next(time.Now()))
}

// RunOnce executes exactly one cycle: fetch, diff, fan out, drain, commit.
// Queued items are left for the publisher to drain.
func (c *Coordinator) RunOnce(ctx context.Context) error {
	cycleID := uuid.NewString()
	log := c.log.With(logx.String("cycle", cycleID))

	if !c.loaded {
		snap, err := c.store.Load()
		if err != nil {
			return err
		}
		c.prev = snap
		c.loaded = true
	}

	log.Debug("phase", logx.String("phase", string(PhaseFetching)))
	current, err := c.fetcher.Fetch(ctx)
	if err != nil {
		// Previous snapshot stays committed; the same changes will be
		// re-detected once the feed is reachable again.
		log.Warn("fetch failed; keeping previous state", logx.Err(err))
		return err
	}

	log.Debug("phase", logx.String("phase", string(PhaseDiffing)),
		logx.Int("incidents", len(current)))
	firstRun := c.prev == nil
	changes := diff.Snapshots(c.prev, current)
	if c.cfg.ForceAll {
		changes = forceAll(c.prev, current)
	}

	if firstRun && !c.cfg.ForceAll {
		// Everything is "new" on the first run; publishing the entire feed
		// would be noise, and so would a per-change audit file for each of
		// hundreds of incidents. Commit the baseline with the cycle summary
		// only.
		log.Info("first run; committing baseline without publishing",
			logx.Int("incidents", len(current)))
		return c.commit(cycleID, current, changes, log)
	}

	for _, ch := range changes {
		if err := c.audit.Change(ch); err != nil {
			log.Warn("change audit not written", logx.String("incident", ch.ID), logx.Err(err))
		}
	}

	significant := make([]diff.Change, 0, len(changes))
	for _, ch := range changes {
		if c.cfg.ForceAll || ch.Significant() {
			significant = append(significant, ch)
		}
	}

	var perims map[string]feed.Perimeter
	if len(significant) > 0 {
		if perims, err = c.fetcher.Perimeters(ctx); err != nil {
			log.Warn("perimeter fetch failed; producing without maps", logx.Err(err))
			perims = nil
		}
	}

	log.Info("fanning out", logx.String("phase", string(PhaseFanningOut)),
		logx.Int("changes", len(changes)), logx.Int("significant", len(significant)))

	outstanding := NewOutstanding(c.fatal)
	// Hold one increment across enumeration so the count cannot hit zero
	// while launches are still pending.
	outstanding.Add(1)
	for _, ch := range significant {
		outstanding.Add(1)
		go func(ch diff.Change) {
			defer outstanding.Done()
			c.produce(ctx, ch, perims, log)
		}(ch)
	}
	outstanding.Done()

	log.Debug("phase", logx.String("phase", string(PhaseDraining)))
	if err := outstanding.Wait(ctx); err != nil {
		// Shutdown mid-cycle: do not commit, so interrupted tasks are
		// re-detected next run.
		return err
	}

	return c.commit(cycleID, current, changes, log)
}

func (c *Coordinator) commit(cycleID string, current feed.Snapshot, changes []diff.Change, log logx.Logger) error {
	log.Debug("phase", logx.String("phase", string(PhaseCommitting)))
	if err := c.audit.Cycle(cycleID, c.prev, current, changes); err != nil {
		log.Warn("cycle audit not written", logx.Err(err))
	}
	if err := c.store.Save(current); err != nil {
		return err
	}
	c.prev = current
	return nil
}

// produce runs one fan-out task end to end. Failures are terminal for the
// task, never for the cycle.
func (c *Coordinator) produce(ctx context.Context, ch diff.Change, perims map[string]feed.Perimeter, log logx.Logger) {
	tok, err := c.adm.Acquire(ctx, c.cfg.Lane)
	if err != nil {
		log.Warn("admission aborted", logx.String("incident", ch.ID), logx.Err(err))
		return
	}
	defer tok.Release()

	var rings []feed.Ring
	if p, ok := perims[ch.ID]; ok {
		rings = p.Rings
	}

	item, err := c.producer.Produce(ctx, ch, rings)
	if err != nil {
		log.Warn("production failed; change dropped", logx.String("incident", ch.ID), logx.Err(err))
		return
	}
	if err := c.q.Enqueue(ctx, item); err != nil {
		log.Error("enqueue failed; change dropped", logx.String("incident", ch.ID), logx.Err(err))
		return
	}
	log.Info("queued", logx.String("incident", ch.ID),
		logx.String("item", item.Name()), logx.Bool("with_media", len(item.Images) > 0))
	if c.kicker != nil {
		c.kicker.Kick()
	}
}

// forceAll fabricates a change for every current incident, previous record
// attached when one exists.
func forceAll(previous, current feed.Snapshot) []diff.Change {
	natural := diff.Snapshots(previous, current)
	seen := make(map[string]bool, len(natural))
	for _, ch := range natural {
		seen[ch.ID] = true
	}
	out := natural
	for _, ch := range diff.Snapshots(nil, current) {
		if seen[ch.ID] {
			continue
		}
		if old, ok := previous[ch.ID]; ok {
			oldCopy := old
			ch.Previous = &oldCopy
		}
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

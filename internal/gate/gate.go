// Package gate provides a fair, bounded admission gate for expensive work.
package gate

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("gate closed")

// Gate is a counting admission gate with named lanes.
//
// Lanes are labels over ONE shared token pool: giving rendering and posting
// distinct lanes bounds their combined parallelism, not each independently.
// This mirrors the single shared semaphore the pipeline needs to keep total
// expensive work (headless renders, big uploads) under one cap. Capacity 1
// fully serializes; larger capacities change only how many tasks run at once.
//
// Fairness: waiters are granted strictly in arrival order. A token released
// while waiters exist is handed directly to the head waiter, so a burst of
// new requests can never starve an old one.
type Gate struct {
	mu       sync.Mutex
	capacity int
	inUse    int
	waiters  []*waiter
	closed   bool
}

type waiter struct {
	lane    string
	ready   chan struct{}
	granted bool
}

// Token represents held admission. Release is idempotent and must be called
// on every exit path of the admitted task, including error paths.
type Token struct {
	g    *Gate
	lane string
	once sync.Once
}

func (t *Token) Lane() string { return t.lane }

func (t *Token) Release() {
	if t == nil || t.g == nil {
		return
	}
	t.once.Do(func() { t.g.release() })
}

func New(capacity int) *Gate {
	if capacity <= 0 {
		capacity = 1
	}
	return &Gate{capacity: capacity}
}

// Acquire blocks until a token is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context, lane string) (*Token, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrClosed
	}
	if g.inUse < g.capacity && len(g.waiters) == 0 {
		g.inUse++
		g.mu.Unlock()
		return &Token{g: g, lane: lane}, nil
	}
	w := &waiter{lane: lane, ready: make(chan struct{})}
	g.waiters = append(g.waiters, w)
	g.mu.Unlock()

	select {
	case <-w.ready:
		return &Token{g: g, lane: lane}, nil
	case <-ctx.Done():
		g.mu.Lock()
		if w.granted {
			// The token was handed to us concurrently with cancellation;
			// pass it on so it is not lost.
			g.grantNextLocked()
			g.mu.Unlock()
			return nil, ctx.Err()
		}
		g.removeWaiterLocked(w)
		g.mu.Unlock()
		return nil, ctx.Err()
	}
}

// InUse reports the number of currently held tokens.
func (g *Gate) InUse() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inUse
}

// Waiting reports the number of queued acquirers.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}

// Close fails all future Acquire calls. Held tokens stay valid; their release
// still wakes queued waiters that arrived before Close.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

func (g *Gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.waiters) > 0 {
		// Hand the token to the head waiter without touching inUse.
		g.grantNextLocked()
		return
	}
	if g.inUse > 0 {
		g.inUse--
	}
}

func (g *Gate) grantNextLocked() {
	if len(g.waiters) == 0 {
		if g.inUse > 0 {
			g.inUse--
		}
		return
	}
	w := g.waiters[0]
	g.waiters = g.waiters[1:]
	w.granted = true
	close(w.ready)
}

func (g *Gate) removeWaiterLocked(target *waiter) {
	for i, w := range g.waiters {
		if w == target {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			return
		}
	}
}

package cycle

import (
	"context"
	"sync"
)

// Outstanding counts fan-out tasks still in flight for the current cycle.
//
// The coordinator holds one implicit increment while it enumerates changes,
// so the count cannot reach zero between launching task N and task N+1. A
// decrement below zero means a task was double-completed; that breaks the
// commit gate's correctness, so the underflow hook is expected to terminate
// the process.
type Outstanding struct {
	mu          sync.Mutex
	n           int64
	zeroCh      chan struct{}
	onUnderflow func(n int64)
}

func NewOutstanding(onUnderflow func(n int64)) *Outstanding {
	return &Outstanding{onUnderflow: onUnderflow}
}

// Add registers delta in-flight tasks. delta must be positive.
func (o *Outstanding) Add(delta int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.n += int64(delta)
}

// Done marks one task complete.
func (o *Outstanding) Done() {
	o.mu.Lock()
	o.n--
	n := o.n
	if n == 0 && o.zeroCh != nil {
		close(o.zeroCh)
		o.zeroCh = nil
	}
	hook := o.onUnderflow
	o.mu.Unlock()

	if n < 0 && hook != nil {
		hook(n)
	}
}

// Value returns the current in-flight count.
func (o *Outstanding) Value() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.n
}

// Wait blocks until the count reaches zero or ctx is done.
func (o *Outstanding) Wait(ctx context.Context) error {
	o.mu.Lock()
	if o.n <= 0 {
		o.mu.Unlock()
		return nil
	}
	if o.zeroCh == nil {
		o.zeroCh = make(chan struct{})
	}
	ch := o.zeroCh
	o.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

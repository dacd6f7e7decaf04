package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	t.Parallel()
	g := New(1)

	tok, err := g.Acquire(context.Background(), "render")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if g.InUse() != 1 {
		t.Fatalf("InUse = %d, want 1", g.InUse())
	}
	tok.Release()
	tok.Release() // idempotent
	if g.InUse() != 0 {
		t.Fatalf("InUse after release = %d, want 0", g.InUse())
	}
}

func TestCapacityBoundsParallelism(t *testing.T) {
	t.Parallel()
	const capacity = 2
	g := New(capacity)

	var running, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := g.Acquire(context.Background(), "render")
			if err != nil {
				t.Error(err)
				return
			}
			defer tok.Release()

			n := atomic.AddInt64(&running, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&running, -1)
		}()
	}
	wg.Wait()

	if p := atomic.LoadInt64(&peak); p > capacity {
		t.Fatalf("peak parallelism %d exceeded capacity %d", p, capacity)
	}
}

func TestLanesShareOnePool(t *testing.T) {
	t.Parallel()
	g := New(1)

	tok, err := g.Acquire(context.Background(), "render")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.Acquire(ctx, "publish"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("other lane acquired despite full pool: %v", err)
	}
	tok.Release()

	tok2, err := g.Acquire(context.Background(), "publish")
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	tok2.Release()
}

func TestFIFOOrder(t *testing.T) {
	t.Parallel()
	g := New(1)

	first, err := g.Acquire(context.Background(), "render")
	if err != nil {
		t.Fatal(err)
	}

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			tok, err := g.Acquire(context.Background(), "render")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			tok.Release()
		}()
		// Give each goroutine time to join the wait queue in order.
		for g.Waiting() != i+1 {
			time.Sleep(time.Millisecond)
		}
	}

	first.Release()
	wg.Wait()

	for i := range order {
		if order[i] != i {
			t.Fatalf("grant order = %v, want FIFO", order)
		}
	}
}

func TestCancelWhileWaiting(t *testing.T) {
	t.Parallel()
	g := New(1)

	tok, err := g.Acquire(context.Background(), "render")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.Acquire(ctx, "render")
		done <- err
	}()
	for g.Waiting() != 1 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled acquire = %v", err)
	}
	if g.Waiting() != 0 {
		t.Fatalf("waiter leaked: %d", g.Waiting())
	}

	// The held token is unaffected.
	tok.Release()
	tok2, err := g.Acquire(context.Background(), "render")
	if err != nil {
		t.Fatalf("Acquire after cancel: %v", err)
	}
	tok2.Release()
}

func TestCloseFailsNewAcquires(t *testing.T) {
	t.Parallel()
	g := New(1)
	g.Close()
	if _, err := g.Acquire(context.Background(), "render"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Acquire after Close = %v, want ErrClosed", err)
	}
}

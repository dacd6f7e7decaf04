package cycle

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestOutstandingWaitReturnsAtZero(t *testing.T) {
	t.Parallel()

	o := NewOutstanding(nil)
	o.Add(1)
	for i := 0; i < 5; i++ {
		o.Add(1)
		go func() {
			time.Sleep(5 * time.Millisecond)
			o.Done()
		}()
	}
	o.Done() // enumeration hold

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := o.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if v := o.Value(); v != 0 {
		t.Fatalf("Value = %d, want 0", v)
	}
}

func TestOutstandingWaitOnZeroIsImmediate(t *testing.T) {
	t.Parallel()

	o := NewOutstanding(nil)
	if err := o.Wait(context.Background()); err != nil {
		t.Fatalf("Wait on idle counter: %v", err)
	}
}

func TestOutstandingWaitHonorsContext(t *testing.T) {
	t.Parallel()

	o := NewOutstanding(nil)
	o.Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := o.Wait(ctx); err == nil {
		t.Fatal("Wait returned nil while a task was outstanding")
	}
}

func TestOutstandingUnderflowFiresHook(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got []int64
	o := NewOutstanding(func(n int64) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	})

	o.Add(1)
	o.Done()
	o.Done() // one Done too many

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != -1 {
		t.Fatalf("underflow hook calls = %v, want [-1]", got)
	}
}

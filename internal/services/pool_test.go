package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(3)
	if pool.Size() != 3 {
		t.Fatalf("Size() = %d", pool.Size())
	}

	var running, peak int32
	results := make([]int, 20)

	err := pool.Each(context.Background(), len(results), func(_ context.Context, i int) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		results[i] = i * i
		atomic.AddInt32(&running, -1)
	})
	if err != nil {
		t.Fatalf("Each: %v", err)
	}
	if peak > 3 {
		t.Fatalf("peak concurrency %d exceeds pool size", peak)
	}
	for i, v := range results {
		if v != i*i {
			t.Fatalf("slot %d = %d", i, v)
		}
	}
}

func TestWorkerPoolCancelled(t *testing.T) {
	pool := NewWorkerPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	err := pool.Each(ctx, 5, func(context.Context, int) { atomic.AddInt32(&calls, 1) })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if pool.Size() != 1 {
		t.Fatal("pool lost a token")
	}
}

func TestWorkerPoolZeroSize(t *testing.T) {
	if NewWorkerPool(0).Size() != 1 {
		t.Fatal("zero size should fall back to one worker")
	}
}

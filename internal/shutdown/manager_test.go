package shutdown

import (
	"sync"
	"testing"
	"time"
)

func TestShutdownReverseOrder(t *testing.T) {
	m := NewManager(nil)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"memory", "tracing", "http"} {
		name := name
		m.Register(name, Func(func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}))
	}

	m.Shutdown()
	m.Shutdown()

	want := []string{"http", "tracing", "memory"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}

	select {
	case <-m.Done():
	default:
		t.Fatal("Done not closed")
	}
	if m.Context().Err() == nil {
		t.Fatal("context not cancelled")
	}
}

func TestShutdownTimeout(t *testing.T) {
	m := NewManager(nil)
	m.timeout = 10 * time.Millisecond

	block := make(chan struct{})
	defer close(block)
	m.Register("stuck", Func(func() { <-block }))

	finished := make(chan struct{})
	go func() {
		m.Shutdown()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("shutdown blocked on a stuck component")
	}
}

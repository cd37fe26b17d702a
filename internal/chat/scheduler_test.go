package chat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTaskGroupRunsCallbacks(t *testing.T) {
	g := NewTaskGroup(context.Background())
	defer g.Stop()

	done := make(chan struct{})
	g.After(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback did not run")
	}
}

func TestTaskGroupStopCancelsPending(t *testing.T) {
	g := NewTaskGroup(context.Background())

	var fired atomic.Int32
	for i := 0; i < 5; i++ {
		g.After(50*time.Millisecond, func() { fired.Add(1) })
	}
	if g.Pending() != 5 {
		t.Fatalf("Pending() = %d, want 5", g.Pending())
	}

	g.Stop()
	g.After(time.Millisecond, func() { fired.Add(1) })

	time.Sleep(150 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("%d callbacks ran after Stop", got)
	}
	if g.Pending() != 0 {
		t.Fatalf("Pending() = %d after Stop", g.Pending())
	}
}

func TestTaskGroupStopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := NewTaskGroup(ctx)
	defer g.Stop()

	var fired atomic.Bool
	g.After(20*time.Millisecond, func() { fired.Store(true) })
	cancel()

	time.Sleep(80 * time.Millisecond)
	if fired.Load() {
		t.Fatal("callback ran after parent context was cancelled")
	}
}

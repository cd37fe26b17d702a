package chat

import (
	"context"
	"sync"
	"time"
)

// Scheduler runs delayed callbacks on behalf of a controller.
type Scheduler interface {
	After(d time.Duration, fn func())
	Stop()
}

// TaskGroup is a Scheduler whose pending timers are cancelled together.
type TaskGroup struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

func NewTaskGroup(parent context.Context) *TaskGroup {
	ctx, cancel := context.WithCancel(parent)
	return &TaskGroup{
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[*time.Timer]struct{}),
	}
}

func (g *TaskGroup) After(d time.Duration, fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ctx.Err() != nil {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		g.mu.Lock()
		delete(g.timers, t)
		g.mu.Unlock()

		if g.ctx.Err() != nil {
			return
		}
		fn()
	})
	g.timers[t] = struct{}{}
}

// Pending reports how many callbacks have not fired yet.
func (g *TaskGroup) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.timers)
}

func (g *TaskGroup) Stop() {
	g.cancel()

	g.mu.Lock()
	defer g.mu.Unlock()
	for t := range g.timers {
		t.Stop()
		delete(g.timers, t)
	}
}

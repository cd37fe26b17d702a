package chat

import (
	"sync"
	"testing"
	"time"

	"namlong/internal/models"
)

// manualScheduler runs callbacks only when Advance moves its clock past them.
type manualScheduler struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	tasks   []manualTask
	stopped bool
}

type manualTask struct {
	at  time.Time
	seq int
	fn  func()
}

func newManualScheduler(start time.Time) *manualScheduler {
	return &manualScheduler{now: start}
}

func (s *manualScheduler) After(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.seq++
	s.tasks = append(s.tasks, manualTask{at: s.now.Add(d), seq: s.seq, fn: fn})
}

func (s *manualScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.tasks = nil
}

func (s *manualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		idx := -1
		for i, t := range s.tasks {
			if t.at.After(target) {
				continue
			}
			if idx < 0 || t.at.Before(s.tasks[idx].at) || (t.at.Equal(s.tasks[idx].at) && t.seq < s.tasks[idx].seq) {
				idx = i
			}
		}
		if idx < 0 {
			s.now = target
			s.mu.Unlock()
			return
		}
		task := s.tasks[idx]
		s.tasks = append(s.tasks[:idx], s.tasks[idx+1:]...)
		s.now = task.at
		s.mu.Unlock()

		task.fn()
	}
}

type fakeHost struct {
	mu        sync.Mutex
	open      bool
	path      string
	navigated []string
}

func (h *fakeHost) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

func (h *fakeHost) SetOpen(open bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.open = open
}

func (h *fakeHost) CurrentPath() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.path
}

func (h *fakeHost) Navigate(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.navigated = append(h.navigated, path)
	h.path = path
}

func (h *fakeHost) Navigated() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.navigated...)
}

// statusRecorder keeps every status each message was observed in.
type statusRecorder struct {
	mu       sync.Mutex
	statuses map[string][]models.Status
	kinds    []EventKind
}

func newStatusRecorder() *statusRecorder {
	return &statusRecorder{statuses: make(map[string][]models.Status)}
}

func (r *statusRecorder) OnEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, ev.Kind)
	if ev.Message.ID == "" {
		return
	}
	seen := r.statuses[ev.Message.ID]
	if len(seen) == 0 || seen[len(seen)-1] != ev.Message.Status {
		r.statuses[ev.Message.ID] = append(seen, ev.Message.Status)
	}
}

func (r *statusRecorder) Statuses(id string) []models.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Status(nil), r.statuses[id]...)
}

var testStart = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

type testConversation struct {
	ctrl     *Controller
	sched    *manualScheduler
	host     *fakeHost
	recorder *statusRecorder
}

func newTestConversation(t *testing.T, path string) *testConversation {
	t.Helper()

	sched := newManualScheduler(testStart)
	host := &fakeHost{path: path}
	recorder := newStatusRecorder()

	ctrl, err := NewController(Options{
		Host:      host,
		Routes:    testRoutes(),
		Timings:   DefaultTimings(),
		Scheduler: sched,
		Now:       sched.Now,
		Listener:  recorder,
	})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}

	return &testConversation{ctrl: ctrl, sched: sched, host: host, recorder: recorder}
}

func testRoutes() Routes {
	return NewRoutes([]Route{
		{Key: "home", Path: "/", Title: "Trang chủ"},
		{Key: "courses", Path: "/khoa-hoc", Title: "Khóa học"},
		{Key: "contact", Path: "/lien-he", Title: "Liên hệ"},
		{Key: "faq", Path: "/hoi-dap", Title: "Câu hỏi thường gặp"},
	})
}

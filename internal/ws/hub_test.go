package ws

import (
	"errors"
	"testing"
	"time"

	"namlong/internal/models"
)

func TestHubReplacesClientOfSameSession(t *testing.T) {
	h := newTestHub(nil)
	go h.Run()
	defer h.Shutdown()

	first := newClient(t, h, &models.ChatSession{ID: "ses_1"})
	second := newClient(t, h, &models.ChatSession{ID: "ses_1"})
	other := newClient(t, h, &models.ChatSession{ID: "ses_2"})
	for _, c := range []*Client{first, second, other} {
		t.Cleanup(c.ctrl.Shutdown)
	}

	for _, c := range []*Client{first, second, other} {
		if err := h.Register(c); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	if msg := next(t, first); msg.Op != OpInvalidSession {
		t.Fatalf("replaced client got op %d, want INVALID_SESSION", msg.Op)
	}
	if h.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", h.Count())
	}
	if h.GetClient("ses_1") != second {
		t.Fatal("GetClient() did not return the newest connection")
	}

	h.Unregister(other)
	deadline := time.Now().Add(2 * time.Second)
	for h.Count() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("Count() = %d after unregister, want 1", h.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubShutdown(t *testing.T) {
	h := newTestHub(nil)
	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()

	c := newClient(t, h, &models.ChatSession{ID: "ses_1"})
	t.Cleanup(c.ctrl.Shutdown)
	if err := h.Register(c); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	h.Shutdown()
	h.Shutdown()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Shutdown")
	}

	if _, ok := <-c.send; ok {
		t.Fatal("send channel still open after shutdown")
	}

	unregistered := make(chan struct{})
	go func() {
		h.Unregister(c)
		close(unregistered)
	}()
	select {
	case <-unregistered:
	case <-time.After(time.Second):
		t.Fatal("Unregister() blocked after shutdown")
	}

	late := newClient(t, h, &models.ChatSession{ID: "ses_2"})
	t.Cleanup(late.ctrl.Shutdown)
	if err := h.Register(late); !errors.Is(err, ErrHubClosed) {
		t.Fatalf("Register() after shutdown error = %v, want ErrHubClosed", err)
	}
}

package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"namlong/internal/chat"
	"namlong/internal/metrics"
	"namlong/internal/models"
)

const (
	// maxDroppedMessagesBeforeDisconnect is the threshold for disconnecting slow widgets
	maxDroppedMessagesBeforeDisconnect = 100
)

var ErrHubClosed = errors.New("hub is shut down")

// Archiver receives every message state a conversation reaches.
type Archiver interface {
	Archive(sessionID string, msg models.Message)
}

// Options configure the conversations created for each widget connection.
type Options struct {
	Routes           chat.Routes
	Intents          *chat.IntentTable
	Timings          chat.Timings
	RecallWindow     time.Duration
	MaxContentLength int
	Location         *time.Location
	Archiver         Archiver
	Now              func() time.Time
}

// registerRequest is used for synchronous registration with a callback
type registerRequest struct {
	client *Client
	done   chan struct{}
}

type Hub struct {
	clients        map[*Client]bool
	sessionClients map[string]*Client
	registerSync   chan registerRequest
	unregister     chan *Client
	shutdown       chan struct{}
	shutdownOnce   sync.Once
	ctx            context.Context
	cancel         context.CancelFunc
	opts           Options
	logger         *slog.Logger
	mu             sync.RWMutex
}

func NewHub(opts Options) *Hub {
	if opts.Intents == nil {
		opts.Intents = chat.NewIntentTable(chat.DefaultIntents())
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:        make(map[*Client]bool),
		sessionClients: make(map[string]*Client),
		registerSync:   make(chan registerRequest),
		unregister:     make(chan *Client),
		shutdown:       make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
		opts:           opts,
		logger:         slog.Default().With("component", "hub"),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.shutdown:
			h.mu.Lock()
			for client := range h.clients {
				client.CloseSend()
				delete(h.clients, client)
			}
			h.sessionClients = make(map[string]*Client)
			metrics.WSConnections.Set(0)
			h.mu.Unlock()
			h.logger.Info("shutdown complete")
			return

		case req := <-h.registerSync:
			h.mu.Lock()
			h.clients[req.client] = true
			sessionID := req.client.session.ID
			if old, ok := h.sessionClients[sessionID]; ok && old != req.client {
				// Tell the old tab not to reconnect before closing it
				old.queue(&WSMessage{Op: OpInvalidSession})
				old.Close()
				delete(h.clients, old)
			}
			h.sessionClients[sessionID] = req.client
			metrics.WSConnections.Set(float64(len(h.clients)))
			h.mu.Unlock()
			close(req.done)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				if h.sessionClients[client.session.ID] == client {
					delete(h.sessionClients, client.session.ID)
				}
			}
			metrics.WSConnections.Set(float64(len(h.clients)))
			h.mu.Unlock()
			client.CloseSend()
		}
	}
}

// Register adds a client and returns once the hub has accepted it.
func (h *Hub) Register(c *Client) error {
	done := make(chan struct{})
	select {
	case h.registerSync <- registerRequest{client: c, done: done}:
	case <-h.shutdown:
		return ErrHubClosed
	case <-time.After(registerTimeout):
		return errors.New("hub registration timed out")
	}

	select {
	case <-done:
		return nil
	case <-h.shutdown:
		return ErrHubClosed
	case <-time.After(registerTimeout):
		return errors.New("hub registration timed out")
	}
}

// Unregister removes a client. It never blocks after Shutdown.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.shutdown:
	}
}

// Count is the number of connected widgets.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) GetClient(sessionID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessionClients[sessionID]
}

func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		h.cancel()
		close(h.shutdown)
	})
}

// archiveListener stores every message state of one session's conversation.
// Hidden messages are archived without their body.
func (h *Hub) archiveListener(sessionID string) chat.Listener {
	if h.opts.Archiver == nil {
		return nil
	}
	return chat.ListenerFunc(func(ev chat.Event) {
		if ev.Kind == chat.EventMessageCreate || ev.Kind == chat.EventMessageUpdate {
			h.opts.Archiver.Archive(sessionID, ev.Message.Redacted())
		}
	})
}

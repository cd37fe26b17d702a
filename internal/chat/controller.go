package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"namlong/internal/constants"
	"namlong/internal/models"
)

var (
	ErrEmptyMessage        = errors.New("message has no content or attachments")
	ErrMessageTooLong      = errors.New("message exceeds maximum length")
	ErrMessageNotFound     = errors.New("message not found")
	ErrRecallNotAllowed    = errors.New("message cannot be recalled")
	ErrRecallWindowExpired = errors.New("recall window has expired")
	ErrAlreadyDeleted      = errors.New("message already deleted")
	ErrConversationClosed  = errors.New("conversation is shut down")
)

// Host is the widget environment the controller runs in.
type Host interface {
	IsOpen() bool
	SetOpen(open bool)
	CurrentPath() string
	Navigate(path string)
}

// Timings are the scripted delays of the simulated delivery pipeline.
type Timings struct {
	SentDelay  time.Duration // submit -> sent
	ReplyDelay time.Duration // submit -> delivered + reply
	SeenDelay  time.Duration // delivered -> seen
}

func DefaultTimings() Timings {
	return Timings{
		SentDelay:  100 * time.Millisecond,
		ReplyDelay: 600 * time.Millisecond,
		SeenDelay:  600 * time.Millisecond,
	}
}

func (t Timings) withDefaults() Timings {
	def := DefaultTimings()
	if t.SentDelay <= 0 {
		t.SentDelay = def.SentDelay
	}
	if t.ReplyDelay <= 0 {
		t.ReplyDelay = def.ReplyDelay
	}
	if t.SeenDelay <= 0 {
		t.SeenDelay = def.SeenDelay
	}
	return t
}

type Options struct {
	Host             Host
	Intents          *IntentTable
	Routes           Routes
	Timings          Timings
	RecallWindow     time.Duration
	MaxContentLength int
	Scheduler        Scheduler
	Now              func() time.Time
	Listener         Listener
	Logger           *slog.Logger
}

// Controller owns the message list of one conversation and drives the
// send/reply/status lifecycle.
//
// Listener callbacks run while the controller lock is held and must not call
// back into the controller.
type Controller struct {
	host         Host
	intents      *IntentTable
	routes       Routes
	timings      Timings
	recallWindow time.Duration
	maxLength    int
	scheduler    Scheduler
	now          func() time.Time
	listener     Listener
	logger       *slog.Logger

	mu       sync.Mutex
	messages []*models.Message
	index    map[string]*models.Message
	typing   bool
	closed   bool
}

func NewController(opts Options) (*Controller, error) {
	if opts.Host == nil {
		return nil, fmt.Errorf("chat: controller: host is required")
	}
	if opts.Intents == nil {
		opts.Intents = NewIntentTable(DefaultIntents())
	}
	opts.Timings = opts.Timings.withDefaults()
	if opts.RecallWindow <= 0 {
		opts.RecallWindow = constants.DefaultRecallWindow
	}
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = constants.MaxMessageContentLength
	}
	if opts.Scheduler == nil {
		opts.Scheduler = NewTaskGroup(context.Background())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Listener == nil {
		opts.Listener = ListenerFunc(func(Event) {})
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Controller{
		host:         opts.Host,
		intents:      opts.Intents,
		routes:       opts.Routes,
		timings:      opts.Timings,
		recallWindow: opts.RecallWindow,
		maxLength:    opts.MaxContentLength,
		scheduler:    opts.Scheduler,
		now:          opts.Now,
		listener:     opts.Listener,
		logger:       opts.Logger.With("component", "chat"),
		index:        make(map[string]*models.Message),
	}, nil
}

// Open shows the widget. An empty conversation gets a welcome message that
// names the current page and is marked seen after SeenDelay.
func (c *Controller) Open() {
	c.host.SetOpen(true)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || len(c.messages) > 0 {
		return
	}

	page := c.routes.Title(c.host.CurrentPath())
	welcome := NewMessage(models.RoleAssistant, welcomeText(page), MessageOptions{Now: c.now()})
	c.appendLocked(welcome)

	id := welcome.ID
	c.scheduler.After(c.timings.SeenDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		c.advanceLocked(id, models.StatusSeen)
	})
}

// CloseWidget hides the widget. The conversation and its timers keep going.
func (c *Controller) CloseWidget() {
	c.host.SetOpen(false)
}

// Send appends a user message and schedules its delivery, the assistant
// reply and the read receipts.
func (c *Controller) Send(req SendRequest) (models.Message, error) {
	content := NormalizeContent(req.Content)
	if content == "" && len(req.Attachments) == 0 {
		return models.Message{}, ErrEmptyMessage
	}
	if contentLength(content) > c.maxLength {
		return models.Message{}, ErrMessageTooLong
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return models.Message{}, ErrConversationClosed
	}

	msg := NewMessage(models.RoleUser, content, MessageOptions{
		Attachments: req.Attachments,
		Now:         c.now(),
	})
	c.appendLocked(msg)

	match := c.intents.Resolve(content, c.routes.Title(c.host.CurrentPath()), c.routes)
	c.logger.Debug("resolved intent", "message_id", msg.ID, "intent", match.Intent, "path", match.Path)

	userID := msg.ID
	c.scheduler.After(c.timings.SentDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		// The reply may already be in when delays are misordered.
		if c.advanceLocked(userID, models.StatusSent) {
			c.setTypingLocked(true)
		}
	})

	c.scheduler.After(c.timings.ReplyDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		c.advanceLocked(userID, models.StatusDelivered)
		reply := NewMessage(models.RoleAssistant, match.Reply, MessageOptions{Now: c.now()})
		c.appendLocked(reply)
		c.setTypingLocked(false)

		replyID := reply.ID
		c.scheduler.After(c.timings.SeenDelay, func() {
			c.deliverSeen(userID, replyID, match.Path)
		})
	})

	return msg.Clone(), nil
}

func (c *Controller) deliverSeen(userID, replyID, path string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.advanceLocked(userID, models.StatusSeen)
	c.advanceLocked(replyID, models.StatusSeen)
	c.mu.Unlock()

	if path != "" {
		c.host.SetOpen(false)
		c.host.Navigate(path)
	}
}

// Recall hides a user message sent less than the recall window ago.
func (c *Controller) Recall(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, ok := c.index[id]
	if !ok {
		return ErrMessageNotFound
	}
	if !c.canRecallLocked(msg) {
		return ErrRecallNotAllowed
	}
	if c.now().Sub(msg.SentAt) >= c.recallWindow {
		return ErrRecallWindowExpired
	}

	msg.Recalled = true
	c.emit(Event{Kind: EventMessageUpdate, Message: msg.Clone()})
	return nil
}

func (c *Controller) canRecallLocked(msg *models.Message) bool {
	return msg.Role == models.RoleUser && !msg.Recalled && !msg.Deleted
}

// Delete tombstones any message in the list. The entry stays in place.
func (c *Controller) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, ok := c.index[id]
	if !ok {
		return ErrMessageNotFound
	}
	if msg.Deleted {
		return ErrAlreadyDeleted
	}

	msg.Deleted = true
	c.emit(Event{Kind: EventMessageUpdate, Message: msg.Clone()})
	return nil
}

// Copy returns the clipboard text of a message.
func (c *Controller) Copy(id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, ok := c.index[id]
	if !ok {
		return "", ErrMessageNotFound
	}
	return CopyText(*msg), nil
}

// CopyText is the display text used for the clipboard.
func CopyText(msg models.Message) string {
	switch {
	case msg.Deleted:
		return DeletedPlaceholder
	case msg.Recalled:
		return RecalledPlaceholder
	}
	if msg.Content == "" && len(msg.Attachments) > 0 {
		return ImagePlaceholder
	}
	return msg.Content
}

// Messages returns a snapshot of the list in insertion order.
func (c *Controller) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Clone()
	}
	return out
}

func (c *Controller) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// RecallWindow is the configured recall limit.
func (c *Controller) RecallWindow() time.Duration {
	return c.recallWindow
}

// Shutdown tears the conversation down. Pending callbacks are cancelled and
// none of them mutates state afterwards.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.scheduler.Stop()
}

func (c *Controller) appendLocked(msg models.Message) {
	m := msg
	c.messages = append(c.messages, &m)
	c.index[m.ID] = &m
	c.emit(Event{Kind: EventMessageCreate, Message: m.Clone()})
}

// advanceLocked walks a message forward one status at a time until it
// reaches target and reports whether it moved. It never moves a message
// backwards.
func (c *Controller) advanceLocked(id string, target models.Status) bool {
	msg, ok := c.index[id]
	if !ok {
		return false
	}
	moved := false
	for msg.Status.Rank() < target.Rank() {
		next, ok := msg.Status.Next()
		if !ok || !models.IsValidStatusTransition(msg.Status, next) {
			return moved
		}
		moved = true
		msg.Status = next
		if next == models.StatusSeen {
			seenAt := c.now()
			msg.SeenAt = &seenAt
		}
		c.emit(Event{Kind: EventMessageUpdate, Message: msg.Clone()})
	}
	return moved
}

func (c *Controller) setTypingLocked(typing bool) {
	if c.typing == typing {
		return
	}
	c.typing = typing
	kind := EventTypingStop
	if typing {
		kind = EventTypingStart
	}
	c.emit(Event{Kind: kind})
}

func (c *Controller) emit(ev Event) {
	c.listener.OnEvent(ev)
}

func welcomeText(page string) string {
	return fmt.Sprintf("Xin chào! Bạn đang xem trang %s. Mình có thể giúp gì cho bạn?", page)
}

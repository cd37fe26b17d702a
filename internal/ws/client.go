package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"namlong/internal/chat"
	"namlong/internal/constants"
	"namlong/internal/mediaurl"
	"namlong/internal/metrics"
	"namlong/internal/models"
)

// ClientState represents the lifecycle state of a widget connection
type ClientState int32

const (
	ClientStateConnected ClientState = iota // WS connected, not yet READY
	ClientStateReady                        // Snapshot sent, processing commands
	ClientStateClosing                      // Shutdown initiated
	ClientStateClosed                       // Terminal
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 15 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = 10 * time.Second

	// Maximum frame size allowed from the widget
	maxMessageSize = 32768

	// Timeout for hub registration
	registerTimeout = 5 * time.Second

	// Minimum interval between two submitted messages
	messageRateLimit = 200 * time.Millisecond
)

// Client is one widget connection. It owns the composer and the conversation
// of its session and acts as the conversation's host.
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan *WSMessage
	sendMu        sync.Mutex
	sendClosed    bool
	connCloseOnce sync.Once
	seq           int64 // guarded by sendMu

	state atomic.Int32

	session *models.ChatSession
	logger  *slog.Logger

	mu   sync.RWMutex // Protects open and path
	open bool
	path string

	// composer is only touched from the ReadPump goroutine
	composer      *chat.Composer
	submitLimiter *rate.Limiter

	ctrl *chat.Controller

	// DroppedMessages tracks how many messages have been dropped due to full buffer
	DroppedMessages int64
}

// NewClient creates the connection state and the conversation for session.
func NewClient(hub *Hub, conn *websocket.Conn, session *models.ChatSession) (*Client, error) {
	c := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan *WSMessage, constants.WSClientSendBufferSize),
		session:  session,
		path:     session.Path,
		composer: chat.NewComposer(chat.ComposerOptions{}),
		// One submit per messageRateLimit, no burst.
		submitLimiter: rate.NewLimiter(rate.Every(messageRateLimit), 1),
		logger:        slog.Default().With("component", "ws", "session_id", session.ID),
	}
	c.state.Store(int32(ClientStateConnected))

	ctrl, err := chat.NewController(chat.Options{
		Host:             c,
		Intents:          hub.opts.Intents,
		Routes:           hub.opts.Routes,
		Timings:          hub.opts.Timings,
		RecallWindow:     hub.opts.RecallWindow,
		MaxContentLength: hub.opts.MaxContentLength,
		Scheduler:        chat.NewTaskGroup(hub.ctx),
		Now:              hub.opts.Now,
		Listener:         chat.Listeners{c, hub.archiveListener(session.ID)},
		Logger:           c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	c.ctrl = ctrl
	return c, nil
}

// Close performs cleanup for the client, ensuring it only happens once
func (c *Client) Close() {
	c.transitionTo(ClientStateClosing)
	c.closeConn()
}

func (c *Client) closeConn() {
	c.connCloseOnce.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) ReadPump() {
	defer func() {
		c.ctrl.Shutdown()
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			break
		}

		var msg inboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Debug("malformed frame", "error", err)
			c.sendError(ErrCodeInvalidRequest, "Malformed message")
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Warn("websocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			if c.IsClosed() {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendHello sends the HELLO message to initiate the connection
func (c *Client) SendHello() {
	c.queue(&WSMessage{
		Op:   OpHello,
		Data: HelloPayload{HeartbeatIntervalMS: pingPeriod.Milliseconds()},
	})
}

// SendReady sends the conversation snapshot and starts accepting commands.
func (c *Client) SendReady() {
	if !c.transitionTo(ClientStateReady) {
		return
	}
	path := c.CurrentPath()
	c.queue(&WSMessage{
		Op: OpReady,
		Data: ReadyPayload{
			ProtocolVersion: ProtocolVersion,
			SessionID:       c.session.ID,
			Open:            c.IsOpen(),
			Path:            path,
			PageTitle:       c.hub.opts.Routes.Title(path),
			RecallWindowMS:  c.ctrl.RecallWindow().Milliseconds(),
			Typing:          c.ctrl.Typing(),
			Groups:          c.snapshot(),
			Composer:        c.composerState(),
		},
	})
}

func (c *Client) handleMessage(msg *inboundMessage) {
	switch msg.Op {
	case OpDispatch:
		if !c.IsReady() {
			return
		}
		c.handleDispatch(msg)
	default:
		c.logger.Debug("unknown op code", "op", msg.Op)
	}
}

// handleDispatch routes DISPATCH messages by their type
func (c *Client) handleDispatch(msg *inboundMessage) {
	switch msg.Type {
	case CmdWidgetOpen:
		c.handleWidgetOpen(msg)
	case CmdWidgetClose:
		c.ctrl.CloseWidget()
	case CmdPathChange:
		c.handlePathChange(msg)
	case CmdDraftSet:
		c.handleDraftSet(msg)
	case CmdDraftEmoji:
		c.handleDraftEmoji(msg)
	case CmdDraftAttach:
		c.handleDraftAttach(msg)
	case CmdDraftDetach:
		c.handleDraftDetach(msg)
	case CmdDraftKey:
		c.handleDraftKey(msg)
	case CmdDraftSubmit:
		c.submit()
	case CmdMessageRecall:
		c.handleMessageAction(msg, c.ctrl.Recall)
	case CmdMessageDelete:
		c.handleMessageAction(msg, c.ctrl.Delete)
	case CmdMessageCopy:
		c.handleMessageCopy(msg)
	case CmdSnapshotRequest:
		c.dispatch(EventSnapshot, SnapshotPayload{Groups: c.snapshot()})
	default:
		c.logger.Debug("unknown dispatch type", "type", msg.Type)
		c.sendError(ErrCodeInvalidRequest, "Unknown command")
	}
}

// decode unmarshals the payload of msg into v and reports a protocol error on failure.
func (c *Client) decode(msg *inboundMessage, v interface{}) bool {
	if len(msg.Data) == 0 {
		c.sendError(ErrCodeInvalidRequest, "Missing payload")
		return false
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		c.logger.Debug("invalid payload", "type", msg.Type, "error", err)
		c.sendError(ErrCodeInvalidRequest, "Invalid payload")
		return false
	}
	return true
}

func (c *Client) handleWidgetOpen(msg *inboundMessage) {
	var payload WidgetOpenPayload
	if len(msg.Data) > 0 && json.Unmarshal(msg.Data, &payload) != nil {
		c.sendError(ErrCodeInvalidRequest, "Invalid payload")
		return
	}
	if payload.Path != "" {
		c.setPath(payload.Path)
	}
	c.ctrl.Open()
}

func (c *Client) handlePathChange(msg *inboundMessage) {
	var payload PathChangePayload
	if !c.decode(msg, &payload) {
		return
	}
	c.setPath(payload.Path)
}

func (c *Client) handleDraftSet(msg *inboundMessage) {
	var payload DraftSetPayload
	if !c.decode(msg, &payload) {
		return
	}
	caret := -1
	if payload.Caret != nil {
		caret = *payload.Caret
	}
	c.composer.SetDraft(payload.Text, caret)
	c.dispatchComposerState()
}

func (c *Client) handleDraftEmoji(msg *inboundMessage) {
	var payload DraftEmojiPayload
	if !c.decode(msg, &payload) {
		return
	}
	c.composer.InsertEmoji(payload.Emoji)
	c.dispatchComposerState()
}

func (c *Client) handleDraftAttach(msg *inboundMessage) {
	var payload DraftAttachPayload
	if !c.decode(msg, &payload) {
		return
	}

	// Only images uploaded through this server may be attached.
	files := make([]chat.FileSelection, 0, len(payload.Files))
	for _, f := range payload.Files {
		if _, ok := mediaurl.ParseImageID(f.URL); ok {
			files = append(files, f)
		}
	}
	if len(files) < len(payload.Files) {
		c.sendError(ErrCodeAttachmentInvalid, "Attachments must be uploaded images")
	}

	c.composer.Stage(files)
	c.dispatchComposerState()
}

func (c *Client) handleDraftDetach(msg *inboundMessage) {
	var payload DraftDetachPayload
	if !c.decode(msg, &payload) {
		return
	}
	if err := c.composer.Unstage(payload.Index); err != nil {
		c.sendError(ErrCodeInvalidRequest, "Attachment index out of range")
		return
	}
	c.dispatchComposerState()
}

func (c *Client) handleDraftKey(msg *inboundMessage) {
	var ev chat.KeyEvent
	if !c.decode(msg, &ev) {
		return
	}
	switch c.composer.HandleKey(ev) {
	case chat.KeySubmit:
		c.submit()
	case chat.KeyNewline:
		c.dispatchComposerState()
	}
}

func (c *Client) submit() {
	if !c.composer.CanSubmit() {
		return
	}

	now := time.Now()
	reservation := c.submitLimiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		metrics.ChatErrors.WithLabelValues(ErrCodeRateLimited).Inc()
		c.dispatch(EventError, ErrorPayload{
			Code:       ErrCodeRateLimited,
			Message:    "Sending too fast",
			RetryAfter: now.Add(delay).UnixMilli(),
		})
		return
	}

	req, ok := c.composer.Submit()
	if !ok {
		return
	}
	c.dispatchComposerState()

	if _, err := c.ctrl.Send(req); err != nil {
		c.sendChatError(err)
	}
}

func (c *Client) handleMessageAction(msg *inboundMessage, action func(id string) error) {
	var payload MessageRefPayload
	if !c.decode(msg, &payload) {
		return
	}
	if err := action(payload.ID); err != nil {
		c.sendChatError(err)
	}
}

func (c *Client) handleMessageCopy(msg *inboundMessage) {
	var payload MessageRefPayload
	if !c.decode(msg, &payload) {
		return
	}
	text, err := c.ctrl.Copy(payload.ID)
	if err != nil {
		c.sendChatError(err)
		return
	}
	c.dispatch(EventCopyResult, CopyResultPayload{ID: payload.ID, Text: text})
}

// OnEvent forwards conversation changes to the widget.
// It runs under the controller lock, so it only queues.
func (c *Client) OnEvent(ev chat.Event) {
	switch ev.Kind {
	case chat.EventMessageCreate, chat.EventMessageUpdate:
		event := EventMessageCreate
		if ev.Kind == chat.EventMessageUpdate {
			event = EventMessageUpdate
		}
		if ev.Kind == chat.EventMessageCreate {
			metrics.MessagesCreated.WithLabelValues(string(ev.Message.Role)).Inc()
		}
		c.dispatch(event, c.messagePayload(ev.Message))
	case chat.EventTypingStart:
		c.dispatch(EventTypingStart, TypingPayload{Role: models.RoleAssistant})
	case chat.EventTypingStop:
		c.dispatch(EventTypingStop, TypingPayload{Role: models.RoleAssistant})
	}
}

// Host implementation

func (c *Client) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

func (c *Client) SetOpen(open bool) {
	c.mu.Lock()
	changed := c.open != open
	c.open = open
	path := c.path
	c.mu.Unlock()

	if changed {
		c.dispatch(EventWidgetState, WidgetStatePayload{Open: open, Path: path})
	}
}

func (c *Client) CurrentPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

func (c *Client) Navigate(path string) {
	c.setPath(path)
	c.dispatch(EventNavigate, NavigatePayload{Path: path})
}

func (c *Client) setPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

func (c *Client) messagePayload(m models.Message) MessagePayload {
	now := c.hub.opts.Now()
	loc := c.hub.opts.Location
	return MessagePayload{
		Message:   m.Redacted(),
		View:      chat.Render(m, now, c.ctrl.RecallWindow(), loc),
		DateLabel: chat.DateLabel(m.SentAt, now, loc),
	}
}

func (c *Client) snapshot() []chat.DateGroup {
	return chat.Snapshot(c.ctrl.Messages(), c.hub.opts.Now(), c.ctrl.RecallWindow(), c.hub.opts.Location)
}

func (c *Client) composerState() ComposerStatePayload {
	return ComposerStatePayload{
		Draft:       c.composer.Draft(),
		Caret:       c.composer.Caret(),
		Lines:       c.composer.Lines(),
		Attachments: c.composer.Attachments(),
		CanSubmit:   c.composer.CanSubmit(),
	}
}

func (c *Client) dispatchComposerState() {
	c.dispatch(EventComposerState, c.composerState())
}

func (c *Client) sendChatError(err error) {
	code, message := chatErrorCode(err)
	if code == ErrCodeInternal {
		c.logger.Error("conversation action failed", "error", err)
	}
	c.sendError(code, message)
}

func chatErrorCode(err error) (string, string) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return ErrCodeMessageEmpty, "Message is empty"
	case errors.Is(err, chat.ErrMessageTooLong):
		return ErrCodeMessageTooLong, "Message exceeds maximum length"
	case errors.Is(err, chat.ErrMessageNotFound):
		return ErrCodeMessageNotFound, "Message not found"
	case errors.Is(err, chat.ErrRecallNotAllowed):
		return ErrCodeRecallNotAllowed, "Message cannot be recalled"
	case errors.Is(err, chat.ErrRecallWindowExpired):
		return ErrCodeRecallWindowExpired, "Recall window has expired"
	case errors.Is(err, chat.ErrAlreadyDeleted):
		return ErrCodeAlreadyDeleted, "Message already deleted"
	case errors.Is(err, chat.ErrConversationClosed):
		return ErrCodeConversationClosed, "Conversation is closed"
	default:
		return ErrCodeInternal, "Internal error"
	}
}

func (c *Client) sendError(code, message string) {
	metrics.ChatErrors.WithLabelValues(code).Inc()
	c.dispatch(EventError, ErrorPayload{Code: code, Message: message})
}

func (c *Client) dispatch(eventType string, data interface{}) {
	c.queue(&WSMessage{
		Op:   OpDispatch,
		Type: eventType,
		Data: data,
	})
}

// queue hands msg to the WritePump without blocking. DISPATCH frames are
// numbered here so seq follows channel order.
func (c *Client) queue(msg *WSMessage) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return false
	}
	if msg.Op == OpDispatch {
		c.seq++
		seq := c.seq
		msg.Seq = &seq
	}
	select {
	case c.send <- msg:
		return true
	default:
		dropped := atomic.AddInt64(&c.DroppedMessages, 1)

		// Log warning periodically (every 10 drops)
		if dropped%10 == 1 {
			c.logger.Warn("dropped messages for slow widget", "dropped", dropped)
		}

		// Disconnect widgets that fall too far behind
		if dropped >= maxDroppedMessagesBeforeDisconnect {
			c.logger.Warn("disconnecting slow widget", "dropped", dropped)
			c.Close()
		}
		return false
	}
}

// State returns the current client state
func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

func (c *Client) IsReady() bool {
	return c.State() == ClientStateReady
}

// IsClosed returns true if the client is closing or closed
func (c *Client) IsClosed() bool {
	state := c.State()
	return state == ClientStateClosing || state == ClientStateClosed
}

// isValidClientTransition checks if a state transition is valid
func isValidClientTransition(from, to ClientState) bool {
	switch from {
	case ClientStateConnected:
		return to == ClientStateReady || to == ClientStateClosing
	case ClientStateReady:
		return to == ClientStateClosing
	case ClientStateClosing:
		return to == ClientStateClosed
	case ClientStateClosed:
		return false
	}
	return false
}

// transitionTo atomically transitions to a new state if valid
func (c *Client) transitionTo(newState ClientState) bool {
	for {
		current := ClientState(c.state.Load())
		if !isValidClientTransition(current, newState) {
			return false
		}
		if c.state.CompareAndSwap(int32(current), int32(newState)) {
			return true
		}
	}
}

// CloseSend closes the send channel (called by hub during cleanup)
func (c *Client) CloseSend() {
	c.sendMu.Lock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
	c.sendMu.Unlock()

	c.transitionTo(ClientStateClosing)
	c.transitionTo(ClientStateClosed)
}

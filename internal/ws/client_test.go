package ws

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"namlong/internal/chat"
	"namlong/internal/models"
)

type recordingArchiver struct {
	mu       sync.Mutex
	messages map[string][]models.Message
}

func (a *recordingArchiver) Archive(sessionID string, msg models.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.messages == nil {
		a.messages = make(map[string][]models.Message)
	}
	a.messages[sessionID] = append(a.messages[sessionID], msg)
}

func (a *recordingArchiver) count(sessionID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.messages[sessionID])
}

// last returns the most recent archived state of message id.
func (a *recordingArchiver) last(sessionID, id string) (models.Message, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	msgs := a.messages[sessionID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ID == id {
			return msgs[i], true
		}
	}
	return models.Message{}, false
}

func newTestHub(archiver Archiver) *Hub {
	return NewHub(Options{
		Routes: chat.NewRoutes([]chat.Route{
			{Key: "home", Path: "/", Title: "Trang chủ"},
			{Key: "courses", Path: "/khoa-hoc", Title: "Khóa học"},
			{Key: "contact", Path: "/lien-he", Title: "Liên hệ"},
		}),
		Timings: chat.Timings{
			SentDelay:  time.Millisecond,
			ReplyDelay: 5 * time.Millisecond,
			SeenDelay:  5 * time.Millisecond,
		},
		Archiver: archiver,
	})
}

func newClient(t *testing.T, h *Hub, session *models.ChatSession) *Client {
	t.Helper()
	c, err := NewClient(h, nil, session)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func newReadyClient(t *testing.T, h *Hub, sessionID string) *Client {
	t.Helper()
	c := newClient(t, h, &models.ChatSession{ID: sessionID, Path: "/"})
	t.Cleanup(c.ctrl.Shutdown)

	c.SendReady()
	msg := next(t, c)
	if msg.Op != OpReady {
		t.Fatalf("first frame op = %d, want READY", msg.Op)
	}
	return c
}

func command(t *testing.T, typ string, payload interface{}) *inboundMessage {
	t.Helper()
	msg := &inboundMessage{Op: OpDispatch, Type: typ}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		msg.Data = data
	}
	return msg
}

func next(t *testing.T, c *Client) *WSMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

// waitFor skips frames until one of type typ arrives.
func waitFor(t *testing.T, c *Client, typ string) *WSMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-c.send:
			if msg.Type == typ {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
			return nil
		}
	}
}

func TestWidgetConversationNavigatesToContact(t *testing.T) {
	archiver := &recordingArchiver{}
	h := newTestHub(archiver)
	c := newReadyClient(t, h, "ses_1")

	c.handleMessage(command(t, CmdWidgetOpen, WidgetOpenPayload{Path: "/khoa-hoc"}))
	state := waitFor(t, c, EventWidgetState).Data.(WidgetStatePayload)
	if !state.Open || state.Path != "/khoa-hoc" {
		t.Fatalf("WIDGET_STATE = %+v", state)
	}
	welcome := waitFor(t, c, EventMessageCreate).Data.(MessagePayload)
	if welcome.Message.Role != models.RoleAssistant || welcome.DateLabel != chat.LabelToday {
		t.Fatalf("welcome = %+v", welcome)
	}

	c.handleMessage(command(t, CmdDraftSet, DraftSetPayload{Text: "số liên hệ của trung tâm?"}))
	waitFor(t, c, EventComposerState)
	c.handleMessage(command(t, CmdDraftKey, chat.KeyEvent{Key: "Enter"}))

	cleared := waitFor(t, c, EventComposerState).Data.(ComposerStatePayload)
	if cleared.Draft != "" || cleared.CanSubmit {
		t.Fatalf("composer not cleared: %+v", cleared)
	}
	created := waitFor(t, c, EventMessageCreate).Data.(MessagePayload)
	if created.Message.Role != models.RoleUser || created.Message.Status != models.StatusSending {
		t.Fatalf("user message = %+v", created.Message)
	}

	waitFor(t, c, EventTypingStart)
	waitFor(t, c, EventTypingStop)
	closed := waitFor(t, c, EventWidgetState).Data.(WidgetStatePayload)
	if closed.Open {
		t.Fatal("widget should close before navigating")
	}
	nav := waitFor(t, c, EventNavigate).Data.(NavigatePayload)
	if nav.Path != "/lien-he" {
		t.Fatalf("NAVIGATE path = %q, want /lien-he", nav.Path)
	}
	if c.CurrentPath() != "/lien-he" {
		t.Fatalf("CurrentPath() = %q", c.CurrentPath())
	}
	if archiver.count("ses_1") == 0 {
		t.Fatal("nothing archived")
	}
}

func TestSubmitRateLimited(t *testing.T) {
	h := newTestHub(nil)
	c := newReadyClient(t, h, "ses_1")

	c.submitLimiter.Allow()
	c.handleMessage(command(t, CmdDraftSet, DraftSetPayload{Text: "hello"}))
	waitFor(t, c, EventComposerState)
	c.handleMessage(command(t, CmdDraftSubmit, nil))

	payload := waitFor(t, c, EventError).Data.(ErrorPayload)
	if payload.Code != ErrCodeRateLimited {
		t.Fatalf("error code = %q, want %q", payload.Code, ErrCodeRateLimited)
	}
	if c.composer.Draft() != "hello" {
		t.Fatal("rate limited submit must keep the draft")
	}
}

func TestMessageActionsReportErrors(t *testing.T) {
	h := newTestHub(nil)
	c := newReadyClient(t, h, "ses_1")

	c.handleMessage(command(t, CmdMessageRecall, MessageRefPayload{ID: "msg_missing"}))
	if code := waitFor(t, c, EventError).Data.(ErrorPayload).Code; code != ErrCodeMessageNotFound {
		t.Fatalf("recall error = %q, want %q", code, ErrCodeMessageNotFound)
	}

	c.handleMessage(command(t, CmdWidgetOpen, nil))
	welcome := waitFor(t, c, EventMessageCreate).Data.(MessagePayload)

	c.handleMessage(command(t, CmdMessageRecall, MessageRefPayload{ID: welcome.Message.ID}))
	if code := waitFor(t, c, EventError).Data.(ErrorPayload).Code; code != ErrCodeRecallNotAllowed {
		t.Fatalf("recall error = %q, want %q", code, ErrCodeRecallNotAllowed)
	}

	c.handleMessage(command(t, CmdMessageCopy, MessageRefPayload{ID: welcome.Message.ID}))
	copied := waitFor(t, c, EventCopyResult).Data.(CopyResultPayload)
	if copied.Text != welcome.Message.Content {
		t.Fatalf("COPY_RESULT = %q, want welcome text", copied.Text)
	}

	c.handleMessage(command(t, CmdMessageDelete, MessageRefPayload{ID: welcome.Message.ID}))
	updated := waitFor(t, c, EventMessageUpdate).Data.(MessagePayload)
	for !updated.Message.Deleted {
		updated = waitFor(t, c, EventMessageUpdate).Data.(MessagePayload)
	}
	if updated.View.Text != chat.DeletedPlaceholder {
		t.Fatalf("deleted view text = %q", updated.View.Text)
	}
}

func TestInvalidPayloadReportsError(t *testing.T) {
	h := newTestHub(nil)
	c := newReadyClient(t, h, "ses_1")

	c.handleMessage(&inboundMessage{Op: OpDispatch, Type: CmdDraftDetach, Data: json.RawMessage(`{"index":"x"}`)})
	if code := waitFor(t, c, EventError).Data.(ErrorPayload).Code; code != ErrCodeInvalidRequest {
		t.Fatalf("error code = %q, want %q", code, ErrCodeInvalidRequest)
	}

	c.handleMessage(command(t, "NOT_A_COMMAND", nil))
	if code := waitFor(t, c, EventError).Data.(ErrorPayload).Code; code != ErrCodeInvalidRequest {
		t.Fatalf("error code = %q, want %q", code, ErrCodeInvalidRequest)
	}
}

func TestCommandsIgnoredBeforeReady(t *testing.T) {
	h := newTestHub(nil)
	c := newClient(t, h, &models.ChatSession{ID: "ses_1", Path: "/"})
	t.Cleanup(c.ctrl.Shutdown)

	c.handleMessage(command(t, CmdWidgetOpen, nil))

	select {
	case msg := <-c.send:
		t.Fatalf("unexpected frame before READY: %s", msg.Type)
	default:
	}
	if len(c.ctrl.Messages()) != 0 {
		t.Fatal("command handled before READY")
	}
}

func TestQueueAfterCloseSend(t *testing.T) {
	h := newTestHub(nil)
	c := newClient(t, h, &models.ChatSession{ID: "ses_1"})
	t.Cleanup(c.ctrl.Shutdown)

	c.CloseSend()
	if c.queue(&WSMessage{Op: OpHello}) {
		t.Fatal("queue succeeded after CloseSend")
	}
	if !c.IsClosed() {
		t.Fatal("client not closed after CloseSend")
	}
	c.CloseSend()
}

func TestClientStateTransitionTable(t *testing.T) {
	testCases := []struct {
		name string
		from ClientState
		to   ClientState
		ok   bool
	}{
		{name: "connected_to_ready", from: ClientStateConnected, to: ClientStateReady, ok: true},
		{name: "connected_to_closing", from: ClientStateConnected, to: ClientStateClosing, ok: true},
		{name: "ready_to_closing", from: ClientStateReady, to: ClientStateClosing, ok: true},
		{name: "closing_to_closed", from: ClientStateClosing, to: ClientStateClosed, ok: true},
		{name: "ready_to_connected_invalid", from: ClientStateReady, to: ClientStateConnected, ok: false},
		{name: "closed_to_ready_invalid", from: ClientStateClosed, to: ClientStateReady, ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isValidClientTransition(tc.from, tc.to); got != tc.ok {
				t.Fatalf("expected %v, got %v for transition %d -> %d", tc.ok, got, tc.from, tc.to)
			}
		})
	}
}

func TestDraftAttachAcceptsOnlyUploadedImages(t *testing.T) {
	h := newTestHub(nil)
	c := newReadyClient(t, h, "ses_1")

	c.handleMessage(command(t, CmdDraftAttach, DraftAttachPayload{Files: []chat.FileSelection{
		{Name: "a.png", MimeType: "image/png", URL: "https://namlong.edu.vn/media/blb_a", PreviewURL: "https://namlong.edu.vn/media/blb_a/preview"},
		{Name: "b.png", MimeType: "image/png", URL: "https://tracker.example/b.png"},
	}}))

	if code := waitFor(t, c, EventError).Data.(ErrorPayload).Code; code != ErrCodeAttachmentInvalid {
		t.Fatalf("error code = %q, want %q", code, ErrCodeAttachmentInvalid)
	}
	state := waitFor(t, c, EventComposerState).Data.(ComposerStatePayload)
	if len(state.Attachments) != 1 || state.Attachments[0].Name != "a.png" {
		t.Fatalf("staged attachments = %+v, want only a.png", state.Attachments)
	}
	if !state.CanSubmit {
		t.Fatal("CanSubmit = false with a staged image")
	}
}

func TestTombstoneFramesCarryNoBody(t *testing.T) {
	const secret = "mật khẩu của tôi là hunter2"

	tests := []struct {
		name   string
		cmd    string
		hidden func(models.Message) bool
		text   string
	}{
		{name: "recall", cmd: CmdMessageRecall, hidden: func(m models.Message) bool { return m.Recalled }, text: chat.RecalledPlaceholder},
		{name: "delete", cmd: CmdMessageDelete, hidden: func(m models.Message) bool { return m.Deleted }, text: chat.DeletedPlaceholder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archiver := &recordingArchiver{}
			h := newTestHub(archiver)
			c := newReadyClient(t, h, "ses_1")

			c.handleMessage(command(t, CmdDraftAttach, DraftAttachPayload{Files: []chat.FileSelection{
				{Name: "the-card.png", MimeType: "image/png", URL: "https://namlong.edu.vn/media/blb_card"},
			}}))
			waitFor(t, c, EventComposerState)
			c.handleMessage(command(t, CmdDraftSet, DraftSetPayload{Text: secret}))
			waitFor(t, c, EventComposerState)
			c.handleMessage(command(t, CmdDraftSubmit, nil))

			created := waitFor(t, c, EventMessageCreate).Data.(MessagePayload)
			if created.Message.Content != secret || len(created.Message.Attachments) != 1 {
				t.Fatalf("created message = %+v", created.Message)
			}
			id := created.Message.ID

			c.handleMessage(command(t, tt.cmd, MessageRefPayload{ID: id}))

			var frame *WSMessage
			for frame == nil {
				msg := waitFor(t, c, EventMessageUpdate)
				if p := msg.Data.(MessagePayload); p.Message.ID == id && tt.hidden(p.Message) {
					frame = msg
				}
			}

			raw, err := json.Marshal(frame)
			if err != nil {
				t.Fatalf("marshal frame: %v", err)
			}
			for _, leak := range []string{"hunter2", "the-card.png", "blb_card"} {
				if strings.Contains(string(raw), leak) {
					t.Fatalf("%s frame leaks %q: %s", tt.name, leak, raw)
				}
			}
			if view := frame.Data.(MessagePayload).View; view.Text != tt.text || !view.Placeholder {
				t.Fatalf("view = %+v, want placeholder %q", view, tt.text)
			}

			deadline := time.Now().Add(2 * time.Second)
			for {
				archived, ok := archiver.last("ses_1", id)
				if ok && tt.hidden(archived) {
					if archived.Content != "" || len(archived.Attachments) != 0 {
						t.Fatalf("archived tombstone keeps its body: %+v", archived)
					}
					break
				}
				if time.Now().After(deadline) {
					t.Fatal("tombstone never archived")
				}
				time.Sleep(5 * time.Millisecond)
			}
		})
	}
}

func TestDispatchSequenceFollowsQueueOrder(t *testing.T) {
	h := newTestHub(nil)
	c := newClient(t, h, &models.ChatSession{ID: "ses_1", Path: "/"})
	t.Cleanup(c.ctrl.Shutdown)

	const workers, perWorker = 4, 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				c.dispatch(EventTypingStart, TypingPayload{Role: models.RoleAssistant})
			}
		}()
	}
	wg.Wait()

	var prev int64
	for i := 0; i < workers*perWorker; i++ {
		msg := next(t, c)
		if msg.Seq == nil || *msg.Seq != prev+1 {
			t.Fatalf("frame %d seq = %v, want %d", i, msg.Seq, prev+1)
		}
		prev = *msg.Seq
	}
}

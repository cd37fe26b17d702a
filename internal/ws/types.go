package ws

import (
	"encoding/json"

	"namlong/internal/chat"
	"namlong/internal/constants"
	"namlong/internal/models"
)

// Operation codes for WebSocket messages
type OpCode int

// ProtocolVersion is the exact server/widget WS protocol version.
// Bump this only for breaking wire-contract changes.
const ProtocolVersion = 1

const (
	// DISPATCH - Events and commands with type field
	OpDispatch OpCode = 0

	// Lifecycle ops (Server -> Widget)
	OpHello          OpCode = 1 // Sent on connection
	OpReady          OpCode = 2 // Sent after registration, contains the conversation snapshot
	OpInvalidSession OpCode = 3 // Session taken over by a newer connection
)

// Event types (Server -> Widget via DISPATCH)
const (
	EventMessageCreate = "MESSAGE_CREATE"
	EventMessageUpdate = "MESSAGE_UPDATE"
	EventTypingStart   = "TYPING_START"
	EventTypingStop    = "TYPING_STOP"
	EventNavigate      = "NAVIGATE"
	EventWidgetState   = "WIDGET_STATE"
	EventComposerState = "COMPOSER_STATE"
	EventCopyResult    = "COPY_RESULT"
	EventSnapshot      = "SNAPSHOT"
	EventError         = "ERROR"
)

// Command types (Widget -> Server via DISPATCH)
const (
	CmdWidgetOpen      = "WIDGET_OPEN"
	CmdWidgetClose     = "WIDGET_CLOSE"
	CmdPathChange      = "PATH_CHANGE"
	CmdDraftSet        = "DRAFT_SET"
	CmdDraftEmoji      = "DRAFT_EMOJI"
	CmdDraftAttach     = "DRAFT_ATTACH"
	CmdDraftDetach     = "DRAFT_DETACH"
	CmdDraftKey        = "DRAFT_KEY"
	CmdDraftSubmit     = "DRAFT_SUBMIT"
	CmdMessageRecall   = "MESSAGE_RECALL"
	CmdMessageDelete   = "MESSAGE_DELETE"
	CmdMessageCopy     = "MESSAGE_COPY"
	CmdSnapshotRequest = "SNAPSHOT_REQUEST"
)

// Error codes sent in EventError payloads.
const (
	ErrCodeInvalidRequest      = constants.ErrCodeInvalidRequest
	ErrCodeRateLimited         = constants.ErrCodeRateLimited
	ErrCodeAttachmentInvalid   = constants.ErrCodeAttachmentInvalid
	ErrCodeMessageEmpty        = constants.ErrCodeMessageEmpty
	ErrCodeMessageTooLong      = constants.ErrCodeMessageTooLong
	ErrCodeMessageNotFound     = constants.ErrCodeMessageNotFound
	ErrCodeRecallNotAllowed    = constants.ErrCodeRecallNotAllowed
	ErrCodeRecallWindowExpired = constants.ErrCodeRecallWindowExpired
	ErrCodeAlreadyDeleted      = constants.ErrCodeAlreadyDeleted
	ErrCodeConversationClosed  = constants.ErrCodeConversationClosed
	ErrCodeInternal            = constants.ErrCodeInternal
)

type WSMessage struct {
	Op   OpCode      `json:"op"`
	Type string      `json:"t,omitempty"` // Event/command type (only for DISPATCH)
	Data interface{} `json:"d,omitempty"`
	Seq  *int64      `json:"s,omitempty"`
}

// inboundMessage is a widget frame whose payload is decoded once the command is known.
type inboundMessage struct {
	Op   OpCode          `json:"op"`
	Type string          `json:"t"`
	Data json.RawMessage `json:"d,omitempty"`
}

// Server -> Widget payloads

type HelloPayload struct {
	HeartbeatIntervalMS int64 `json:"heartbeat_interval_ms"`
}

type ReadyPayload struct {
	ProtocolVersion int                  `json:"protocol_version"`
	SessionID       string               `json:"session_id"`
	Open            bool                 `json:"open"`
	Path            string               `json:"path"`
	PageTitle       string               `json:"page_title"`
	RecallWindowMS  int64                `json:"recall_window_ms"`
	Typing          bool                 `json:"typing"`
	Groups          []chat.DateGroup     `json:"groups"`
	Composer        ComposerStatePayload `json:"composer"`
}

// MessagePayload carries the stored message and the bubble rendered for it.
type MessagePayload struct {
	Message   models.Message   `json:"message"`
	View      chat.MessageView `json:"view"`
	DateLabel string           `json:"date_label"`
}

type TypingPayload struct {
	Role models.Role `json:"role"`
}

type NavigatePayload struct {
	Path string `json:"path"`
}

type WidgetStatePayload struct {
	Open bool   `json:"open"`
	Path string `json:"path"`
}

type ComposerStatePayload struct {
	Draft       string              `json:"draft"`
	Caret       int                 `json:"caret"`
	Lines       int                 `json:"lines"`
	Attachments []models.Attachment `json:"attachments"`
	CanSubmit   bool                `json:"can_submit"`
}

type CopyResultPayload struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type SnapshotPayload struct {
	Groups []chat.DateGroup `json:"groups"`
}

// ErrorPayload sent when the server rejects a widget action
type ErrorPayload struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retry_after,omitempty"` // Unix ms timestamp
}

// Widget -> Server payloads (via DISPATCH)

type WidgetOpenPayload struct {
	Path string `json:"path,omitempty"`
}

type PathChangePayload struct {
	Path string `json:"path"`
}

// DraftSetPayload mirrors the input box. A missing caret means end of text.
type DraftSetPayload struct {
	Text  string `json:"text"`
	Caret *int   `json:"caret,omitempty"`
}

type DraftEmojiPayload struct {
	Emoji string `json:"emoji"`
}

type DraftAttachPayload struct {
	Files []chat.FileSelection `json:"files"`
}

type DraftDetachPayload struct {
	Index int `json:"index"`
}

// MessageRefPayload names the target of a per-message action.
type MessageRefPayload struct {
	ID string `json:"id"`
}

package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
)

// Status is the delivery stage of a message. Stages only ever move forward.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusSeen      Status = "seen"
)

// Rank orders statuses; unknown values rank below sending.
func (s Status) Rank() int {
	switch s {
	case StatusSending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusSeen:
		return 3
	}
	return -1
}

// Next returns the following stage, or false when s is terminal or unknown.
func (s Status) Next() (Status, bool) {
	switch s {
	case StatusSending:
		return StatusSent, true
	case StatusSent:
		return StatusDelivered, true
	case StatusDelivered:
		return StatusSeen, true
	}
	return "", false
}

func (s Status) Valid() bool {
	return s.Rank() >= 0
}

// IsValidStatusTransition reports whether to is exactly one step after from.
func IsValidStatusTransition(from, to Status) bool {
	next, ok := from.Next()
	return ok && next == to
}

type Attachment struct {
	URL        string `json:"url"`
	PreviewURL string `json:"preview_url,omitempty"`
	Name       string `json:"name,omitempty"`
}

type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Type        MessageType  `json:"type"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	SentAt      time.Time    `json:"sent_at"`
	Status      Status       `json:"status"`
	Recalled    bool         `json:"recalled"`
	Deleted     bool         `json:"deleted"`
	SeenAt      *time.Time   `json:"seen_at,omitempty"`
}

// Clone returns a deep copy safe to hand to readers outside the owner.
func (m Message) Clone() Message {
	out := m
	if m.Attachments != nil {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.SeenAt != nil {
		seen := *m.SeenAt
		out.SeenAt = &seen
	}
	return out
}

// Hidden reports whether the body must not be shown.
func (m Message) Hidden() bool {
	return m.Recalled || m.Deleted
}

// Redacted returns a copy that carries no body once the message is hidden.
func (m Message) Redacted() Message {
	out := m.Clone()
	if out.Hidden() {
		out.Content = ""
		out.Attachments = nil
	}
	return out
}

// ChatSession is a widget session issued to a browser.
type ChatSession struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// StoredAttachment is the database record for an uploaded image.
type StoredAttachment struct {
	ID                 string
	SessionID          string
	StoragePath        string
	MimeType           string
	SizeBytes          int64
	OriginalName       string
	PreviewStoragePath *string
	PreviewMimeType    *string
	PreviewWidth       *int64
	PreviewHeight      *int64
	CreatedAt          time.Time
}

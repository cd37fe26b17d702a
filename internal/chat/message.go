package chat

import (
	"time"

	"github.com/google/uuid"

	"namlong/internal/models"
)

const messageIDPrefix = "msg_"

// NewMessageID returns a practically unique message identifier.
func NewMessageID() string {
	return messageIDPrefix + uuid.NewString()
}

// MessageOptions tweaks NewMessage. Zero values pick the role defaults.
type MessageOptions struct {
	Attachments []models.Attachment
	Status      models.Status
	Now         time.Time
}

// NewMessage builds a well-formed message with a fresh id. User messages start
// as sending, assistant messages as delivered, unless opts.Status overrides it.
func NewMessage(role models.Role, content string, opts MessageOptions) models.Message {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	status := opts.Status
	if status == "" {
		status = models.StatusSending
		if role == models.RoleAssistant {
			status = models.StatusDelivered
		}
	}

	msgType := models.MessageTypeText
	var attachments []models.Attachment
	if len(opts.Attachments) > 0 {
		msgType = models.MessageTypeImage
		attachments = append([]models.Attachment(nil), opts.Attachments...)
	}

	return models.Message{
		ID:          NewMessageID(),
		Role:        role,
		Type:        msgType,
		Content:     content,
		Attachments: attachments,
		SentAt:      now,
		Status:      status,
	}
}

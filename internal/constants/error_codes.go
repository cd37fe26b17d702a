package constants

const (
	// Shared REST/WS transport-agnostic errors
	ErrCodeAuthFailed        = "AUTH_FAILED"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodePayloadTooLarge   = "PAYLOAD_TOO_LARGE"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeAttachmentInvalid = "ATTACHMENT_INVALID"

	// Chat domain errors
	ErrCodeMessageEmpty        = "MESSAGE_EMPTY"
	ErrCodeMessageTooLong      = "MESSAGE_TOO_LONG"
	ErrCodeMessageNotFound     = "MESSAGE_NOT_FOUND"
	ErrCodeRecallNotAllowed    = "RECALL_NOT_ALLOWED"
	ErrCodeRecallWindowExpired = "RECALL_WINDOW_EXPIRED"
	ErrCodeAlreadyDeleted      = "ALREADY_DELETED"
	ErrCodeConversationClosed  = "CONVERSATION_CLOSED"
)

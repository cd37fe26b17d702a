package constants

import "time"

const (
	IDRandomBytes = 12

	WSClientSendBufferSize = 256

	// Composer
	MaxAttachmentsPerSelection = 4
	ComposerMinLines           = 1
	ComposerMaxLines           = 5

	MaxMessageContentLength = 4000

	DefaultRecallWindow = 15 * time.Minute

	TranscriptListMaxLimit = 500
)

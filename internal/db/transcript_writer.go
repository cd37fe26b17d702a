package db

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"namlong/internal/metrics"
	"namlong/internal/models"
)

const (
	DefaultTranscriptBufferSize = 1024
	transcriptWriteTimeout      = 5 * time.Second
)

type transcriptEntry struct {
	sessionID string
	msg       models.Message
}

// TranscriptWriter archives conversation messages off the hot path. Archive
// never blocks; entries are dropped when the buffer is full.
type TranscriptWriter struct {
	repo    *TranscriptRepository
	entries chan transcriptEntry
	done    chan struct{}
	once    sync.Once

	Dropped atomic.Int64
}

func NewTranscriptWriter(repo *TranscriptRepository, bufferSize int) *TranscriptWriter {
	if bufferSize <= 0 {
		bufferSize = DefaultTranscriptBufferSize
	}
	return &TranscriptWriter{
		repo:    repo,
		entries: make(chan transcriptEntry, bufferSize),
		done:    make(chan struct{}),
	}
}

func (w *TranscriptWriter) Archive(sessionID string, msg models.Message) {
	select {
	case <-w.done:
		return
	default:
	}

	select {
	case w.entries <- transcriptEntry{sessionID: sessionID, msg: msg.Clone()}:
	default:
		dropped := w.Dropped.Add(1)
		metrics.TranscriptDropped.Inc()
		if dropped%100 == 1 {
			slog.Warn("transcript buffer full, dropping entries", "component", "transcript", "dropped", dropped)
		}
	}
}

// Start writes entries until ctx is cancelled, then flushes what is buffered.
func (w *TranscriptWriter) Start(ctx context.Context) {
	slog.Info("starting transcript writer", "component", "transcript")

	for {
		select {
		case <-ctx.Done():
			w.once.Do(func() { close(w.done) })
			w.flush()
			slog.Info("stopping transcript writer", "component", "transcript")
			return
		case e := <-w.entries:
			w.write(e)
		}
	}
}

func (w *TranscriptWriter) flush() {
	for {
		select {
		case e := <-w.entries:
			w.write(e)
		default:
			return
		}
	}
}

func (w *TranscriptWriter) write(e transcriptEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), transcriptWriteTimeout)
	defer cancel()

	err := w.repo.Upsert(ctx, e.sessionID, e.msg)
	if errors.Is(err, ErrNotFound) {
		slog.Debug("skipping message of expired session", "component", "transcript", "session_id", e.sessionID)
		return
	}
	if err != nil {
		slog.Error("error archiving message", "component", "transcript", "error", err, "session_id", e.sessionID, "message_id", e.msg.ID)
	}
}

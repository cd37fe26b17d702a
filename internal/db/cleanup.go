package db

import (
	"context"
	"log/slog"
	"time"

	"namlong/internal/metrics"
)

const (
	DefaultCleanupInterval = 1 * time.Hour
)

// CleanupService purges sessions that have been inactive longer than the
// retention period.
type CleanupService struct {
	sessions  *SessionRepository
	retention time.Duration
	interval  time.Duration
}

func NewCleanupService(sessions *SessionRepository, retention, interval time.Duration) *CleanupService {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &CleanupService{
		sessions:  sessions,
		retention: retention,
		interval:  interval,
	}
}

func (s *CleanupService) Start(ctx context.Context) {
	slog.Info("starting session cleanup service", "component", "cleanup", "interval", s.interval, "retention", s.retention)

	s.runCleanup(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping session cleanup service", "component", "cleanup")
			return
		case <-ticker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *CleanupService) runCleanup(ctx context.Context) {
	cutoff := time.Now().Add(-s.retention)

	deleted, err := s.sessions.DeleteInactiveSince(ctx, cutoff)
	if err != nil {
		slog.Error("error deleting inactive sessions", "component", "cleanup", "error", err)
		return
	}
	if deleted > 0 {
		metrics.CleanupDeleted.WithLabelValues("session").Add(float64(deleted))
		slog.Info("deleted inactive sessions", "component", "cleanup", "count", deleted)
	}
}

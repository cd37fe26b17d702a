package blob

import (
	"context"
	"log/slog"
	"time"

	"namlong/internal/db"
	"namlong/internal/metrics"
)

const (
	DefaultCleanupInterval = 1 * time.Hour
	DefaultCleanupBatch    = 100
)

// CleanupService deletes image files whose session expired or is gone.
type CleanupService struct {
	attachments *db.AttachmentRepository
	blobs       *Service
	retention   time.Duration
	interval    time.Duration
	batchSize   int
}

func NewCleanupService(attachments *db.AttachmentRepository, blobs *Service, retention, interval time.Duration) *CleanupService {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &CleanupService{
		attachments: attachments,
		blobs:       blobs,
		retention:   retention,
		interval:    interval,
		batchSize:   DefaultCleanupBatch,
	}
}

func (s *CleanupService) Start(ctx context.Context) {
	slog.Info("starting blob cleanup service", "component", "blob_cleanup", "interval", s.interval)

	s.runCleanup(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping blob cleanup service", "component", "blob_cleanup")
			return
		case <-ticker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *CleanupService) runCleanup(ctx context.Context) int {
	cutoff := time.Now().Add(-s.retention)
	rows, err := s.attachments.ListExpired(ctx, cutoff, s.batchSize)
	if err != nil {
		slog.Error("error listing expired chat images", "component", "blob_cleanup", "error", err)
		return 0
	}

	deleted := 0
	for _, row := range rows {
		if err := s.attachments.DeleteByID(ctx, row.ID); err != nil {
			slog.Error("error deleting expired chat image row", "component", "blob_cleanup", "error", err, "blob_id", row.ID)
			continue
		}
		deleted++

		if row.PreviewStoragePath != nil {
			if err := s.blobs.Delete(*row.PreviewStoragePath); err != nil {
				slog.Warn("error deleting expired chat image preview", "component", "blob_cleanup", "error", err, "blob_id", row.ID)
			}
		}

		if err := s.blobs.Delete(row.StoragePath); err != nil {
			slog.Warn("error deleting expired chat image file", "component", "blob_cleanup", "error", err, "blob_id", row.ID)
		}
	}

	if deleted > 0 {
		metrics.CleanupDeleted.WithLabelValues("image").Add(float64(deleted))
		slog.Info("deleted expired chat images", "component", "blob_cleanup", "count", deleted)
	}
	return deleted
}

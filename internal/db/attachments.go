package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"namlong/internal/models"
)

type AttachmentRepository struct {
	db *DB
}

func NewAttachmentRepository(db *DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

const attachmentColumns = `id, session_id, storage_path, mime_type, size_bytes, original_name,
	preview_storage_path, preview_mime_type, preview_width, preview_height, created_at`

func (r *AttachmentRepository) Create(ctx context.Context, a *models.StoredAttachment) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO attachments (`+attachmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.StoragePath, a.MimeType, a.SizeBytes, a.OriginalName,
		a.PreviewStoragePath, a.PreviewMimeType, a.PreviewWidth, a.PreviewHeight, a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating attachment: %w", err)
	}
	return nil
}

func (r *AttachmentRepository) FindByID(ctx context.Context, id string) (*models.StoredAttachment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`, id)

	a, err := scanAttachment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying attachment: %w", err)
	}
	return a, nil
}

// ListExpired returns attachments whose session has been idle since before
// the cutoff, or whose session is gone.
func (r *AttachmentRepository) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*models.StoredAttachment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+prefixedAttachmentColumns+`
		FROM attachments a
		LEFT JOIN chat_sessions s ON s.id = a.session_id
		WHERE s.id IS NULL OR s.last_active_at < ?
		ORDER BY a.created_at ASC
		LIMIT ?`,
		cutoff.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying expired attachments: %w", err)
	}
	defer rows.Close()

	out := make([]*models.StoredAttachment, 0)
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning attachment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attachments: %w", err)
	}
	return out, nil
}

func (r *AttachmentRepository) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting attachment: %w", err)
	}
	return checkRowsAffected(result)
}

const prefixedAttachmentColumns = `a.id, a.session_id, a.storage_path, a.mime_type, a.size_bytes, a.original_name,
	a.preview_storage_path, a.preview_mime_type, a.preview_width, a.preview_height, a.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttachment(row rowScanner) (*models.StoredAttachment, error) {
	var (
		a           models.StoredAttachment
		sessionID   sql.NullString
		previewPath sql.NullString
		previewMime sql.NullString
		previewW    sql.NullInt64
		previewH    sql.NullInt64
	)
	err := row.Scan(&a.ID, &sessionID, &a.StoragePath, &a.MimeType, &a.SizeBytes, &a.OriginalName,
		&previewPath, &previewMime, &previewW, &previewH, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.SessionID = sessionID.String
	if previewPath.Valid {
		a.PreviewStoragePath = &previewPath.String
	}
	if previewMime.Valid {
		a.PreviewMimeType = &previewMime.String
	}
	if previewW.Valid {
		a.PreviewWidth = &previewW.Int64
	}
	if previewH.Valid {
		a.PreviewHeight = &previewH.Int64
	}
	return &a, nil
}

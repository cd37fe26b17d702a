package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"namlong/internal/models"
)

const maxIDAttempts = 3

type SessionRepository struct {
	db *DB
}

func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, path string) (*models.ChatSession, error) {
	now := time.Now().UTC()

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := GenerateID(SessionIDPrefix)
		if err != nil {
			return nil, fmt.Errorf("generating session ID: %w", err)
		}

		_, err = r.db.ExecContext(ctx,
			`INSERT INTO chat_sessions (id, path, created_at, last_active_at) VALUES (?, ?, ?, ?)`,
			id, path, now, now,
		)
		if IsUniqueConstraintError(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating session: %w", err)
		}

		return &models.ChatSession{
			ID:           id,
			Path:         path,
			CreatedAt:    now,
			LastActiveAt: now,
		}, nil
	}

	return nil, fmt.Errorf("creating session: id collision after %d attempts", maxIDAttempts)
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.ChatSession, error) {
	var s models.ChatSession
	err := r.db.QueryRowContext(ctx,
		`SELECT id, path, created_at, last_active_at FROM chat_sessions WHERE id = ?`,
		id,
	).Scan(&s.ID, &s.Path, &s.CreatedAt, &s.LastActiveAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	return &s, nil
}

// Touch records activity on a session so retention counts from now.
func (r *SessionRepository) Touch(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE chat_sessions SET last_active_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return checkRowsAffected(result)
}

// DeleteInactiveSince removes sessions idle since before cutoff together with
// their transcripts. Attachment rows are detached and left to the blob cleanup.
func (r *SessionRepository) DeleteInactiveSince(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE last_active_at < ?`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting inactive sessions: %w", err)
	}
	return result.RowsAffected()
}

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"namlong/internal/constants"
	"namlong/internal/models"
)

// TranscriptRepository archives the messages of widget conversations.
// Rows are written as the conversation evolves and never read back into one.
type TranscriptRepository struct {
	db *DB
}

func NewTranscriptRepository(db *DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

// Upsert stores the latest state of msg and marks its session active. It
// returns ErrNotFound when the session no longer exists.
func (r *TranscriptRepository) Upsert(ctx context.Context, sessionID string, msg models.Message) error {
	attachments, err := json.Marshal(nonNilAttachments(msg.Attachments))
	if err != nil {
		return fmt.Errorf("encoding attachments: %w", err)
	}
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transcript_messages
			(id, session_id, role, type, content, attachments, status, recalled, deleted, sent_at, seen_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			attachments = excluded.attachments,
			status = excluded.status,
			recalled = excluded.recalled,
			deleted = excluded.deleted,
			seen_at = excluded.seen_at,
			updated_at = excluded.updated_at
		WHERE transcript_messages.session_id = excluded.session_id`,
		msg.ID, sessionID, string(msg.Role), string(msg.Type), msg.Content, string(attachments),
		string(msg.Status), msg.Recalled, msg.Deleted, msg.SentAt.UTC(), timePtrToNull(msg.SeenAt), now,
	)
	if IsForeignKeyError(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("upserting transcript message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET last_active_at = ? WHERE id = ?`,
		now, sessionID,
	); err != nil {
		return fmt.Errorf("touching session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transcript message: %w", err)
	}
	return nil
}

// ListBySession returns the newest limit archived messages in the order they
// were sent.
func (r *TranscriptRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > constants.TranscriptListMaxLimit {
		limit = constants.TranscriptListMaxLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, role, type, content, attachments, status, recalled, deleted, sent_at, seen_at
		FROM (
			SELECT rowid AS seq, id, role, type, content, attachments, status, recalled, deleted, sent_at, seen_at
			FROM transcript_messages
			WHERE session_id = ?
			ORDER BY sent_at DESC, rowid DESC
			LIMIT ?
		)
		ORDER BY sent_at ASC, seq ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying transcript: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var (
			m           models.Message
			role, typ   string
			status      string
			attachments string
			seenAt      sql.NullTime
		)
		if err := rows.Scan(&m.ID, &role, &typ, &m.Content, &attachments, &status, &m.Recalled, &m.Deleted, &m.SentAt, &seenAt); err != nil {
			return nil, fmt.Errorf("scanning transcript message: %w", err)
		}
		if err := json.Unmarshal([]byte(attachments), &m.Attachments); err != nil {
			return nil, fmt.Errorf("decoding attachments of %s: %w", m.ID, err)
		}
		if len(m.Attachments) == 0 {
			m.Attachments = nil
		}
		m.Role = models.Role(role)
		m.Type = models.MessageType(typ)
		m.Status = models.Status(status)
		m.SeenAt = nullTimeToPtr(seenAt)
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transcript: %w", err)
	}

	return messages, nil
}

func nonNilAttachments(a []models.Attachment) []models.Attachment {
	if a == nil {
		return []models.Attachment{}
	}
	return a
}

package notification

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hackgods/appointment-notifications/internal/db"
)

const Schema = `
CREATE TABLE IF NOT EXISTS notifications (
    id         BIGSERIAL PRIMARY KEY,
    user_id    BIGINT      NOT NULL,
    message    TEXT        NOT NULL,
    metadata   JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS notifications_user_created_idx
    ON notifications (user_id, created_at DESC);
`

type PgRepository struct {
	db db.DBTX
}

func NewPgRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

func (r *PgRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply notifications schema: %w", err)
	}
	return nil
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	var metadata []byte

	if err := row.Scan(&n.ID, &n.UserID, &n.Message, &metadata, &n.CreatedAt); err != nil {
		return nil, err
	}

	n.Metadata = metadata
	n.CreatedAt = n.CreatedAt.UTC()
	return &n, nil
}

// Insert stores a draft and returns it with its generated id and timestamp.
func (r *PgRepository) Insert(ctx context.Context, d Draft) (*Notification, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO notifications (user_id, message, metadata)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, message, metadata, created_at
	`, d.UserID, d.Message, []byte(d.Metadata))

	n, err := scanNotification(row)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

// ListByUser returns the user's history, newest first.
func (r *PgRepository) ListByUser(ctx context.Context, userID int64) ([]Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, message, metadata, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	result := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		result = append(result, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return result, nil
}

// README: Notification store backed by PostgreSQL.
package notification

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"quickbite/internal/types"
)

var ErrNotFound = errors.New("notification not found")

type Store interface {
	Create(ctx context.Context, n *Notification) error
	ListByRecipient(ctx context.Context, kind RecipientKind, id types.ID, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, id types.ID, kind RecipientKind, recipient types.ID) error
}

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Create(ctx context.Context, n *Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO notifications (
			id, recipient_kind, recipient_id, title, body, payload, type, read, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(n.ID),
		string(n.RecipientKind),
		string(n.RecipientID),
		n.Title,
		n.Body,
		payload,
		n.Type,
		n.Read,
		n.CreatedAt,
	)
	return err
}

func (s *PgStore) ListByRecipient(ctx context.Context, kind RecipientKind, id types.ID, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, recipient_kind, recipient_id, title, body, payload, type, read, created_at
		FROM notifications
		WHERE recipient_kind = $1 AND recipient_id = $2
		ORDER BY created_at DESC
		LIMIT $3`,
		string(kind), string(id), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var kind, recipient string
		var payload []byte
		if err := rows.Scan(&n.ID, &kind, &recipient, &n.Title, &n.Body, &payload, &n.Type, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.RecipientKind = RecipientKind(kind)
		n.RecipientID = types.ID(recipient)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &n.Payload); err != nil {
				return nil, err
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flips the read flag; only the recipient themselves may do so.
func (s *PgStore) MarkRead(ctx context.Context, id types.ID, kind RecipientKind, recipient types.ID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE notifications SET read = TRUE
		WHERE id = $1 AND recipient_kind = $2 AND recipient_id = $3`,
		string(id), string(kind), string(recipient))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

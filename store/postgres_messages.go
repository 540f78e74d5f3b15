package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BatmanBruc/bizwatch-bot/types"
	"github.com/jackc/pgx/v5"
)

const messageColumns = `owner_id, message_id, sender_id, sender_name, sender_username, kind, text, media_file_id,
  is_edited, is_deleted, edit_history, sent_at, edited_at, deleted_at, notification_message_id`

func scanMessage(row pgx.Row) (*types.ShadowMessage, error) {
	var (
		m       types.ShadowMessage
		kind    string
		history []byte
	)
	err := row.Scan(&m.OwnerID, &m.MessageID, &m.Sender.ID, &m.Sender.Name, &m.Sender.Username, &kind, &m.Text,
		&m.MediaFileID, &m.IsEdited, &m.IsDeleted, &history, &m.SentAt, &m.EditedAt, &m.DeletedAt, &m.NotificationMessageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	m.Kind = types.PayloadKind(kind)
	m.EditHistory = []types.EditRecord{}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &m.EditHistory); err != nil {
			return nil, fmt.Errorf("decode edit history: %w", err)
		}
	}
	return &m, nil
}

func (s *PostgresStore) Record(ctx context.Context, msg types.ShadowMessage) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO messages (owner_id, message_id, sender_id, sender_name, sender_username, kind, text, media_file_id, sent_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (owner_id, message_id) DO NOTHING
`, msg.OwnerID, msg.MessageID, msg.Sender.ID, msg.Sender.Name, msg.Sender.Username, string(msg.Kind), msg.Text,
		msg.MediaFileID, msg.SentAt)
	if err != nil {
		return false, fmt.Errorf("record message %d/%d: %w", msg.OwnerID, msg.MessageID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, ownerID, messageID int64) (*types.ShadowMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	m, err := scanMessage(s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE owner_id = $1 AND message_id = $2`, ownerID, messageID))
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("get message %d/%d: %w", ownerID, messageID, err)
	}
	return m, err
}

func (s *PostgresStore) MarkEdited(ctx context.Context, ownerID, messageID int64, newText string, at time.Time) (*types.ShadowMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		oldText string
		raw     []byte
	)
	err = tx.QueryRow(ctx, `
SELECT text, edit_history
FROM messages
WHERE owner_id = $1 AND message_id = $2
FOR UPDATE
`, ownerID, messageID).Scan(&oldText, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("lock message %d/%d: %w", ownerID, messageID, err)
	}

	history := []types.EditRecord{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &history); err != nil {
			return nil, fmt.Errorf("decode edit history: %w", err)
		}
	}
	history = append(history, types.EditRecord{OldText: oldText, EditedAt: at})
	encoded, err := json.Marshal(history)
	if err != nil {
		return nil, err
	}

	m, err := scanMessage(tx.QueryRow(ctx, `
UPDATE messages SET
  text = $3,
  is_edited = TRUE,
  edited_at = $4,
  edit_history = $5::jsonb
WHERE owner_id = $1 AND message_id = $2
RETURNING `+messageColumns, ownerID, messageID, newText, at, string(encoded)))
	if err != nil {
		return nil, fmt.Errorf("update message %d/%d: %w", ownerID, messageID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *PostgresStore) MarkDeleted(ctx context.Context, ownerID, messageID int64, at time.Time) (*types.ShadowMessage, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	m, err := scanMessage(s.pool.QueryRow(ctx, `
UPDATE messages SET
  is_deleted = TRUE,
  deleted_at = $3
WHERE owner_id = $1 AND message_id = $2 AND NOT is_deleted
RETURNING `+messageColumns, ownerID, messageID, at))
	if err == nil {
		return m, true, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, false, fmt.Errorf("mark deleted %d/%d: %w", ownerID, messageID, err)
	}
	// either unknown or already deleted
	m, err = s.GetMessage(ctx, ownerID, messageID)
	if err != nil {
		return nil, false, err
	}
	return m, false, nil
}

func (s *PostgresStore) SetNotificationMessageID(ctx context.Context, ownerID, messageID int64, notificationID int) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET notification_message_id = $3 WHERE owner_id = $1 AND message_id = $2`,
		ownerID, messageID, notificationID)
	if err != nil {
		return fmt.Errorf("set notification id %d/%d: %w", ownerID, messageID, err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]types.ShadowMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
SELECT `+messageColumns+`
FROM messages
WHERE owner_id = $1
ORDER BY sent_at DESC, message_id DESC
LIMIT $2
`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	res := make([]types.ShadowMessage, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, *m)
	}
	return res, rows.Err()
}

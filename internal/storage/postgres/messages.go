package postgres

import (
	"context"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/types"
)

func (s *Store) ListMessages(ctx context.Context) ([]types.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, receiver_id, content, timestamp, read FROM messages ORDER BY timestamp, id`)
	if err != nil {
		return nil, types.Unavailable("list messages", err)
	}
	defer rows.Close()

	messages := make([]types.Message, 0)
	for rows.Next() {
		var m types.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Timestamp, &m.Read); err != nil {
			return nil, types.Unavailable("list messages", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Unavailable("list messages", err)
	}
	return messages, nil
}

func (s *Store) CreateMessage(ctx context.Context, message types.Message) (int64, error) {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	return s.insert(ctx, "create message", "message", "",
		`INSERT INTO messages (sender_id, receiver_id, content, timestamp, read) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		message.SenderID, message.ReceiverID, message.Content, message.Timestamp, message.Read)
}

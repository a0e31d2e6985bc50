package local

import (
	"context"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/types"
)

// ListMessages returns every message, oldest first.
func (s *Store) ListMessages(ctx context.Context) ([]types.Message, error) {
	var rows []messageModel
	if err := s.conn(ctx).Order("timestamp, id").Find(&rows).Error; err != nil {
		return nil, types.Unavailable("list messages", err)
	}
	msgs := make([]types.Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, r.toMessage())
	}
	return msgs, nil
}

func (s *Store) CreateMessage(ctx context.Context, message types.Message) (int64, error) {
	ts := message.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	m := messageModel{
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		Content:    message.Content,
		Timestamp:  ts,
		Read:       message.Read,
	}
	if err := s.conn(ctx).Create(&m).Error; err != nil {
		return 0, translate("create message", "message", "", err)
	}
	return m.ID, nil
}

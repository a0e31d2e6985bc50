package repository

import (
	"context"
	"sort"
	"strings"

	"github.com/KevinKickass/OpenLabManager/internal/types"
)

// ListMessages returns every message sorted by timestamp ascending.
func (r *Repository) ListMessages(ctx context.Context) ([]types.Message, error) {
	msgs, err := r.backend.ListMessages(ctx)
	if err != nil {
		return nil, err
	}
	sortMessages(msgs)
	return msgs, nil
}

// Conversation returns the messages exchanged between a and b, oldest
// first.
func (r *Repository) Conversation(ctx context.Context, a, b int64) ([]types.Message, error) {
	msgs, err := r.ListMessages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Message, 0)
	for _, m := range msgs {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, m)
		}
	}
	return out, nil
}

// SendMessage stores a new message stamped with the current time. Messages
// are immutable afterwards.
func (r *Repository) SendMessage(ctx context.Context, senderID, receiverID int64, content string) (*types.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, types.Missing("message", "content")
	}
	if receiverID == 0 {
		return nil, types.Missing("message", "receiverId")
	}
	if _, err := r.backend.GetUser(ctx, receiverID); err != nil {
		if types.IsNotFound(err) {
			return nil, types.Invalid("message", "receiverId")
		}
		return nil, err
	}

	msg := types.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Timestamp:  r.now().UTC(),
	}
	id, err := r.backend.CreateMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.ID = id

	r.bus.Invalidate(types.TableMessages)
	return &msg, nil
}

func sortMessages(msgs []types.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

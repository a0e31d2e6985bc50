package websocket

import (
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/types"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Handshake
	MessageTypeAuth        MessageType = "auth"
	MessageTypeAuthSuccess MessageType = "auth_success"
	MessageTypeAuthFailed  MessageType = "auth_failed"

	// Data change notifications
	MessageTypeTablesChanged MessageType = "tables_changed"
	MessageTypeReload        MessageType = "reload"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data,omitempty"`
}

// TablesChangedData lists the tables whose cached results are stale.
type TablesChangedData struct {
	Tables []types.Table `json:"tables"`
}

type AuthSuccessData struct {
	UserID      int64              `json:"userId"`
	Permissions []types.Permission `json:"permissions"`
}

type AuthFailedData struct {
	Reason string `json:"reason"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewTablesChangedMessage(tables []types.Table) Message {
	return NewMessage(MessageTypeTablesChanged, TablesChangedData{Tables: tables})
}

// NewReloadMessage tells clients to drop every cached result, typically
// after a store reset.
func NewReloadMessage() Message {
	return NewMessage(MessageTypeReload, nil)
}

// clientMessage is what clients send. Only the auth handshake is defined.
type clientMessage struct {
	Type  MessageType `json:"type"`
	Token string      `json:"token"`
}

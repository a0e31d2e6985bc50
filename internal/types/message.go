package types

import (
	"strings"
	"time"
)

// Message is a chat message between two users. Immutable once stored.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Read       bool      `json:"read"`
}

// Table names a logical table for invalidation purposes.
type Table string

const (
	TableSites       Table = "sites"
	TableLabs        Table = "labs"
	TableDevices     Table = "devices"
	TableUsers       Table = "users"
	TableGroups      Table = "groups"
	TableTasks       Table = "tasks"
	TableSubtasks    Table = "subtasks"
	TableComments    Table = "comments"
	TableAttachments Table = "attachments"
	TableMessages    Table = "messages"
)

// AllTables lists every logical table.
var AllTables = []Table{
	TableSites, TableLabs, TableDevices, TableUsers, TableGroups,
	TableTasks, TableSubtasks, TableComments, TableAttachments, TableMessages,
}

// ParseTable accepts a logical table name, case-insensitively.
func ParseTable(name string) (Table, bool) {
	for _, t := range AllTables {
		if strings.EqualFold(strings.TrimSpace(name), string(t)) {
			return t, true
		}
	}
	return "", false
}

package notification

import (
	"encoding/json"
	"time"
)

// Notification is a persisted, read-only message for one recipient.
type Notification struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}

// Draft is a notification that has not been stored yet.
type Draft struct {
	UserID   int64
	Message  string
	Metadata json.RawMessage
}

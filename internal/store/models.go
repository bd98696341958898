package store

import "time"

// Message is one persisted chat message. Messages are append-only and
// immutable once written; ClientMessageID is advisory metadata supplied by
// the sender and is never used for deduplication.
type Message struct {
	ID              string    `json:"id"`
	Room            string    `json:"room"`
	UserID          string    `json:"userId"`
	UserName        string    `json:"userName"`
	Text            string    `json:"text"`
	ClientMessageID string    `json:"clientMessageId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// User is the principal behind a dev login session.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

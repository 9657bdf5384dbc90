package types

import (
	"time"
)

type User struct {
	Id           string    `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Sender is the author of a message as embedded in the message record.
type Sender struct {
	Id       string `json:"id"`
	Username string `json:"username,omitempty"`
}

// Message is a chat message record as committed by the persistence service.
// The real-time core only relays it.
type Message struct {
	Id        string     `json:"id"`
	ChatId    string     `json:"chat_id"`
	Sender    Sender     `json:"sender"`
	Content   string     `json:"content"`
	IsEdited  bool       `json:"is_edited,omitempty"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at,omitempty"`
}

type Presence struct {
	UserId      string    `json:"user_id"`
	Online      bool      `json:"online"`
	LastSeen    time.Time `json:"last_seen,omitempty"`
	Connections int       `json:"connections"`
}

package models

import "time"

// Direct message delivery status. "delivered" is defined for wire
// compatibility but no path sets it; the only transition is sent -> seen.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusSeen      = "seen"
)

// Chat is a direct conversation between two users.
type Chat struct {
	ID            string    `bson:"_id,omitempty" json:"id"`
	Users         []string  `bson:"users" json:"users"`
	LastMessageID string    `bson:"last_message,omitempty" json:"last_message,omitempty"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

type DirectMessage struct {
	ID          string       `bson:"_id,omitempty" json:"id"`
	ChatID      string       `bson:"chat_id" json:"chat_id"`
	SenderID    string       `bson:"sender" json:"sender"`
	Text        string       `bson:"text" json:"text"`
	Attachments []Attachment `bson:"attachments,omitempty" json:"attachments,omitempty"`
	Status      string       `bson:"status" json:"status"`
	CreatedAt   time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `bson:"updated_at" json:"updated_at"`
}

type ResolvedDirectMessage struct {
	ID          string       `json:"id"`
	ChatID      string       `json:"chat_id"`
	Sender      UserRef      `json:"sender"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Status      string       `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

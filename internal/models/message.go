package models

import "time"

type Attachment struct {
	URL      string `bson:"url" json:"url"`
	Type     string `bson:"type" json:"type"` // image | file | voice
	Filename string `bson:"filename" json:"filename"`
	Size     int64  `bson:"size,omitempty" json:"size,omitempty"`
}

type Reaction struct {
	User  string `bson:"user" json:"user"`
	Emoji string `bson:"emoji" json:"emoji"`
}

// Message is an event-scoped chat message.
type Message struct {
	ID          string       `bson:"_id,omitempty" json:"id"`
	EventID     string       `bson:"event" json:"event"`
	SenderID    string       `bson:"sender" json:"sender"`
	Text        string       `bson:"text" json:"text"`
	Attachments []Attachment `bson:"attachments,omitempty" json:"attachments,omitempty"`
	Reactions   []Reaction   `bson:"reactions,omitempty" json:"reactions,omitempty"`
	Mentions    []string     `bson:"mentions,omitempty" json:"mentions,omitempty"`
	CreatedAt   time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `bson:"updated_at" json:"updated_at"`
}

type ResolvedReaction struct {
	User  UserRef `json:"user"`
	Emoji string  `json:"emoji"`
}

// ResolvedMessage is the broadcast shape: sender and reactors carry
// display attributes instead of bare ids.
type ResolvedMessage struct {
	ID          string             `json:"id"`
	EventID     string             `json:"event"`
	Sender      UserRef            `json:"sender"`
	Text        string             `json:"text"`
	Attachments []Attachment       `json:"attachments,omitempty"`
	Reactions   []ResolvedReaction `json:"reactions,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

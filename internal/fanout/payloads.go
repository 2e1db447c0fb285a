package fanout

import (
	"encoding/json"

	"github.com/fathima-sithara/planpal-realtime/internal/models"
)

// Realtime event names, client->server and server->client.
const (
	EventAuthUser    = "auth:user"
	EventJoinEvent   = "join:event"
	EventMessage     = "message:create"
	EventReaction    = "message:reaction"
	EventTyping      = "typing"
	EventPollUpdate  = "poll:update"
	EventJoinChat    = "dm:join"
	EventDirect      = "dm:message"
	EventSeen        = "dm:seen"
	EventDirectTyped = "dm:typing"
	EventNotify      = "dm:notify"
)

type authUserPayload struct {
	UserID string `json:"userId" validate:"required"`
}

type joinEventPayload struct {
	EventID string `json:"eventId" validate:"required"`
}

type createMessagePayload struct {
	EventID     string              `json:"eventId" validate:"required"`
	SenderID    string              `json:"senderId" validate:"required"`
	Text        string              `json:"text"`
	Attachments []models.Attachment `json:"attachments"`
}

type reactionPayload struct {
	MessageID string `json:"messageId" validate:"required"`
	UserID    string `json:"userId" validate:"required"`
	Emoji     string `json:"emoji" validate:"required"`
}

type typingPayload struct {
	EventID  string `json:"eventId" validate:"required"`
	UserName string `json:"userName"`
}

type pollUpdatePayload struct {
	EventID string          `json:"eventId" validate:"required"`
	PollID  string          `json:"pollId" validate:"required"`
	Poll    json.RawMessage `json:"poll"`
}

type joinChatPayload struct {
	ChatID string `json:"chatId" validate:"required"`
}

type directMessagePayload struct {
	ChatID      string              `json:"chatId" validate:"required"`
	SenderID    string              `json:"senderId" validate:"required"`
	Text        string              `json:"text"`
	Attachments []models.Attachment `json:"attachments"`
}

type seenPayload struct {
	ChatID     string   `json:"chatId" validate:"required"`
	UserID     string   `json:"userId" validate:"required"`
	MessageIDs []string `json:"messageIds"`
}

type directTypingPayload struct {
	ChatID   string `json:"chatId" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
	UserName string `json:"userName"`
}

type seenBroadcast struct {
	ChatID     string   `json:"chatId"`
	UserID     string   `json:"userId"`
	MessageIDs []string `json:"messageIds"`
}

type notifyBroadcast struct {
	ChatID  string                        `json:"chatId"`
	Message *models.ResolvedDirectMessage `json:"message"`
}

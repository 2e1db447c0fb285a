package repository

import (
	"context"
	"errors"

	"github.com/fathima-sithara/planpal-realtime/internal/models"
)

// ErrNotFound is returned when a referenced document does not exist.
// Realtime handlers treat it as a silent no-op.
var ErrNotFound = errors.New("not found")

type UserRepository interface {
	FindRef(ctx context.Context, id string) (models.UserRef, error)
	FindRefs(ctx context.Context, ids []string) (map[string]models.UserRef, error)
}

type MessageRepository interface {
	Insert(ctx context.Context, m *models.Message) (*models.Message, error)
	FindByID(ctx context.Context, id string) (*models.Message, error)
	// FindResolved re-reads a message with sender and reactors resolved
	// to display attributes, the shape broadcast to rooms.
	FindResolved(ctx context.Context, id string) (*models.ResolvedMessage, error)
	// SetReactions overwrites the reaction list. Last write wins; there
	// is no version check, so concurrent updates to the same message can
	// lose one of the writes.
	SetReactions(ctx context.Context, id string, reactions []models.Reaction) error
}

type ChatRepository interface {
	FindByID(ctx context.Context, id string) (*models.Chat, error)
	InsertDirectMessage(ctx context.Context, m *models.DirectMessage) (*models.DirectMessage, error)
	FindDirectResolved(ctx context.Context, id string) (*models.ResolvedDirectMessage, error)
	// SetLastMessage updates the chat's last-message pointer and bumps
	// updated_at (conversation-list ordering).
	SetLastMessage(ctx context.Context, chatID, messageID string) error
	// MarkSeen transitions the given messages of the chat to seen,
	// skipping any already seen, and returns the ids actually affected.
	MarkSeen(ctx context.Context, chatID string, ids []string) ([]string, error)
	// MarkAllSeen transitions every not-yet-seen message in the chat.
	MarkAllSeen(ctx context.Context, chatID string) error
	ListMessages(ctx context.Context, chatID string) ([]models.ResolvedDirectMessage, error)
}

type EventRepository interface {
	FindByID(ctx context.Context, id string) (*models.Event, error)
	// IsGroupMember reports whether userID is the group's owner or
	// appears in its member list.
	IsGroupMember(ctx context.Context, groupID, userID string) (bool, error)
	FindGroup(ctx context.Context, groupID string) (*models.Group, error)
}

package fanout

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fathima-sithara/planpal-realtime/internal/events"
	"github.com/fathima-sithara/planpal-realtime/internal/models"
	"github.com/fathima-sithara/planpal-realtime/internal/presence"
	"github.com/fathima-sithara/planpal-realtime/internal/repository"
	"github.com/fathima-sithara/planpal-realtime/internal/room"
)

// Conn is what the engine needs from a realtime session: room delivery
// plus the identity verified at the websocket handshake.
type Conn interface {
	room.Sender
	UserID() string
}

// Engine validates, persists and fans out realtime events. Errors never
// reach the client: malformed payloads, missing entities and failed
// persistence are logged and dropped, matching the legacy behavior the
// frontend was built against. No retries, no handler deadlines.
type Engine struct {
	log      *zap.SugaredLogger
	registry *presence.Registry
	rooms    *room.Router
	mirror   *presence.Mirror

	users     repository.UserRepository
	messages  repository.MessageRepository
	chats     repository.ChatRepository
	eventRepo repository.EventRepository

	publisher *events.Publisher
	validate  *validator.Validate
}

func NewEngine(
	log *zap.SugaredLogger,
	registry *presence.Registry,
	rooms *room.Router,
	mirror *presence.Mirror,
	users repository.UserRepository,
	messages repository.MessageRepository,
	chats repository.ChatRepository,
	eventRepo repository.EventRepository,
	publisher *events.Publisher,
) *Engine {
	return &Engine{
		log:       log,
		registry:  registry,
		rooms:     rooms,
		mirror:    mirror,
		users:     users,
		messages:  messages,
		chats:     chats,
		eventRepo: eventRepo,
		publisher: publisher,
		validate:  validator.New(),
	}
}

func (e *Engine) Registry() *presence.Registry { return e.registry }
func (e *Engine) Rooms() *room.Router          { return e.rooms }

// Connect registers a new session with the router.
func (e *Engine) Connect(c Conn) {
	e.rooms.Register(c)
	e.log.Debugw("session connected", "session", c.ID())
}

// Disconnect tears the session down: leave-all, presence removal and
// mirror cleanup. The user transitions to offline when their last
// session disconnects.
func (e *Engine) Disconnect(ctx context.Context, c Conn) {
	e.rooms.Unregister(c.ID())
	uid, offline := e.registry.Disconnect(c.ID())
	if uid != "" {
		if err := e.mirror.RemoveConnection(ctx, uid, c.ID()); err != nil {
			e.log.Warnw("presence mirror remove", "user", uid, "err", err)
		}
	}
	e.log.Debugw("session disconnected", "session", c.ID(), "user", uid, "offline", offline)
}

// RefreshPresence extends the mirror TTLs for a still-connected session.
// Called from the transport ping loop.
func (e *Engine) RefreshPresence(ctx context.Context, c Conn) {
	if uid, ok := e.registry.UserOf(c.ID()); ok {
		e.mirror.Refresh(ctx, uid)
	}
}

// Dispatch routes one inbound envelope to its handler. Unknown events
// are ignored.
func (e *Engine) Dispatch(ctx context.Context, c Conn, event string, data json.RawMessage) {
	switch event {
	case EventAuthUser:
		e.handleAuthUser(ctx, c, data)
	case EventJoinEvent:
		e.handleJoinEvent(ctx, c, data)
	case EventMessage:
		e.handleCreateMessage(ctx, c, data)
	case EventReaction:
		e.handleReaction(ctx, c, data)
	case EventTyping:
		e.handleTyping(c, data)
	case EventPollUpdate:
		e.handlePollUpdate(c, data)
	case EventJoinChat:
		e.handleJoinChat(ctx, c, data)
	case EventDirect:
		e.handleDirectMessage(ctx, c, data)
	case EventSeen:
		e.handleSeen(ctx, c, data)
	case EventDirectTyped:
		e.handleDirectTyping(c, data)
	default:
		e.log.Debugw("unknown event", "event", event, "session", c.ID())
	}
}

// decode unmarshals and validates an inbound payload. A false return
// means the event is dropped.
func (e *Engine) decode(event string, data json.RawMessage, out any) bool {
	if err := json.Unmarshal(data, out); err != nil {
		e.log.Debugw("malformed payload", "event", event, "err", err)
		return false
	}
	if err := e.validate.Struct(out); err != nil {
		e.log.Debugw("incomplete payload", "event", event, "err", err)
		return false
	}
	return true
}

func (e *Engine) handleAuthUser(ctx context.Context, c Conn, data json.RawMessage) {
	var p authUserPayload
	if !e.decode(EventAuthUser, data, &p) {
		return
	}
	// the announced identity must match the handshake token
	if c.UserID() != "" && c.UserID() != p.UserID {
		e.log.Warnw("announce identity mismatch", "session", c.ID(), "token", c.UserID(), "announced", p.UserID)
		return
	}
	e.registry.Announce(c.ID(), p.UserID)
	if err := e.mirror.AddConnection(ctx, p.UserID, c.ID()); err != nil {
		e.log.Warnw("presence mirror add", "user", p.UserID, "err", err)
	}
}

// sessionUser resolves the acting user for a session: the announced
// identity, falling back to the handshake identity.
func (e *Engine) sessionUser(c Conn) string {
	if uid, ok := e.registry.UserOf(c.ID()); ok {
		return uid
	}
	return c.UserID()
}

func (e *Engine) handleJoinEvent(ctx context.Context, c Conn, data json.RawMessage) {
	var p joinEventPayload
	if !e.decode(EventJoinEvent, data, &p) {
		return
	}
	ev, err := e.eventRepo.FindByID(ctx, p.EventID)
	if err != nil {
		e.logLookup(EventJoinEvent, "event", p.EventID, err)
		return
	}
	uid := e.sessionUser(c)
	ok, err := e.eventRepo.IsGroupMember(ctx, ev.GroupID, uid)
	if err != nil {
		e.log.Errorw("membership check", "event", p.EventID, "user", uid, "err", err)
		return
	}
	if !ok {
		e.log.Debugw("join rejected", "event", p.EventID, "user", uid)
		return
	}
	e.rooms.Join(c.ID(), p.EventID)
}

func (e *Engine) handleCreateMessage(ctx context.Context, c Conn, data json.RawMessage) {
	var p createMessagePayload
	if !e.decode(EventMessage, data, &p) {
		return
	}
	if p.Text == "" && len(p.Attachments) == 0 {
		e.log.Debugw("empty message", "event", p.EventID, "sender", p.SenderID)
		return
	}
	ev, err := e.eventRepo.FindByID(ctx, p.EventID)
	if err != nil {
		e.logLookup(EventMessage, "event", p.EventID, err)
		return
	}
	ok, err := e.eventRepo.IsGroupMember(ctx, ev.GroupID, p.SenderID)
	if err != nil || !ok {
		e.log.Debugw("sender not a member", "event", p.EventID, "sender", p.SenderID, "err", err)
		return
	}

	msg, err := e.messages.Insert(ctx, &models.Message{
		EventID:     p.EventID,
		SenderID:    p.SenderID,
		Text:        p.Text,
		Attachments: p.Attachments,
	})
	if err != nil {
		e.log.Errorw("persist message", "event", p.EventID, "err", err)
		return
	}
	resolved, err := e.messages.FindResolved(ctx, msg.ID)
	if err != nil {
		e.log.Errorw("resolve message", "message", msg.ID, "err", err)
		return
	}
	e.rooms.Broadcast(p.EventID, EventMessage, resolved)
	e.publisher.Publish(ctx, events.KindMessageCreated, p.EventID, resolved)
}

func (e *Engine) handleReaction(ctx context.Context, c Conn, data json.RawMessage) {
	var p reactionPayload
	if !e.decode(EventReaction, data, &p) {
		return
	}
	msg, err := e.messages.FindByID(ctx, p.MessageID)
	if err != nil {
		e.logLookup(EventReaction, "message", p.MessageID, err)
		return
	}

	// at most one reaction per (message, user): drop the user's previous
	// reaction before appending the new one. Read-modify-write with no
	// version check; concurrent reactors race last-write-wins.
	reactions := lo.Filter(msg.Reactions, func(r models.Reaction, _ int) bool {
		return r.User != p.UserID
	})
	reactions = append(reactions, models.Reaction{User: p.UserID, Emoji: p.Emoji})

	if err := e.messages.SetReactions(ctx, p.MessageID, reactions); err != nil {
		e.log.Errorw("persist reaction", "message", p.MessageID, "err", err)
		return
	}
	resolved, err := e.messages.FindResolved(ctx, p.MessageID)
	if err != nil {
		e.log.Errorw("resolve message", "message", p.MessageID, "err", err)
		return
	}
	e.rooms.Broadcast(msg.EventID, EventReaction, resolved)
}

func (e *Engine) handleTyping(c Conn, data json.RawMessage) {
	var p typingPayload
	if !e.decode(EventTyping, data, &p) {
		return
	}
	// fire and forget, sender excluded, nothing persisted
	e.rooms.Broadcast(p.EventID, EventTyping, p, c.ID())
}

func (e *Engine) handlePollUpdate(c Conn, data json.RawMessage) {
	var p pollUpdatePayload
	if !e.decode(EventPollUpdate, data, &p) {
		return
	}
	// poll persistence lives behind the poll routes; the realtime layer
	// only relays the updated document to the event room
	e.rooms.Broadcast(p.EventID, EventPollUpdate, p)
}

func (e *Engine) handleJoinChat(ctx context.Context, c Conn, data json.RawMessage) {
	var p joinChatPayload
	if !e.decode(EventJoinChat, data, &p) {
		return
	}
	chat, err := e.chats.FindByID(ctx, p.ChatID)
	if err != nil {
		e.logLookup(EventJoinChat, "chat", p.ChatID, err)
		return
	}
	uid := e.sessionUser(c)
	if !lo.Contains(chat.Users, uid) {
		e.log.Debugw("join rejected", "chat", p.ChatID, "user", uid)
		return
	}
	e.rooms.Join(c.ID(), p.ChatID)
}

func (e *Engine) handleDirectMessage(ctx context.Context, c Conn, data json.RawMessage) {
	var p directMessagePayload
	if !e.decode(EventDirect, data, &p) {
		return
	}
	e.SendDirectMessage(ctx, p.ChatID, p.SenderID, p.Text, p.Attachments)
}

// SendDirectMessage persists and fans out a direct message. Shared by
// the realtime handler and the REST fallback route.
func (e *Engine) SendDirectMessage(ctx context.Context, chatID, senderID, text string, attachments []models.Attachment) *models.ResolvedDirectMessage {
	if text == "" && len(attachments) == 0 {
		e.log.Debugw("empty direct message", "chat", chatID, "sender", senderID)
		return nil
	}
	chat, err := e.chats.FindByID(ctx, chatID)
	if err != nil {
		e.logLookup(EventDirect, "chat", chatID, err)
		return nil
	}
	if !lo.Contains(chat.Users, senderID) {
		e.log.Debugw("sender not a participant", "chat", chatID, "sender", senderID)
		return nil
	}

	msg, err := e.chats.InsertDirectMessage(ctx, &models.DirectMessage{
		ChatID:      chatID,
		SenderID:    senderID,
		Text:        text,
		Attachments: attachments,
		Status:      models.StatusSent,
	})
	if err != nil {
		e.log.Errorw("persist direct message", "chat", chatID, "err", err)
		return nil
	}
	if err := e.chats.SetLastMessage(ctx, chatID, msg.ID); err != nil {
		e.log.Warnw("update last message", "chat", chatID, "err", err)
	}
	resolved, err := e.chats.FindDirectResolved(ctx, msg.ID)
	if err != nil {
		e.log.Errorw("resolve direct message", "message", msg.ID, "err", err)
		return nil
	}

	e.rooms.Broadcast(chatID, EventDirect, resolved)

	// per-device notification: a participant may be looking at their
	// conversation list without the chat room open, so deliver to every
	// online session of every participant regardless of room membership
	for _, uid := range chat.Users {
		if sessions := e.registry.SessionsOf(uid); len(sessions) > 0 {
			e.rooms.EmitToSessions(sessions, EventNotify, notifyBroadcast{ChatID: chatID, Message: resolved})
		}
	}

	e.publisher.Publish(ctx, events.KindDirectSent, chatID, resolved)
	return resolved
}

func (e *Engine) handleSeen(ctx context.Context, c Conn, data json.RawMessage) {
	var p seenPayload
	if !e.decode(EventSeen, data, &p) {
		return
	}
	if _, err := e.chats.FindByID(ctx, p.ChatID); err != nil {
		e.logLookup(EventSeen, "chat", p.ChatID, err)
		return
	}

	var affected []string
	if len(p.MessageIDs) > 0 {
		var err error
		affected, err = e.chats.MarkSeen(ctx, p.ChatID, p.MessageIDs)
		if err != nil {
			e.log.Errorw("mark seen", "chat", p.ChatID, "err", err)
			return
		}
	} else {
		// bulk path, used when opening a conversation; the broadcast
		// carries an empty list which receivers treat as "all"
		if err := e.chats.MarkAllSeen(ctx, p.ChatID); err != nil {
			e.log.Errorw("mark all seen", "chat", p.ChatID, "err", err)
			return
		}
	}
	e.rooms.Broadcast(p.ChatID, EventSeen, seenBroadcast{
		ChatID:     p.ChatID,
		UserID:     p.UserID,
		MessageIDs: affected,
	})
}

func (e *Engine) handleDirectTyping(c Conn, data json.RawMessage) {
	var p directTypingPayload
	if !e.decode(EventDirectTyped, data, &p) {
		return
	}
	e.rooms.Broadcast(p.ChatID, EventDirectTyped, p, c.ID())
}

func (e *Engine) logLookup(event, kind, id string, err error) {
	if err == repository.ErrNotFound {
		e.log.Debugw("unknown "+kind, "event", event, kind, id)
		return
	}
	e.log.Errorw("lookup "+kind, "event", event, kind, id, "err", err)
}

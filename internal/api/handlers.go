package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fathima-sithara/planpal-realtime/internal/fanout"
	"github.com/fathima-sithara/planpal-realtime/internal/models"
	"github.com/fathima-sithara/planpal-realtime/internal/presence"
	"github.com/fathima-sithara/planpal-realtime/internal/repository"
)

type Handler struct {
	engine   *fanout.Engine
	registry *presence.Registry
	mirror   *presence.Mirror
	chats    repository.ChatRepository
	events   repository.EventRepository
	users    repository.UserRepository
	log      *zap.SugaredLogger
}

func NewHandler(engine *fanout.Engine, mirror *presence.Mirror, chats repository.ChatRepository, events repository.EventRepository, users repository.UserRepository, log *zap.SugaredLogger) *Handler {
	return &Handler{
		engine:   engine,
		registry: engine.Registry(),
		mirror:   mirror,
		chats:    chats,
		events:   events,
		users:    users,
		log:      log,
	}
}

// SendDirectMessage is the REST fallback for dm:message: same
// persistence and fan-out path as the realtime handler, but the caller
// gets the persisted message back.
func (h *Handler) SendDirectMessage(c *fiber.Ctx) error {
	type req struct {
		Text        string              `json:"text"`
		Attachments []models.Attachment `json:"attachments"`
	}
	var body req
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid request"})
	}
	chatID := c.Params("chatId")
	userID := c.Locals("user_id").(string)

	msg := h.engine.SendDirectMessage(c.Context(), chatID, userID, body.Text, body.Attachments)
	if msg == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "message not sent"})
	}
	return c.JSON(msg)
}

func (h *Handler) ListChatMessages(c *fiber.Ctx) error {
	chatID := c.Params("chatId")
	userID := c.Locals("user_id").(string)

	chat, err := h.chats.FindByID(c.Context(), chatID)
	if err == repository.ErrNotFound {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "chat not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
	if !lo.Contains(chat.Users, userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "not a participant"})
	}

	msgs, err := h.chats.ListMessages(c.Context(), chatID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
	return c.JSON(msgs)
}

// EventMembers returns the event group's roster annotated with online
// flags from the presence registry.
func (h *Handler) EventMembers(c *fiber.Ctx) error {
	eventID := c.Params("eventId")

	ev, err := h.events.FindByID(c.Context(), eventID)
	if err == repository.ErrNotFound {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "event not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
	group, err := h.events.FindGroup(c.Context(), ev.GroupID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}

	ids := lo.Map(group.Members, func(m models.GroupMember, _ int) string { return m.UserID })
	refs, err := h.users.FindRefs(c.Context(), ids)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}

	type member struct {
		User   models.UserRef `json:"user"`
		Role   string         `json:"role"`
		Online bool           `json:"online"`
	}
	members := lo.Map(group.Members, func(m models.GroupMember, _ int) member {
		return member{
			User:   refs[m.UserID],
			Role:   m.Role,
			Online: h.registry.IsOnline(m.UserID),
		}
	})
	return c.JSON(fiber.Map{"owner": group.OwnerID, "members": members})
}

// Presence answers for the local instance first and falls back to the
// Redis mirror so queries behind a load balancer see other instances.
func (h *Handler) Presence(c *fiber.Ctx) error {
	userID := c.Params("userId")
	online := h.registry.IsOnline(userID)
	if !online {
		mirrored, err := h.mirror.IsOnline(c.Context(), userID)
		if err != nil {
			h.log.Warnw("presence mirror read", "user", userID, "err", err)
		}
		online = mirrored
	}
	return c.JSON(fiber.Map{"user_id": userID, "online": online})
}

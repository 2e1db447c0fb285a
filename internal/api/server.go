package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/planpal-realtime/internal/auth"
	"github.com/fathima-sithara/planpal-realtime/internal/middleware"
	"github.com/fathima-sithara/planpal-realtime/internal/ws"
)

// NewServer wires the Fiber app: the websocket endpoint plus the small
// REST surface the realtime core exposes.
func NewServer(h *Handler, wsSrv *ws.Server, validator *auth.Validator, log *zap.SugaredLogger) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Use(middleware.Recovery(log))
	app.Use(middleware.Logging(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/ws", websocket.New(wsSrv.Handle()))

	api := app.Group("/api", middleware.JWT(validator))
	api.Post("/chat/:chatId/message", h.SendDirectMessage)
	api.Get("/chat/:chatId/messages", h.ListChatMessages)
	api.Get("/events/:eventId/members", h.EventMembers)
	api.Get("/presence/:userId", h.Presence)

	return app
}

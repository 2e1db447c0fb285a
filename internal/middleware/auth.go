package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/planpal-realtime/internal/auth"
)

// JWT authenticates REST requests. The token comes from the
// Authorization bearer header, or the "jwt" cookie the web client sets.
func JWT(v *auth.Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Cookies("jwt")
		if header := c.Get("Authorization"); header != "" {
			if t, err := auth.ParseBearerToken(header); err == nil {
				token = t
			}
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
		}
		uid, err := v.Validate(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
		}
		c.Locals("user_id", uid)
		return c.Next()
	}
}

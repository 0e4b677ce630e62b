package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// RequireUser resolves the caller's identity from the X-User-ID header set
// by the gateway in front of this service and stores it in locals. Requests
// without one are rejected.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing X-User-ID header",
			})
		}
		c.Locals("user_id", userID)
		return c.Next()
	}
}

// UserID returns the identity stored by RequireUser.
func UserID(c *fiber.Ctx) string {
	userID, _ := c.Locals("user_id").(string)
	return userID
}

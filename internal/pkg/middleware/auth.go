package middleware

import (
	icuser "github.com/ManuelReschke/CreditFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

// RequireAPIAuth ensures an authenticated API key and returns JSON 401 otherwise.
func RequireAPIAuth(c *fiber.Ctx) error {
	v := c.Locals(icuser.KeyFromProtected)
	loggedIn := false
	if b, ok := v.(bool); ok {
		loggedIn = b
	}
	if !loggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "API key required",
		})
	}
	return c.Next()
}

// RequireAdmin ensures the authenticated user carries the admin role.
func RequireAdmin(c *fiber.Ctx) error {
	v := c.Locals(icuser.KeyFromProtected)
	loggedIn := false
	if b, ok := v.(bool); ok {
		loggedIn = b
	}
	if !loggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "API key required",
		})
	}
	if isAdmin, ok := c.Locals(icuser.KeyIsAdmin).(bool); !ok || !isAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "admin role required",
		})
	}
	return c.Next()
}

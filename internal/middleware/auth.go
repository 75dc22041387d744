package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Apsistec/fitos-app-sub002/pkg/utils"
)

func AuthRequired(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
				"code":  "unauthorized",
			})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
				"code":  "unauthorized",
			})
		}

		claims, err := utils.ValidateToken(parts[1], secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
				"code":  "unauthorized",
			})
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("role", claims.Role)

		return c.Next()
	}
}

// WebhookAuth guards provider callbacks with the shared secret issued to
// the billing provider.
func WebhookAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		parts := strings.Split(c.Get("Authorization"), " ")
		if secret == "" || len(parts) != 2 || parts[0] != "Bearer" ||
			subtle.ConstantTimeCompare([]byte(parts[1]), []byte(secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid webhook credentials",
				"code":  "unauthorized",
			})
		}
		return c.Next()
	}
}

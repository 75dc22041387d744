package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

func parseActorID(c *fiber.Ctx) (int64, error) {
	value, ok := c.Locals("user_id").(string)
	if !ok {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(value, 10, 64)
}

func actorRole(c *fiber.Ctx) string {
	role, _ := c.Locals("role").(string)
	return role
}

func errorBody(code, message string) fiber.Map {
	return fiber.Map{"error": message, "code": code}
}

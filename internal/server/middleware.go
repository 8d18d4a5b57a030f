package server

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/sheikh-saqib/bank-ledger-engine/internal/security"
)

const localUserID = "user_id"

// requireAPIKey resolves the Bearer API key to a user id and stashes it in
// the request locals. Handlers receive the authenticated identity by value,
// never by ambient global.
func (s *Server) requireAPIKey() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "missing API key"})
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization header"})
		}

		userID, err := s.credentials.LookupAPIKey(c.Context(), security.HashKey(parts[1]))
		if err != nil {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "invalid API key"})
		}

		c.Locals(localUserID, userID)
		return c.Next()
	}
}

func actingUser(c *fiber.Ctx) string {
	userID, _ := c.Locals(localUserID).(string)
	return userID
}

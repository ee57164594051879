package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "X-API-Key"

// APIKey rejects requests whose X-API-Key does not match the bcrypt hash. An
// empty hash disables the check.
func APIKey(hash string) fiber.Handler {
	hashed := []byte(strings.TrimSpace(hash))
	return func(c *fiber.Ctx) error {
		if len(hashed) == 0 {
			return c.Next()
		}
		key := strings.TrimSpace(c.Get(APIKeyHeader))
		if key == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing api key")
		}
		if err := bcrypt.CompareHashAndPassword(hashed, []byte(key)); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid api key")
		}
		return c.Next()
	}
}

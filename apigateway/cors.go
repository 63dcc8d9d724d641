package gateway

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Cors allows the configured origins; an empty list means allow all, which
// is what dev runs want.
func Cors(origins []string) fiber.Handler {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(c *fiber.Ctx) error {
		origin := c.Get("Origin")
		switch {
		case allowAll:
			c.Set("Access-Control-Allow-Origin", "*")
		case allowed[strings.TrimRight(origin, "/")]:
			c.Set("Access-Control-Allow-Origin", origin)
			c.Set("Vary", "Origin")
		}
		if c.Method() == fiber.MethodOptions {
			c.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
			c.Set("Access-Control-Allow-Headers", "authorization, origin, content-type, accept, X-Admin-Key, Stripe-Signature")
			return c.SendStatus(http.StatusOK)
		}
		return c.Next()
	}
}

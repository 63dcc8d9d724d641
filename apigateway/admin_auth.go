package gateway

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AdminAuthConfig controls access to the ops surface: style CRUD, user and
// ledger listings, stats and metrics.
type AdminAuthConfig struct {
	Key      string
	User     string
	Password string
	Debug    bool
}

// RequireAdmin accepts either an X-Admin-Key header or HTTP basic auth,
// compared constant time. Debug bypasses the guard for local runs. A
// passing request gets admin=true in locals so handlers can tell an
// operator from a user.
func RequireAdmin(cfg AdminAuthConfig) fiber.Handler {
	configured := cfg.Key != "" || (cfg.User != "" && cfg.Password != "")
	return func(c *fiber.Ctx) error {
		if cfg.Debug {
			c.Locals("admin", true)
			return c.Next()
		}
		if !configured {
			return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
				"code":    "admin_auth_not_configured",
				"message": "admin auth not configured",
			})
		}

		if cfg.Key != "" {
			key := strings.TrimSpace(c.Get("X-Admin-Key"))
			if key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(cfg.Key)) == 1 {
				c.Locals("admin", true)
				return c.Next()
			}
		}
		if cfg.User != "" && cfg.Password != "" && checkBasicAuth(c.Get("Authorization"), cfg.User, cfg.Password) {
			c.Locals("admin", true)
			return c.Next()
		}

		c.Set("WWW-Authenticate", `Basic realm="studiopix admin"`)
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
			"code":    "unauthorized",
			"message": "unauthorized",
		})
	}
}

func checkBasicAuth(header, user, pass string) bool {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "basic") {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(parts[1]))
	if err != nil {
		return false
	}
	gotUser, gotPass, found := strings.Cut(string(decoded), ":")
	if !found {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(gotUser), []byte(user)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(gotPass), []byte(pass)) == 1
	return userOK && passOK
}

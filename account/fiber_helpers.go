package account

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/studiopix/studiopix/models"
)

func bindJSON(c *fiber.Ctx, dst interface{}) error {
	if len(c.Body()) == 0 {
		return fiber.ErrBadRequest
	}
	if err := json.Unmarshal(c.Body(), dst); err != nil {
		return err
	}
	return models.ValidateStruct(dst)
}

func parseJSON(c *fiber.Ctx, dst interface{}) error {
	if len(c.Body()) == 0 {
		return fiber.ErrBadRequest
	}
	return json.Unmarshal(c.Body(), dst)
}

func getUserID(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		switch t := v.(type) {
		case uint:
			return t
		case int:
			return uint(t)
		case int64:
			return uint(t)
		case float64:
			return uint(t)
		}
	}
	return 0
}

func getEmail(c *fiber.Ctx) string {
	if v := c.Locals("email"); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

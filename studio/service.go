// Package studio is the product itself: selfie uploads, the style catalog,
// generation jobs against the AI pipeline, signed file delivery and live
// progress. Everything here spends credits that billing granted.
package studio

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/studiopix/studiopix/models"
	"github.com/studiopix/studiopix/store"
	"gorm.io/gorm"
)

// Service holds the shared handles studio handlers need.
type Service struct {
	Db           *gorm.DB
	Redis        *redis.Client
	Logger       *logrus.Logger
	StudioConfig models.StudioConfig
	Store        *store.Store
	Pipeline     *PipelineClient
	Hub          *Hub
}

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

// currentPerson resolves the signed-in user's person.
func (s *Service) currentPerson(c *fiber.Ctx) (models.Person, error) {
	user, err := models.GetUserByID(getUserID(c), s.Db)
	if err != nil {
		return models.Person{}, err
	}
	return models.GetPerson(user.PersonID, s.Db)
}

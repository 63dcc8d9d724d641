// Package billing owns the money path: the pricing catalog, stripe checkout
// and customer-portal sessions, seat updates and the webhook that provisions
// everything. Credits are only ever granted here; the studio package spends
// them.
package billing

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	stripe "github.com/stripe/stripe-go/v81"
	"github.com/studiopix/studiopix/models"
	"github.com/studiopix/studiopix/utils"
	"gorm.io/gorm"
)

// Service holds the shared handles billing handlers need.
type Service struct {
	Db           *gorm.DB
	Redis        *redis.Client
	Logger       *logrus.Logger
	StudioConfig models.StudioConfig
}

// NewService wires the stripe client key once.
func NewService(db *gorm.DB, rds *redis.Client, logger *logrus.Logger, cfg models.StudioConfig) *Service {
	if cfg.StripeSecretKey != "" {
		stripe.Key = cfg.StripeSecretKey
	}
	return &Service{Db: db, Redis: rds, Logger: logger, StudioConfig: cfg}
}

const (
	plansCacheKey = "billing:plans"
	plansCacheTTL = 5 * time.Minute
)

// Plans returns the catalog with resolved stripe price IDs. The rendered
// payload is cached in redis since the catalog only changes on deploy.
func (s *Service) Plans(c *fiber.Ctx) error {
	if s.Redis != nil {
		cached, err := utils.CacheGet(c.Context(), s.Redis, plansCacheKey)
		if err != nil {
			s.Logger.Printf("plans cache read: %v", err)
		}
		if cached != "" {
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(http.StatusOK).SendString(cached)
		}
	}

	type planOut struct {
		Plan
		StripePriceID string `json:"stripe_price_id"`
	}
	out := make([]planOut, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, planOut{Plan: p, StripePriceID: stripePrice(s.StudioConfig, p)})
	}
	payload, err := json.Marshal(fiber.Map{"plans": out})
	if err != nil {
		return err
	}
	if s.Redis != nil {
		if err := utils.CacheSet(c.Context(), s.Redis, plansCacheKey, string(payload), plansCacheTTL); err != nil {
			s.Logger.Printf("plans cache write: %v", err)
		}
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(http.StatusOK).Send(payload)
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

package studio

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/studiopix/studiopix/models"
	"github.com/studiopix/studiopix/utils"
)

const (
	stylesCacheKey = "studio:styles"
	stylesCacheTTL = 10 * time.Minute
)

// ListStyles returns the active style catalog, redis-cached. The cache is
// best effort; redis being down just means a DB read.
func (s *Service) ListStyles(c *fiber.Ctx) error {
	if s.Redis != nil {
		if cached, err := utils.CacheGet(c.UserContext(), s.Redis, stylesCacheKey); err == nil && cached != "" {
			if styles, err := models.DecodeStyles(cached); err == nil {
				return c.Status(http.StatusOK).JSON(fiber.Map{"styles": styles, "cached": true})
			}
		}
	}
	styles, err := models.ActiveStyles(s.Db)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}
	if s.Redis != nil {
		if encoded, err := models.EncodeStyles(styles); err == nil {
			if err := utils.CacheSet(c.UserContext(), s.Redis, stylesCacheKey, encoded, stylesCacheTTL); err != nil {
				s.Logger.Printf("styles cache set: %v", err)
			}
		}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"styles": styles})
}

func (s *Service) invalidateStylesCache(c *fiber.Ctx) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.Del(c.UserContext(), stylesCacheKey).Err(); err != nil {
		s.Logger.Printf("styles cache invalidate: %v", err)
	}
}

type styleRequest struct {
	Slug           string `json:"slug" binding:"required"`
	Name           string `json:"name" binding:"required"`
	Background     string `json:"background"`
	Clothing       string `json:"clothing"`
	Pose           string `json:"pose"`
	Branding       string `json:"branding"`
	PromptTemplate string `json:"prompt_template"`
	CreditCost     int64  `json:"credit_cost" binding:"omitempty,min=1"`
	Active         *bool  `json:"active"`
	SortOrder      int    `json:"sort_order"`
}

// CreateStyle is the admin endpoint that adds a catalog entry.
func (s *Service) CreateStyle(c *fiber.Ctx) error {
	var req styleRequest
	if err := bindJSON(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": err.Error()})
	}
	style := models.PhotoStyle{
		Slug:           req.Slug,
		Name:           req.Name,
		Background:     req.Background,
		Clothing:       req.Clothing,
		Pose:           req.Pose,
		Branding:       req.Branding,
		PromptTemplate: req.PromptTemplate,
		CreditCost:     req.CreditCost,
		SortOrder:      req.SortOrder,
		Active:         true,
	}
	if style.CreditCost < 1 {
		style.CreditCost = 1
	}
	if req.Active != nil {
		style.Active = *req.Active
	}
	if err := s.Db.Create(&style).Error; err != nil {
		return c.Status(http.StatusConflict).JSON(fiber.Map{"code": "style_exists", "message": err.Error()})
	}
	s.invalidateStylesCache(c)
	return c.Status(http.StatusCreated).JSON(fiber.Map{"style": style})
}

// UpdateStyle edits a catalog entry by slug.
func (s *Service) UpdateStyle(c *fiber.Ctx) error {
	slug := c.Params("slug")
	style, err := models.GetStyleBySlug(slug, s.Db)
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"code": "not_found", "message": "no such style"})
	}
	var req styleRequest
	if err := parseStyleUpdate(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": err.Error()})
	}
	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Background != "" {
		updates["background"] = req.Background
	}
	if req.Clothing != "" {
		updates["clothing"] = req.Clothing
	}
	if req.Pose != "" {
		updates["pose"] = req.Pose
	}
	if req.Branding != "" {
		updates["branding"] = req.Branding
	}
	if req.PromptTemplate != "" {
		updates["prompt_template"] = req.PromptTemplate
	}
	if req.CreditCost > 0 {
		updates["credit_cost"] = req.CreditCost
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if req.SortOrder != 0 {
		updates["sort_order"] = req.SortOrder
	}
	if len(updates) == 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": "nothing to update"})
	}
	if err := s.Db.Model(&style).Updates(updates).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}
	s.invalidateStylesCache(c)
	return c.Status(http.StatusOK).JSON(fiber.Map{"style": style})
}

// DeactivateStyle hides a style from the picker. Rows are never deleted;
// old generations still reference them.
func (s *Service) DeactivateStyle(c *fiber.Ctx) error {
	slug := c.Params("slug")
	style, err := models.GetStyleBySlug(slug, s.Db)
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"code": "not_found", "message": "no such style"})
	}
	if err := s.Db.Model(&style).Update("active", false).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}
	s.invalidateStylesCache(c)
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "style deactivated"})
}

// parseStyleUpdate is bindJSON minus the required-field checks, since
// updates are partial.
func parseStyleUpdate(c *fiber.Ctx, dst *styleRequest) error {
	return parseJSON(c, dst)
}

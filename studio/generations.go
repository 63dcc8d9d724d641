package studio

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/studiopix/studiopix/apperr"
	"github.com/studiopix/studiopix/models"
	"gorm.io/gorm"
)

type generationRequest struct {
	UploadID  uint   `json:"upload_id" binding:"required"`
	StyleSlug string `json:"style_slug" binding:"required"`
}

type generationOut struct {
	models.Generation
	Results []string `json:"results,omitempty"`
}

// CreateGeneration debits the credits and submits the job in one
// transaction: a pipeline refusal rolls the debit back, and a debit
// failure never reaches the pipeline.
func (s *Service) CreateGeneration(c *fiber.Ctx) error {
	var req generationRequest
	if err := bindJSON(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": err.Error()})
	}
	person, err := s.currentPerson(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"code": "unauthorized", "message": "user not found"})
	}

	style, err := models.GetStyleBySlug(req.StyleSlug, s.Db)
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"code": "not_found", "message": "no such style"})
	}
	if !style.Active {
		return apperr.Respond(c, apperr.ErrStyleInactive)
	}

	var upload models.Upload
	if err := s.Db.First(&upload, "id = ? AND person_id = ?", req.UploadID, person.ID).Error; err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"code": "not_found", "message": "no such upload"})
	}

	billing, err := person.BillingPerson(s.Db)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}

	generation := models.Generation{
		UUID:         uuid.NewString(),
		PersonID:     person.ID,
		BilledTo:     billing.ID,
		UploadID:     upload.ID,
		StyleID:      style.ID,
		Status:       models.GenerationPending,
		CreditsSpent: style.CreditCost,
	}

	err = s.Db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&generation).Error; err != nil {
			return err
		}
		if _, err := models.DebitPerson(tx, billing.ID, style.CreditCost, &generation.ID,
			fmt.Sprintf("generation %s (%s)", generation.UUID, style.Slug)); err != nil {
			return err
		}
		jobID, err := s.Pipeline.Submit(c.UserContext(), SubmitRequest{
			UUID:        generation.UUID,
			ImageURL:    s.signedUploadURL(upload.ID),
			Prompt:      style.PromptTemplate,
			Background:  style.Background,
			Clothing:    style.Clothing,
			Pose:        style.Pose,
			Branding:    style.Branding,
			CallbackURL: s.StudioConfig.PublicURL + "/pipeline/callback",
		})
		if err != nil {
			return err
		}
		generation.PipelineJobID = jobID
		return tx.Model(&generation).Update("pipeline_job_id", jobID).Error
	})
	if errors.Is(err, models.ErrInsufficientBalance) {
		return apperr.Respond(c, apperr.ErrInsufficientCredits)
	}
	if errors.Is(err, errPipelineDown) {
		return apperr.Respond(c, apperr.Wrap(err, apperr.ErrPipelineDown, "generation service is unavailable, you were not charged"))
	}
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "generation_failed", "message": err.Error()})
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"generation": generation})
}

// ListGenerations returns the person's jobs, newest first.
func (s *Service) ListGenerations(c *fiber.Ctx) error {
	person, err := s.currentPerson(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"code": "unauthorized", "message": "user not found"})
	}
	var generations []models.Generation
	if err := s.Db.Where("person_id = ?", person.ID).Order("created_at desc").Limit(100).Find(&generations).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}
	out := make([]generationOut, 0, len(generations))
	for _, g := range generations {
		out = append(out, s.withSignedResults(g))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"generations": out})
}

// GetGeneration is the polling endpoint.
func (s *Service) GetGeneration(c *fiber.Ctx) error {
	person, err := s.currentPerson(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"code": "unauthorized", "message": "user not found"})
	}
	generation, err := models.GetGenerationByUUID(c.Params("uuid"), s.Db)
	if err != nil || generation.PersonID != person.ID {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"code": "not_found", "message": "no such generation"})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"generation": s.withSignedResults(generation)})
}

// withSignedResults swaps raw pipeline URLs for our signed proxy links.
func (s *Service) withSignedResults(g models.Generation) generationOut {
	out := generationOut{Generation: g}
	if g.Status != models.GenerationCompleted {
		return out
	}
	n := len(g.Results())
	for i := 0; i < n; i++ {
		out.Results = append(out.Results, s.signedResultURL(g.UUID, i))
	}
	return out
}

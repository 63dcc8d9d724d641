package studio

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/studiopix/studiopix/account"
	"github.com/studiopix/studiopix/models"
	"gorm.io/gorm"
)

type callbackRequest struct {
	JobID      string   `json:"job_id"`
	UUID       string   `json:"uuid"`
	Status     string   `json:"status" binding:"required,oneof=processing completed failed"`
	ResultURLs []string `json:"result_urls"`
	Error      string   `json:"error"`
	// when the pipeline finished the job, RFC3339; empty means now
	CompletedAt string `json:"completed_at" binding:"omitempty,iso8601"`
}

func (r callbackRequest) completedTime() time.Time {
	if r.CompletedAt != "" {
		if ts, err := time.Parse(time.RFC3339, r.CompletedAt); err == nil {
			return ts
		}
	}
	return time.Now()
}

// PipelineCallback ingests status transitions from the pipeline. Terminal
// generations ignore late or duplicate callbacks; a failure puts the
// credits back exactly once.
func (s *Service) PipelineCallback(c *fiber.Ctx) error {
	key := c.Get("X-Pipeline-Key")
	if s.StudioConfig.PipelineCallbackKey == "" ||
		subtle.ConstantTimeCompare([]byte(key), []byte(s.StudioConfig.PipelineCallbackKey)) != 1 {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"code": "unauthorized", "message": "bad callback key"})
	}

	var req callbackRequest
	if err := bindJSON(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": err.Error()})
	}

	generation, err := models.GetGenerationByJobID(req.JobID, s.Db)
	if err != nil && req.UUID != "" {
		generation, err = models.GetGenerationByUUID(req.UUID, s.Db)
	}
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"code": "not_found", "message": "no generation for this job"})
	}
	if generation.Terminal() {
		return c.Status(http.StatusOK).JSON(fiber.Map{"message": "already final"})
	}

	switch req.Status {
	case models.GenerationProcessing:
		if err := s.Db.Model(&generation).Update("status", models.GenerationProcessing).Error; err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
		}
		generation.Status = models.GenerationProcessing

	case models.GenerationCompleted:
		if err := generation.SetResults(req.ResultURLs); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": err.Error()})
		}
		now := req.completedTime()
		if err := s.Db.Model(&generation).Updates(map[string]interface{}{
			"status":       models.GenerationCompleted,
			"result_urls":  generation.ResultURLs,
			"completed_at": now,
		}).Error; err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
		}
		generation.Status = models.GenerationCompleted
		generation.CompletedAt = &now
		s.notifyOwner(generation, "Your headshots are ready", "Open the app to see your new photos.")

	case models.GenerationFailed:
		err := s.Db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&generation).Updates(map[string]interface{}{
				"status":        models.GenerationFailed,
				"error_message": req.Error,
			}).Error; err != nil {
				return err
			}
			_, err := models.RefundGeneration(tx, generation.BilledTo, generation.CreditsSpent, generation.ID)
			return err
		})
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
		}
		generation.Status = models.GenerationFailed
		s.notifyOwner(generation, "Generation failed", "Something went wrong; your credits were refunded.")
	}

	s.Hub.Broadcast(ProgressEvent{
		UUID:    generation.UUID,
		Status:  generation.Status,
		Results: len(req.ResultURLs),
	})
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "ok"})
}

func (s *Service) notifyOwner(generation models.Generation, title, body string) {
	var user models.User
	if err := s.Db.First(&user, "person_id = ?", generation.PersonID).Error; err != nil {
		s.Logger.Printf("notify: no user for person %d: %v", generation.PersonID, err)
		return
	}
	account.Push(models.Notification{
		UUID:       generation.UUID,
		Type:       "generation_" + generation.Status,
		UserEmail:  user.Email,
		Title:      title,
		Body:       body,
		Generation: generation.UUID,
	})
}

package studio

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/studiopix/studiopix/apperr"
	"github.com/studiopix/studiopix/models"
)

var allowedUploadTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
}

// CreateUpload takes a multipart selfie, seals it to disk and returns the
// upload ID the generation endpoint consumes.
func (s *Service) CreateUpload(c *fiber.Ctx) error {
	person, err := s.currentPerson(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"code": "unauthorized", "message": "user not found"})
	}

	header, err := c.FormFile("selfie")
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": "selfie file is required"})
	}
	if header.Size > s.StudioConfig.MaxUploadBytes() {
		return apperr.Respond(c, apperr.ErrUploadTooLarge)
	}
	contentType := header.Header.Get("Content-Type")
	if !allowedUploadTypes[contentType] {
		return c.Status(http.StatusUnsupportedMediaType).JSON(fiber.Map{"code": "bad_content_type", "message": "selfie must be a jpeg, png, webp or heic image"})
	}

	file, err := header.Open()
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": err.Error()})
	}
	defer file.Close()
	plain, err := io.ReadAll(io.LimitReader(file, s.StudioConfig.MaxUploadBytes()+1))
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "internal_error", "message": err.Error()})
	}
	if int64(len(plain)) > s.StudioConfig.MaxUploadBytes() {
		return apperr.Respond(c, apperr.ErrUploadTooLarge)
	}

	path, err := s.Store.SaveBlob(plain)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "storage_error", "message": err.Error()})
	}
	digest := sha256.Sum256(plain)
	upload := models.Upload{
		PersonID:    person.ID,
		Path:        path,
		ContentType: contentType,
		Size:        int64(len(plain)),
		SHA256:      hex.EncodeToString(digest[:]),
	}
	if err := s.Db.Create(&upload).Error; err != nil {
		s.Store.DeleteBlob(path)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"upload": upload,
		"url":    s.signedUploadURL(upload.ID),
	})
}

// ListUploads returns the person's selfies.
func (s *Service) ListUploads(c *fiber.Ctx) error {
	person, err := s.currentPerson(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"code": "unauthorized", "message": "user not found"})
	}
	var uploads []models.Upload
	if err := s.Db.Where("person_id = ?", person.ID).Order("created_at desc").Find(&uploads).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"uploads": uploads})
}

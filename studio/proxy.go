package studio

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/studiopix/studiopix/apperr"
	"github.com/studiopix/studiopix/models"
)

const signedLinkTTL = 24 * time.Hour

// signLink produces the HMAC over a resource key and expiry. The same
// scheme covers uploads and result proxies; the key just differs.
func (s *Service) signLink(resource string, exp int64) string {
	mac := hmac.New(sha256.New, []byte(s.StudioConfig.FileSignKey))
	fmt.Fprintf(mac, "%s.%d", resource, exp)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Service) checkLink(c *fiber.Ctx, resource string) error {
	exp, err := strconv.ParseInt(c.Query("exp"), 10, 64)
	if err != nil {
		return apperr.ErrLinkTampered
	}
	if time.Now().Unix() > exp {
		return apperr.ErrLinkExpired
	}
	want := s.signLink(resource, exp)
	if !hmac.Equal([]byte(want), []byte(c.Query("sig"))) {
		return apperr.ErrLinkTampered
	}
	return nil
}

func (s *Service) signedUploadURL(id uint) string {
	exp := time.Now().Add(signedLinkTTL).Unix()
	resource := fmt.Sprintf("upload:%d", id)
	return fmt.Sprintf("%s/studio/files/%d?exp=%d&sig=%s", s.StudioConfig.PublicURL, id, exp, s.signLink(resource, exp))
}

func (s *Service) signedResultURL(uuid string, idx int) string {
	exp := time.Now().Add(signedLinkTTL).Unix()
	resource := fmt.Sprintf("result:%s:%d", uuid, idx)
	return fmt.Sprintf("%s/studio/results/%s/%d?exp=%d&sig=%s", s.StudioConfig.PublicURL, uuid, idx, exp, s.signLink(resource, exp))
}

// ServeFile streams a decrypted selfie behind a signed expiring link.
func (s *Service) ServeFile(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": "bad file id"})
	}
	if err := s.checkLink(c, fmt.Sprintf("upload:%d", id)); err != nil {
		return apperr.Respond(c, err)
	}
	var upload models.Upload
	if err := s.Db.First(&upload, id).Error; err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"code": "not_found", "message": "no such file"})
	}
	plain, err := s.Store.LoadBlob(upload.Path)
	if err != nil {
		s.Logger.Printf("open sealed upload %d: %v", id, err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "storage_error", "message": "could not open file"})
	}
	c.Set("Content-Type", upload.ContentType)
	c.Set("Cache-Control", "private, max-age=3600")
	return c.Status(http.StatusOK).Send(plain)
}

// ServeResult proxies one generated image from the pipeline's storage so
// result buckets never need to be public.
func (s *Service) ServeResult(c *fiber.Ctx) error {
	uuid := c.Params("uuid")
	idx, err := strconv.Atoi(c.Params("idx"))
	if err != nil || idx < 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": "bad result index"})
	}
	if err := s.checkLink(c, fmt.Sprintf("result:%s:%d", uuid, idx)); err != nil {
		return apperr.Respond(c, err)
	}
	generation, err := models.GetGenerationByUUID(uuid, s.Db)
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"code": "not_found", "message": "no such generation"})
	}
	results := generation.Results()
	if idx >= len(results) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"code": "not_found", "message": "no such result"})
	}

	req, err := http.NewRequestWithContext(c.UserContext(), http.MethodGet, results[idx], nil)
	if err != nil {
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{"code": "proxy_error", "message": err.Error()})
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{"code": "proxy_error", "message": err.Error()})
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{"code": "proxy_error", "message": "upstream returned " + resp.Status})
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{"code": "proxy_error", "message": err.Error()})
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		c.Set("Content-Type", ct)
	}
	c.Set("Cache-Control", "private, max-age=3600")
	return c.Status(http.StatusOK).Send(body)
}

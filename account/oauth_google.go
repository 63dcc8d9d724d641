package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/studiopix/studiopix/models"
	"gorm.io/gorm"
)

const (
	googleTokenURL = "https://oauth2.googleapis.com/token"
	googleUserURL  = "https://openidconnect.googleapis.com/v1/userinfo"
)

type googleAuthRequest struct {
	Code         string `json:"code" binding:"required"`
	CodeVerifier string `json:"code_verifier"`
	RedirectURI  string `json:"redirect_uri"`
}

type googleTokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// GoogleAuth exchanges an OAuth code for tokens, then logs in or creates the user.
func (s *Service) GoogleAuth(c *fiber.Ctx) error {
	var req googleAuthRequest
	if err := bindJSON(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": err.Error()})
	}
	if req.Code == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "missing_code", "message": "code is required"})
	}
	if s.StudioConfig.GoogleClientID == "" {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "missing_google_client", "message": "google client id not configured"})
	}

	token, err := s.exchangeGoogleCode(c.Context(), req)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "token_exchange_failed", "message": err.Error()})
	}

	info, err := s.fetchGoogleUserInfo(c.Context(), token.AccessToken)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "userinfo_failed", "message": err.Error()})
	}
	if info.Sub == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "invalid_userinfo", "message": "google subject missing"})
	}

	user, isNew, err := s.findOrCreateUserFromGoogle(info)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "user_create_failed", "message": err.Error()})
	}
	return s.issueToken(c, user.ID, user.Email, isNew)
}

func (s *Service) exchangeGoogleCode(ctx context.Context, req googleAuthRequest) (googleTokenResponse, error) {
	var token googleTokenResponse

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", req.Code)
	form.Set("client_id", s.StudioConfig.GoogleClientID)
	if s.StudioConfig.GoogleClientSecret != "" {
		form.Set("client_secret", s.StudioConfig.GoogleClientSecret)
	}
	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = s.StudioConfig.GoogleRedirectURL
	}
	if redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}
	if req.CodeVerifier != "" {
		form.Set("code_verifier", req.CodeVerifier)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, googleTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return token, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return token, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return token, fmt.Errorf("google token exchange failed: %s", string(body))
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return token, err
	}
	if token.AccessToken == "" {
		return token, errors.New("missing access_token from google")
	}
	return token, nil
}

func (s *Service) fetchGoogleUserInfo(ctx context.Context, accessToken string) (googleUserInfo, error) {
	var info googleUserInfo
	if accessToken == "" {
		return info, errors.New("missing access token")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserURL, nil)
	if err != nil {
		return info, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return info, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return info, fmt.Errorf("google userinfo failed: %s", string(body))
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return info, err
	}
	return info, nil
}

// findOrCreateUserFromGoogle links the google subject to an existing account
// when the email matches, adopting guest rows the billing webhook provisioned.
func (s *Service) findOrCreateUserFromGoogle(info googleUserInfo) (models.User, bool, error) {
	var user models.User
	isNew := false

	err := s.Db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("google_sub = ?", info.Sub).First(&user).Error; err == nil {
			return nil
		}

		email := strings.ToLower(info.Email)
		if email != "" {
			if err := tx.Where("email = ?", email).First(&user).Error; err == nil {
				updates := map[string]interface{}{
					"google_sub": info.Sub,
					"is_guest":   false,
				}
				if info.EmailVerified {
					updates["is_verified"] = true
				}
				if info.Picture != "" && user.AvatarURL == "" {
					updates["avatar_url"] = info.Picture
				}
				return tx.Model(&user).Updates(updates).Error
			} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		isNew = true
		user = models.User{
			Email:      email,
			Username:   email,
			Fullname:   info.Name,
			Password:   uuid.NewString(),
			GoogleSub:  info.Sub,
			AvatarURL:  info.Picture,
			IsVerified: info.EmailVerified,
		}
		if user.Username == "" {
			user.Username = fmt.Sprintf("google_%s", info.Sub)
		}
		if err := user.HashPassword(); err != nil {
			return err
		}
		person := models.Person{Name: user.Fullname, Tier: models.TierFree}
		if err := tx.Create(&person).Error; err != nil {
			return err
		}
		user.PersonID = person.ID
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return tx.Model(&person).Update("user_id", user.ID).Error
	})

	return user, isNew, err
}

package account

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/studiopix/studiopix/models"
	"github.com/studiopix/studiopix/utils"
	"gorm.io/gorm"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=64"`
	Fullname string `json:"fullname"`
	Mobile   string `json:"mobile"`
}

// CreateUser registers a new user. A guest account provisioned earlier by
// a checkout webhook for the same email is adopted instead of duplicated,
// so the guest's credits survive signup.
func (s *Service) CreateUser(c *fiber.Ctx) error {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": err.Error()})
	}
	if !validatePassword(req.Password) {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "weak_password", "message": "password needs an uppercase letter, a number and a symbol"})
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if existing, err := models.GetUserByEmail(email, s.Db); err == nil {
		if !existing.IsGuest {
			return c.Status(http.StatusConflict).JSON(fiber.Map{"code": "email_taken", "message": "email already registered"})
		}
		existing.Password = req.Password
		if err := existing.HashPassword(); err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "internal_error", "message": err.Error()})
		}
		updates := map[string]interface{}{
			"password": existing.Password,
			"is_guest": false,
		}
		if req.Fullname != "" {
			updates["fullname"] = req.Fullname
		}
		if req.Mobile != "" {
			updates["mobile"] = req.Mobile
		}
		if err := s.Db.Model(&models.User{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
		}
		return s.issueToken(c, existing.ID, email, false)
	}

	user := models.User{
		Email:    email,
		Username: email,
		Password: req.Password,
		Fullname: req.Fullname,
		Mobile:   req.Mobile,
	}
	if err := user.HashPassword(); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "internal_error", "message": err.Error()})
	}
	if err := user.CreateWithPerson(s.Db); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}

	go s.sendVerificationCode(email)
	return s.issueToken(c, user.ID, email, true)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginHandler is the studiopix signin endpoint.
func (s *Service) LoginHandler(c *fiber.Ctx) error {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		s.Logger.Printf("The request is wrong. %v", err)
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"message": err.Error(), "code": "bad_request"})
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	ctx := c.UserContext()

	if userExceededMaxSessions(ctx, s, email) {
		return c.Status(http.StatusTooManyRequests).JSON(fiber.Map{"code": "too_many_attempts", "message": "too many failed logins, try again later"})
	}

	u, err := models.GetUserByEmail(email, s.Db)
	if err != nil {
		s.Logger.Printf("User with email %s is not found.", email)
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"message": "user not found", "code": "not_found"})
	}
	if u.IsGuest {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "guest_account", "message": "finish signup first to set a password"})
	}
	if err := u.ComparePassword(req.Password); err != nil {
		recordFailedLogin(ctx, s, email)
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"message": "wrong password entered", "code": "wrong_password"})
	}
	clearFailedLogins(ctx, s, email)

	token, err := s.Auth.GenerateJWT(u.ID, u.Email)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "jwt_failed", "message": err.Error()})
	}
	c.Set("Authorization", token)
	return c.Status(http.StatusOK).JSON(fiber.Map{"authorization": token, "user": sanitizeUser(u)})
}

type refreshRequest struct {
	JWT string `json:"authorization" binding:"required"`
}

const refreshWindow = 7 * 24 * time.Hour

// RefreshHandler re-issues a token for a recently expired one. Beyond the
// refresh window the user has to log in again.
func (s *Service) RefreshHandler(c *fiber.Ctx) error {
	var req refreshRequest
	if err := bindJSON(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"message": err.Error(), "code": "bad_request"})
	}
	claims, err := s.Auth.VerifyJWT(req.JWT)
	if err == nil {
		auth, _ := s.Auth.GenerateJWT(claims.UserID, claims.Email)
		c.Set("Authorization", auth)
		return c.Status(http.StatusOK).JSON(fiber.Map{"authorization": auth})
	}
	if !errors.Is(err, jwt.ErrTokenExpired) {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"message": "Malformed token", "code": "jwt_malformed"})
	}
	if claims.ExpiresAt == nil || time.Since(claims.ExpiresAt.Time) > refreshWindow {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"message": "token too old to refresh", "code": "jwt_expired"})
	}
	user, err := models.GetUserByID(claims.UserID, s.Db)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"message": "user not found", "code": "not_found"})
	}
	auth, _ := s.Auth.GenerateJWT(user.ID, user.Email)
	c.Set("Authorization", auth)
	return c.Status(http.StatusOK).JSON(fiber.Map{"authorization": auth})
}

type otpRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// GenerateOTPCode mails a one-time code for email verification.
func (s *Service) GenerateOTPCode(c *fiber.Ctx) error {
	var req otpRequest
	if err := bindJSON(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": err.Error()})
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	ctx := c.UserContext()

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "studiopix", AccountName: email})
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "internal_error", "message": err.Error()})
	}
	if err := s.Redis.Set(ctx, email+":otp_secret", key.Secret(), otpSecretTTL).Err(); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "internal_error", "message": err.Error()})
	}
	code, err := generateOtp(key.Secret())
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "internal_error", "message": err.Error()})
	}
	go func() {
		if err := utils.SendEmail(&s.StudioConfig, utils.Email{
			To:      email,
			Subject: "Your studiopix verification code",
			Body:    fmt.Sprintf("Your one-time access code is: %s. DON'T share it with anyone.", code),
		}); err != nil {
			s.Logger.Printf("otp email to %s failed: %v", email, err)
		}
	}()
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "code sent"})
}

type otpVerifyRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// VerifyOTPCode checks a mailed code and marks the account verified.
func (s *Service) VerifyOTPCode(c *fiber.Ctx) error {
	var req otpVerifyRequest
	if err := bindJSON(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": err.Error()})
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	ctx := c.UserContext()

	secret, err := s.Redis.Get(ctx, email+":otp_secret").Result()
	if err != nil || secret == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "otp_expired", "message": "request a new code"})
	}
	if !totp.Validate(req.Code, secret) {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "wrong_otp", "message": "wrong otp entered"})
	}
	s.Redis.Del(ctx, email+":otp_secret")
	if err := s.Db.Model(&models.User{}).Where("email = ?", email).Update("is_verified", true).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "verified"})
}

// AuthMe returns the current user with their person and balance.
func (s *Service) AuthMe(c *fiber.Ctx) error {
	userID := getUserID(c)
	if userID == 0 {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"code": "unauthorized", "message": "missing user id"})
	}
	user, err := models.GetUserByID(userID, s.Db)
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"code": "not_found", "message": "user not found"})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user": sanitizeUser(user)})
}

type profileRequest struct {
	Fullname string `json:"fullname"`
	Mobile   string `json:"mobile"`
	Language string `json:"language"`
}

// CompleteProfile lets a user fill in details after social signup.
func (s *Service) CompleteProfile(c *fiber.Ctx) error {
	userID := getUserID(c)
	if userID == 0 {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"code": "unauthorized", "message": "missing user id"})
	}
	var req profileRequest
	if err := bindJSON(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": err.Error()})
	}
	updates := map[string]interface{}{}
	if req.Fullname != "" {
		updates["fullname"] = req.Fullname
	}
	if req.Mobile != "" {
		updates["mobile"] = req.Mobile
	}
	if req.Language != "" {
		updates["language"] = req.Language
	}
	if len(updates) == 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": "nothing to update"})
	}
	if err := s.Db.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}
	user, err := models.GetUserByID(userID, s.Db)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user": sanitizeUser(user)})
}

type deviceRequest struct {
	DeviceID    string `json:"device_id"`
	DeviceToken string `json:"device_token" binding:"required"`
}

// RegisterDevice stores the FCM token pushes go to.
func (s *Service) RegisterDevice(c *fiber.Ctx) error {
	userID := getUserID(c)
	if userID == 0 {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"code": "unauthorized", "message": "missing user id"})
	}
	var req deviceRequest
	if err := bindJSON(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": err.Error()})
	}
	updates := map[string]interface{}{"device_token": req.DeviceToken}
	if req.DeviceID != "" {
		updates["device_id"] = req.DeviceID
	}
	if err := s.Db.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "device registered"})
}

// Notifications returns the stored pushes for the signed-in user and marks
// them read.
func (s *Service) Notifications(c *fiber.Ctx) error {
	email := getEmail(c)
	if email == "" {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"code": "unauthorized", "message": "missing email"})
	}
	var notifications []models.Notification
	if err := s.Db.Where("user_email = ?", email).Order("created_at desc").Limit(50).Find(&notifications).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}
	go func() {
		if err := s.Db.Model(&models.Notification{}).Where("user_email = ?", email).Update("is_read", true).Error; err != nil {
			s.Logger.Printf("mark notifications read: %v", err)
		}
	}()
	return c.Status(http.StatusOK).JSON(notifications)
}

func (s *Service) issueToken(c *fiber.Ctx, userID uint, email string, isNew bool) error {
	token, err := s.Auth.GenerateJWT(userID, email)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "jwt_failed", "message": err.Error()})
	}
	user, err := models.GetUserByID(userID, s.Db)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}
	c.Set("Authorization", token)
	return c.Status(http.StatusOK).JSON(fiber.Map{"authorization": token, "user": sanitizeUser(user), "new_user": isNew})
}

func (s *Service) sendVerificationCode(email string) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "studiopix", AccountName: email})
	if err != nil {
		s.Logger.Printf("otp secret for %s: %v", email, err)
		return
	}
	if err := s.Redis.Set(context.Background(), email+":otp_secret", key.Secret(), otpSecretTTL).Err(); err != nil {
		s.Logger.Printf("otp secret store for %s: %v", email, err)
		return
	}
	code, err := generateOtp(key.Secret())
	if err != nil {
		return
	}
	if err := utils.SendEmail(&s.StudioConfig, utils.Email{
		To:      email,
		Subject: "Verify your studiopix account",
		Body:    fmt.Sprintf("Your one-time access code is: %s. DON'T share it with anyone.", code),
	}); err != nil {
		s.Logger.Printf("verification email to %s failed: %v", email, err)
	}
}

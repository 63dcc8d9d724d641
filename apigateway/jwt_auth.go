// Package gateway implements auth and shared middleware used across
// studiopix services.
package gateway

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/studiopix/studiopix/models"
)

// JWTAuth provides an encapsulation for jwt auth.
type JWTAuth struct {
	Key          []byte
	StudioConfig models.StudioConfig
}

// TokenClaims studiopix standard claim.
type TokenClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Admin  bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Init picks the signing key from config, generating a throwaway one when
// unset. A generated key means every restart logs everyone out; fine for
// dev, configure jwt_key for anything real.
func (j *JWTAuth) Init() {
	if j.StudioConfig.JWTKey != "" {
		j.Key = []byte(j.StudioConfig.JWTKey)
		return
	}
	key, _ := GenerateSecretKey(32)
	j.Key = key
}

// GenerateJWT issues a signed token for a user.
func (j *JWTAuth) GenerateJWT(userID uint, email string) (string, error) {
	if len(j.Key) == 0 {
		return "", errors.New("empty jwt key")
	}
	claims := TokenClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "studiopix",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(72 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Key)
}

// VerifyJWT validates a token and returns its claims. Expired tokens come
// back with jwt.ErrTokenExpired wrapped in err and the parsed claims, which
// is what the refresh endpoint needs.
func (j *JWTAuth) VerifyJWT(tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.Key, nil
	})
	if err != nil {
		return claims, err
	}
	if !token.Valid {
		return claims, jwt.ErrTokenUnverifiable
	}
	return claims, nil
}

// AuthMiddleware guards user endpoints. It accepts the raw token or the
// Bearer form and stores user_id and email in locals.
func (j *JWTAuth) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get("Authorization")
		if h == "" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"message": "empty header was sent", "code": "unauthorized"})
		}
		h = strings.TrimPrefix(h, "Bearer ")
		claims, err := j.VerifyJWT(h)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"message": "Token has expired", "code": "jwt_expired"})
		}
		if err != nil {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"message": "Malformed token", "code": "jwt_malformed"})
		}
		c.Locals("user_id", claims.UserID)
		c.Locals("email", claims.Email)
		return c.Next()
	}
}

// OptionalAuthMiddleware parses a token when one is present but lets the
// request through either way. Guest checkout uses it.
func (j *JWTAuth) OptionalAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get("Authorization")
		if h == "" {
			return c.Next()
		}
		h = strings.TrimPrefix(h, "Bearer ")
		if claims, err := j.VerifyJWT(h); err == nil {
			c.Locals("user_id", claims.UserID)
			c.Locals("email", claims.Email)
		}
		return c.Next()
	}
}

// GenerateSecretKey generates a key for jwt signing.
func GenerateSecretKey(n int) ([]byte, error) {
	key := make([]byte, n)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

package account

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
)

const (
	otpSecretTTL  = 15 * time.Minute
	maxLoginFails = 5
)

// validatePassword to include at least one capital letter, one symbol and
// one number and that it is at least 8 characters long.
func validatePassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	var hasUpper, hasSymbol, hasNumber bool
	if strings.ContainsAny(password, "@&#$%^*()_-+=!.?/<>[]:{}|\\;:\"") {
		hasSymbol = true
	}
	for _, c := range password {
		if unicode.IsUpper(c) {
			hasUpper = true
		}
		if unicode.IsSymbol(c) {
			hasSymbol = true
		}
		if unicode.IsNumber(c) {
			hasNumber = true
		}
	}
	return hasUpper && hasSymbol && hasNumber
}

// userExceededMaxSessions keeps track of how many failed login attempts a
// user has made inside the current window.
func userExceededMaxSessions(ctx context.Context, s *Service, email string) bool {
	res, err := s.Redis.Get(ctx, email+":login_counts").Result()
	if err == redis.Nil {
		s.Redis.Set(ctx, email+":login_counts", 0, time.Hour)
		return false
	}
	if err != nil {
		// redis being down shouldn't lock everyone out
		return false
	}
	count, _ := strconv.Atoi(res)
	return count >= maxLoginFails
}

func recordFailedLogin(ctx context.Context, s *Service, email string) {
	s.Redis.Incr(ctx, email+":login_counts")
}

func clearFailedLogins(ctx context.Context, s *Service, email string) {
	s.Redis.Del(ctx, email+":login_counts")
}

func generateOtp(secret string) (string, error) {
	passcode, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		return "", err
	}
	return passcode, nil
}

package billing

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	gateway "github.com/studiopix/studiopix/apigateway"
	"github.com/studiopix/studiopix/models"
	"github.com/studiopix/studiopix/store"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test_secret"

type testEnv struct {
	Router  *fiber.App
	Service *Service
	Auth    *gateway.JWTAuth
	DB      *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), false)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	cfg := models.StudioConfig{
		JWTKey:              "test-secret",
		StripeWebhookSecret: testWebhookSecret,
		CheckoutSuccessURL:  "https://studiopix.test/done",
		CheckoutCancelURL:   "https://studiopix.test/cancel",
	}
	auth := &gateway.JWTAuth{StudioConfig: cfg}
	auth.Init()

	service := NewService(db, nil, logrus.New(), cfg)

	r := fiber.New()
	r.Get("/billing/plans", service.Plans)
	r.Post("/billing/checkout", auth.OptionalAuthMiddleware(), service.CreateCheckout)
	r.Post("/billing/seats", auth.AuthMiddleware(), service.UpdateSeats)
	r.Post("/stripe/webhook", service.StripeWebhook)

	return &testEnv{Router: r, Service: service, Auth: auth, DB: db}
}

// signStripePayload builds the Stripe-Signature header the way stripe-go's
// webhook package expects it.
func signStripePayload(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func postWebhook(t *testing.T, env *testEnv, payload string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", bytes.NewReader([]byte(payload)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signStripePayload([]byte(payload)))
	resp, err := env.Router.Test(req, -1)
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	return resp
}

func seedPersonWithUser(t *testing.T, db *gorm.DB, email, stripeCustomer string) models.Person {
	t.Helper()
	user := models.User{Email: email, Username: email, Password: "Str0ng!pass"}
	if err := user.HashPassword(); err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := user.CreateWithPerson(db); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if stripeCustomer != "" {
		if err := db.Model(&models.Person{}).Where("id = ?", user.PersonID).
			Update("stripe_customer_id", stripeCustomer).Error; err != nil {
			t.Fatalf("set stripe customer: %v", err)
		}
	}
	person, err := models.GetPerson(user.PersonID, db)
	if err != nil {
		t.Fatalf("get person: %v", err)
	}
	return person
}

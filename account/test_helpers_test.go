package account

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	gateway "github.com/studiopix/studiopix/apigateway"
	"github.com/studiopix/studiopix/models"
	"github.com/studiopix/studiopix/store"
	"gorm.io/gorm"
)

type testEnv struct {
	Router  *fiber.App
	Service *Service
	Auth    *gateway.JWTAuth
	DB      *gorm.DB
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), false)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)

	emailServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(emailServer.Close)

	cfg := models.StudioConfig{
		JWTKey:       "test-secret",
		EmailGateway: emailServer.URL,
		EmailAPIKey:  "test-key",
	}

	auth := &gateway.JWTAuth{StudioConfig: cfg}
	auth.Init()

	service := &Service{
		Db:           db,
		StudioConfig: cfg,
		Logger:       logrus.New(),
		Auth:         auth,
		// nothing listens on this port; the throttling helpers treat a
		// down redis as "not throttled"
		Redis: redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}),
	}

	r := fiber.New()
	r.Post("/register", service.CreateUser)
	r.Post("/login", service.LoginHandler)
	r.Post("/refresh", service.RefreshHandler)
	r.Get("/me", auth.AuthMiddleware(), service.AuthMe)
	r.Post("/profile", auth.AuthMiddleware(), service.CompleteProfile)
	r.Post("/device", auth.AuthMiddleware(), service.RegisterDevice)
	r.Get("/notifications", auth.AuthMiddleware(), service.Notifications)

	return &testEnv{Router: r, Service: service, Auth: auth, DB: db}
}

func seedUser(t *testing.T, db *gorm.DB, email, password string) models.User {
	t.Helper()
	user := models.User{
		Email:    email,
		Username: email,
		Password: password,
	}
	if err := user.HashPassword(); err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := user.CreateWithPerson(db); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func seedGuest(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{
		Email:    email,
		Username: email,
		Password: "placeholder",
		IsGuest:  true,
	}
	if err := user.HashPassword(); err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := user.CreateWithPerson(db); err != nil {
		t.Fatalf("create guest: %v", err)
	}
	return user
}

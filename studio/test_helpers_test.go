package studio

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	gateway "github.com/studiopix/studiopix/apigateway"
	"github.com/studiopix/studiopix/models"
	"github.com/studiopix/studiopix/store"
	"gorm.io/gorm"
)

const testCallbackKey = "pipeline-callback-key"

type testEnv struct {
	Router   *fiber.App
	Service  *Service
	Auth     *gateway.JWTAuth
	DB       *gorm.DB
	Pipeline *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"), false)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	pipeline := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"job_id": "job-test-1", "status": "queued"}`)
	}))
	t.Cleanup(pipeline.Close)

	cfg := models.StudioConfig{
		JWTKey:              "test-secret",
		PublicURL:           "https://studiopix.test",
		PipelineURL:         pipeline.URL,
		PipelineKey:         "pipeline-key",
		PipelineCallbackKey: testCallbackKey,
		FileSignKey:         "file-sign-key",
		UploadDir:           filepath.Join(dir, "uploads"),
		MaxUploadMB:         1,
	}
	auth := &gateway.JWTAuth{StudioConfig: cfg}
	auth.Init()

	st, err := store.New(store.Options{UploadDir: cfg.UploadDir, DataKey: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	logger := logrus.New()
	service := &Service{
		Db:           db,
		Logger:       logger,
		StudioConfig: cfg,
		Store:        st,
		Pipeline:     NewPipelineClient(cfg, logger),
		Hub:          NewHub(nil, logger),
	}

	r := fiber.New(fiber.Config{BodyLimit: int(cfg.MaxUploadBytes()) * 2})
	r.Get("/studio/styles", service.ListStyles)
	r.Post("/admin/styles", service.CreateStyle)
	r.Put("/admin/styles/:slug", service.UpdateStyle)
	r.Delete("/admin/styles/:slug", service.DeactivateStyle)
	r.Post("/studio/uploads", auth.AuthMiddleware(), service.CreateUpload)
	r.Get("/studio/uploads", auth.AuthMiddleware(), service.ListUploads)
	r.Post("/studio/generations", auth.AuthMiddleware(), service.CreateGeneration)
	r.Get("/studio/generations", auth.AuthMiddleware(), service.ListGenerations)
	r.Get("/studio/generations/:uuid", auth.AuthMiddleware(), service.GetGeneration)
	r.Post("/pipeline/callback", service.PipelineCallback)
	r.Get("/studio/files/:id", service.ServeFile)
	r.Get("/studio/results/:uuid/:idx", service.ServeResult)

	return &testEnv{Router: r, Service: service, Auth: auth, DB: db, Pipeline: pipeline}
}

func seedAccount(t *testing.T, env *testEnv, email string, credits int64) (models.User, string) {
	t.Helper()
	user := models.User{Email: email, Username: email, Password: "Str0ng!pass"}
	if err := user.HashPassword(); err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := user.CreateWithPerson(env.DB); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if credits > 0 {
		if _, err := models.CreditPerson(env.DB, user.PersonID, credits, models.CreditKindTopup, "", "", "seed"); err != nil {
			t.Fatalf("seed credits: %v", err)
		}
	}
	token, err := env.Auth.GenerateJWT(user.ID, user.Email)
	if err != nil {
		t.Fatalf("jwt: %v", err)
	}
	return user, token
}

func seedStyle(t *testing.T, db *gorm.DB, slug string, cost int64) models.PhotoStyle {
	t.Helper()
	style := models.PhotoStyle{
		Slug:           slug,
		Name:           "Corporate grey",
		Background:     "grey studio",
		Clothing:       "navy suit",
		PromptTemplate: "professional headshot, {{background}}, {{clothing}}",
		CreditCost:     cost,
		Active:         true,
	}
	if err := db.Create(&style).Error; err != nil {
		t.Fatalf("seed style: %v", err)
	}
	return style
}

func uploadSelfie(t *testing.T, env *testEnv, token string) models.Upload {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="selfie"; filename="selfie.jpg"`)
	hdr.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	part.Write([]byte("\xff\xd8\xff fake jpeg bytes"))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/studio/uploads", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", token)
	resp, err := env.Router.Test(req, -1)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: got %d, want 201", resp.StatusCode)
	}

	var upload models.Upload
	if err := env.DB.Order("id desc").First(&upload).Error; err != nil {
		t.Fatalf("upload row: %v", err)
	}
	return upload
}

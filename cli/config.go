package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	firebase "firebase.google.com/go/v4"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/studiopix/studiopix/account"
	gateway "github.com/studiopix/studiopix/apigateway"
	"github.com/studiopix/studiopix/billing"
	"github.com/studiopix/studiopix/dashboard"
	"github.com/studiopix/studiopix/store"
	"github.com/studiopix/studiopix/studio"
	"github.com/studiopix/studiopix/team"
	"github.com/studiopix/studiopix/utils"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath  = "/app/config.yaml"
	defaultSecretsPath = "/app/secrets.yaml"
)

func isTestRun() bool {
	return strings.HasSuffix(os.Args[0], ".test")
}

func loadConfig() ([]byte, error) {
	configPath := firstExistingPath(defaultConfigPath, "./config.yaml", "../config.yaml")
	if configPath == "" {
		if isTestRun() {
			return []byte("{}"), nil
		}
		return nil, errors.New("config.yaml not found")
	}

	configData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	configMap := map[string]interface{}{}
	if err := yaml.Unmarshal(configData, &configMap); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	secretsMap := map[string]interface{}{}
	secretsPath := firstExistingPath(defaultSecretsPath, "./secrets.yaml", "../secrets.yaml")
	if secretsPath != "" {
		secretsData, err := os.ReadFile(secretsPath)
		if err != nil {
			return nil, fmt.Errorf("read secrets: %w", err)
		}
		if err := yaml.Unmarshal(secretsData, &secretsMap); err != nil {
			return nil, fmt.Errorf("parse secrets yaml: %w", err)
		}
		logrusLogger.Printf("Loaded secrets from %s", secretsPath)
	}

	merged, ok := mergeConfig(configMap, secretsMap).(map[string]interface{})
	if !ok {
		return nil, errors.New("merged config is not a map")
	}
	studiopix := getMap(merged, "studiopix")
	if studiopix == nil {
		studiopix = map[string]interface{}{}
	}

	payload, err := json.Marshal(studiopix)
	if err != nil {
		return nil, fmt.Errorf("encode studiopix config: %w", err)
	}

	logrusLogger.Printf("Loaded config from %s", configPath)
	return payload, nil
}

func firstExistingPath(paths ...string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func mergeConfig(base, override interface{}) interface{} {
	if override == nil {
		return base
	}

	switch overrideTyped := override.(type) {
	case map[string]interface{}:
		baseMap, ok := base.(map[string]interface{})
		if !ok {
			baseMap = map[string]interface{}{}
		}
		result := map[string]interface{}{}
		for key, value := range baseMap {
			result[key] = value
		}
		for key, value := range overrideTyped {
			result[key] = mergeConfig(result[key], value)
		}
		return result
	case []interface{}:
		if len(overrideTyped) == 0 {
			return base
		}
		return overrideTyped
	case string:
		if overrideTyped == "" {
			return base
		}
		return overrideTyped
	default:
		return override
	}
}

func getMap(source map[string]interface{}, key string) map[string]interface{} {
	if source == nil {
		return nil
	}
	value, ok := source[key]
	if !ok {
		return nil
	}
	if typed, ok := value.(map[string]interface{}); ok {
		return typed
	}
	return nil
}

// GetMainEngine function responsible for getting all of our routes to be delivered for fiber
func GetMainEngine() *fiber.App {
	route := fiber.New(fiber.Config{BodyLimit: int(studioConfig.MaxUploadBytes()) * 2})
	route.Use(gateway.RequestID())
	route.Use(gateway.RequestLogger(logrusLogger, logSampling))
	route.Use(gateway.Instrumentation())
	route.Use(gateway.Cors(studioConfig.Cors))

	route.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	route.Post("/register", accountService.CreateUser)
	route.Post("/login", accountService.LoginHandler)
	route.Post("/refresh", accountService.RefreshHandler)
	route.Post("/otp/generate", accountService.GenerateOTPCode)
	route.Post("/otp/verify", accountService.VerifyOTPCode)
	route.Post("/auth/google", accountService.GoogleAuth)
	route.Get("/auth/me", auth.AuthMiddleware(), accountService.AuthMe)
	route.Post("/auth/complete_profile", auth.AuthMiddleware(), accountService.CompleteProfile)
	route.Post("/user/device", auth.AuthMiddleware(), accountService.RegisterDevice)
	route.Get("/notifications", auth.AuthMiddleware(), accountService.Notifications)

	bills := route.Group("/billing")
	{
		bills.Get("/plans", billingService.Plans)
		bills.Post("/checkout", auth.OptionalAuthMiddleware(), billingService.CreateCheckout)
		bills.Post("/portal", auth.AuthMiddleware(), billingService.CreatePortal)
		bills.Post("/seats", auth.AuthMiddleware(), billingService.UpdateSeats)
	}
	route.Post("/stripe/webhook", billingService.StripeWebhook)

	studioGroup := route.Group("/studio")
	{
		studioGroup.Get("/styles", studioService.ListStyles)
		studioGroup.Get("/files/:id", studioService.ServeFile)
		studioGroup.Get("/results/:uuid/:idx", studioService.ServeResult)
		studioGroup.Get("/progress/:uuid", adaptor.HTTPHandlerFunc(progressHub.ServeWS))
		studioGroup.Use(auth.AuthMiddleware())
		studioGroup.Post("/uploads", studioService.CreateUpload)
		studioGroup.Get("/uploads", studioService.ListUploads)
		studioGroup.Post("/generations", studioService.CreateGeneration)
		studioGroup.Get("/generations", studioService.ListGenerations)
		studioGroup.Get("/generations/:uuid", studioService.GetGeneration)
	}
	route.Post("/pipeline/callback", studioService.PipelineCallback)

	teams := route.Group("/teams", auth.AuthMiddleware())
	{
		teams.Post("/", teamService.CreateTeam)
		teams.Post("/invites", teamService.CreateInvite)
		teams.Post("/join", teamService.JoinTeam)
		teams.Get("/mine", teamService.MyTeam)
		teams.Delete("/members/:id", teamService.RemoveMember)
	}

	admin := route.Group("/admin", gateway.RequireAdmin(gateway.AdminAuthConfig{
		Key:      studioConfig.AdminKey,
		User:     studioConfig.AdminUser,
		Password: studioConfig.AdminPassword,
		Debug:    studioConfig.IsDebug,
	}))
	{
		admin.Post("/styles", studioService.CreateStyle)
		admin.Put("/styles/:slug", studioService.UpdateStyle)
		admin.Delete("/styles/:slug", studioService.DeactivateStyle)
		admin.Get("/users", dashService.ListUsers)
		admin.Get("/transactions", dashService.ListTransactions)
		admin.Get("/stats", dashService.Stats)
		admin.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	return route
}

func init() {
	var err error

	logrusLogger.Level = logrus.DebugLevel
	logrusLogger.SetReportCaller(true)
	logrusLogger.Out = os.Stderr

	configData, err := loadConfig()
	if err != nil {
		logrusLogger.Fatalf("error loading config: %v", err)
	}
	if err := json.Unmarshal(configData, &studioConfig); err != nil {
		logrusLogger.Fatalf("error in unmarshaling config file: %v", err)
	}
	configureLogger(studioConfig)

	dbPath := studioConfig.SQLitePath
	if dbPath == "" {
		dbPath = "studiopix.db"
	}
	if isTestRun() {
		if tmp, err := os.CreateTemp("", "studiopix-test-*.db"); err == nil {
			dbPath = tmp.Name()
			_ = tmp.Close()
		}
	}

	database, err = store.Open(dbPath, studioConfig.IsDebug)
	if err != nil {
		logrusLogger.Fatalf("error in connecting to db: %v", err)
	}
	if err := store.Migrate(database); err != nil {
		logrusLogger.Fatalf("error in migrations: %v", err)
	}

	uploadDir := studioConfig.UploadDir
	if isTestRun() {
		uploadDir, _ = os.MkdirTemp("", "studiopix-uploads-*")
	}
	fileStore, err = store.New(store.Options{UploadDir: uploadDir, DataKey: studioConfig.DataKey})
	if err != nil {
		logrusLogger.Fatalf("error opening file store: %v", err)
	}

	redisClient = utils.GetRedis(studioConfig)

	if studioConfig.FirebaseCredentials != "" {
		firebaseApp, err = firebase.NewApp(context.Background(), nil,
			option.WithCredentialsFile(studioConfig.FirebaseCredentials))
		if err != nil {
			logrusLogger.Printf("firebase unavailable, pushes disabled: %v", err)
			firebaseApp = nil
		}
	}

	initOTel(context.Background(), studioConfig, logrusLogger)

	auth = gateway.JWTAuth{StudioConfig: studioConfig}
	auth.Init()

	progressHub = studio.NewHub(studioConfig.Cors, logrusLogger)
	accountService = account.Service{
		Redis:        redisClient,
		Db:           database,
		StudioConfig: studioConfig,
		Logger:       logrusLogger,
		FirebaseApp:  firebaseApp,
		Auth:         &auth,
	}
	billingService = billing.NewService(database, redisClient, logrusLogger, studioConfig)
	studioService = studio.Service{
		Db:           database,
		Redis:        redisClient,
		Logger:       logrusLogger,
		StudioConfig: studioConfig,
		Store:        fileStore,
		Pipeline:     studio.NewPipelineClient(studioConfig, logrusLogger),
		Hub:          progressHub,
	}
	teamService = team.Service{Db: database, Logger: logrusLogger, StudioConfig: studioConfig}
	dashService = dashboard.Service{Db: database, Logger: logrusLogger}
}

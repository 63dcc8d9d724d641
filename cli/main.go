package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	firebase "firebase.google.com/go/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/studiopix/studiopix/account"
	gateway "github.com/studiopix/studiopix/apigateway"
	"github.com/studiopix/studiopix/billing"
	"github.com/studiopix/studiopix/dashboard"
	"github.com/studiopix/studiopix/models"
	"github.com/studiopix/studiopix/store"
	"github.com/studiopix/studiopix/studio"
	"github.com/studiopix/studiopix/team"
	"gorm.io/gorm"
)

var studioConfig models.StudioConfig
var logrusLogger = logrus.New()
var database *gorm.DB
var fileStore *store.Store
var redisClient *redis.Client
var firebaseApp *firebase.App
var auth gateway.JWTAuth
var accountService account.Service
var billingService *billing.Service
var studioService studio.Service
var teamService team.Service
var dashService dashboard.Service
var progressHub *studio.Hub
var logSampling gateway.LogSamplingConfig
var otelShutdown func(context.Context) error
var otelEnabled bool

func main() {
	if otelShutdown != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
			defer cancel()
			if err := otelShutdown(ctx); err != nil {
				logrusLogger.WithError(err).Warn("otel shutdown failed")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go accountService.Pusher(ctx)

	if studioConfig.Port == "" {
		studioConfig.Port = ":8080"
	}
	logrusLogger.Fatal(GetMainEngine().Listen(studioConfig.Port))
}

// Package account owns everything about a signed-in human: registration,
// login, social sign-in, OTP verification, device tokens and push
// notifications. Billing state lives on the Person; this package only
// reads it.
package account

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	gateway "github.com/studiopix/studiopix/apigateway"
	"github.com/studiopix/studiopix/models"
	"gorm.io/gorm"
)

type Auther interface {
	VerifyJWT(token string) (*gateway.TokenClaims, error)
	GenerateJWT(userID uint, email string) (string, error)
}

// Service holds the shared handles account handlers need.
type Service struct {
	Redis        *redis.Client
	Db           *gorm.DB
	StudioConfig models.StudioConfig
	Logger       *logrus.Logger
	FirebaseApp  *firebase.App
	Auth         Auther
}

var pushQueue = make(chan models.Notification, 64)

// Push enqueues a notification for delivery. Safe to call from any
// package; delivery happens on the Pusher goroutine.
func Push(n models.Notification) {
	select {
	case pushQueue <- n:
	default:
		// drop rather than block a request handler on a full queue
	}
}

// Pusher consumes the push queue: persist the notification, then deliver
// it over FCM when the user registered a device.
func (s *Service) Pusher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-pushQueue:
			if data.UserEmail != "" && data.To == "" {
				user, err := models.GetUserByEmail(data.UserEmail, s.Db)
				if err != nil {
					s.Logger.Printf("pusher: no user for %s: %v", data.UserEmail, err)
					continue
				}
				data.To = user.DeviceToken
				data.DeviceID = user.DeviceID
			}
			if err := s.Db.Create(&data).Error; err != nil {
				s.Logger.Printf("pusher: store notification: %v", err)
			}
			if data.To == "" {
				continue
			}
			if err := s.SendPush(ctx, data); err != nil {
				s.Logger.Printf("pusher: fcm send: %v", err)
			}
		}
	}
}

// SendPush delivers one notification over firebase cloud messaging.
func (s *Service) SendPush(ctx context.Context, data models.Notification) error {
	if s.FirebaseApp == nil {
		return fmt.Errorf("firebase app not configured")
	}
	client, err := s.FirebaseApp.Messaging(ctx)
	if err != nil {
		return err
	}

	// firebase data payloads are string maps, hence the flattening
	firebaseData := map[string]string{
		"type":           data.Type,
		"uuid":           data.UUID,
		"call_to_action": data.CallToAction,
	}
	if data.Generation != "" {
		firebaseData["generation"] = data.Generation
	}

	message := &messaging.Message{
		Token:        data.To,
		Notification: &messaging.Notification{Title: data.Title, Body: data.Body},
		Data:         firebaseData,
	}
	id, err := client.Send(ctx, message)
	if err != nil {
		return err
	}
	s.Logger.Printf("fcm message sent: %s", id)
	return nil
}

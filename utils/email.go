package utils

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/studiopix/studiopix/models"
)

// Email is a message for the transactional email gateway.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Sender  string `json:"sender,omitempty"`
}

var emailClient = &http.Client{Timeout: 10 * time.Second}

// SendEmail posts a message to the configured email gateway. Fire and
// forget from callers' perspective; they usually run it in a goroutine.
func SendEmail(cfg *models.StudioConfig, email Email) error {
	if cfg.EmailGateway == "" {
		return errors.New("email gateway not configured")
	}
	if email.Sender == "" {
		email.Sender = cfg.EmailSender
	}
	payload, err := json.Marshal(email)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, cfg.EmailGateway, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.EmailAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.EmailAPIKey)
	}
	res, err := emailClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return errors.New("email gateway refused the message: " + res.Status)
	}
	return nil
}

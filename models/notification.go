package models

import "time"

// Notification stores push notification data in the database.
type Notification struct {
	UUID         string    `json:"uuid"`
	Type         string    `json:"type"`
	Date         int64     `json:"date"`
	To           string    `json:"to"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	CallToAction string    `json:"call_to_action"`
	UserEmail    string    `json:"user_email"`
	DeviceID     string    `json:"device_id"`
	IsRead       bool      `json:"is_read"`
	Generation   string    `json:"generation,omitempty"`
	CreatedAt    time.Time `json:"CreatedAt,omitempty"`
	UpdatedAt    time.Time `json:"UpdatedAt,omitempty"`
	DeletedAt    *time.Time
}

package models

import (
	"time"

	"gorm.io/gorm"
)

// SubscriptionChange reasons.
const (
	SubChangeCreated    = "created"
	SubChangeRenewed    = "renewed"
	SubChangeUpgraded   = "upgraded"
	SubChangeDowngraded = "downgraded"
	SubChangeScheduled  = "scheduled"
	SubChangeCanceled   = "canceled"
	SubChangeSeats      = "seats"
)

// SubscriptionChange audits every tier or period transition we observe from
// stripe. Nothing reads it on the hot path; support and reconciliation do.
type SubscriptionChange struct {
	gorm.Model
	PersonID     uint       `json:"person_id" gorm:"index"`
	StripeSubID  string     `json:"stripe_sub_id" gorm:"index"`
	OldTier      string     `json:"old_tier"`
	NewTier      string     `json:"new_tier"`
	OldPeriodEnd *time.Time `json:"old_period_end,omitempty"`
	NewPeriodEnd *time.Time `json:"new_period_end,omitempty"`
	Reason       string     `json:"reason" gorm:"index"`
}

// WebhookEvent fences stripe event processing: the unique EventID insert
// happens inside the same transaction as the event's effects, so a replayed
// delivery finds the row and stops.
type WebhookEvent struct {
	gorm.Model
	EventID   string `json:"event_id" gorm:"index:idx_webhook_event,unique;not null"`
	EventType string `json:"event_type" gorm:"index"`
	Outcome   string `json:"outcome"`
}

// MarkEventProcessed inserts the fence row. A unique-constraint failure
// means another delivery got there first.
func MarkEventProcessed(tx *gorm.DB, eventID, eventType, outcome string) error {
	return tx.Create(&WebhookEvent{EventID: eventID, EventType: eventType, Outcome: outcome}).Error
}

// EventSeen checks the fence without writing.
func EventSeen(eventID string, db *gorm.DB) (bool, error) {
	var count int64
	err := db.Model(&WebhookEvent{}).Where("event_id = ?", eventID).Count(&count).Error
	return count > 0, err
}

package models

import (
	"errors"

	"gorm.io/gorm"
)

// Credit transaction kinds. The ledger is append-only; refunds and manual
// adjustments get their own rows rather than mutating old ones.
const (
	CreditKindSubscription = "subscription"
	CreditKindTryOnce      = "try_once"
	CreditKindTopup        = "topup"
	CreditKindSeat         = "seat"
	CreditKindGeneration   = "generation"
	CreditKindRefund       = "refund"
	CreditKindAdjustment   = "adjustment"
)

// Purchase types carried in stripe checkout metadata.
const (
	PurchaseSubscription = "subscription"
	PurchaseTryOnce      = "try_once"
	PurchaseTopup        = "topup"
	PurchaseTeamSeats    = "team_seats"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

// CreditTransaction is one ledger row. StripeInvoiceID carries a unique
// index: crediting the same invoice twice fails at the database even if two
// webhook deliveries race past the existence check. It is a pointer so rows
// without an invoice (debits, refunds) stay NULL and never collide.
type CreditTransaction struct {
	gorm.Model
	PersonID        uint    `json:"person_id" gorm:"index;not null"`
	Amount          int64   `json:"amount" gorm:"not null"`
	Kind            string  `json:"kind" gorm:"index;not null"`
	StripeInvoiceID *string `json:"stripe_invoice_id,omitempty" gorm:"index:idx_ledger_invoice,unique"`
	StripeSessionID string  `json:"stripe_session_id,omitempty" gorm:"index"`
	GenerationID    *uint   `json:"generation_id,omitempty" gorm:"index"`
	BalanceAfter    int64   `json:"balance_after"`
	Note            string  `json:"note,omitempty"`
}

// Purchase records one provisioned checkout.
type Purchase struct {
	gorm.Model
	PersonID        uint   `json:"person_id" gorm:"index;not null"`
	PurchaseType    string `json:"purchase_type" gorm:"index;not null"`
	PlanID          string `json:"plan_id" gorm:"index"`
	Seats           int64  `json:"seats,omitempty"`
	AmountTotal     int64  `json:"amount_total"`
	Currency        string `json:"currency"`
	StripeSessionID string `json:"stripe_session_id" gorm:"index:idx_purchase_session,unique"`
	StripeSubID     string `json:"stripe_sub_id,omitempty" gorm:"index"`
}

// HasTryOncePurchase reports whether the person ever provisioned a try-once
// plan. Enforced at checkout creation and again at webhook time.
func HasTryOncePurchase(personID uint, db *gorm.DB) (bool, error) {
	var count int64
	err := db.Model(&Purchase{}).
		Where("person_id = ? AND purchase_type = ?", personID, PurchaseTryOnce).
		Count(&count).Error
	return count > 0, err
}

// InvoiceCredited reports whether a ledger row already exists for the given
// stripe invoice. This is the double-credit guard; call it inside the same
// transaction that writes the credit.
func InvoiceCredited(invoiceID string, tx *gorm.DB) (bool, error) {
	if invoiceID == "" {
		return false, nil
	}
	var count int64
	err := tx.Model(&CreditTransaction{}).
		Where("stripe_invoice_id = ?", invoiceID).
		Count(&count).Error
	return count > 0, err
}

// CreditPerson appends a positive ledger row and bumps the cached balance.
// Must run inside a transaction together with whatever made the credit due.
func CreditPerson(tx *gorm.DB, personID uint, amount int64, kind, invoiceID, sessionID, note string) (CreditTransaction, error) {
	var entry CreditTransaction
	if amount <= 0 {
		return entry, errors.New("credit amount must be positive")
	}
	if err := tx.Model(&Person{}).Where("id = ?", personID).
		Update("credits", gorm.Expr("credits + ?", amount)).Error; err != nil {
		return entry, err
	}
	var person Person
	if err := tx.First(&person, personID).Error; err != nil {
		return entry, err
	}
	entry = CreditTransaction{
		PersonID:        personID,
		Amount:          amount,
		Kind:            kind,
		StripeSessionID: sessionID,
		BalanceAfter:    person.Credits,
		Note:            note,
	}
	if invoiceID != "" {
		entry.StripeInvoiceID = &invoiceID
	}
	return entry, tx.Create(&entry).Error
}

// DebitPerson appends a negative ledger row. The balance check and the
// decrement are one guarded UPDATE, so two concurrent debits can never take
// the balance below zero.
func DebitPerson(tx *gorm.DB, personID uint, amount int64, generationID *uint, note string) (CreditTransaction, error) {
	var entry CreditTransaction
	if amount <= 0 {
		return entry, errors.New("debit amount must be positive")
	}
	result := tx.Model(&Person{}).
		Where("id = ? AND credits >= ?", personID, amount).
		Update("credits", gorm.Expr("credits - ?", amount))
	if result.Error != nil {
		return entry, result.Error
	}
	if result.RowsAffected == 0 {
		return entry, ErrInsufficientBalance
	}
	var person Person
	if err := tx.First(&person, personID).Error; err != nil {
		return entry, err
	}
	entry = CreditTransaction{
		PersonID:     personID,
		Amount:       -amount,
		Kind:         CreditKindGeneration,
		GenerationID: generationID,
		BalanceAfter: person.Credits,
		Note:         note,
	}
	return entry, tx.Create(&entry).Error
}

// RefundGeneration puts the debited credits back, once. A second refund for
// the same generation is a no-op.
func RefundGeneration(tx *gorm.DB, personID uint, amount int64, generationID uint) (CreditTransaction, error) {
	var entry CreditTransaction
	var count int64
	if err := tx.Model(&CreditTransaction{}).
		Where("generation_id = ? AND kind = ?", generationID, CreditKindRefund).
		Count(&count).Error; err != nil {
		return entry, err
	}
	if count > 0 {
		return entry, nil
	}
	if err := tx.Model(&Person{}).Where("id = ?", personID).
		Update("credits", gorm.Expr("credits + ?", amount)).Error; err != nil {
		return entry, err
	}
	var person Person
	if err := tx.First(&person, personID).Error; err != nil {
		return entry, err
	}
	entry = CreditTransaction{
		PersonID:     personID,
		Amount:       amount,
		Kind:         CreditKindRefund,
		GenerationID: &generationID,
		BalanceAfter: person.Credits,
		Note:         "generation failed",
	}
	return entry, tx.Create(&entry).Error
}

package models

import (
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Person{}, &CreditTransaction{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func seedPerson(t *testing.T, db *gorm.DB, credits int64) Person {
	t.Helper()
	person := Person{Tier: TierFree, Credits: credits}
	if err := db.Create(&person).Error; err != nil {
		t.Fatalf("seed person: %v", err)
	}
	return person
}

func TestDebitPerson_NeverGoesNegative(t *testing.T) {
	db := newLedgerDB(t)
	person := seedPerson(t, db, 0)
	if _, err := CreditPerson(db, person.ID, 10, CreditKindTopup, "", "", "seed"); err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	if _, err := DebitPerson(db, person.ID, 7, nil, "first"); err != nil {
		t.Fatalf("first debit: %v", err)
	}
	_, err := DebitPerson(db, person.ID, 7, nil, "second")
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("second debit err = %v, want ErrInsufficientBalance", err)
	}

	var got Person
	if err := db.First(&got, person.ID).Error; err != nil {
		t.Fatalf("reload person: %v", err)
	}
	if got.Credits != 3 {
		t.Errorf("credits = %d, want 3", got.Credits)
	}
	balance, err := got.LedgerBalance(db)
	if err != nil {
		t.Fatalf("ledger balance: %v", err)
	}
	if balance != 3 {
		t.Errorf("ledger sum = %d, want 3", balance)
	}
}

func TestCreditPerson_InvoiceUnique(t *testing.T) {
	db := newLedgerDB(t)
	person := seedPerson(t, db, 0)

	if _, err := CreditPerson(db, person.ID, 100, CreditKindSubscription, "in_abc", "", "period credit"); err != nil {
		t.Fatalf("first credit: %v", err)
	}
	if _, err := CreditPerson(db, person.ID, 100, CreditKindSubscription, "in_abc", "", "replayed"); err == nil {
		t.Fatal("second credit for the same invoice succeeded")
	}

	credited, err := InvoiceCredited("in_abc", db)
	if err != nil {
		t.Fatalf("invoice credited: %v", err)
	}
	if !credited {
		t.Error("InvoiceCredited = false for a credited invoice")
	}

	// rows without an invoice never collide with each other
	if _, err := CreditPerson(db, person.ID, 5, CreditKindAdjustment, "", "", "manual"); err != nil {
		t.Fatalf("adjustment one: %v", err)
	}
	if _, err := CreditPerson(db, person.ID, 5, CreditKindAdjustment, "", "", "manual"); err != nil {
		t.Fatalf("adjustment two: %v", err)
	}
}

func TestRefundGeneration_Once(t *testing.T) {
	db := newLedgerDB(t)
	person := seedPerson(t, db, 10)
	generationID := uint(42)

	if _, err := DebitPerson(db, person.ID, 4, &generationID, "generation"); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if _, err := RefundGeneration(db, person.ID, 4, generationID); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if _, err := RefundGeneration(db, person.ID, 4, generationID); err != nil {
		t.Fatalf("replayed refund: %v", err)
	}

	var got Person
	if err := db.First(&got, person.ID).Error; err != nil {
		t.Fatalf("reload person: %v", err)
	}
	if got.Credits != 10 {
		t.Errorf("credits = %d, want 10 after one refund", got.Credits)
	}
}

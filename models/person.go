package models

import (
	"time"

	"gorm.io/gorm"
)

// Tier names. These are our internal plan names; stripe price IDs map to
// them through the billing catalog.
const (
	TierFree    = "free"
	TierStarter = "starter"
	TierPro     = "pro"
	TierStudio  = "studio"
)

// Person is the credit-owning business entity. It is deliberately distinct
// from User: a guest checkout creates a Person before any login exists, and
// a team pools its credits on the owner's person.
type Person struct {
	gorm.Model
	Name             string     `json:"name"`
	UserID           uint       `json:"user_id" gorm:"index"`
	TeamID           *uint      `json:"team_id,omitempty" gorm:"index"`
	Credits          int64      `json:"credits" gorm:"not null;default:0"`
	Tier             string     `json:"tier" gorm:"default:free"`
	PeriodEnd        *time.Time `json:"period_end,omitempty"`
	StripeCustomerID string     `json:"-" gorm:"index"`
	StripeSubID      string     `json:"-" gorm:"index"`
}

// GetPerson fetches a person by primary key.
func GetPerson(id uint, db *gorm.DB) (Person, error) {
	var p Person
	err := db.First(&p, id).Error
	return p, err
}

// GetPersonByStripeCustomer resolves the person behind a stripe customer id.
func GetPersonByStripeCustomer(customerID string, db *gorm.DB) (Person, error) {
	var p Person
	err := db.First(&p, "stripe_customer_id = ?", customerID).Error
	return p, err
}

// BillingPerson returns the person whose ledger a generation debits: the
// team pool owner when the person belongs to a pooling team, otherwise the
// person itself.
func (p Person) BillingPerson(db *gorm.DB) (Person, error) {
	if p.TeamID == nil {
		return p, nil
	}
	var team Team
	if err := db.First(&team, *p.TeamID).Error; err != nil {
		return p, err
	}
	if !team.PoolCredits {
		return p, nil
	}
	return GetPerson(team.OwnerPersonID, db)
}

// LedgerBalance recomputes the balance from the transaction ledger. The
// cached Credits column is what handlers read; this is the audit check.
func (p Person) LedgerBalance(db *gorm.DB) (int64, error) {
	var total struct{ Total int64 }
	err := db.Model(&CreditTransaction{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("person_id = ?", p.ID).
		Scan(&total).Error
	return total.Total, err
}

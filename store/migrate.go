package store

import (
	"github.com/studiopix/studiopix/models"
	"gorm.io/gorm"
)

// Migrate creates or amends every table the service uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Person{},
		&models.Team{},
		&models.TeamMember{},
		&models.TeamInvite{},
		&models.CreditTransaction{},
		&models.Purchase{},
		&models.SubscriptionChange{},
		&models.WebhookEvent{},
		&models.PhotoStyle{},
		&models.Upload{},
		&models.Generation{},
		&models.Notification{},
	)
}

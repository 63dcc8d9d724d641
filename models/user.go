package models

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var log = logrus.New()

// User contains the login identity. It should be kept simple and only
// contain the fields that are needed; everything money-related lives on
// the Person the user owns.
type User struct {
	gorm.Model
	Username    string `json:"username" gorm:"index:idx_username,unique"`
	Password    string `binding:"omitempty,min=8,max=64" json:"password"`
	Fullname    string `json:"fullname"`
	Mobile      string `json:"mobile"`
	Email       string `json:"email" gorm:"index:idx_email,unique"`
	Role        string `json:"role" gorm:"default:user"`
	GoogleSub   string `json:"-" gorm:"index"`
	AvatarURL   string `json:"avatar_url"`
	DeviceID    string `json:"device_id"`
	DeviceToken string `json:"-"`
	IsVerified  bool   `json:"is_verified" gorm:"default:false"`
	// IsGuest marks accounts the webhook provisioned from a bare checkout
	// email. A later signup with the same email adopts this row.
	IsGuest  bool   `json:"is_guest" gorm:"default:false"`
	Language string `json:"language" gorm:"default:en"`
	PersonID uint   `json:"person_id" gorm:"index"`
	Person   Person `json:"person,omitempty"`
	db       *gorm.DB
}

// GetUserByEmail retrieves a user by their lowercased email.
func GetUserByEmail(email string, db *gorm.DB) (User, error) {
	var user User
	if result := db.Preload("Person").First(&user, "email = ?", strings.ToLower(email)); errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return user, errors.New("user not found")
	}
	user.db = db
	return user, nil
}

// GetUserByID retrieves a user with their person preloaded.
func GetUserByID(id uint, db *gorm.DB) (User, error) {
	var user User
	if err := db.Preload("Person").First(&user, id).Error; err != nil {
		return user, err
	}
	user.db = db
	return user, nil
}

// GetUserByGoogleSub finds the user previously linked to a google subject.
func GetUserByGoogleSub(sub string, db *gorm.DB) (User, error) {
	var user User
	err := db.Preload("Person").First(&user, "google_sub = ?", sub).Error
	user.db = db
	return user, err
}

func (u *User) SanitizeName() {
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
}

func (u *User) HashPassword() error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), 8)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// ComparePassword checks a plaintext candidate against the stored hash.
func (u *User) ComparePassword(candidate string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(candidate))
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}

// CreateWithPerson creates the user and their personal Person in one
// transaction, so a login identity never exists without a credit owner.
func (u *User) CreateWithPerson(db *gorm.DB) error {
	u.SanitizeName()
	return db.Transaction(func(tx *gorm.DB) error {
		person := Person{Name: u.Fullname, Tier: TierFree}
		if err := tx.Create(&person).Error; err != nil {
			return err
		}
		u.PersonID = person.ID
		if err := tx.Create(u).Error; err != nil {
			return err
		}
		person.UserID = u.ID
		return tx.Model(&person).Update("user_id", u.ID).Error
	})
}

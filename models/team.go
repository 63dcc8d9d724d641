package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	TeamRoleOwner  = "owner"
	TeamRoleMember = "member"
)

// Team is a seat-based billing group. When PoolCredits is set, members'
// generations draw from the owner person's ledger.
type Team struct {
	gorm.Model
	Name          string `json:"name" binding:"required"`
	OwnerPersonID uint   `json:"owner_person_id" gorm:"index;not null"`
	Seats         int64  `json:"seats" gorm:"default:1"`
	PoolCredits   bool   `json:"pool_credits" gorm:"default:true"`
	StripeSubID   string `json:"-" gorm:"index"`
	Members       []TeamMember
}

type TeamMember struct {
	gorm.Model
	TeamID   uint   `json:"team_id" gorm:"index:idx_team_person,unique"`
	PersonID uint   `json:"person_id" gorm:"index:idx_team_person,unique"`
	Role     string `json:"role" gorm:"default:member"`
}

type TeamInvite struct {
	gorm.Model
	TeamID    uint      `json:"team_id" gorm:"index"`
	Email     string    `json:"email" gorm:"index"`
	Token     string    `json:"token" gorm:"index:idx_invite_token,unique"`
	ExpiresAt time.Time `json:"expires_at"`
	Accepted  bool      `json:"accepted" gorm:"default:false"`
}

// GetTeam loads a team with its members.
func GetTeam(id uint, db *gorm.DB) (Team, error) {
	var team Team
	err := db.Preload("Members").First(&team, id).Error
	return team, err
}

// GetTeamByOwner finds the team a person owns, if any.
func GetTeamByOwner(personID uint, db *gorm.DB) (Team, error) {
	var team Team
	err := db.Preload("Members").First(&team, "owner_person_id = ?", personID).Error
	return team, err
}

// SeatsUsed counts active members, owner included.
func (t Team) SeatsUsed(db *gorm.DB) (int64, error) {
	var count int64
	err := db.Model(&TeamMember{}).Where("team_id = ?", t.ID).Count(&count).Error
	return count, err
}

// HasFreeSeat reports whether another member fits under the paid seats.
func (t Team) HasFreeSeat(db *gorm.DB) (bool, error) {
	used, err := t.SeatsUsed(db)
	if err != nil {
		return false, err
	}
	return used < t.Seats, nil
}

// GetInviteByToken fetches a pending invite.
func GetInviteByToken(token string, db *gorm.DB) (TeamInvite, error) {
	var invite TeamInvite
	err := db.First(&invite, "token = ? AND accepted = ?", token, false).Error
	return invite, err
}

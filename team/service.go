// Package team implements seat-based collaboration: team creation, email
// invites with expiring tokens, membership and the pooled-credit view.
// Seat counts come from billing; this package only enforces them.
package team

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/studiopix/studiopix/apperr"
	"github.com/studiopix/studiopix/models"
	"github.com/studiopix/studiopix/utils"
	"gorm.io/gorm"
)

const inviteTTL = 7 * 24 * time.Hour

// Service holds the shared handles team handlers need.
type Service struct {
	Db           *gorm.DB
	Logger       *logrus.Logger
	StudioConfig models.StudioConfig
}

func bindJSON(c *fiber.Ctx, dst interface{}) error {
	if len(c.Body()) == 0 {
		return fiber.ErrBadRequest
	}
	if err := json.Unmarshal(c.Body(), dst); err != nil {
		return err
	}
	return models.ValidateStruct(dst)
}

func getUserID(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		switch t := v.(type) {
		case uint:
			return t
		case int:
			return uint(t)
		case int64:
			return uint(t)
		case float64:
			return uint(t)
		}
	}
	return 0
}

func (s *Service) currentUser(c *fiber.Ctx) (models.User, error) {
	return models.GetUserByID(getUserID(c), s.Db)
}

type createTeamRequest struct {
	Name  string `json:"name" binding:"required,min=2,max=64"`
	Seats int64  `json:"seats" binding:"omitempty,min=1,max=500"`
}

// CreateTeam starts a team owned by the caller's person. A team that came
// out of a seat checkout already exists; this is the self-serve path and
// starts at the configured seat count (default 1).
func (s *Service) CreateTeam(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"code": "unauthorized", "message": "user not found"})
	}
	var req createTeamRequest
	if err := bindJSON(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": err.Error()})
	}
	if _, err := models.GetTeamByOwner(user.PersonID, s.Db); err == nil {
		return c.Status(http.StatusConflict).JSON(fiber.Map{"code": "team_exists", "message": "you already own a team"})
	}

	seats := req.Seats
	if seats < 1 {
		seats = 1
	}
	team := models.Team{
		Name:          req.Name,
		OwnerPersonID: user.PersonID,
		Seats:         seats,
		PoolCredits:   true,
	}
	err = s.Db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&team).Error; err != nil {
			return err
		}
		member := models.TeamMember{TeamID: team.ID, PersonID: user.PersonID, Role: models.TeamRoleOwner}
		if err := tx.Create(&member).Error; err != nil {
			return err
		}
		return tx.Model(&models.Person{}).Where("id = ?", user.PersonID).Update("team_id", team.ID).Error
	})
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"team": team})
}

type inviteRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// CreateInvite mails an invite token for one seat.
func (s *Service) CreateInvite(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"code": "unauthorized", "message": "user not found"})
	}
	var req inviteRequest
	if err := bindJSON(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": err.Error()})
	}
	team, err := models.GetTeamByOwner(user.PersonID, s.Db)
	if err != nil {
		return apperr.Respond(c, apperr.ErrNotTeamOwner)
	}
	free, err := team.HasFreeSeat(s.Db)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}
	if !free {
		return apperr.Respond(c, apperr.ErrNoSeats)
	}

	invite := models.TeamInvite{
		TeamID:    team.ID,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(inviteTTL),
	}
	if err := s.Db.Create(&invite).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}

	go func() {
		if err := utils.SendEmail(&s.StudioConfig, utils.Email{
			To:      invite.Email,
			Subject: fmt.Sprintf("You're invited to join %s on studiopix", team.Name),
			Body:    fmt.Sprintf("Join with this link: %s/teams/join?token=%s (valid for 7 days)", s.StudioConfig.PublicURL, invite.Token),
		}); err != nil {
			s.Logger.Printf("invite email to %s: %v", invite.Email, err)
		}
	}()
	return c.Status(http.StatusCreated).JSON(fiber.Map{"invite": invite})
}

type joinRequest struct {
	Token string `json:"token" binding:"required"`
}

// JoinTeam consumes an invite token and attaches the caller's person.
func (s *Service) JoinTeam(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"code": "unauthorized", "message": "user not found"})
	}
	var req joinRequest
	if err := bindJSON(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": err.Error()})
	}
	invite, err := models.GetInviteByToken(req.Token, s.Db)
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"code": "not_found", "message": "no such invite"})
	}
	if time.Now().After(invite.ExpiresAt) {
		return apperr.Respond(c, apperr.ErrInviteExpired)
	}
	team, err := models.GetTeam(invite.TeamID, s.Db)
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"code": "not_found", "message": "team is gone"})
	}
	free, err := team.HasFreeSeat(s.Db)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}
	if !free {
		return apperr.Respond(c, apperr.ErrNoSeats)
	}

	err = s.Db.Transaction(func(tx *gorm.DB) error {
		member := models.TeamMember{TeamID: team.ID, PersonID: user.PersonID, Role: models.TeamRoleMember}
		if err := tx.Create(&member).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Person{}).Where("id = ?", user.PersonID).Update("team_id", team.ID).Error; err != nil {
			return err
		}
		return tx.Model(&invite).Update("accepted", true).Error
	})
	if err != nil {
		// the unique team+person index catches double joins
		return c.Status(http.StatusConflict).JSON(fiber.Map{"code": "already_member", "message": "you are already on this team"})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"team": team})
}

// MyTeam returns the caller's team with members, seats and pooled balance.
func (s *Service) MyTeam(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"code": "unauthorized", "message": "user not found"})
	}
	person, err := models.GetPerson(user.PersonID, s.Db)
	if err != nil || person.TeamID == nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"code": "not_found", "message": "you are not on a team"})
	}
	team, err := models.GetTeam(*person.TeamID, s.Db)
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"code": "not_found", "message": "team is gone"})
	}
	used, err := team.SeatsUsed(s.Db)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}
	pool, err := models.GetPerson(team.OwnerPersonID, s.Db)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"team":         team,
		"seats_used":   used,
		"pool_credits": pool.Credits,
	})
}

// RemoveMember frees a seat. Owner only; the owner can't remove themselves.
func (s *Service) RemoveMember(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"code": "unauthorized", "message": "user not found"})
	}
	team, err := models.GetTeamByOwner(user.PersonID, s.Db)
	if err != nil {
		return apperr.Respond(c, apperr.ErrNotTeamOwner)
	}
	memberID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": "bad member id"})
	}

	var member models.TeamMember
	if err := s.Db.First(&member, "id = ? AND team_id = ?", memberID, team.ID).Error; err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"code": "not_found", "message": "no such member"})
	}
	if member.PersonID == team.OwnerPersonID {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": "the owner can't leave their own team"})
	}

	err = s.Db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&member).Error; err != nil {
			return err
		}
		return tx.Model(&models.Person{}).Where("id = ?", member.PersonID).Update("team_id", nil).Error
	})
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "member removed"})
}

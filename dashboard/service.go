// Package dashboard exposes the admin ops surface: user and ledger
// listings plus aggregate stats. Everything here sits behind the admin
// guard, see cli/config.go.
package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/studiopix/studiopix/models"
	"gorm.io/gorm"
)

type Service struct {
	Db     *gorm.DB
	Logger *logrus.Logger
}

const defaultPageSize = 50

func pagination(c *fiber.Ctx) (limit, offset int) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

type userRow struct {
	ID         uint       `json:"id"`
	Email      string     `json:"email"`
	Fullname   string     `json:"fullname"`
	Mobile     string     `json:"mobile"`
	IsGuest    bool       `json:"is_guest"`
	IsVerified bool       `json:"is_verified"`
	PersonID   uint       `json:"person_id"`
	Tier       string     `json:"tier"`
	Credits    int64      `json:"credits"`
	CreatedAt  time.Time  `json:"created_at"`
	PeriodEnd  *time.Time `json:"period_end,omitempty"`
}

// ListUsers pages over accounts joined with their person, newest first.
// Passwords never leave this handler.
func (s *Service) ListUsers(c *fiber.Ctx) error {
	limit, offset := pagination(c)

	query := s.Db.Table("users").
		Select("users.id, users.email, users.fullname, users.mobile, users.is_guest, users.is_verified, users.person_id, users.created_at, people.tier, people.credits, people.period_end").
		Joins("left join people on people.id = users.person_id").
		Where("users.deleted_at is null")
	if email := c.Query("email"); email != "" {
		query = query.Where("users.email like ?", "%"+email+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		s.Logger.WithError(err).Error("admin user count failed")
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "server_error", "message": err.Error()})
	}

	var rows []userRow
	if err := query.Order("users.id desc").Limit(limit).Offset(offset).Scan(&rows).Error; err != nil {
		s.Logger.WithError(err).Error("admin user listing failed")
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "server_error", "message": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"users": rows, "count": total})
}

// ListTransactions pages over the credit ledger, optionally filtered by
// person and kind.
func (s *Service) ListTransactions(c *fiber.Ctx) error {
	limit, offset := pagination(c)

	query := s.Db.Model(&models.CreditTransaction{})
	if pid, err := strconv.Atoi(c.Query("person_id")); err == nil && pid > 0 {
		query = query.Where("person_id = ?", pid)
	}
	if kind := c.Query("kind"); kind != "" {
		query = query.Where("kind = ?", kind)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		s.Logger.WithError(err).Error("admin ledger count failed")
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "server_error", "message": err.Error()})
	}

	var rows []models.CreditTransaction
	if err := query.Order("id desc").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		s.Logger.WithError(err).Error("admin ledger listing failed")
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "server_error", "message": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": rows, "count": total})
}

type revenueDay struct {
	Day      string `json:"day"`
	Currency string `json:"currency"`
	Cents    int64  `json:"cents"`
	Count    int64  `json:"count"`
}

type statusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// Stats returns the numbers the ops dashboard graphs: account and
// generation counts, credits issued vs spent, and revenue per day over
// the trailing 30 days.
func (s *Service) Stats(c *fiber.Ctx) error {
	var users, guests, teams int64
	if err := s.Db.Model(&models.User{}).Count(&users).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "server_error", "message": err.Error()})
	}
	s.Db.Model(&models.User{}).Where("is_guest = ?", true).Count(&guests)
	s.Db.Model(&models.Team{}).Count(&teams)

	var generations []statusCount
	if err := s.Db.Model(&models.Generation{}).
		Select("status, count(*) as count").
		Group("status").Scan(&generations).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "server_error", "message": err.Error()})
	}

	var issued, spent int64
	s.Db.Model(&models.CreditTransaction{}).
		Where("amount > 0").Select("coalesce(sum(amount), 0)").Scan(&issued)
	s.Db.Model(&models.CreditTransaction{}).
		Where("amount < 0").Select("coalesce(sum(-amount), 0)").Scan(&spent)

	since := time.Now().AddDate(0, 0, -30)
	var revenue []revenueDay
	if err := s.Db.Model(&models.Purchase{}).
		Select("date(created_at) as day, currency, coalesce(sum(amount_total), 0) as cents, count(*) as count").
		Where("created_at >= ?", since).
		Group("date(created_at), currency").
		Order("day desc").Scan(&revenue).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "server_error", "message": err.Error()})
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"users":          users,
		"guests":         guests,
		"teams":          teams,
		"generations":    generations,
		"credits_issued": issued,
		"credits_spent":  spent,
		"revenue_by_day": revenue,
	})
}

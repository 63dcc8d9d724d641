package billing

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v81"
	portalsession "github.com/stripe/stripe-go/v81/billingportal/session"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/subscription"
	"github.com/stripe/stripe-go/v81/subscriptionitem"
	"github.com/studiopix/studiopix/apperr"
	"github.com/studiopix/studiopix/models"
	"gorm.io/gorm"
)

type checkoutRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
	Seats  int64  `json:"seats"`
	Email  string `json:"email" binding:"omitempty,email"`
}

// CreateCheckout starts a stripe checkout session for a catalog plan. Works
// for signed-in users and for guests who only give an email; the webhook
// provisions a guest account for the latter.
func (s *Service) CreateCheckout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := bindJSON(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": err.Error()})
	}
	plan, ok := PlanByID(req.PlanID)
	if !ok {
		return apperr.Respond(c, apperr.WithFields(apperr.ErrUnknownPlan, map[string]any{"plan_id": req.PlanID}))
	}

	person, email, err := s.resolveBuyer(c, req.Email)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": err.Error()})
	}

	if plan.PurchaseType == models.PurchaseTryOnce {
		had, err := models.HasTryOncePurchase(person.ID, s.Db)
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
		}
		if had {
			return apperr.Respond(c, apperr.ErrAlreadyPurchased)
		}
	}

	quantity := int64(1)
	if plan.PerSeat {
		quantity = req.Seats
		if quantity < 1 {
			quantity = 1
		}
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(s.StudioConfig.CheckoutSuccessURL),
		CancelURL:  stripe.String(s.StudioConfig.CheckoutCancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(stripePrice(s.StudioConfig, plan)),
			Quantity: stripe.Int64(quantity),
		}},
	}
	if plan.Interval == intervalOnce {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
	} else {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
	}
	if person.StripeCustomerID != "" {
		params.Customer = stripe.String(person.StripeCustomerID)
	} else if email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.AddMetadata("purchase_type", plan.PurchaseType)
	params.AddMetadata("plan_id", plan.ID)
	params.AddMetadata("seats", strconv.FormatInt(quantity, 10))
	if person.ID != 0 {
		params.AddMetadata("person_id", strconv.FormatUint(uint64(person.ID), 10))
	}

	sess, err := session.New(params)
	if err != nil {
		s.Logger.Printf("stripe checkout for plan %s: %v", plan.ID, err)
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{"code": "stripe_error", "message": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"url": sess.URL, "session_id": sess.ID})
}

// CreatePortal opens a stripe customer-portal session.
func (s *Service) CreatePortal(c *fiber.Ctx) error {
	userID := getUserID(c)
	if userID == 0 {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"code": "unauthorized", "message": "missing user id"})
	}
	user, err := models.GetUserByID(userID, s.Db)
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"code": "not_found", "message": "user not found"})
	}
	if user.Person.StripeCustomerID == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "no_customer", "message": "no billing history yet"})
	}
	sess, err := portalsession.New(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(user.Person.StripeCustomerID),
		ReturnURL: stripe.String(s.StudioConfig.PortalReturnURL),
	})
	if err != nil {
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{"code": "stripe_error", "message": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"url": sess.URL})
}

type seatsRequest struct {
	Seats int64 `json:"seats" binding:"required,min=1,max=500"`
}

// UpdateSeats changes the paid seat quantity on the team's subscription.
// Only the owner can do it, and never below the seats already in use.
func (s *Service) UpdateSeats(c *fiber.Ctx) error {
	userID := getUserID(c)
	if userID == 0 {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"code": "unauthorized", "message": "missing user id"})
	}
	var req seatsRequest
	if err := bindJSON(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "bad_request", "message": err.Error()})
	}
	user, err := models.GetUserByID(userID, s.Db)
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"code": "not_found", "message": "user not found"})
	}
	team, err := models.GetTeamByOwner(user.PersonID, s.Db)
	if err != nil {
		return c.Status(http.StatusForbidden).JSON(fiber.Map{"code": "not_team_owner", "message": "you don't own a team"})
	}
	used, err := team.SeatsUsed(s.Db)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}
	if req.Seats < used {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"code": "seats_in_use", "message": fmt.Sprintf("%d seats are in use, remove members first", used)})
	}

	if team.StripeSubID != "" {
		sub, err := subscription.Get(team.StripeSubID, nil)
		if err != nil {
			return c.Status(http.StatusBadGateway).JSON(fiber.Map{"code": "stripe_error", "message": err.Error()})
		}
		if sub.Items == nil || len(sub.Items.Data) == 0 {
			return c.Status(http.StatusBadGateway).JSON(fiber.Map{"code": "stripe_error", "message": "subscription has no items"})
		}
		if _, err := subscriptionitem.Update(sub.Items.Data[0].ID, &stripe.SubscriptionItemParams{
			Quantity: stripe.Int64(req.Seats),
		}); err != nil {
			return c.Status(http.StatusBadGateway).JSON(fiber.Map{"code": "stripe_error", "message": err.Error()})
		}
	}

	oldSeats := team.Seats
	err = s.Db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Team{}).Where("id = ?", team.ID).Update("seats", req.Seats).Error; err != nil {
			return err
		}
		change := models.SubscriptionChange{
			PersonID:    team.OwnerPersonID,
			StripeSubID: team.StripeSubID,
			Reason:      models.SubChangeSeats,
			OldTier:     fmt.Sprintf("seats:%d", oldSeats),
			NewTier:     fmt.Sprintf("seats:%d", req.Seats),
		}
		return tx.Create(&change).Error
	})
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "database_error", "message": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"seats": req.Seats})
}

// resolveBuyer finds the person behind a checkout: the signed-in user's
// person, or a guest person looked up (or created) by email.
func (s *Service) resolveBuyer(c *fiber.Ctx, email string) (models.Person, string, error) {
	if userID := getUserID(c); userID != 0 {
		user, err := models.GetUserByID(userID, s.Db)
		if err != nil {
			return models.Person{}, "", err
		}
		return user.Person, user.Email, nil
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return models.Person{}, "", errors.New("email is required for guest checkout")
	}
	if user, err := models.GetUserByEmail(email, s.Db); err == nil {
		return user.Person, email, nil
	}
	person, err := provisionGuest(s.Db, email)
	return person, email, err
}

// provisionGuest creates the placeholder account a bare-email checkout
// attaches to. Signup with the same email later adopts it.
func provisionGuest(db *gorm.DB, email string) (models.Person, error) {
	user := models.User{
		Email:    email,
		Username: email,
		Password: uuid.NewString(),
		IsGuest:  true,
	}
	if err := user.HashPassword(); err != nil {
		return models.Person{}, err
	}
	if err := user.CreateWithPerson(db); err != nil {
		return models.Person{}, err
	}
	return models.GetPerson(user.PersonID, db)
}

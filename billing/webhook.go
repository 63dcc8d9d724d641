package billing

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	stripe "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"github.com/studiopix/studiopix/apperr"
	"github.com/studiopix/studiopix/models"
	"gorm.io/gorm"
)

// StripeWebhook verifies and dispatches stripe events. Every handler runs
// its effects and the WebhookEvent fence in one transaction, so a replayed
// delivery either finds the fence or rolls back with it.
func (s *Service) StripeWebhook(c *fiber.Ctx) error {
	event, err := webhook.ConstructEvent(c.Body(), c.Get("Stripe-Signature"), s.StudioConfig.StripeWebhookSecret)
	if err != nil {
		s.Logger.Printf("stripe webhook signature: %v", err)
		return apperr.Respond(c, apperr.ErrBadSignature)
	}

	switch event.Type {
	case "checkout.session.completed":
		err = s.handleCheckoutCompleted(event)
	case "invoice.paid":
		err = s.handleInvoicePaid(event)
	case "customer.subscription.updated":
		err = s.handleSubscriptionUpdated(event)
	case "customer.subscription.deleted":
		err = s.handleSubscriptionDeleted(event)
	case "subscription_schedule.updated", "subscription_schedule.released":
		err = s.handleScheduleChanged(event)
	default:
		err = s.fenceOnly(event, "ignored")
	}

	if errors.Is(err, apperr.ErrDuplicateEvent) {
		return c.Status(http.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}
	if err != nil {
		// 500 makes stripe retry, which also covers out-of-order delivery
		s.Logger.Printf("stripe webhook %s (%s): %v", event.ID, event.Type, err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"code": "webhook_failed", "message": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"received": true})
}

// fence inserts the processed marker inside tx, failing with
// apperr.ErrDuplicateEvent when the event was handled before.
func fence(tx *gorm.DB, event stripe.Event, outcome string) error {
	seen, err := models.EventSeen(event.ID, tx)
	if err != nil {
		return err
	}
	if seen {
		return apperr.ErrDuplicateEvent
	}
	return models.MarkEventProcessed(tx, event.ID, string(event.Type), outcome)
}

func (s *Service) fenceOnly(event stripe.Event, outcome string) error {
	return s.Db.Transaction(func(tx *gorm.DB) error {
		return fence(tx, event, outcome)
	})
}

func (s *Service) handleCheckoutCompleted(event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return err
	}
	email := ""
	if sess.CustomerDetails != nil {
		email = sess.CustomerDetails.Email
	}
	if email == "" {
		email = sess.CustomerEmail
	}

	return s.Db.Transaction(func(tx *gorm.DB) error {
		if err := fence(tx, event, "provisioned"); err != nil {
			return err
		}
		person, err := resolveCheckoutPerson(tx, sess, email)
		if err != nil {
			return err
		}
		if sess.Customer != nil && person.StripeCustomerID == "" {
			if err := tx.Model(&models.Person{}).Where("id = ?", person.ID).
				Update("stripe_customer_id", sess.Customer.ID).Error; err != nil {
				return err
			}
		}

		var existing int64
		if err := tx.Model(&models.Purchase{}).Where("stripe_session_id = ?", sess.ID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		planID := sess.Metadata["plan_id"]
		plan, ok := PlanByID(planID)
		if !ok {
			s.Logger.Printf("checkout %s carries unknown plan %q", sess.ID, planID)
			return nil
		}
		seats, _ := strconv.ParseInt(sess.Metadata["seats"], 10, 64)
		if seats < 1 {
			seats = 1
		}

		if plan.PurchaseType == models.PurchaseTryOnce {
			had, err := models.HasTryOncePurchase(person.ID, tx)
			if err != nil {
				return err
			}
			if had {
				s.Logger.Printf("checkout %s: person %d already used try-once", sess.ID, person.ID)
				return nil
			}
		}

		purchase := models.Purchase{
			PersonID:        person.ID,
			PurchaseType:    plan.PurchaseType,
			PlanID:          plan.ID,
			Seats:           seats,
			AmountTotal:     sess.AmountTotal,
			Currency:        string(sess.Currency),
			StripeSessionID: sess.ID,
		}
		if sess.Subscription != nil {
			purchase.StripeSubID = sess.Subscription.ID
		}
		if err := tx.Create(&purchase).Error; err != nil {
			return err
		}

		switch plan.PurchaseType {
		case models.PurchaseTryOnce, models.PurchaseTopup:
			_, err := models.CreditPerson(tx, person.ID, plan.Credits, creditKindFor(plan), "", sess.ID,
				fmt.Sprintf("checkout %s (%s)", sess.ID, plan.ID))
			return err
		case models.PurchaseSubscription:
			if sess.Subscription == nil {
				return nil
			}
			change := models.SubscriptionChange{
				PersonID:    person.ID,
				StripeSubID: sess.Subscription.ID,
				OldTier:     person.Tier,
				NewTier:     plan.Tier,
				Reason:      models.SubChangeCreated,
			}
			if err := tx.Create(&change).Error; err != nil {
				return err
			}
			return tx.Model(&models.Person{}).Where("id = ?", person.ID).
				Update("stripe_sub_id", sess.Subscription.ID).Error
		case models.PurchaseTeamSeats:
			return startTeam(tx, person, seats, purchase.StripeSubID)
		}
		return nil
	})
}

func (s *Service) handleInvoicePaid(event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return err
	}
	if invoice.Customer == nil {
		return s.fenceOnly(event, "no customer")
	}

	return s.Db.Transaction(func(tx *gorm.DB) error {
		if err := fence(tx, event, "credited"); err != nil {
			return err
		}
		person, err := models.GetPersonByStripeCustomer(invoice.Customer.ID, tx)
		if err != nil {
			// checkout.session.completed may not have landed yet; let
			// stripe retry this delivery
			return fmt.Errorf("no person for stripe customer %s: %w", invoice.Customer.ID, err)
		}

		credited, err := models.InvoiceCredited(invoice.ID, tx)
		if err != nil {
			return err
		}
		if credited {
			return nil
		}

		line := firstInvoiceLine(invoice)
		if line == nil || line.Price == nil {
			s.Logger.Printf("invoice %s has no priced lines", invoice.ID)
			return nil
		}
		plan, ok := planByPrice(s.StudioConfig, line.Price.ID)
		if !ok {
			s.Logger.Printf("invoice %s price %s not in catalog", invoice.ID, line.Price.ID)
			return nil
		}

		credits := plan.Credits
		kind := models.CreditKindSubscription
		if plan.PerSeat {
			kind = models.CreditKindSeat
			quantity := line.Quantity
			if quantity < 1 {
				quantity = 1
			}
			credits = plan.Credits * quantity
		}
		if _, err := models.CreditPerson(tx, person.ID, credits, kind, invoice.ID, "",
			fmt.Sprintf("invoice %s (%s)", invoice.ID, plan.ID)); err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if !plan.PerSeat && plan.Tier != "" {
			updates["tier"] = plan.Tier
		}
		if line.Period != nil && line.Period.End > 0 {
			updates["period_end"] = time.Unix(line.Period.End, 0)
		}
		if invoice.Subscription != nil {
			updates["stripe_sub_id"] = invoice.Subscription.ID
		}
		if len(updates) > 0 {
			if err := tx.Model(&models.Person{}).Where("id = ?", person.ID).Updates(updates).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) handleSubscriptionUpdated(event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return err
	}
	if sub.Customer == nil {
		return s.fenceOnly(event, "no customer")
	}

	return s.Db.Transaction(func(tx *gorm.DB) error {
		if err := fence(tx, event, "recorded"); err != nil {
			return err
		}
		person, err := models.GetPersonByStripeCustomer(sub.Customer.ID, tx)
		if err != nil {
			return fmt.Errorf("no person for stripe customer %s: %w", sub.Customer.ID, err)
		}

		newTier := person.Tier
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			if plan, ok := planByPrice(s.StudioConfig, sub.Items.Data[0].Price.ID); ok && plan.Tier != "" {
				newTier = plan.Tier
			}
		}
		reason := models.SubChangeRenewed
		switch {
		case sub.Schedule != nil:
			reason = models.SubChangeScheduled
		case tierRank(newTier) > tierRank(person.Tier):
			reason = models.SubChangeUpgraded
		case tierRank(newTier) < tierRank(person.Tier):
			reason = models.SubChangeDowngraded
		}

		var newPeriodEnd *time.Time
		if sub.CurrentPeriodEnd > 0 {
			end := time.Unix(sub.CurrentPeriodEnd, 0)
			newPeriodEnd = &end
		}
		change := models.SubscriptionChange{
			PersonID:     person.ID,
			StripeSubID:  sub.ID,
			OldTier:      person.Tier,
			NewTier:      newTier,
			OldPeriodEnd: person.PeriodEnd,
			NewPeriodEnd: newPeriodEnd,
			Reason:       reason,
		}
		if err := tx.Create(&change).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{"tier": newTier, "stripe_sub_id": sub.ID}
		if newPeriodEnd != nil {
			updates["period_end"] = *newPeriodEnd
		}
		return tx.Model(&models.Person{}).Where("id = ?", person.ID).Updates(updates).Error
	})
}

func (s *Service) handleSubscriptionDeleted(event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return err
	}
	if sub.Customer == nil {
		return s.fenceOnly(event, "no customer")
	}

	return s.Db.Transaction(func(tx *gorm.DB) error {
		if err := fence(tx, event, "canceled"); err != nil {
			return err
		}
		person, err := models.GetPersonByStripeCustomer(sub.Customer.ID, tx)
		if err != nil {
			// customer we never provisioned; nothing to downgrade
			return nil
		}
		change := models.SubscriptionChange{
			PersonID:     person.ID,
			StripeSubID:  sub.ID,
			OldTier:      person.Tier,
			NewTier:      models.TierFree,
			OldPeriodEnd: person.PeriodEnd,
			Reason:       models.SubChangeCanceled,
		}
		if err := tx.Create(&change).Error; err != nil {
			return err
		}
		return tx.Model(&models.Person{}).Where("id = ?", person.ID).Updates(map[string]interface{}{
			"tier":          models.TierFree,
			"stripe_sub_id": "",
			"period_end":    nil,
		}).Error
	})
}

func (s *Service) handleScheduleChanged(event stripe.Event) error {
	var schedule stripe.SubscriptionSchedule
	if err := json.Unmarshal(event.Data.Raw, &schedule); err != nil {
		return err
	}
	if schedule.Customer == nil {
		return s.fenceOnly(event, "no customer")
	}

	return s.Db.Transaction(func(tx *gorm.DB) error {
		if err := fence(tx, event, "scheduled"); err != nil {
			return err
		}
		person, err := models.GetPersonByStripeCustomer(schedule.Customer.ID, tx)
		if err != nil {
			return nil
		}

		// the last phase carries where the schedule takes the customer
		nextTier := person.Tier
		if n := len(schedule.Phases); n > 0 {
			phase := schedule.Phases[n-1]
			if len(phase.Items) > 0 && phase.Items[0].Price != nil {
				if plan, ok := planByPrice(s.StudioConfig, phase.Items[0].Price.ID); ok && plan.Tier != "" {
					nextTier = plan.Tier
				}
			}
		}
		subID := ""
		if schedule.Subscription != nil {
			subID = schedule.Subscription.ID
		}
		change := models.SubscriptionChange{
			PersonID:    person.ID,
			StripeSubID: subID,
			OldTier:     person.Tier,
			NewTier:     nextTier,
			Reason:      models.SubChangeScheduled,
		}
		return tx.Create(&change).Error
	})
}

func resolveCheckoutPerson(tx *gorm.DB, sess stripe.CheckoutSession, email string) (models.Person, error) {
	if raw := sess.Metadata["person_id"]; raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			if person, err := models.GetPerson(uint(id), tx); err == nil {
				return person, nil
			}
		}
	}
	if sess.Customer != nil {
		if person, err := models.GetPersonByStripeCustomer(sess.Customer.ID, tx); err == nil {
			return person, nil
		}
	}
	if email == "" {
		return models.Person{}, errors.New("checkout session has no person, customer or email")
	}
	if user, err := models.GetUserByEmail(email, tx); err == nil {
		return models.GetPerson(user.PersonID, tx)
	}
	return provisionGuest(tx, email)
}

func startTeam(tx *gorm.DB, owner models.Person, seats int64, stripeSubID string) error {
	var existing models.Team
	if err := tx.First(&existing, "owner_person_id = ?", owner.ID).Error; err == nil {
		return tx.Model(&existing).Updates(map[string]interface{}{
			"seats":         seats,
			"stripe_sub_id": stripeSubID,
		}).Error
	}
	name := owner.Name
	if name == "" {
		name = "My team"
	} else {
		name = name + "'s team"
	}
	team := models.Team{
		Name:          name,
		OwnerPersonID: owner.ID,
		Seats:         seats,
		PoolCredits:   true,
		StripeSubID:   stripeSubID,
	}
	if err := tx.Create(&team).Error; err != nil {
		return err
	}
	member := models.TeamMember{TeamID: team.ID, PersonID: owner.ID, Role: models.TeamRoleOwner}
	if err := tx.Create(&member).Error; err != nil {
		return err
	}
	return tx.Model(&models.Person{}).Where("id = ?", owner.ID).Update("team_id", team.ID).Error
}

func creditKindFor(plan Plan) string {
	switch plan.PurchaseType {
	case models.PurchaseTryOnce:
		return models.CreditKindTryOnce
	case models.PurchaseTopup:
		return models.CreditKindTopup
	case models.PurchaseTeamSeats:
		return models.CreditKindSeat
	default:
		return models.CreditKindSubscription
	}
}

func firstInvoiceLine(invoice stripe.Invoice) *stripe.InvoiceLineItem {
	if invoice.Lines == nil || len(invoice.Lines.Data) == 0 {
		return nil
	}
	return invoice.Lines.Data[0]
}

package billing

import (
	"github.com/studiopix/studiopix/models"
)

// Plan is one purchasable catalog entry. Credits is what one billing period
// grants; for one-time plans it is the full grant.
type Plan struct {
	ID           string `json:"id"`
	Tier         string `json:"tier,omitempty"`
	PurchaseType string `json:"purchase_type"`
	Interval     string `json:"interval"`
	Credits      int64  `json:"credits"`
	PriceCents   int64  `json:"price_cents"`
	Currency     string `json:"currency"`
	PerSeat      bool   `json:"per_seat,omitempty"`
}

const (
	intervalMonth = "month"
	intervalYear  = "year"
	intervalOnce  = "once"
)

// catalog is the source of truth for pricing. Stripe price IDs live in
// config (StripePrices) keyed by plan ID, so test and live mode differ only
// in configuration.
var catalog = []Plan{
	{ID: "starter_monthly", Tier: models.TierStarter, PurchaseType: models.PurchaseSubscription, Interval: intervalMonth, Credits: 40, PriceCents: 1900, Currency: "usd"},
	{ID: "starter_yearly", Tier: models.TierStarter, PurchaseType: models.PurchaseSubscription, Interval: intervalYear, Credits: 480, PriceCents: 19000, Currency: "usd"},
	{ID: "pro_monthly", Tier: models.TierPro, PurchaseType: models.PurchaseSubscription, Interval: intervalMonth, Credits: 100, PriceCents: 3900, Currency: "usd"},
	{ID: "pro_yearly", Tier: models.TierPro, PurchaseType: models.PurchaseSubscription, Interval: intervalYear, Credits: 1200, PriceCents: 39000, Currency: "usd"},
	{ID: "studio_monthly", Tier: models.TierStudio, PurchaseType: models.PurchaseSubscription, Interval: intervalMonth, Credits: 250, PriceCents: 7900, Currency: "usd"},
	{ID: "studio_yearly", Tier: models.TierStudio, PurchaseType: models.PurchaseSubscription, Interval: intervalYear, Credits: 3000, PriceCents: 79000, Currency: "usd"},
	{ID: "try_once", PurchaseType: models.PurchaseTryOnce, Interval: intervalOnce, Credits: 40, PriceCents: 2900, Currency: "usd"},
	{ID: "topup_small", PurchaseType: models.PurchaseTopup, Interval: intervalOnce, Credits: 20, PriceCents: 900, Currency: "usd"},
	{ID: "topup_medium", PurchaseType: models.PurchaseTopup, Interval: intervalOnce, Credits: 50, PriceCents: 1900, Currency: "usd"},
	{ID: "topup_large", PurchaseType: models.PurchaseTopup, Interval: intervalOnce, Credits: 120, PriceCents: 3900, Currency: "usd"},
	{ID: "team_seat", Tier: models.TierStudio, PurchaseType: models.PurchaseTeamSeats, Interval: intervalMonth, Credits: 30, PriceCents: 1500, Currency: "usd", PerSeat: true},
}

// PlanByID finds a catalog entry by our internal plan ID.
func PlanByID(id string) (Plan, bool) {
	for _, p := range catalog {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// planByPrice resolves a stripe price ID back to a plan through the
// configured mapping. Unmapped plan IDs fall back to the plan ID itself,
// which keeps tests free of stripe fixtures.
func planByPrice(cfg models.StudioConfig, priceID string) (Plan, bool) {
	if priceID == "" {
		return Plan{}, false
	}
	for _, p := range catalog {
		if stripePrice(cfg, p) == priceID {
			return p, true
		}
	}
	return Plan{}, false
}

func stripePrice(cfg models.StudioConfig, p Plan) string {
	if cfg.StripePrices != nil {
		if id, ok := cfg.StripePrices[p.ID]; ok && id != "" {
			return id
		}
	}
	return p.ID
}

// tierRank orders tiers for upgrade/downgrade detection.
func tierRank(tier string) int {
	switch tier {
	case models.TierStarter:
		return 1
	case models.TierPro:
		return 2
	case models.TierStudio:
		return 3
	default:
		return 0
	}
}

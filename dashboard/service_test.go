package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/studiopix/studiopix/models"
	"github.com/studiopix/studiopix/store"
	"gorm.io/gorm"
)

func newTestEnv(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), false)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	service := &Service{Db: db, Logger: logrus.New()}
	r := fiber.New()
	r.Get("/admin/users", service.ListUsers)
	r.Get("/admin/transactions", service.ListTransactions)
	r.Get("/admin/stats", service.Stats)
	return r, db
}

func seedUser(t *testing.T, db *gorm.DB, email string, credits int64) models.User {
	t.Helper()
	user := models.User{Email: email, Username: email, Password: "x"}
	if err := user.CreateWithPerson(db); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if credits > 0 {
		if _, err := models.CreditPerson(db, user.PersonID, credits, models.CreditKindTopup, "", "", "seed"); err != nil {
			t.Fatalf("seed credits: %v", err)
		}
	}
	return user
}

func getJSON(t *testing.T, app *fiber.App, path string) map[string]interface{} {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("%s: got %d, want 200", path, resp.StatusCode)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return body
}

func TestListUsers(t *testing.T) {
	app, db := newTestEnv(t)
	seedUser(t, db, "a@studiopix.test", 40)
	seedUser(t, db, "b@studiopix.test", 0)

	body := getJSON(t, app, "/admin/users")
	if got := body["count"].(float64); got != 2 {
		t.Errorf("count = %v, want 2", got)
	}
	users := body["users"].([]interface{})
	first := users[0].(map[string]interface{})
	if first["email"] != "b@studiopix.test" {
		t.Errorf("newest-first ordering broken, got %v", first["email"])
	}
	if _, exposed := first["password"]; exposed {
		t.Error("password leaked in admin listing")
	}

	filtered := getJSON(t, app, "/admin/users?email=a%40studiopix")
	if got := filtered["count"].(float64); got != 1 {
		t.Errorf("filtered count = %v, want 1", got)
	}
}

func TestListTransactions(t *testing.T) {
	app, db := newTestEnv(t)
	user := seedUser(t, db, "a@studiopix.test", 40)
	if _, err := models.DebitPerson(db, user.PersonID, 5, nil, "test debit"); err != nil {
		t.Fatalf("debit: %v", err)
	}

	body := getJSON(t, app, "/admin/transactions")
	if got := body["count"].(float64); got != 2 {
		t.Errorf("count = %v, want 2", got)
	}

	debits := getJSON(t, app, "/admin/transactions?kind=generation")
	if got := debits["count"].(float64); got != 1 {
		t.Errorf("kind filter count = %v, want 1", got)
	}
}

func TestStats(t *testing.T) {
	app, db := newTestEnv(t)
	user := seedUser(t, db, "a@studiopix.test", 40)
	if _, err := models.DebitPerson(db, user.PersonID, 5, nil, "test debit"); err != nil {
		t.Fatalf("debit: %v", err)
	}
	purchase := models.Purchase{
		PersonID:        user.PersonID,
		PurchaseType:    models.PurchaseTopup,
		PlanID:          "topup_small",
		AmountTotal:     900,
		Currency:        "usd",
		StripeSessionID: "cs_stats_1",
	}
	if err := db.Create(&purchase).Error; err != nil {
		t.Fatalf("seed purchase: %v", err)
	}

	body := getJSON(t, app, "/admin/stats")
	if got := body["users"].(float64); got != 1 {
		t.Errorf("users = %v, want 1", got)
	}
	if got := body["credits_issued"].(float64); got != 40 {
		t.Errorf("credits_issued = %v, want 40", got)
	}
	if got := body["credits_spent"].(float64); got != 5 {
		t.Errorf("credits_spent = %v, want 5", got)
	}
	revenue := body["revenue_by_day"].([]interface{})
	if len(revenue) != 1 {
		t.Fatalf("revenue days = %d, want 1", len(revenue))
	}
	day := revenue[0].(map[string]interface{})
	if got := day["cents"].(float64); got != 900 {
		t.Errorf("revenue cents = %v, want 900", got)
	}
}

package account

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/studiopix/studiopix/models"
)

func doJSON(t *testing.T, env *testEnv, method, path, token string, payload interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := env.Router.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]interface{}
	json.Unmarshal(raw, &decoded)
	return resp, decoded
}

func TestService_CreateUser(t *testing.T) {
	env := newTestEnv(t)

	resp, body := doJSON(t, env, http.MethodPost, "/register", "", map[string]string{
		"email":    "nour@example.com",
		"password": "Str0ng!pass",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register: got %d, want 200: %v", resp.StatusCode, body)
	}
	if body["authorization"] == "" {
		t.Fatal("register: expected a jwt in the response")
	}

	var user models.User
	if err := env.DB.First(&user, "email = ?", "nour@example.com").Error; err != nil {
		t.Fatalf("user row missing: %v", err)
	}
	if user.PersonID == 0 {
		t.Fatal("register: user created without a person")
	}

	resp, _ = doJSON(t, env, http.MethodPost, "/register", "", map[string]string{
		"email":    "Nour@Example.com",
		"password": "Str0ng!pass",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register: got %d, want 409", resp.StatusCode)
	}
}

func TestService_CreateUser_WeakPassword(t *testing.T) {
	env := newTestEnv(t)
	resp, body := doJSON(t, env, http.MethodPost, "/register", "", map[string]string{
		"email":    "weak@example.com",
		"password": "alllowercase",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("weak password: got %d, want 400: %v", resp.StatusCode, body)
	}
}

func TestService_CreateUser_AdoptsGuest(t *testing.T) {
	env := newTestEnv(t)
	guest := seedGuest(t, env.DB, "buyer@example.com")
	if _, err := models.CreditPerson(env.DB, guest.PersonID, 40, models.CreditKindTryOnce, "", "", "seeded purchase"); err != nil {
		t.Fatalf("seed credits: %v", err)
	}

	resp, body := doJSON(t, env, http.MethodPost, "/register", "", map[string]string{
		"email":    "buyer@example.com",
		"password": "Str0ng!pass",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("guest adoption: got %d, want 200: %v", resp.StatusCode, body)
	}

	var users []models.User
	env.DB.Where("email = ?", "buyer@example.com").Find(&users)
	if len(users) != 1 {
		t.Fatalf("guest adoption: got %d user rows, want 1", len(users))
	}
	if users[0].IsGuest {
		t.Fatal("guest adoption: is_guest still set")
	}
	person, err := models.GetPerson(users[0].PersonID, env.DB)
	if err != nil {
		t.Fatalf("person: %v", err)
	}
	if person.Credits != 40 {
		t.Fatalf("guest adoption: credits = %d, want 40", person.Credits)
	}
	if err := users[0].ComparePassword("Str0ng!pass"); err != nil {
		t.Fatal("guest adoption: new password not set")
	}
}

func TestService_LoginHandler(t *testing.T) {
	env := newTestEnv(t)
	seedUser(t, env.DB, "lina@example.com", "Str0ng!pass")

	resp, body := doJSON(t, env, http.MethodPost, "/login", "", map[string]string{
		"email":    "lina@example.com",
		"password": "Str0ng!pass",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: got %d, want 200: %v", resp.StatusCode, body)
	}
	token, _ := body["authorization"].(string)
	if token == "" {
		t.Fatal("login: no token returned")
	}
	if user, ok := body["user"].(map[string]interface{}); ok {
		if pw, _ := user["password"].(string); pw != "" {
			t.Fatal("login: password leaked in response")
		}
	}

	resp, _ = doJSON(t, env, http.MethodPost, "/login", "", map[string]string{
		"email":    "lina@example.com",
		"password": "wrong-pass",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("wrong password: got %d, want 400", resp.StatusCode)
	}

	resp, body = doJSON(t, env, http.MethodGet, "/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: got %d, want 200: %v", resp.StatusCode, body)
	}
}

func TestService_LoginHandler_GuestRefused(t *testing.T) {
	env := newTestEnv(t)
	seedGuest(t, env.DB, "ghost@example.com")

	resp, body := doJSON(t, env, http.MethodPost, "/login", "", map[string]string{
		"email":    "ghost@example.com",
		"password": "placeholder",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("guest login: got %d, want 400: %v", resp.StatusCode, body)
	}
	if body["code"] != "guest_account" {
		t.Fatalf("guest login: code = %v, want guest_account", body["code"])
	}
}

func TestService_RefreshHandler(t *testing.T) {
	env := newTestEnv(t)
	user := seedUser(t, env.DB, "omar@example.com", "Str0ng!pass")
	token, err := env.Auth.GenerateJWT(user.ID, user.Email)
	if err != nil {
		t.Fatalf("generate jwt: %v", err)
	}

	resp, body := doJSON(t, env, http.MethodPost, "/refresh", "", map[string]string{"authorization": token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: got %d, want 200: %v", resp.StatusCode, body)
	}
	if body["authorization"] == "" {
		t.Fatal("refresh: no token in response")
	}

	resp, _ = doJSON(t, env, http.MethodPost, "/refresh", "", map[string]string{"authorization": "not.a.jwt"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed refresh: got %d, want 400", resp.StatusCode)
	}
}

func TestService_RegisterDevice(t *testing.T) {
	env := newTestEnv(t)
	user := seedUser(t, env.DB, "push@example.com", "Str0ng!pass")
	token, _ := env.Auth.GenerateJWT(user.ID, user.Email)

	resp, body := doJSON(t, env, http.MethodPost, "/device", token, map[string]string{
		"device_token": "fcm-token-123",
		"device_id":    "pixel-7",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("device: got %d, want 200: %v", resp.StatusCode, body)
	}

	stored, err := models.GetUserByID(user.ID, env.DB)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if stored.DeviceToken != "fcm-token-123" {
		t.Fatalf("device token = %q, want fcm-token-123", stored.DeviceToken)
	}
}

func TestService_Notifications(t *testing.T) {
	env := newTestEnv(t)
	user := seedUser(t, env.DB, "inbox@example.com", "Str0ng!pass")
	token, _ := env.Auth.GenerateJWT(user.ID, user.Email)

	n := models.Notification{UserEmail: user.Email, Title: "Your headshots are ready", Type: "generation_completed"}
	if err := env.DB.Create(&n).Error; err != nil {
		t.Fatalf("seed notification: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req.Header.Set("Authorization", token)
	resp, err := env.Router.Test(req, -1)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("notifications: got %d, want 200", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	var list []models.Notification
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatalf("decode notifications: %v", err)
	}
	if len(list) != 1 || list[0].Title != "Your headshots are ready" {
		t.Fatalf("unexpected notifications: %+v", list)
	}
}

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		password string
		ok       bool
	}{
		{"Str0ng!pass", true},
		{"short1!", false},
		{"nouppercase1!", false},
		{"NoNumber!!", false},
		{"NoSymbol12", false},
	}
	for _, tc := range cases {
		if got := validatePassword(tc.password); got != tc.ok {
			t.Errorf("validatePassword(%q) = %v, want %v", tc.password, got, tc.ok)
		}
	}
}

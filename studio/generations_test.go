package studio

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/studiopix/studiopix/models"
)

func doJSON(t *testing.T, env *testEnv, method, path, token, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
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

func TestCreateGeneration_DebitsAndSubmits(t *testing.T) {
	env := newTestEnv(t)
	user, token := seedAccount(t, env, "maker@example.com", 10)
	style := seedStyle(t, env.DB, "corporate", 2)
	upload := uploadSelfie(t, env, token)

	resp, body := doJSON(t, env, http.MethodPost, "/studio/generations", token,
		fmt.Sprintf(`{"upload_id": %d, "style_slug": %q}`, upload.ID, style.Slug))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("generation: got %d, want 201: %v", resp.StatusCode, body)
	}

	person, _ := models.GetPerson(user.PersonID, env.DB)
	if person.Credits != 8 {
		t.Fatalf("credits = %d, want 8", person.Credits)
	}

	var generation models.Generation
	if err := env.DB.First(&generation, "person_id = ?", person.ID).Error; err != nil {
		t.Fatalf("generation row: %v", err)
	}
	if generation.Status != models.GenerationPending {
		t.Fatalf("status = %q, want pending", generation.Status)
	}
	if generation.PipelineJobID != "job-test-1" {
		t.Fatalf("job id = %q, want job-test-1", generation.PipelineJobID)
	}
	if generation.CreditsSpent != 2 {
		t.Fatalf("credits spent = %d, want 2", generation.CreditsSpent)
	}

	balance, err := person.LedgerBalance(env.DB)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if balance != person.Credits {
		t.Fatalf("ledger %d disagrees with cached %d", balance, person.Credits)
	}
}

func TestCreateGeneration_InsufficientCredits(t *testing.T) {
	env := newTestEnv(t)
	user, token := seedAccount(t, env, "broke@example.com", 1)
	style := seedStyle(t, env.DB, "premium", 5)
	upload := uploadSelfie(t, env, token)

	resp, body := doJSON(t, env, http.MethodPost, "/studio/generations", token,
		fmt.Sprintf(`{"upload_id": %d, "style_slug": %q}`, upload.ID, style.Slug))
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("broke generation: got %d, want 402: %v", resp.StatusCode, body)
	}
	if body["code"] != "insufficient_credits" {
		t.Fatalf("code = %v, want insufficient_credits", body["code"])
	}

	person, _ := models.GetPerson(user.PersonID, env.DB)
	if person.Credits != 1 {
		t.Fatalf("credits = %d, want 1 untouched", person.Credits)
	}
	var count int64
	env.DB.Model(&models.Generation{}).Where("person_id = ?", person.ID).Count(&count)
	if count != 0 {
		t.Fatal("generation row left behind after rollback")
	}
}

func TestCreateGeneration_PipelineDownRollsBack(t *testing.T) {
	env := newTestEnv(t)
	user, token := seedAccount(t, env, "unlucky@example.com", 10)
	style := seedStyle(t, env.DB, "standard", 2)
	upload := uploadSelfie(t, env, token)

	env.Pipeline.Close()

	resp, body := doJSON(t, env, http.MethodPost, "/studio/generations", token,
		fmt.Sprintf(`{"upload_id": %d, "style_slug": %q}`, upload.ID, style.Slug))
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("pipeline down: got %d, want 502: %v", resp.StatusCode, body)
	}
	person, _ := models.GetPerson(user.PersonID, env.DB)
	if person.Credits != 10 {
		t.Fatalf("credits = %d, want 10 after rollback", person.Credits)
	}
}

func TestCreateGeneration_InactiveStyle(t *testing.T) {
	env := newTestEnv(t)
	_, token := seedAccount(t, env, "late@example.com", 10)
	style := seedStyle(t, env.DB, "retired", 1)
	if err := env.DB.Model(&style).Update("active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	upload := uploadSelfie(t, env, token)

	resp, body := doJSON(t, env, http.MethodPost, "/studio/generations", token,
		fmt.Sprintf(`{"upload_id": %d, "style_slug": %q}`, upload.ID, style.Slug))
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "style_inactive" {
		t.Fatalf("inactive style: got %d %v", resp.StatusCode, body)
	}
}

func TestCreateGeneration_TeamPoolBilling(t *testing.T) {
	env := newTestEnv(t)
	owner, _ := seedAccount(t, env, "boss@example.com", 20)
	member, memberToken := seedAccount(t, env, "staff@example.com", 0)
	style := seedStyle(t, env.DB, "team-style", 3)

	team := models.Team{Name: "acme", OwnerPersonID: owner.PersonID, Seats: 3, PoolCredits: true}
	if err := env.DB.Create(&team).Error; err != nil {
		t.Fatalf("create team: %v", err)
	}
	for _, pid := range []uint{owner.PersonID, member.PersonID} {
		if err := env.DB.Model(&models.Person{}).Where("id = ?", pid).Update("team_id", team.ID).Error; err != nil {
			t.Fatalf("link person: %v", err)
		}
	}

	upload := uploadSelfie(t, env, memberToken)
	resp, body := doJSON(t, env, http.MethodPost, "/studio/generations", memberToken,
		fmt.Sprintf(`{"upload_id": %d, "style_slug": %q}`, upload.ID, style.Slug))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("pooled generation: got %d, want 201: %v", resp.StatusCode, body)
	}

	ownerPerson, _ := models.GetPerson(owner.PersonID, env.DB)
	if ownerPerson.Credits != 17 {
		t.Fatalf("pool credits = %d, want 17", ownerPerson.Credits)
	}
	memberPerson, _ := models.GetPerson(member.PersonID, env.DB)
	if memberPerson.Credits != 0 {
		t.Fatalf("member credits = %d, want 0", memberPerson.Credits)
	}
}

package studio

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/studiopix/studiopix/models"
)

func postCallback(t *testing.T, env *testEnv, key, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/pipeline/callback", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pipeline-Key", key)
	resp, err := env.Router.Test(req, -1)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	return resp
}

func seedGeneration(t *testing.T, env *testEnv, email string, credits, cost int64) (models.User, models.Generation) {
	t.Helper()
	user, token := seedAccount(t, env, email, credits)
	style := seedStyle(t, env.DB, email+"-style", cost)
	upload := uploadSelfie(t, env, token)

	resp, body := doJSON(t, env, http.MethodPost, "/studio/generations", token,
		fmt.Sprintf(`{"upload_id": %d, "style_slug": %q}`, upload.ID, style.Slug))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("seed generation: got %d: %v", resp.StatusCode, body)
	}
	var generation models.Generation
	if err := env.DB.Order("id desc").First(&generation).Error; err != nil {
		t.Fatalf("generation row: %v", err)
	}
	return user, generation
}

func TestPipelineCallback_BadKey(t *testing.T) {
	env := newTestEnv(t)
	resp := postCallback(t, env, "wrong-key", `{"job_id": "x", "status": "processing"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad key: got %d, want 401", resp.StatusCode)
	}
}

func TestPipelineCallback_CompletedFlow(t *testing.T) {
	env := newTestEnv(t)
	_, generation := seedGeneration(t, env, "done@example.com", 10, 2)

	resp := postCallback(t, env, testCallbackKey,
		fmt.Sprintf(`{"job_id": %q, "status": "processing"}`, generation.PipelineJobID))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("processing: got %d, want 200", resp.StatusCode)
	}
	got, _ := models.GetGenerationByUUID(generation.UUID, env.DB)
	if got.Status != models.GenerationProcessing {
		t.Fatalf("status = %q, want processing", got.Status)
	}

	resp = postCallback(t, env, testCallbackKey, fmt.Sprintf(
		`{"job_id": %q, "status": "completed", "result_urls": ["https://cdn.pipeline.test/a.png", "https://cdn.pipeline.test/b.png"]}`,
		generation.PipelineJobID))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("completed: got %d, want 200", resp.StatusCode)
	}
	got, _ = models.GetGenerationByUUID(generation.UUID, env.DB)
	if got.Status != models.GenerationCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
	if len(got.Results()) != 2 {
		t.Fatalf("results = %d, want 2", len(got.Results()))
	}

	// a late failure callback must not reopen a finished generation
	resp = postCallback(t, env, testCallbackKey,
		fmt.Sprintf(`{"job_id": %q, "status": "failed", "error": "ignore me"}`, generation.PipelineJobID))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("late callback: got %d, want 200", resp.StatusCode)
	}
	got, _ = models.GetGenerationByUUID(generation.UUID, env.DB)
	if got.Status != models.GenerationCompleted {
		t.Fatalf("late callback flipped status to %q", got.Status)
	}
}

func TestPipelineCallback_FailureRefundsOnce(t *testing.T) {
	env := newTestEnv(t)
	user, generation := seedGeneration(t, env, "fail@example.com", 10, 3)

	person, _ := models.GetPerson(user.PersonID, env.DB)
	if person.Credits != 7 {
		t.Fatalf("pre-fail credits = %d, want 7", person.Credits)
	}

	payload := fmt.Sprintf(`{"job_id": %q, "status": "failed", "error": "face not detected"}`, generation.PipelineJobID)
	if resp := postCallback(t, env, testCallbackKey, payload); resp.StatusCode != http.StatusOK {
		t.Fatalf("failed callback: got %d, want 200", resp.StatusCode)
	}

	person, _ = models.GetPerson(user.PersonID, env.DB)
	if person.Credits != 10 {
		t.Fatalf("post-refund credits = %d, want 10", person.Credits)
	}
	got, _ := models.GetGenerationByUUID(generation.UUID, env.DB)
	if got.Status != models.GenerationFailed || got.ErrorMessage != "face not detected" {
		t.Fatalf("generation after failure: %+v", got)
	}

	// replayed failure is a no-op thanks to the terminal check
	if resp := postCallback(t, env, testCallbackKey, payload); resp.StatusCode != http.StatusOK {
		t.Fatalf("replayed failure: got %d, want 200", resp.StatusCode)
	}
	person, _ = models.GetPerson(user.PersonID, env.DB)
	if person.Credits != 10 {
		t.Fatalf("refund applied twice: credits = %d, want 10", person.Credits)
	}
}

func TestPipelineCallback_CompletedAt(t *testing.T) {
	env := newTestEnv(t)
	_, generation := seedGeneration(t, env, "stamp@example.com", 10, 2)

	resp := postCallback(t, env, testCallbackKey, fmt.Sprintf(
		`{"job_id": %q, "status": "completed", "result_urls": ["https://cdn.pipeline.test/a.png"], "completed_at": "not-a-date"}`,
		generation.PipelineJobID))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed completed_at: got %d, want 400", resp.StatusCode)
	}

	resp = postCallback(t, env, testCallbackKey, fmt.Sprintf(
		`{"job_id": %q, "status": "completed", "result_urls": ["https://cdn.pipeline.test/a.png"], "completed_at": "2026-08-30T12:00:00Z"}`,
		generation.PipelineJobID))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("completed: got %d, want 200", resp.StatusCode)
	}
	got, _ := models.GetGenerationByUUID(generation.UUID, env.DB)
	if got.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
	want := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if !got.CompletedAt.UTC().Equal(want) {
		t.Fatalf("completed_at = %v, want %v", got.CompletedAt, want)
	}
}

func TestPipelineCallback_UnknownJob(t *testing.T) {
	env := newTestEnv(t)
	resp := postCallback(t, env, testCallbackKey, `{"job_id": "job-nope", "status": "completed"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown job: got %d, want 404", resp.StatusCode)
	}
}

package studio

import (
	"net/http"
	"testing"

	"github.com/studiopix/studiopix/models"
)

func TestStyles_CatalogAndAdmin(t *testing.T) {
	env := newTestEnv(t)
	seedStyle(t, env.DB, "corporate", 2)
	retired := seedStyle(t, env.DB, "retired", 1)
	if err := env.DB.Model(&retired).Update("active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	resp, body := doJSON(t, env, http.MethodGet, "/studio/styles", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("styles: got %d, want 200", resp.StatusCode)
	}
	styles, _ := body["styles"].([]interface{})
	if len(styles) != 1 {
		t.Fatalf("got %d active styles, want 1", len(styles))
	}

	resp, body = doJSON(t, env, http.MethodPost, "/admin/styles", "",
		`{"slug": "linkedin", "name": "LinkedIn blue", "background": "blue gradient", "credit_cost": 3}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create style: got %d: %v", resp.StatusCode, body)
	}

	// duplicate slug hits the unique index
	resp, _ = doJSON(t, env, http.MethodPost, "/admin/styles", "",
		`{"slug": "linkedin", "name": "LinkedIn blue again"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate style: got %d, want 409", resp.StatusCode)
	}

	resp, _ = doJSON(t, env, http.MethodPut, "/admin/styles/linkedin", "", `{"credit_cost": 5}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update style: got %d, want 200", resp.StatusCode)
	}
	style, err := models.GetStyleBySlug("linkedin", env.DB)
	if err != nil {
		t.Fatalf("reload style: %v", err)
	}
	if style.CreditCost != 5 {
		t.Fatalf("credit cost = %d, want 5", style.CreditCost)
	}

	resp, _ = doJSON(t, env, http.MethodDelete, "/admin/styles/linkedin", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deactivate style: got %d, want 200", resp.StatusCode)
	}
	style, _ = models.GetStyleBySlug("linkedin", env.DB)
	if style.Active {
		t.Fatal("style still active after delete")
	}
}

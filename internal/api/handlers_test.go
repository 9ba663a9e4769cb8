package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"example.com/checkin/internal/domain"
	"example.com/checkin/internal/persistence/memory"
)

func newTestMux(repo *memory.Repository) *http.ServeMux {
	handler := NewHandler(domain.NewService(repo))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return mux
}

func strptr(s string) *string { return &s }

func TestRecordScanEndToEnd(t *testing.T) {
	repo := memory.NewRepository()
	user := repo.SeedUser("ada@example.com", "Ada", "555-0100", strptr("badge-1"))
	mux := newTestMux(repo)

	body := strings.NewReader(`{"activity_name":"Opening Keynote","activity_category":"talk"}`)
	req := httptest.NewRequest(http.MethodPut, "/scan/badge-1", body)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ScanResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.UserID != user.ID {
		t.Fatalf("expected user id %d got %d", user.ID, resp.UserID)
	}
	if resp.UserEmail != "ada@example.com" {
		t.Fatalf("unexpected user email %s", resp.UserEmail)
	}
	if resp.ActivityCategory != "talk" {
		t.Fatalf("unexpected category %s", resp.ActivityCategory)
	}
	if resp.ScannedAt.IsZero() {
		t.Fatalf("scanned_at not set")
	}

	// The new scan must show up in the user's nested history.
	req = httptest.NewRequest(http.MethodGet, "/users/1", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var view UserView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode user view: %v", err)
	}
	if len(view.Scans) != 1 {
		t.Fatalf("expected 1 nested scan got %d", len(view.Scans))
	}
	if view.Scans[0].ActivityName != "Opening Keynote" || view.Scans[0].ActivityCategory != "talk" {
		t.Fatalf("unexpected nested scan %+v", view.Scans[0])
	}
	if view.UpdatedAt.Before(user.UpdatedAt) {
		t.Fatalf("updated_at went backwards")
	}
}

func TestRecordScanUnknownBadge(t *testing.T) {
	mux := newTestMux(memory.NewRepository())

	body := strings.NewReader(`{"activity_name":"Opening Keynote","activity_category":"talk"}`)
	req := httptest.NewRequest(http.MethodPut, "/scan/badge-404", body)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestRecordScanMissingFields(t *testing.T) {
	repo := memory.NewRepository()
	repo.SeedUser("ada@example.com", "Ada", "555-0100", strptr("badge-1"))
	mux := newTestMux(repo)

	body := strings.NewReader(`{"activity_name":"Opening Keynote"}`)
	req := httptest.NewRequest(http.MethodPut, "/scan/badge-1", body)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRecordScanInvalidBody(t *testing.T) {
	repo := memory.NewRepository()
	repo.SeedUser("ada@example.com", "Ada", "555-0100", strptr("badge-1"))
	mux := newTestMux(repo)

	req := httptest.NewRequest(http.MethodPut, "/scan/badge-1", strings.NewReader("not json"))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func seedFrequencies(t *testing.T) *memory.Repository {
	t.Helper()
	repo := memory.NewRepository()
	repo.SeedUser("ada@example.com", "Ada", "555-0100", strptr("badge-1"))
	service := domain.NewService(repo)

	for i := 0; i < 3; i++ {
		if _, err := service.RecordScan(context.Background(), "badge-1", "Activity A", "workshop"); err != nil {
			t.Fatalf("seed scan: %v", err)
		}
	}
	repo.SeedActivity("Activity B", "workshop")
	if _, err := service.RecordScan(context.Background(), "badge-1", "Activity C", "meal"); err != nil {
		t.Fatalf("seed scan: %v", err)
	}
	return repo
}

func getFrequencies(t *testing.T, mux *http.ServeMux, query string) []FrequencyView {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/scans"+query, nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var views []FrequencyView
	if err := json.Unmarshal(rr.Body.Bytes(), &views); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return views
}

func frequencyNames(views []FrequencyView) []string {
	names := make([]string, 0, len(views))
	for _, v := range views {
		names = append(names, v.ActivityName)
	}
	return names
}

func TestScanFrequencies(t *testing.T) {
	repo := seedFrequencies(t)
	mux := newTestMux(repo)

	// Default bounds keep zero-scan activities.
	views := getFrequencies(t, mux, "")
	if len(views) != 3 {
		t.Fatalf("expected 3 rows got %v", frequencyNames(views))
	}

	views = getFrequencies(t, mux, "?min_frequency=1")
	if names := frequencyNames(views); len(names) != 2 || names[0] != "Activity A" || names[1] != "Activity C" {
		t.Fatalf("expected [Activity A, Activity C] got %v", names)
	}

	views = getFrequencies(t, mux, "?min_frequency=2&max_frequency=3")
	if names := frequencyNames(views); len(names) != 1 || names[0] != "Activity A" {
		t.Fatalf("expected only Activity A got %v", names)
	}
	if views[0].Frequency != 3 {
		t.Fatalf("expected frequency 3 got %d", views[0].Frequency)
	}

	views = getFrequencies(t, mux, "?activity_category=meal")
	if names := frequencyNames(views); len(names) != 1 || names[0] != "Activity C" {
		t.Fatalf("expected only Activity C got %v", names)
	}
}

func TestListUsers(t *testing.T) {
	repo := memory.NewRepository()
	repo.SeedUser("ada@example.com", "Ada", "555-0100", strptr("badge-1"))
	repo.SeedUser("grace@example.com", "Grace", "555-0101", nil)
	mux := newTestMux(repo)

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var views []UserView
	if err := json.Unmarshal(rr.Body.Bytes(), &views); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 users got %d", len(views))
	}
	if views[1].BadgeCode != nil {
		t.Fatalf("expected null badge_code for second user")
	}
	if views[0].Scans == nil {
		t.Fatalf("scans must be an array, not null")
	}
}

func TestGetUserMissing(t *testing.T) {
	mux := newTestMux(memory.NewRepository())

	req := httptest.NewRequest(http.MethodGet, "/users/99", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestUpdateUserUnexpectedFields(t *testing.T) {
	repo := memory.NewRepository()
	repo.SeedUser("ada@example.com", "Ada", "555-0100", strptr("badge-1"))
	mux := newTestMux(repo)

	body := strings.NewReader(`{"name":"Ada L.","role":"admin","shoe_size":9}`)
	req := httptest.NewRequest(http.MethodPut, "/users/1", body)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["detail"] != "Unexpected fields: role, shoe_size" {
		t.Fatalf("unexpected detail %q", payload["detail"])
	}
}

func TestUpdateUserAppliesFields(t *testing.T) {
	repo := memory.NewRepository()
	repo.SeedUser("ada@example.com", "Ada", "555-0100", strptr("badge-1"))
	mux := newTestMux(repo)

	body := strings.NewReader(`{"name":"Ada L.","badge_code":null}`)
	req := httptest.NewRequest(http.MethodPut, "/users/1", body)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var view UserView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.Name != "Ada L." {
		t.Fatalf("unexpected name %q", view.Name)
	}
	if view.BadgeCode != nil {
		t.Fatalf("expected badge_code cleared, got %v", *view.BadgeCode)
	}
	if view.Phone != "555-0100" {
		t.Fatalf("unspecified field changed: %q", view.Phone)
	}
}

func TestUpdateUserEmailConflict(t *testing.T) {
	repo := memory.NewRepository()
	repo.SeedUser("ada@example.com", "Ada", "555-0100", strptr("badge-1"))
	repo.SeedUser("grace@example.com", "Grace", "555-0101", strptr("badge-2"))
	mux := newTestMux(repo)

	body := strings.NewReader(`{"email":"ada@example.com"}`)
	req := httptest.NewRequest(http.MethodPut, "/users/2", body)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["detail"] != "Email already in use." {
		t.Fatalf("unexpected detail %q", payload["detail"])
	}
}

func TestUpdateUserMissing(t *testing.T) {
	mux := newTestMux(memory.NewRepository())

	body := strings.NewReader(`{"name":"Nobody"}`)
	req := httptest.NewRequest(http.MethodPut, "/users/7", body)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

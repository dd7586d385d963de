package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"drop-match-api/internal/database"
	"drop-match-api/internal/models"
	"drop-match-api/internal/notify"
	"drop-match-api/internal/service"
)

func setupTestRouter(t *testing.T) (chi.Router, *database.DB, func()) {
	dbPath := "./test_" + uuid.New().String() + ".db"
	db, err := database.NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	svc := service.NewService(db, service.Options{
		Notifier: notify.NewDispatcher(db, "1", nil),
	})
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Route("/matching", func(r chi.Router) {
		r.Post("/run", h.RunMatching)
	})
	r.Route("/profiles", func(r chi.Router) {
		r.Put("/{user_id}", h.UpsertProfile)
	})
	r.Route("/drops", func(r chi.Router) {
		r.Put("/{drop_id}", h.UpsertDrop)
		r.Post("/{drop_id}/registrations", h.Register)
		r.Get("/{drop_id}/matches", h.ListDropMatches)
		r.Get("/{drop_id}/matches/user/{user_id}", h.GetUserMatch)
		r.Post("/{drop_id}/matches/{match_id}/response", h.SubmitResponse)
	})
	r.Route("/sms", func(r chi.Router) {
		r.Get("/pending", h.PendingSMS)
	})

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}

	return r, db, cleanup
}

func doJSON(t *testing.T, r chi.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func putProfile(t *testing.T, r chi.Router, p models.Profile) {
	t.Helper()
	w := doJSON(t, r, http.MethodPut, "/profiles/"+p.UserID, p)
	if w.Code != http.StatusOK {
		t.Fatalf("Profile upsert returned %d: %s", w.Code, w.Body.String())
	}
}

func seedPairedDrop(t *testing.T, r chi.Router) (dropID string, userA, userB string, matchID string) {
	t.Helper()

	dropID = uuid.New().String()
	drop := models.Drop{
		Title:                "Friday Drop",
		StartTime:            time.Now().UTC().Add(2 * time.Hour),
		RegistrationDeadline: time.Now().UTC().Add(time.Hour),
		Location:             "downtown",
		PriceRange:           models.PriceModerate,
		MaxParticipants:      10,
		Status:               models.DropUpcoming,
	}
	if w := doJSON(t, r, http.MethodPut, "/drops/"+dropID, drop); w.Code != http.StatusCreated {
		t.Fatalf("Drop upsert returned %d: %s", w.Code, w.Body.String())
	}

	a := models.Profile{
		UserID:             uuid.New().String(),
		DisplayName:        "Ada",
		Interests:          []string{"hiking"},
		CuisinePreferences: []string{"thai"},
		PriceRange:         models.PriceModerate,
		Location:           "downtown",
	}
	b := models.Profile{
		UserID:             uuid.New().String(),
		DisplayName:        "Ben",
		Interests:          []string{"hiking"},
		CuisinePreferences: []string{"thai"},
		PriceRange:         models.PriceModerate,
		Location:           "downtown",
	}
	putProfile(t, r, a)
	putProfile(t, r, b)

	for _, id := range []string{a.UserID, b.UserID} {
		w := doJSON(t, r, http.MethodPost, "/drops/"+dropID+"/registrations",
			models.RegistrationRequest{UserID: id})
		if w.Code != http.StatusCreated {
			t.Fatalf("Registration returned %d: %s", w.Code, w.Body.String())
		}
	}

	// Move the drop into the past so the next matching pass picks it up.
	drop.StartTime = time.Now().UTC().Add(-time.Hour)
	drop.RegistrationDeadline = time.Now().UTC().Add(-2 * time.Hour)
	if w := doJSON(t, r, http.MethodPut, "/drops/"+dropID, drop); w.Code != http.StatusCreated {
		t.Fatalf("Drop reschedule returned %d: %s", w.Code, w.Body.String())
	}

	if w := doJSON(t, r, http.MethodPost, "/matching/run", nil); w.Code != http.StatusOK {
		t.Fatalf("Matching run returned %d: %s", w.Code, w.Body.String())
	}

	w := doJSON(t, r, http.MethodGet, "/drops/"+dropID+"/matches", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("List matches returned %d: %s", w.Code, w.Body.String())
	}
	var listResp struct {
		Matches []models.Match `json:"matches"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("Failed to parse matches response: %v", err)
	}
	if len(listResp.Matches) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(listResp.Matches))
	}

	return dropID, a.UserID, b.UserID, listResp.Matches[0].ID
}

func TestRunMatchingEndpoint_ReportsSummary(t *testing.T) {
	r, _, cleanup := setupTestRouter(t)
	defer cleanup()

	seedPairedDrop(t, r)

	// A second pass finds nothing left to do.
	w := doJSON(t, r, http.MethodPost, "/matching/run", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var summary models.RunSummary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("Failed to parse summary: %v", err)
	}
	if summary.MatchesCreated != 0 {
		t.Errorf("Expected no new matches on rerun, got %d", summary.MatchesCreated)
	}
}

func TestSubmitResponseEndpoint(t *testing.T) {
	r, _, cleanup := setupTestRouter(t)
	defer cleanup()

	dropID, userA, userB, matchID := seedPairedDrop(t, r)
	path := fmt.Sprintf("/drops/%s/matches/%s/response", dropID, matchID)

	w := doJSON(t, r, http.MethodPost, path,
		models.SubmitResponseRequest{UserID: userA, Decision: "accepted"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result models.SubmitResponseResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}
	if !result.Applied || result.Status != models.MatchPending {
		t.Fatalf("Expected applied pending, got %+v", result)
	}

	w = doJSON(t, r, http.MethodPost, path,
		models.SubmitResponseRequest{UserID: userB, Decision: "accepted"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}
	if result.Status != models.MatchConfirmed {
		t.Fatalf("Expected confirmed, got %s", result.Status)
	}

	// Retrying after the terminal state reports a no-op, still 200.
	w = doJSON(t, r, http.MethodPost, path,
		models.SubmitResponseRequest{UserID: userB, Decision: "accepted"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on retry, got %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}
	if result.Applied {
		t.Error("Expected retry to be a no-op")
	}
}

func TestSubmitResponseEndpoint_Errors(t *testing.T) {
	r, _, cleanup := setupTestRouter(t)
	defer cleanup()

	dropID, userA, _, matchID := seedPairedDrop(t, r)
	path := fmt.Sprintf("/drops/%s/matches/%s/response", dropID, matchID)

	// Missing body.
	req := httptest.NewRequest(http.MethodPost, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty body, got %d", w.Code)
	}

	// Invalid decision value.
	w = doJSON(t, r, http.MethodPost, path,
		models.SubmitResponseRequest{UserID: userA, Decision: "maybe"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad decision, got %d", w.Code)
	}

	// A non-participant is refused.
	w = doJSON(t, r, http.MethodPost, path,
		models.SubmitResponseRequest{UserID: uuid.New().String(), Decision: "accepted"})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for outsider, got %d", w.Code)
	}

	// Unknown match under the same drop.
	w = doJSON(t, r, http.MethodPost,
		fmt.Sprintf("/drops/%s/matches/%s/response", dropID, uuid.New().String()),
		models.SubmitResponseRequest{UserID: userA, Decision: "accepted"})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown match, got %d", w.Code)
	}
}

func TestGetUserMatchEndpoint(t *testing.T) {
	r, _, cleanup := setupTestRouter(t)
	defer cleanup()

	dropID, userA, userB, matchID := seedPairedDrop(t, r)

	w := doJSON(t, r, http.MethodGet,
		fmt.Sprintf("/drops/%s/matches/user/%s", dropID, userA), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var match models.Match
	if err := json.Unmarshal(w.Body.Bytes(), &match); err != nil {
		t.Fatalf("Failed to parse match: %v", err)
	}
	if match.ID != matchID {
		t.Errorf("Expected match %s, got %s", matchID, match.ID)
	}
	if match.Partner(userA) != userB {
		t.Errorf("Expected partner %s, got %s", userB, match.Partner(userA))
	}

	// Unregistered user has no match.
	w = doJSON(t, r, http.MethodGet,
		fmt.Sprintf("/drops/%s/matches/user/%s", dropID, uuid.New().String()), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unmatched user, got %d", w.Code)
	}
}

func TestUpsertProfileEndpoint_Validation(t *testing.T) {
	r, _, cleanup := setupTestRouter(t)
	defer cleanup()

	p := models.Profile{
		DisplayName:        "Ada",
		Interests:          []string{"hiking"},
		CuisinePreferences: []string{"thai"},
		PriceRange:         "luxury",
		Location:           "downtown",
	}
	w := doJSON(t, r, http.MethodPut, "/profiles/"+uuid.New().String(), p)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for bad price range, got %d: %s", w.Code, w.Body.String())
	}

	var errResp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("Failed to parse error response: %v", err)
	}
	if errResp.Error == "" {
		t.Error("Expected an error message in the body")
	}
}

func TestRegisterEndpoint_UnknownDrop(t *testing.T) {
	r, _, cleanup := setupTestRouter(t)
	defer cleanup()

	p := models.Profile{
		UserID:             uuid.New().String(),
		DisplayName:        "Ada",
		Interests:          []string{"hiking"},
		CuisinePreferences: []string{"thai"},
		PriceRange:         models.PriceCheap,
		Location:           "downtown",
	}
	putProfile(t, r, p)

	w := doJSON(t, r, http.MethodPost, "/drops/"+uuid.New().String()+"/registrations",
		models.RegistrationRequest{UserID: p.UserID})
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown drop, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPendingSMSEndpoint(t *testing.T) {
	r, db, cleanup := setupTestRouter(t)
	defer cleanup()

	dropID, userA, userB, matchID := seedPairedDrop(t, r)

	// Give both sides phone numbers so confirmation queues SMS.
	for i, id := range []string{userA, userB} {
		p, err := db.GetProfile(context.Background(), id)
		if err != nil {
			t.Fatalf("Failed to load profile: %v", err)
		}
		p.PhoneNumber = fmt.Sprintf("555000000%d", i+1)
		p.PhoneNumberVerified = true
		putProfile(t, r, p)
	}

	path := fmt.Sprintf("/drops/%s/matches/%s/response", dropID, matchID)
	for _, id := range []string{userA, userB} {
		w := doJSON(t, r, http.MethodPost, path,
			models.SubmitResponseRequest{UserID: id, Decision: "accepted"})
		if w.Code != http.StatusOK {
			t.Fatalf("Accept returned %d: %s", w.Code, w.Body.String())
		}
	}

	w := doJSON(t, r, http.MethodGet, "/sms/pending?limit=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Messages []models.SMSMessage `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("Expected 2 pending messages, got %d", len(resp.Messages))
	}

	w = doJSON(t, r, http.MethodGet, "/sms/pending?limit=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", w.Code)
	}
}

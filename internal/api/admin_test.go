package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matiasroig/casera/internal/memory"
	"github.com/matiasroig/casera/internal/storage"
)

type fakeChecker struct {
	err error
}

func (f *fakeChecker) TestConnectivity(context.Context) error { return f.err }

type fakeMemoryAdmin struct {
	examples  []memory.Example
	stats     memory.IndexStats
	deleteOK  bool
	deletedID string
}

func (f *fakeMemoryAdmin) ListExamples(context.Context, int) []memory.Example { return f.examples }

func (f *fakeMemoryAdmin) DeleteExample(_ context.Context, id string) bool {
	f.deletedID = id
	return f.deleteOK
}

func (f *fakeMemoryAdmin) Stats(context.Context) memory.IndexStats { return f.stats }

type fakeStatsStore struct {
	stats storage.Stats
	err   error
}

func (f *fakeStatsStore) FeedbackStats() (storage.Stats, error) { return f.stats, f.err }

func healthyDeps() AdminDeps {
	return AdminDeps{
		Store:   &fakeStatsStore{stats: storage.Stats{Conversations: 10, FeedbackTotal: 3, Corrections: 2, Unprocessed: 1}},
		Memory:  &fakeMemoryAdmin{stats: memory.IndexStats{Count: 7, Dimension: 1536}, deleteOK: true},
		Records: &fakeChecker{},
	}
}

func doRequest(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthOK(t *testing.T) {
	h := NewAdminHandler(healthyDeps())

	rec := doRequest(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestHealthDegraded(t *testing.T) {
	deps := healthyDeps()
	deps.Records = &fakeChecker{err: errors.New("airtable unreachable")}
	h := NewAdminHandler(deps)

	rec := doRequest(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestStats(t *testing.T) {
	h := NewAdminHandler(healthyDeps())

	rec := doRequest(t, h, http.MethodGet, "/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["conversations"] != float64(10) || body["examples"] != float64(7) {
		t.Errorf("unexpected stats: %v", body)
	}
}

func TestAuthRequiredWhenTokenSet(t *testing.T) {
	deps := healthyDeps()
	deps.Token = "secret"
	h := NewAdminHandler(deps)

	if rec := doRequest(t, h, http.MethodGet, "/stats", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: status = %d, want 401", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/stats", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/stats", "secret"); rec.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", rec.Code)
	}

	// Health and metrics stay open for probes.
	if rec := doRequest(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health should not require auth, got %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Errorf("metrics should not require auth, got %d", rec.Code)
	}
}

func TestListExamples(t *testing.T) {
	deps := healthyDeps()
	deps.Memory = &fakeMemoryAdmin{
		stats: memory.IndexStats{Dimension: 1536},
		examples: []memory.Example{
			{ID: "example_1", Query: "q1", Response: "r1", CreatedAt: "2025-07-01T00:00:00Z"},
		},
	}
	h := NewAdminHandler(deps)

	rec := doRequest(t, h, http.MethodGet, "/examples", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Examples []map[string]any `json:"examples"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Examples) != 1 || body.Examples[0]["id"] != "example_1" {
		t.Errorf("unexpected examples: %v", body.Examples)
	}
}

func TestListExamplesBadLimit(t *testing.T) {
	h := NewAdminHandler(healthyDeps())
	if rec := doRequest(t, h, http.MethodGet, "/examples?limit=zero", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDeleteExample(t *testing.T) {
	deps := healthyDeps()
	mem := &fakeMemoryAdmin{stats: memory.IndexStats{Dimension: 1536}, deleteOK: true}
	deps.Memory = mem
	h := NewAdminHandler(deps)

	rec := doRequest(t, h, http.MethodDelete, "/examples/example_42", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if mem.deletedID != "example_42" {
		t.Errorf("deleted ID = %q", mem.deletedID)
	}

	mem.deleteOK = false
	if rec := doRequest(t, h, http.MethodDelete, "/examples/example_42", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("failed delete: status = %d, want 502", rec.Code)
	}
}

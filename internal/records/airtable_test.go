package records

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func airtableFixture(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer key-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/v0/appTest/Items%20per%20property" && r.URL.Path != "/v0/appTest/Items per property" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("maxRecords") == "1" {
			json.NewEncoder(w).Encode(map[string]any{
				"records": []map[string]any{
					{"id": "rec1", "fields": map[string]any{"Code": "Fridge A"}},
				},
			})
			return
		}

		// Two pages to exercise offset handling.
		if r.URL.Query().Get("offset") == "" {
			json.NewEncoder(w).Encode(map[string]any{
				"records": []map[string]any{
					{"id": "rec1", "fields": map[string]any{"Code": "Fridge A", "Make (Brand)": "Samsung"}},
				},
				"offset": "page2",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"records": []map[string]any{
				{"id": "rec2", "fields": map[string]any{"Code": "Oven B"}},
			},
		})
	}))
}

func TestAirtable_FetchAllPaginates(t *testing.T) {
	srv := airtableFixture(t)
	defer srv.Close()

	client := NewAirtable(AirtableConfig{APIKey: "key-test", BaseID: "appTest", BaseURL: srv.URL})
	recs, err := client.FetchAll(context.Background(), "Items per property")
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].ID != "rec1" || recs[1].ID != "rec2" {
		t.Errorf("ids = [%s %s], want [rec1 rec2]", recs[0].ID, recs[1].ID)
	}
	if recs[0].Fields["Make (Brand)"] != "Samsung" {
		t.Errorf("Make (Brand) = %v, want Samsung", recs[0].Fields["Make (Brand)"])
	}
}

func TestAirtable_FetchBounded(t *testing.T) {
	srv := airtableFixture(t)
	defer srv.Close()

	client := NewAirtable(AirtableConfig{APIKey: "key-test", BaseID: "appTest", BaseURL: srv.URL})
	recs, err := client.FetchBounded(context.Background(), "Items per property", 1)
	if err != nil {
		t.Fatalf("FetchBounded() error = %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("got %d records, want 1", len(recs))
	}
}

func TestAirtable_BadStatus(t *testing.T) {
	srv := airtableFixture(t)
	defer srv.Close()

	client := NewAirtable(AirtableConfig{APIKey: "wrong", BaseID: "appTest", BaseURL: srv.URL})
	if _, err := client.FetchAll(context.Background(), "Items per property"); err == nil {
		t.Fatal("FetchAll() expected error on 401")
	}
}

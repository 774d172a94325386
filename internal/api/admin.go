// Package api exposes the local ops surface: health, stats, example
// administration and Prometheus metrics over HTTP, plus MCP tools for
// local agent integrations.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matiasroig/casera/internal/memory"
	"github.com/matiasroig/casera/internal/storage"
)

const defaultExampleListLimit = 50

// RecordChecker verifies the structured record source is reachable.
type RecordChecker interface {
	TestConnectivity(ctx context.Context) error
}

// MemoryAdmin is the slice of semantic memory the admin API needs.
type MemoryAdmin interface {
	ListExamples(ctx context.Context, limit int) []memory.Example
	DeleteExample(ctx context.Context, id string) bool
	Stats(ctx context.Context) memory.IndexStats
}

// StatsStore reads aggregate conversation statistics.
type StatsStore interface {
	FeedbackStats() (storage.Stats, error)
}

type AdminDeps struct {
	Store   StatsStore
	Memory  MemoryAdmin
	Records RecordChecker
	// Token guards the admin routes; when empty the routes are open,
	// which is acceptable only because the listener binds to loopback.
	Token string
}

func NewAdminHandler(deps AdminDeps) http.Handler {
	r := chi.NewRouter()

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Get("/stats", handleStats(deps))
		r.Get("/examples", handleListExamples(deps))
		r.Delete("/examples/{id}", handleDeleteExample(deps))
	})

	return r
}

func handleHealth(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		checks := map[string]string{}

		if err := deps.Records.TestConnectivity(r.Context()); err != nil {
			status = "degraded"
			checks["records"] = err.Error()
		} else {
			checks["records"] = "ok"
		}

		stats := deps.Memory.Stats(r.Context())
		if stats.Dimension == 0 {
			status = "degraded"
			checks["memory"] = "index unreachable"
		} else {
			checks["memory"] = "ok"
		}

		code := http.StatusOK
		if status != "ok" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"status": status, "checks": checks})
	}
}

func handleStats(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Store.FeedbackStats()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "storage_error", "reading stats: %v", err)
			return
		}
		idx := deps.Memory.Stats(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"conversations":      st.Conversations,
			"feedback":           st.FeedbackTotal,
			"corrections":        st.Corrections,
			"pending_writebacks": st.Unprocessed,
			"examples":           idx.Count,
			"index_dimension":    idx.Dimension,
		})
	}
}

func handleListExamples(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultExampleListLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
				return
			}
			limit = n
		}

		examples := deps.Memory.ListExamples(r.Context(), limit)
		out := make([]map[string]any, 0, len(examples))
		for _, ex := range examples {
			out = append(out, map[string]any{
				"id":         ex.ID,
				"query":      ex.Query,
				"response":   ex.Response,
				"feedback":   ex.UserFeedback,
				"created_at": ex.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"examples": out})
	}
}

func handleDeleteExample(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !deps.Memory.DeleteExample(r.Context(), id) {
			httpError(w, http.StatusBadGateway, "vector_store_error", "deleting example %s failed", id)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

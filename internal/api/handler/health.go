package handler

import (
	"context"
	"net/http"

	"github.com/AhmAshraf1/PlanTech/internal/api/response"
)

// Pinger is anything whose connectivity can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns an http.HandlerFunc for GET /health checking
// database and cache connectivity.
func NewHealthHandler(db, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := cache.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		status := http.StatusOK
		overall := "ok"
		if checks["database"] != "ok" || checks["cache"] != "ok" {
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}

		response.Status(w, status, map[string]any{
			"status":   overall,
			"services": checks,
		})
	}
}

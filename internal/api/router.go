package api

import (
	"net/http"

	mw "github.com/AhmAshraf1/PlanTech/internal/api/middleware"
	"github.com/AhmAshraf1/PlanTech/internal/api/response"
	"github.com/go-chi/chi/v5"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit   *mw.RateLimit
	CORSOrigins []string

	HealthHandler  http.HandlerFunc
	PredictHandler http.HandlerFunc
	UploadHandler  http.HandlerFunc
	HistoryHandler http.HandlerFunc
	DebugDBHandler http.HandlerFunc
	TestHandler    http.HandlerFunc
	MetricsHandler http.Handler
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.CORS(deps.CORSOrigins))

	r.Get("/health", orNotImplemented(deps.HealthHandler))
	r.Get("/test", orNotImplemented(deps.TestHandler))
	r.Get("/debug/db", orNotImplemented(deps.DebugDBHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Get("/uploads/{name}", orNotImplemented(deps.UploadHandler))
	r.Get("/history", orNotImplemented(deps.HistoryHandler))

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.Limit)
		r.Post("/predict", orNotImplemented(deps.PredictHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "Endpoint not yet implemented")
	}
}

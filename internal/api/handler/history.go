package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/AhmAshraf1/PlanTech/internal/api/response"
	"github.com/AhmAshraf1/PlanTech/pkg/models"
)

// TimestampLayout renders created_at with microsecond precision in UTC.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// HistoryLister defines the interface the history handler depends on.
type HistoryLister interface {
	History(ctx context.Context, limit int) ([]models.PredictionRecord, error)
}

type historyItem struct {
	ID         string  `json:"id"`
	ImageURL   string  `json:"image_url"`
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Timestamp  string  `json:"timestamp"`
}

// NewHistoryHandler returns an http.HandlerFunc for GET /history.
// An optional ?limit= narrows the page; the service caps it.
func NewHistoryHandler(svc HistoryLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				response.Error(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		recs, err := svc.History(r.Context(), limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "Database error: "+err.Error())
			return
		}

		items := make([]historyItem, 0, len(recs))
		for _, rec := range recs {
			items = append(items, historyItem{
				ID:         rec.ID.String(),
				ImageURL:   imageURL(rec.StoredImageName),
				Class:      rec.Label,
				Confidence: rec.Confidence,
				Timestamp:  formatTime(rec.CreatedAt),
			})
		}
		response.JSON(w, items)
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

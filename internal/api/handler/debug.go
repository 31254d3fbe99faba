package handler

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/AhmAshraf1/PlanTech/internal/api/response"
	"github.com/AhmAshraf1/PlanTech/internal/prediction"
	"github.com/AhmAshraf1/PlanTech/internal/store"
)

// DebugSampleRows is how many records /debug/db returns.
const DebugSampleRows = 10

// Inspector defines the interface the /debug/db handler depends on.
type Inspector interface {
	Inspect(ctx context.Context, sample int) (*store.Diagnostics, error)
}

// StatusReporter defines the interface the /test handler depends on.
type StatusReporter interface {
	Status(ctx context.Context) prediction.Status
}

type sampleRow struct {
	ID              string  `json:"id"`
	StoredImageName string  `json:"stored_image_name"`
	Label           string  `json:"label"`
	Confidence      float64 `json:"confidence"`
	CreatedAt       string  `json:"created_at"`
}

type debugDBResponse struct {
	Backend        string      `json:"backend"`
	DatabaseFile   string      `json:"database_file"`
	DatabasePath   string      `json:"database_path"`
	DatabaseExists bool        `json:"database_exists"`
	TableExists    bool        `json:"table_exists"`
	Columns        []string    `json:"columns"`
	TotalCount     int64       `json:"total_count"`
	SampleRows     []sampleRow `json:"sample_rows"`
}

// NewDebugDBHandler returns an http.HandlerFunc for GET /debug/db.
func NewDebugDBHandler(st Inspector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := st.Inspect(r.Context(), DebugSampleRows)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, err.Error())
			return
		}

		rows := make([]sampleRow, 0, len(d.SampleRows))
		for _, rec := range d.SampleRows {
			rows = append(rows, sampleRow{
				ID:              rec.ID.String(),
				StoredImageName: rec.StoredImageName,
				Label:           rec.Label,
				Confidence:      rec.Confidence,
				CreatedAt:       formatTime(rec.CreatedAt),
			})
		}

		file := d.Location
		if d.Backend == "sqlite" {
			file = filepath.Base(d.Location)
		}
		response.JSON(w, debugDBResponse{
			Backend:        d.Backend,
			DatabaseFile:   file,
			DatabasePath:   d.Location,
			DatabaseExists: d.LocationExists,
			TableExists:    d.TableExists,
			Columns:        d.Columns,
			TotalCount:     d.TotalCount,
			SampleRows:     rows,
		})
	}
}

type testResponse struct {
	Message             string `json:"message"`
	CORS                string `json:"cors"`
	ModelLoaded         bool   `json:"model_loaded"`
	DatabaseExists      bool   `json:"database_exists"`
	UploadsFolderExists bool   `json:"uploads_folder_exists"`
}

// NewTestHandler returns an http.HandlerFunc for GET /test.
func NewTestHandler(svc StatusReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := svc.Status(r.Context())
		response.JSON(w, testResponse{
			Message:             "Backend is working!",
			CORS:                "enabled",
			ModelLoaded:         st.ModelLoaded,
			DatabaseExists:      st.StoreReachable,
			UploadsFolderExists: st.UploadsFolderExists,
		})
	}
}

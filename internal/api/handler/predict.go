package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	mw "github.com/AhmAshraf1/PlanTech/internal/api/middleware"
	"github.com/AhmAshraf1/PlanTech/internal/api/response"
	"github.com/AhmAshraf1/PlanTech/internal/classifier"
	"github.com/AhmAshraf1/PlanTech/internal/prediction"
)

// ImageField is the multipart form field carrying the upload.
const ImageField = "image"

// Predictor defines the interface the predict handler depends on.
type Predictor interface {
	Predict(ctx context.Context, up *prediction.Upload) (*prediction.Result, error)
}

type predictResponse struct {
	ID             string  `json:"id"`
	PredictedClass string  `json:"predicted_class"`
	Confidence     float64 `json:"confidence"`
	ImageURL       string  `json:"image_url"`
}

// NewPredictHandler returns an http.HandlerFunc for POST /predict.
// Request bodies larger than maxBytes are rejected with 413.
func NewPredictHandler(svc Predictor, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		up, err := readUpload(w, r, maxBytes)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge, "Image too large")
				return
			}
			response.Error(w, http.StatusBadRequest, "Invalid upload: "+err.Error())
			return
		}

		result, err := svc.Predict(r.Context(), up)
		if err != nil {
			requestID, _ := mw.GetRequestID(r)
			switch {
			case errors.Is(err, classifier.ErrModelUnavailable):
				response.Error(w, http.StatusInternalServerError, "Model not loaded")
			case errors.Is(err, prediction.ErrNoFilename):
				response.Error(w, http.StatusBadRequest, "No file selected")
			case errors.Is(err, prediction.ErrInputMissing):
				response.Error(w, http.StatusBadRequest, "No image uploaded")
			case errors.Is(err, prediction.ErrPersistence):
				slog.Error("prediction not stored", "error", err, "request_id", requestID)
				response.Error(w, http.StatusInternalServerError, "Database error: "+err.Error())
			default:
				slog.Error("prediction failed", "error", err, "request_id", requestID)
				response.Error(w, http.StatusInternalServerError, "Prediction failed: "+err.Error())
			}
			return
		}

		rec := result.Record
		response.JSON(w, predictResponse{
			ID:             rec.ID.String(),
			PredictedClass: rec.Label,
			Confidence:     rec.Confidence,
			ImageURL:       imageURL(rec.StoredImageName),
		})
	}
}

// readUpload extracts the image field. A request without the field yields a
// nil upload so the service can report it.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (*prediction.Upload, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		// Not multipart at all: treat as no image sent.
		return nil, nil
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(ImageField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return &prediction.Upload{Filename: header.Filename, Data: data}, nil
}

func imageURL(name string) string {
	return "/uploads/" + name
}

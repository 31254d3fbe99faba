package models

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// PredictionRecord is one persisted classification outcome. Records are
// append-only: created once after a successful classification, never updated.
type PredictionRecord struct {
	ID              uuid.UUID `db:"id"                json:"id"`
	StoredImageName string    `db:"stored_image_name" json:"stored_image_name"`
	Label           string    `db:"label"             json:"label"`
	Confidence      float64   `db:"confidence"        json:"confidence"`
	CreatedAt       time.Time `db:"created_at"        json:"created_at"`
}

// Validate reports whether every field is populated and within range.
func (r *PredictionRecord) Validate() error {
	switch {
	case r == nil:
		return errors.New("record is nil")
	case r.ID == uuid.Nil:
		return errors.New("id is required")
	case r.StoredImageName == "":
		return errors.New("stored image name is required")
	case r.Label == "":
		return errors.New("label is required")
	case math.IsNaN(r.Confidence) || math.IsInf(r.Confidence, 0):
		return errors.New("confidence must be finite")
	case r.Confidence < 0 || r.Confidence > 1:
		return errors.New("confidence must be within [0, 1]")
	case r.CreatedAt.IsZero():
		return errors.New("created_at is required")
	}
	return nil
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/AhmAshraf1/PlanTech/pkg/models"
)

var (
	ErrDuplicateKey  = errors.New("duplicate key violation")
	ErrUnavailable   = errors.New("prediction store unavailable")
	ErrInvalidRecord = errors.New("invalid prediction record")
)

// TableName is the single table every backend persists records to.
const TableName = "predictions"

// Store is the data access interface for prediction records. Records are
// append-only; there is no update or delete path.
type Store interface {
	Ping(ctx context.Context) error

	// Append inserts one record. Invalid records fail with ErrInvalidRecord
	// and a reused id or image name fails with ErrDuplicateKey.
	Append(ctx context.Context, rec *models.PredictionRecord) error

	// ListRecent returns at most limit records, newest first. A non-positive
	// limit yields an empty slice.
	ListRecent(ctx context.Context, limit int) ([]models.PredictionRecord, error)

	// Inspect reports schema and row statistics for diagnostics.
	Inspect(ctx context.Context, sample int) (*Diagnostics, error)

	Close() error
}

// Diagnostics is a snapshot of the backing database.
type Diagnostics struct {
	Backend        string                    `json:"backend"`
	Location       string                    `json:"location"`
	LocationExists bool                      `json:"location_exists"`
	TableExists    bool                      `json:"table_exists"`
	Columns        []string                  `json:"columns"`
	TotalCount     int64                     `json:"total_count"`
	SampleRows     []models.PredictionRecord `json:"sample_rows"`
}

func validate(rec *models.PredictionRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}

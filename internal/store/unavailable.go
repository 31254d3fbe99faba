package store

import (
	"context"
	"fmt"

	"github.com/AhmAshraf1/PlanTech/pkg/models"
)

// unavailableStore stands in when the database could not be opened at
// startup. Every call fails with ErrUnavailable and the original cause.
type unavailableStore struct {
	cause error
}

// NewUnavailable returns a Store that fails every operation with ErrUnavailable.
func NewUnavailable(cause error) Store {
	return &unavailableStore{cause: cause}
}

func (s *unavailableStore) err() error {
	if s.cause == nil {
		return ErrUnavailable
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, s.cause)
}

func (s *unavailableStore) Ping(context.Context) error { return s.err() }

func (s *unavailableStore) Append(context.Context, *models.PredictionRecord) error {
	return s.err()
}

func (s *unavailableStore) ListRecent(context.Context, int) ([]models.PredictionRecord, error) {
	return nil, s.err()
}

func (s *unavailableStore) Inspect(context.Context, int) (*Diagnostics, error) {
	return nil, s.err()
}

func (s *unavailableStore) Close() error { return nil }

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/AhmAshraf1/PlanTech/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Append(ctx context.Context, rec *models.PredictionRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO predictions (id, stored_image_name, label, confidence, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.StoredImageName, rec.Label, rec.Confidence, rec.CreatedAt.UTC())
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("append prediction: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]models.PredictionRecord, error) {
	if limit <= 0 {
		return []models.PredictionRecord{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, stored_image_name, label, confidence, created_at
		 FROM predictions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}

	records, err := pgx.CollectRows(rows, scanPostgresRecord)
	if err != nil {
		return nil, fmt.Errorf("scan prediction: %w", err)
	}
	if records == nil {
		records = []models.PredictionRecord{}
	}
	return records, nil
}

func (s *PostgresStore) Inspect(ctx context.Context, sample int) (*Diagnostics, error) {
	cfg := s.pool.Config().ConnConfig
	d := &Diagnostics{
		Backend:        "postgres",
		Location:       fmt.Sprintf("%s:%d/%s", cfg.Host, cfg.Port, cfg.Database),
		LocationExists: true,
		Columns:        []string{},
		SampleRows:     []models.PredictionRecord{},
	}

	if err := s.pool.QueryRow(ctx,
		`SELECT to_regclass('public.predictions') IS NOT NULL`,
	).Scan(&d.TableExists); err != nil {
		return nil, fmt.Errorf("check predictions table: %w", err)
	}
	if !d.TableExists {
		return d, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = 'predictions'
		 ORDER BY ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan column: %w", err)
	}
	d.Columns = cols

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&d.TotalCount); err != nil {
		return nil, fmt.Errorf("count predictions: %w", err)
	}

	if d.SampleRows, err = s.ListRecent(ctx, sample); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgresRecord(row pgx.CollectableRow) (models.PredictionRecord, error) {
	var r models.PredictionRecord
	err := row.Scan(&r.ID, &r.StoredImageName, &r.Label, &r.Confidence, &r.CreatedAt)
	r.CreatedAt = r.CreatedAt.UTC()
	return r, err
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)

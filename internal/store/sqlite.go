package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AhmAshraf1/PlanTech/pkg/models"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// sqliteTimeLayout is fixed width so lexical order equals chronological order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

// SQLiteStore implements the Store interface on a single SQLite file.
// The pool holds one connection and writes are serialized with mu.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// OpenSQLite opens (creating if needed) the database file at path in WAL mode.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := ensureSQLiteDir(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &SQLiteStore{db: db, path: abs}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Append(ctx context.Context, rec *models.PredictionRecord) error {
	if err := validate(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO predictions (id, stored_image_name, label, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.StoredImageName, rec.Label, rec.Confidence,
		rec.CreatedAt.UTC().Format(sqliteTimeLayout))
	if err != nil {
		if isSQLiteConstraintError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("append prediction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]models.PredictionRecord, error) {
	if limit <= 0 {
		return []models.PredictionRecord{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listRecent(ctx, limit)
}

func (s *SQLiteStore) listRecent(ctx context.Context, limit int) ([]models.PredictionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stored_image_name, label, confidence, created_at
		 FROM predictions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	records := []models.PredictionRecord{}
	for rows.Next() {
		var (
			r         models.PredictionRecord
			id, stamp string
		)
		if err := rows.Scan(&id, &r.StoredImageName, &r.Label, &r.Confidence, &stamp); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse prediction id %q: %w", id, err)
		}
		if r.CreatedAt, err = time.Parse(sqliteTimeLayout, stamp); err != nil {
			return nil, fmt.Errorf("parse prediction time %q: %w", stamp, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Inspect(ctx context.Context, sample int) (*Diagnostics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := &Diagnostics{
		Backend:    "sqlite",
		Location:   s.path,
		Columns:    []string{},
		SampleRows: []models.PredictionRecord{},
	}
	if info, err := os.Stat(s.path); err == nil && info.Mode().IsRegular() {
		d.LocationExists = true
	}

	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, TableName,
	).Scan(&n); err != nil {
		return nil, fmt.Errorf("check predictions table: %w", err)
	}
	d.TableExists = n > 0
	if !d.TableExists {
		return d, nil
	}

	cols, err := s.columns(ctx)
	if err != nil {
		return nil, err
	}
	d.Columns = cols

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&d.TotalCount); err != nil {
		return nil, fmt.Errorf("count predictions: %w", err)
	}

	if sample > 0 {
		if d.SampleRows, err = s.listRecent(ctx, sample); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (s *SQLiteStore) columns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info('predictions') ORDER BY cid`)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	cols := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isSQLiteConstraintError checks for a primary key or unique violation.
// ensureSQLiteDir creates the directory holding the database file.
func ensureSQLiteDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
	}
	return nil
}

func isSQLiteConstraintError(err error) bool {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

var _ Store = (*SQLiteStore)(nil)

package store

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/AhmAshraf1/PlanTech/internal/config"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// RunMigrations applies every pending up migration for the database named by
// cfg.URL. Running it against an up-to-date schema is a no-op.
func RunMigrations(cfg config.DatabaseConfig) error {
	dir, url, err := migrationTarget(cfg)
	if err != nil {
		return err
	}

	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// migrationTarget maps a database URL to the embedded migration directory and
// the URL scheme golang-migrate registers for that driver.
func migrationTarget(cfg config.DatabaseConfig) (dir, url string, err error) {
	switch cfg.Dialect() {
	case "postgres":
		_, rest, _ := strings.Cut(cfg.URL, "://")
		return "migrations/postgres", "pgx5://" + rest, nil
	case "sqlite":
		if err := ensureSQLiteDir(cfg.SQLitePath()); err != nil {
			return "", "", err
		}
		return "migrations/sqlite", "sqlite3://" + cfg.SQLitePath(), nil
	}
	return "", "", fmt.Errorf("unsupported database URL %q", cfg.URL)
}

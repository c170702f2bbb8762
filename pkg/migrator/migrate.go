// Package migrator applies schema migrations to a SQLite database, either
// from a directory on disk or from an embedded filesystem.
package migrator

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

type Config struct {
	// MigrationsPath is a directory on disk, or a directory inside FS when FS is set.
	MigrationsPath string
	FS             fs.FS
}

type Migrator struct {
	db     *sql.DB
	config Config
	logger *slog.Logger
}

func NewMigrator(db *sql.DB, config Config, logger *slog.Logger) *Migrator {
	return &Migrator{
		db:     db,
		config: config,
		logger: logger.With(slog.String("component", "migrator")),
	}
}

// Direction of a migration run.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

func (m *Migrator) open() (*migrate.Migrate, error) {
	driver, err := sqlite.WithInstance(m.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	if m.config.FS != nil {
		src, err := iofs.New(m.config.FS, m.config.MigrationsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
		}
		mg, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
		if err != nil {
			return nil, fmt.Errorf("failed to create migration instance: %w", err)
		}
		return mg, nil
	}

	mg, err := migrate.NewWithDatabaseInstance("file://"+m.config.MigrationsPath, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return mg, nil
}

// run opens a migration instance, applies step and verifies the result.
func (m *Migrator) run(step func(*migrate.Migrate) error) (uint, error) {
	mg, err := m.open()
	if err != nil {
		return 0, err
	}

	if err := step(mg); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, err
	}

	version, dirty, err := mg.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		m.logger.Warn("Database schema is in a dirty state", slog.Uint64("version", uint64(version)))
		return version, fmt.Errorf("database schema is in a dirty state at version %d", version)
	}
	return version, nil
}

// Run applies all migrations in the given direction.
func (m *Migrator) Run(direction Direction) error {
	var step func(*migrate.Migrate) error
	switch direction {
	case Up:
		step = (*migrate.Migrate).Up
	case Down:
		step = (*migrate.Migrate).Down
	default:
		return fmt.Errorf("invalid migration direction: %s", direction)
	}

	version, err := m.run(step)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	m.logger.Info("Database migrations completed",
		slog.String("direction", string(direction)),
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

func (m *Migrator) MigrateUp() error {
	return m.Run(Up)
}

func (m *Migrator) MigrateDown() error {
	return m.Run(Down)
}

// MigrateDownN rolls back n migrations.
func (m *Migrator) MigrateDownN(n int) error {
	version, err := m.run(func(mg *migrate.Migrate) error {
		return mg.Steps(-n)
	})
	if err != nil {
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}

	m.logger.Info("Migration rollback completed", slog.Int("steps", n), slog.Uint64("version", uint64(version)))
	return nil
}

// MigrateTo migrates to a specific version.
func (m *Migrator) MigrateTo(target uint) error {
	version, err := m.run(func(mg *migrate.Migrate) error {
		return mg.Migrate(target)
	})
	if err != nil {
		return fmt.Errorf("failed to migrate to version %d: %w", target, err)
	}

	m.logger.Info("Migration completed", slog.Uint64("version", uint64(version)))
	return nil
}

// Version returns the current schema version; zero when nothing is applied.
func (m *Migrator) Version() (uint, bool, error) {
	mg, err := m.open()
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := mg.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// Package history keeps a SQLite log of the transfers a peer served and
// downloaded.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/golang-migrate/migrate/v4/database/sqlite"

	"peersync/pkg/migrator"
)

//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations holding the schema.
const MigrationsDir = "migrations"

var (
	ErrTransferNotFound  = errors.New("transfer not found")
	ErrDBOperationFailed = errors.New("database operation failed")
	ErrInvalidInput      = errors.New("invalid input parameters")
)

type Config struct {
	DBPath string
	// SkipMigrations leaves the schema untouched; cmd/migrate owns it then.
	SkipMigrations bool
}

// Storage records transfers in SQLite.
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
	mu     sync.Mutex
}

// New opens the database at cfg.DBPath and brings its schema up to date.
func New(cfg Config, logger *slog.Logger) (*Storage, error) {
	logger = logger.With(slog.String("component", "history"))

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports only one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(10 * time.Minute)

	if !cfg.SkipMigrations {
		m := migrator.NewMigrator(db, migrator.Config{FS: Migrations, MigrationsPath: MigrationsDir}, logger)
		if err := m.MigrateUp(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Storage{db: db, logger: logger}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Record stores a finished transfer.
func (s *Storage) Record(ctx context.Context, t Transfer) error {
	if t.ID == "" || t.Filename == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transfers (
			id, direction, filename, peer, remote_addr,
			bytes, status, error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Direction), t.Filename, t.Peer, t.RemoteAddr,
		t.Bytes, string(t.Status), t.Error, t.StartedAt.UnixMilli(), t.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to insert transfer: %v", ErrDBOperationFailed, err)
	}

	s.logger.Debug("Recorded transfer",
		slog.String("id", t.ID),
		slog.String("direction", string(t.Direction)),
		slog.String("file", t.Filename),
		slog.String("status", string(t.Status)),
	)
	return nil
}

// Get returns a single transfer by id.
func (s *Storage) Get(ctx context.Context, id string) (Transfer, error) {
	row := s.db.QueryRowContext(ctx, selectTransfers+" WHERE id = ?", id)

	t, err := scanTransfer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Transfer{}, ErrTransferNotFound
	}
	if err != nil {
		return Transfer{}, fmt.Errorf("%w: failed to get transfer: %v", ErrDBOperationFailed, err)
	}
	return t, nil
}

// List returns transfers matching f, newest first.
func (s *Storage) List(ctx context.Context, f Filter) ([]Transfer, error) {
	query := selectTransfers
	where, args := f.buildWhereClause()
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY started_at DESC, rowid DESC"

	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list transfers: %v", ErrDBOperationFailed, err)
	}
	defer rows.Close()

	var out []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan transfer: %v", ErrDBOperationFailed, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBOperationFailed, err)
	}
	return out, nil
}

const selectTransfers = `SELECT id, direction, filename, peer, remote_addr,
	bytes, status, error, started_at, finished_at FROM transfers`

type scanner interface {
	Scan(dest ...any) error
}

func scanTransfer(sc scanner) (Transfer, error) {
	var (
		t                 Transfer
		direction, status string
		started, finished int64
	)
	err := sc.Scan(
		&t.ID, &direction, &t.Filename, &t.Peer, &t.RemoteAddr,
		&t.Bytes, &status, &t.Error, &started, &finished,
	)
	if err != nil {
		return Transfer{}, err
	}

	t.Direction = Direction(direction)
	t.Status = Status(status)
	t.StartedAt = time.UnixMilli(started)
	t.FinishedAt = time.UnixMilli(finished)
	return t, nil
}

func (f *Filter) buildWhereClause() (string, []any) {
	where := []string{}
	args := []any{}

	if f.Direction != nil {
		where = append(where, "direction = ?")
		args = append(args, string(*f.Direction))
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.FilenameLike != "" {
		where = append(where, "filename LIKE ?")
		args = append(args, "%"+f.FilenameLike+"%")
	}

	return strings.Join(where, " AND "), args
}

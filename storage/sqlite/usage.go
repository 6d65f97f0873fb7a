// Package sqlite provides a relational usage-quota store on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/poiesic/admissions/core"
	"github.com/poiesic/admissions/storage"

	// Import modernc.org/sqlite as a blank import to register the driver
	_ "modernc.org/sqlite"
)

// UsageRepository implements storage.UsageRepository on a SQLite table with one
// row per identity.
type UsageRepository struct {
	db   *sql.DB
	path string
}

var _ storage.UsageRepository = (*UsageRepository)(nil)

// NewUsageRepository opens (or creates) the database at path and initializes the schema.
func NewUsageRepository(path string) (storage.UsageRepository, error) {
	return newUsageRepository(path)
}

func newUsageRepository(path string) (*UsageRepository, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &UsageRepository{db: db, path: path}
	if err := repo.configure(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if err := repo.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return repo, nil
}

func (r *UsageRepository) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := r.db.ExecContext(context.Background(), pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (r *UsageRepository) createSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS usage_records (
		identity_kind TEXT NOT NULL,
		identity_value TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0),
		reset_date TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (identity_kind, identity_value)
	);
	`
	_, err := r.db.ExecContext(context.Background(), query)
	return err
}

// Path returns the database file path.
func (r *UsageRepository) Path() string {
	return r.path
}

// Close closes the database.
func (r *UsageRepository) Close() error {
	return r.db.Close()
}

func parseKind(s string) (core.IdentityKind, error) {
	switch s {
	case core.IdentityUser.String():
		return core.IdentityUser, nil
	case core.IdentityAddress.String():
		return core.IdentityAddress, nil
	default:
		return 0, fmt.Errorf("%w: unknown identity kind %q", storage.ErrSerializationFailed, s)
	}
}

// GetUsage returns the stored record for id.
func (r *UsageRepository) GetUsage(ctx context.Context, id core.Identity) (*core.UsageRecord, error) {
	var (
		kind      string
		rec       core.UsageRecord
		updatedAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT identity_kind, identity_value, count, reset_date, updated_at
		FROM usage_records
		WHERE identity_kind = ? AND identity_value = ?`,
		id.Kind.String(), id.Value,
	).Scan(&kind, &rec.Identity.Value, &rec.Count, &rec.ResetDate, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	rec.Identity.Kind, err = parseKind(kind)
	if err != nil {
		return nil, err
	}
	rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: updated_at: %w", storage.ErrSerializationFailed, err)
	}
	return &rec, nil
}

// UpsertUsage inserts or replaces the identity's record.
func (r *UsageRepository) UpsertUsage(ctx context.Context, rec *core.UsageRecord) error {
	if rec.Count < 0 {
		return fmt.Errorf("%w: negative count %d", storage.ErrInvalidQuery, rec.Count)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO usage_records (identity_kind, identity_value, count, reset_date, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(identity_kind, identity_value) DO UPDATE SET
			count = excluded.count,
			reset_date = excluded.reset_date,
			updated_at = excluded.updated_at`,
		rec.Identity.Kind.String(), rec.Identity.Value, rec.Count, rec.ResetDate,
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

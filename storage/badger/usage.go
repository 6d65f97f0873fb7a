package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/admissions/core"
	"github.com/poiesic/admissions/storage"
)

// UsageRepository implements storage.UsageRepository for BadgerDB.
// Each identity has exactly one record; the reset date is overwritten in place.
type UsageRepository struct {
	backend *Backend
}

var _ storage.UsageRepository = (*UsageRepository)(nil)

// NewUsageRepository creates a usage repository on backend.
func NewUsageRepository(backend *Backend) storage.UsageRepository {
	return &UsageRepository{backend: backend}
}

// Close is a no-op; the backend is closed by its owner.
func (r *UsageRepository) Close() error {
	return nil
}

// GetUsage returns the stored record for id.
func (r *UsageRepository) GetUsage(ctx context.Context, id core.Identity) (*core.UsageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var rec *core.UsageRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeUsageKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			rec, err = storage.UnmarshalUsageRecord(val)
			return err
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpsertUsage writes rec, replacing the identity's previous record.
func (r *UsageRepository) UpsertUsage(ctx context.Context, rec *core.UsageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	if rec.Count < 0 {
		return fmt.Errorf("%w: negative count %d", storage.ErrInvalidQuery, rec.Count)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeUsageKey(rec.Identity), storage.MarshalUsageRecord(rec)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

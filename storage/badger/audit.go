package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/admissions/core"
	"github.com/poiesic/admissions/storage"
)

// AuditRepository implements storage.AuditRepository for BadgerDB.
// Reports are keyed by creation time so listing is a prefix scan.
type AuditRepository struct {
	backend *Backend
}

var _ storage.AuditRepository = (*AuditRepository)(nil)

// NewAuditRepository creates an audit repository on backend.
func NewAuditRepository(backend *Backend) storage.AuditRepository {
	return &AuditRepository{backend: backend}
}

// Close is a no-op; the backend is closed by its owner.
func (r *AuditRepository) Close() error {
	return nil
}

// SaveReport appends rep, assigning Id and CreatedAt when unset.
func (r *AuditRepository) SaveReport(ctx context.Context, rep *core.EvaluationReport) error {
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	if rep.Id == "" {
		rep.Id = uuid.NewString()
	}
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now().UTC()
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeAuditKey(rep.CreatedAt, rep.Id), storage.MarshalReport(rep)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ListReports returns up to limit reports, newest first.
func (r *AuditRepository) ListReports(ctx context.Context, limit int) ([]*core.EvaluationReport, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	var reports []*core.EvaluationReport
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := []byte(auditPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Reverse iteration must start past the last key with the prefix
		seek := append(append([]byte{}, prefix...), 0xFF)
		for iter.Seek(seek); iter.ValidForPrefix(prefix) && len(reports) < limit; iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := iter.Item().Value(func(val []byte) error {
				rep, err := storage.UnmarshalReport(val)
				if err != nil {
					return err
				}
				reports = append(reports, rep)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return reports, nil
}

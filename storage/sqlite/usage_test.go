package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/admissions/core"
	"github.com/poiesic/admissions/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *UsageRepository {
	t.Helper()
	repo, err := newUsageRepository(filepath.Join(t.TempDir(), "nested", "usage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestUsageRepository_GetMissing(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetUsage(context.Background(), core.UserIdentity("nobody"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUsageRepository_Upsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	updated := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)

	rec := &core.UsageRecord{
		Identity:  core.AddressIdentity("198.51.100.4"),
		Count:     1,
		ResetDate: "2026-04-02",
		UpdatedAt: updated,
	}
	require.NoError(t, repo.UpsertUsage(ctx, rec))

	got, err := repo.GetUsage(ctx, rec.Identity)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	rec.Count = 2
	rec.UpdatedAt = updated.Add(time.Minute)
	require.NoError(t, repo.UpsertUsage(ctx, rec))

	got, err = repo.GetUsage(ctx, rec.Identity)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Count)
	assert.True(t, got.UpdatedAt.Equal(rec.UpdatedAt))

	var rows int
	require.NoError(t, repo.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM usage_records").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestUsageRepository_IdentityKindsAreDistinct(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertUsage(ctx, &core.UsageRecord{Identity: core.UserIdentity("42"), Count: 5, ResetDate: "2026-04-02"}))
	require.NoError(t, repo.UpsertUsage(ctx, &core.UsageRecord{Identity: core.AddressIdentity("42"), Count: 1, ResetDate: "2026-04-02"}))

	user, err := repo.GetUsage(ctx, core.UserIdentity("42"))
	require.NoError(t, err)
	assert.Equal(t, 5, user.Count)

	addr, err := repo.GetUsage(ctx, core.AddressIdentity("42"))
	require.NoError(t, err)
	assert.Equal(t, 1, addr.Count)
}

func TestUsageRepository_RejectsNegativeCount(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.UpsertUsage(context.Background(), &core.UsageRecord{Identity: core.UserIdentity("u"), Count: -1})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestUsageRepository_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.db")
	ctx := context.Background()

	repo, err := NewUsageRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.UpsertUsage(ctx, &core.UsageRecord{Identity: core.UserIdentity("u"), Count: 7, ResetDate: "2026-01-01"}))
	require.NoError(t, repo.Close())

	repo, err = NewUsageRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.GetUsage(ctx, core.UserIdentity("u"))
	require.NoError(t, err)
	assert.Equal(t, 7, got.Count)
}

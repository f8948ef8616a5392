package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-console/internal/domain"
	"solana-token-console/internal/observability"
	"solana-token-console/internal/storage"
	pgstore "solana-token-console/internal/storage/postgres"
)

func testActivity(id, identity, mint string, createdAt int64) *domain.Activity {
	return &domain.Activity{
		ID:          id,
		Kind:        domain.ActivityUpdate,
		Mint:        mint,
		Identity:    identity,
		Signature:   "sig-" + id,
		ExplorerURL: "https://explorer.solana.com/tx/sig-" + id + "?cluster=devnet",
		Status:      domain.ActivityConfirmed,
		CreatedAt:   createdAt,
	}
}

func TestActivityStore_InsertAndGetByID(t *testing.T) {
	pool := setupTestDB(t)

	store := pgstore.NewActivityStore(pool, observability.NewMetrics(""))
	ctx := context.Background()

	a := testActivity("activity-001", "Owner111", "Mint111", 1700000000000)
	a.Status = domain.ActivityFailed
	a.Error = "transaction failed: custom program error"

	require.NoError(t, store.Insert(ctx, a))

	got, err := store.GetByID(ctx, "activity-001")
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestActivityStore_InsertDuplicate(t *testing.T) {
	pool := setupTestDB(t)

	store := pgstore.NewActivityStore(pool, nil)
	ctx := context.Background()

	a := testActivity("activity-dup", "Owner111", "Mint111", 1)
	require.NoError(t, store.Insert(ctx, a))
	assert.ErrorIs(t, store.Insert(ctx, a), storage.ErrDuplicateKey)
}

func TestActivityStore_GetByIDNotFound(t *testing.T) {
	pool := setupTestDB(t)

	store := pgstore.NewActivityStore(pool, nil)
	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestActivityStore_Lists(t *testing.T) {
	pool := setupTestDB(t)

	store := pgstore.NewActivityStore(pool, nil)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testActivity("a", "Owner111", "MintA", 100)))
	require.NoError(t, store.Insert(ctx, testActivity("b", "Owner111", "MintB", 300)))
	require.NoError(t, store.Insert(ctx, testActivity("c", "Owner111", "MintA", 200)))
	require.NoError(t, store.Insert(ctx, testActivity("d", "Owner222", "MintA", 400)))

	recent, err := store.ListByIdentity(ctx, "Owner111", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].ID)
	assert.Equal(t, "c", recent[1].ID)

	all, err := store.ListByIdentity(ctx, "Owner111", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byMint, err := store.ListByMint(ctx, "MintA")
	require.NoError(t, err)
	require.Len(t, byMint, 3)
	assert.Equal(t, []string{"a", "c", "d"}, []string{byMint[0].ID, byMint[1].ID, byMint[2].ID})
}

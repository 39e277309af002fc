package storage

import (
	"context"
	"path/filepath"
	"testing"

	"spendcast/internal/core"
	"spendcast/internal/store"
	"spendcast/internal/store/storetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "nested", "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestRepo(t) })
}

func TestSQLiteRepository_EmailIsCaseInsensitive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.CreateUser(ctx, core.User{Email: "Ada@Example.com", AccountRef: "acc"})
	require.NoError(t, err)
	_, err = repo.CreateUser(ctx, core.User{Email: "ada@example.com", AccountRef: "acc"})
	assert.ErrorIs(t, err, core.ErrUserExists)
}

func TestSQLiteRepository_UpsertOverwritesFields(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u, err := repo.CreateUser(ctx, core.User{Email: "ada@example.com", AccountRef: "acc"})
	require.NoError(t, err)

	orig := core.Transaction{ID: "t1", AccountRef: "acc", Amount: decimal.RequireFromString("12.50"), PostedOn: core.NewDate(2025, 3, 4), Description: "coffee"}
	_, err = repo.UpsertTransactions(ctx, u.ID, []core.Transaction{orig})
	require.NoError(t, err)

	changed := orig
	changed.Description = "coffee beans"
	n, err := repo.UpsertTransactions(ctx, u.ID, []core.Transaction{changed})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	txs, err := repo.ListTransactions(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "coffee beans", txs[0].Description)
	assert.Equal(t, "12.5", txs[0].Amount.String())
}

func TestSQLiteRepository_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	repo, err := NewSQLiteRepository(path, nil)
	require.NoError(t, err)
	u, err := repo.CreateUser(ctx, core.User{Email: "ada@example.com", AccountRef: "acc"})
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = NewSQLiteRepository(path, nil)
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.True(t, u.CreatedAt.Equal(got.CreatedAt))
}

func TestSQLiteRepository_InvalidTransactionRejected(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u, err := repo.CreateUser(ctx, core.User{Email: "ada@example.com", AccountRef: "acc"})
	require.NoError(t, err)

	_, err = repo.UpsertTransactions(ctx, u.ID, []core.Transaction{{ID: "t", PostedOn: core.NewDate(2025, 1, 1)}})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}

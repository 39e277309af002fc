// Package storetest holds the behaviour every store.Store implementation
// must share. Implementations call Run from their own tests.
package storetest

import (
	"context"
	"testing"

	"spendcast/internal/core"
	"spendcast/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises s against the store contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("user lifecycle", func(t *testing.T) { testUserLifecycle(t, newStore(t)) })
	t.Run("duplicate email", func(t *testing.T) { testDuplicateEmail(t, newStore(t)) })
	t.Run("upsert is idempotent", func(t *testing.T) { testUpsertIdempotent(t, newStore(t)) })
	t.Run("upsert unknown user", func(t *testing.T) { testUpsertUnknownUser(t, newStore(t)) })
	t.Run("delete cascades", func(t *testing.T) { testDeleteCascades(t, newStore(t)) })
	t.Run("users are isolated", func(t *testing.T) { testIsolation(t, newStore(t)) })
}

func tx(id string, day int, amount string) core.Transaction {
	return core.Transaction{
		ID:          id,
		AccountRef:  "acc-1",
		Amount:      decimal.RequireFromString(amount),
		PostedOn:    core.NewDate(2025, 1, day),
		Description: "entry " + id,
	}
}

func mustCreate(t *testing.T, s store.Store, email string) core.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), core.User{Email: email, AccountRef: "acc-1"})
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)
	return u
}

func testUserLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustCreate(t, s, "ada@example.com")
	assert.False(t, u.CreatedAt.IsZero())

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, u.AccountRef, got.AccountRef)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrUserNotFound)
	assert.ErrorIs(t, s.DeleteUser(ctx, "missing"), core.ErrUserNotFound)

	_, err = s.CreateUser(ctx, core.User{Email: "not-an-email", AccountRef: "x"})
	assert.Error(t, err)
}

func testDuplicateEmail(t *testing.T, s store.Store) {
	mustCreate(t, s, "ada@example.com")
	_, err := s.CreateUser(context.Background(), core.User{Email: "ada@example.com", AccountRef: "acc-2"})
	assert.ErrorIs(t, err, core.ErrUserExists)
}

func testUpsertIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustCreate(t, s, "ada@example.com")
	window := []core.Transaction{tx("b", 2, "20.10"), tx("a", 2, "10"), tx("c", 1, "0.01")}

	n, err := s.UpsertTransactions(ctx, u.ID, window)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	first, err := s.ListTransactions(ctx, u.ID)
	require.NoError(t, err)

	n, err = s.UpsertTransactions(ctx, u.ID, window)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	second, err := s.ListTransactions(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, second, 3)
	assert.Equal(t, ids(first), ids(second))
	assert.Equal(t, []string{"c", "a", "b"}, ids(second))
	assert.True(t, second[2].Amount.Equal(decimal.RequireFromString("20.10")))
	assert.Equal(t, core.NewDate(2025, 1, 2), second[2].PostedOn.UTC())

	n, err = s.UpsertTransactions(ctx, u.ID, []core.Transaction{tx("d", 5, "1")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testUpsertUnknownUser(t *testing.T, s store.Store) {
	_, err := s.UpsertTransactions(context.Background(), "ghost", []core.Transaction{tx("a", 1, "1")})
	assert.ErrorIs(t, err, core.ErrUserNotFound)
}

func testDeleteCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustCreate(t, s, "ada@example.com")
	_, err := s.UpsertTransactions(ctx, u.ID, []core.Transaction{tx("a", 1, "1")})
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, u.ID))

	txs, err := s.ListTransactions(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
	_, err = s.GetUser(ctx, u.ID)
	assert.ErrorIs(t, err, core.ErrUserNotFound)
}

func testIsolation(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "a@example.com")
	b := mustCreate(t, s, "b@example.com")

	_, err := s.UpsertTransactions(ctx, a.ID, []core.Transaction{tx("same", 1, "1")})
	require.NoError(t, err)
	_, err = s.UpsertTransactions(ctx, b.ID, []core.Transaction{tx("same", 1, "2")})
	require.NoError(t, err)

	txsA, err := s.ListTransactions(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, txsA, 1)
	assert.True(t, txsA[0].Amount.Equal(decimal.NewFromInt(1)))
}

func ids(txs []core.Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.ID
	}
	return out
}

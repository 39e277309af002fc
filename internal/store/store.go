// Package store defines persistence ports for users and their transactions.
package store

import (
	"context"

	"spendcast/internal/core"
)

// TransactionStore persists fetched transactions per user. Upserts are keyed
// by (userID, transaction id), so writing the same window twice is a no-op.
type TransactionStore interface {
	// UpsertTransactions writes txs and returns how many were not stored before.
	UpsertTransactions(ctx context.Context, userID string, txs []core.Transaction) (int, error)
	// ListTransactions returns the user's transactions ordered by date then id.
	ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error)
}

// UserStore is the user registry. DeleteUser removes the user's transactions too.
type UserStore interface {
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	GetUser(ctx context.Context, id string) (core.User, error)
	ListUsers(ctx context.Context) ([]core.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Store combines both ports with a lifecycle hook.
type Store interface {
	TransactionStore
	UserStore
	Close() error
}

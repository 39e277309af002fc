package storage

import (
	"context"
)

const createUser = `-- name: CreateUser :one
INSERT INTO users (id, email, account_ref, created_at)
VALUES (?, ?, ?, ?)
RETURNING id, email, account_ref, created_at
`

type CreateUserParams struct {
	ID         string
	Email      string
	AccountRef string
	CreatedAt  string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, createUser,
		arg.ID,
		arg.Email,
		arg.AccountRef,
		arg.CreatedAt,
	)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.AccountRef,
		&i.CreatedAt,
	)
	return i, err
}

const getUser = `-- name: GetUser :one
SELECT id, email, account_ref, created_at FROM users
WHERE id = ?
`

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUser, id)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.AccountRef,
		&i.CreatedAt,
	)
	return i, err
}

const listUsers = `-- name: ListUsers :many
SELECT id, email, account_ref, created_at FROM users
ORDER BY created_at, id
`

func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		var i User
		if err := rows.Scan(
			&i.ID,
			&i.Email,
			&i.AccountRef,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteUser = `-- name: DeleteUser :execrows
DELETE FROM users
WHERE id = ?
`

func (q *Queries) DeleteUser(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteUser, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteTransactionsForUser = `-- name: DeleteTransactionsForUser :exec
DELETE FROM transactions
WHERE user_id = ?
`

func (q *Queries) DeleteTransactionsForUser(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, deleteTransactionsForUser, userID)
	return err
}

const countTransactions = `-- name: CountTransactions :one
SELECT COUNT(*) FROM transactions
WHERE user_id = ?
`

func (q *Queries) CountTransactions(ctx context.Context, userID string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countTransactions, userID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const upsertTransaction = `-- name: UpsertTransaction :exec
INSERT INTO transactions (user_id, id, account_ref, amount, posted_on, description, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, id) DO UPDATE SET
    account_ref = excluded.account_ref,
    amount = excluded.amount,
    posted_on = excluded.posted_on,
    description = excluded.description,
    updated_at = excluded.updated_at
`

type UpsertTransactionParams struct {
	UserID      string
	ID          string
	AccountRef  string
	Amount      string
	PostedOn    string
	Description string
	UpdatedAt   string
}

func (q *Queries) UpsertTransaction(ctx context.Context, arg UpsertTransactionParams) error {
	_, err := q.db.ExecContext(ctx, upsertTransaction,
		arg.UserID,
		arg.ID,
		arg.AccountRef,
		arg.Amount,
		arg.PostedOn,
		arg.Description,
		arg.UpdatedAt,
	)
	return err
}

const listTransactions = `-- name: ListTransactions :many
SELECT user_id, id, account_ref, amount, posted_on, description, updated_at FROM transactions
WHERE user_id = ?
ORDER BY posted_on, id
`

func (q *Queries) ListTransactions(ctx context.Context, userID string) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		var i Transaction
		if err := rows.Scan(
			&i.UserID,
			&i.ID,
			&i.AccountRef,
			&i.Amount,
			&i.PostedOn,
			&i.Description,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"spendcast/internal/core"
	"spendcast/internal/log"
	"spendcast/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Fixed width so text ordering matches time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
	now     func() time.Time
}

var _ store.Store = (*SQLiteRepository)(nil)

// DSN builds the connection string used for both the pool and migrations.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if logger == nil {
		logger = log.Discard()
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger.WithComponent(log.ComponentStorage),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now().UTC()
	}

	row, err := r.queries.CreateUser(ctx, CreateUserParams{
		ID:         u.ID,
		Email:      strings.TrimSpace(u.Email),
		AccountRef: u.AccountRef,
		CreatedAt:  u.CreatedAt.UTC().Format(timestampLayout),
	})
	if err != nil {
		if isConstraintViolation(err) {
			return core.User{}, fmt.Errorf("%w: %s", core.ErrUserExists, u.Email)
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}

	r.logger.InfoContext(ctx, "User saved to SQLite", log.FieldUserID, row.ID)
	return toCoreUser(row)
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	row, err := r.queries.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, id)
		}
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return toCoreUser(row)
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.queries.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]core.User, 0, len(rows))
	for _, row := range rows {
		u, err := toCoreUser(row)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (r *SQLiteRepository) DeleteUser(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := q.DeleteTransactionsForUser(ctx, id); err != nil {
		return fmt.Errorf("delete transactions: %w", err)
	}
	n, err := q.DeleteUser(ctx, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrUserNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.InfoContext(ctx, "User deleted from SQLite", log.FieldUserID, id)
	return nil
}

func (r *SQLiteRepository) UpsertTransactions(ctx context.Context, userID string, txs []core.Transaction) (int, error) {
	for _, t := range txs {
		if err := t.Validate(); err != nil {
			return 0, err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if _, err := q.GetUser(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", core.ErrUserNotFound, userID)
		}
		return 0, fmt.Errorf("get user: %w", err)
	}

	before, err := q.CountTransactions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}

	updatedAt := r.now().UTC().Format(timestampLayout)
	for _, t := range txs {
		err := q.UpsertTransaction(ctx, UpsertTransactionParams{
			UserID:      userID,
			ID:          t.ID,
			AccountRef:  t.AccountRef,
			Amount:      t.Amount.String(),
			PostedOn:    core.FormatDate(t.PostedOn),
			Description: t.Description,
			UpdatedAt:   updatedAt,
		})
		if err != nil {
			return 0, fmt.Errorf("upsert transaction %s: %w", t.ID, err)
		}
	}

	after, err := q.CountTransactions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	inserted := int(after - before)
	r.logger.DebugContext(ctx, "Transactions upserted",
		log.FieldUserID, userID,
		log.FieldCount, len(txs),
		"inserted", inserted)
	return inserted, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := toCoreTransaction(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func toCoreUser(row User) (core.User, error) {
	created, err := time.Parse(timestampLayout, row.CreatedAt)
	if err != nil {
		return core.User{}, fmt.Errorf("parse created_at for user %s: %w", row.ID, err)
	}
	return core.User{
		ID:         row.ID,
		Email:      row.Email,
		AccountRef: row.AccountRef,
		CreatedAt:  created,
	}, nil
}

func toCoreTransaction(row Transaction) (core.Transaction, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount for transaction %s: %w", row.ID, err)
	}
	posted, err := core.ParseDate(row.PostedOn)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", row.ID, err)
	}
	return core.Transaction{
		ID:          row.ID,
		AccountRef:  row.AccountRef,
		Amount:      amount,
		PostedOn:    posted,
		Description: row.Description,
	}, nil
}

func isConstraintViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	default:
		return false
	}
}

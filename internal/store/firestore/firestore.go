// Package firestore implements store.Store on Cloud Firestore.
//
// Users live in the "users" collection keyed by id. Each user's transactions
// live in the users/{uid}/transactions subcollection keyed by transaction id.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"spendcast/internal/core"
	"spendcast/internal/log"
	"spendcast/internal/store"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	usersCollection        = "users"
	transactionsCollection = "transactions"

	// Firestore rejects batches and transactions with more writes than this.
	maxWrites = 500
)

type userDoc struct {
	Email      string    `firestore:"email"`
	EmailLower string    `firestore:"email_lower"`
	AccountRef string    `firestore:"account_ref"`
	CreatedAt  time.Time `firestore:"created_at"`
}

type transactionDoc struct {
	UserID      string    `firestore:"user_id"`
	ID          string    `firestore:"id"`
	AccountRef  string    `firestore:"account_ref"`
	Amount      string    `firestore:"amount"`
	PostedOn    string    `firestore:"posted_on"`
	Description string    `firestore:"description"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

// Store implements store.Store using Firestore
type Store struct {
	client *firestore.Client
	logger *log.Logger
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// New wraps an existing client. Close closes the client.
func New(client *firestore.Client, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Discard()
	}
	return &Store{
		client: client,
		logger: logger.WithComponent(log.ComponentStorage),
		now:    time.Now,
	}
}

// Open creates a client for projectID and wraps it.
func Open(ctx context.Context, projectID string, logger *log.Logger) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return New(client, logger), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	u.Email = strings.TrimSpace(u.Email)

	doc := userDoc{
		Email:      u.Email,
		EmailLower: strings.ToLower(u.Email),
		AccountRef: u.AccountRef,
		CreatedAt:  u.CreatedAt,
	}
	ref := s.client.Collection(usersCollection).Doc(u.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		q := s.client.Collection(usersCollection).Where("email_lower", "==", doc.EmailLower).Limit(1)
		existing, err := tx.Documents(q).GetAll()
		if err != nil {
			return fmt.Errorf("failed to query users by email: %w", err)
		}
		if len(existing) > 0 {
			return fmt.Errorf("%w: %s", core.ErrUserExists, u.Email)
		}
		return tx.Create(ref, doc)
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return core.User{}, fmt.Errorf("%w: id %s", core.ErrUserExists, u.ID)
		}
		if errors.Is(err, core.ErrUserExists) {
			return core.User{}, err
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "User saved to Firestore", log.FieldUserID, u.ID)
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (core.User, error) {
	snap, err := s.client.Collection(usersCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return core.User{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, id)
		}
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return toUser(snap)
}

func (s *Store) ListUsers(ctx context.Context) ([]core.User, error) {
	iter := s.client.Collection(usersCollection).Documents(ctx)
	defer iter.Stop()

	var users []core.User
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		u, err := toUser(snap)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// DeleteUser deletes a user and every transaction stored for them.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	ref := s.client.Collection(usersCollection).Doc(id)
	if _, err := ref.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: %s", core.ErrUserNotFound, id)
		}
		return fmt.Errorf("get user: %w", err)
	}

	// Subcollections outlive their parent document, so delete them first
	docs, err := ref.Collection(transactionsCollection).Documents(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("failed to query transactions: %w", err)
	}
	for i := 0; i < len(docs); i += maxWrites {
		end := min(i+maxWrites, len(docs))
		batch := s.client.Batch()
		for _, doc := range docs[i:end] {
			batch.Delete(doc.Ref)
		}
		if _, err := batch.Commit(ctx); err != nil {
			return fmt.Errorf("failed to batch delete transactions: %w", err)
		}
	}

	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.logger.InfoContext(ctx, "User deleted from Firestore",
		log.FieldUserID, id,
		log.FieldCount, len(docs))
	return nil
}

// UpsertTransactions writes txs in chunks, each inside its own Firestore
// transaction so the inserted count is read and written atomically.
func (s *Store) UpsertTransactions(ctx context.Context, userID string, txs []core.Transaction) (int, error) {
	for _, t := range txs {
		if err := t.Validate(); err != nil {
			return 0, err
		}
	}
	userRef := s.client.Collection(usersCollection).Doc(userID)
	updatedAt := s.now().UTC()

	// Duplicates inside one call would be counted twice
	txs = lastByID(txs)

	if len(txs) == 0 {
		_, err := s.GetUser(ctx, userID)
		return 0, err
	}

	inserted := 0
	// One read for the user leaves room for maxWrites-1 writes
	chunk := maxWrites - 1
	for i := 0; i < len(txs); i += chunk {
		end := min(i+chunk, len(txs))
		part := txs[i:end]

		n := 0
		err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			n = 0
			if _, err := tx.Get(userRef); err != nil {
				if status.Code(err) == codes.NotFound {
					return fmt.Errorf("%w: %s", core.ErrUserNotFound, userID)
				}
				return err
			}

			refs := make([]*firestore.DocumentRef, len(part))
			for j, t := range part {
				refs[j] = s.transactionRef(userID, t.ID)
			}
			snaps, err := tx.GetAll(refs)
			if err != nil {
				return err
			}
			for j, t := range part {
				if !snaps[j].Exists() {
					n++
				}
				if err := tx.Set(refs[j], toTransactionDoc(userID, t, updatedAt)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, core.ErrUserNotFound) {
				return inserted, err
			}
			return inserted, fmt.Errorf("upsert transactions: %w", err)
		}
		inserted += n
	}

	s.logger.DebugContext(ctx, "Transactions upserted",
		log.FieldUserID, userID,
		log.FieldCount, len(txs),
		"inserted", inserted)
	return inserted, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	iter := s.client.Collection(usersCollection).Doc(userID).Collection(transactionsCollection).Documents(ctx)
	defer iter.Stop()

	out := []core.Transaction{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		t, err := toTransaction(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PostedOn.Equal(out[j].PostedOn) {
			return out[i].PostedOn.Before(out[j].PostedOn)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// transactionRef escapes the transaction id since document ids cannot contain '/'.
func (s *Store) transactionRef(userID, txID string) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(userID).Collection(transactionsCollection).Doc(url.PathEscape(txID))
}

func lastByID(txs []core.Transaction) []core.Transaction {
	pos := make(map[string]int, len(txs))
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if i, ok := pos[t.ID]; ok {
			out[i] = t
			continue
		}
		pos[t.ID] = len(out)
		out = append(out, t)
	}
	return out
}

func toTransactionDoc(userID string, t core.Transaction, updatedAt time.Time) transactionDoc {
	return transactionDoc{
		UserID:      userID,
		ID:          t.ID,
		AccountRef:  t.AccountRef,
		Amount:      t.Amount.String(),
		PostedOn:    core.FormatDate(t.PostedOn),
		Description: t.Description,
		UpdatedAt:   updatedAt,
	}
}

func toUser(snap *firestore.DocumentSnapshot) (core.User, error) {
	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return core.User{}, fmt.Errorf("failed to parse user: %w", err)
	}
	return core.User{
		ID:         snap.Ref.ID,
		Email:      doc.Email,
		AccountRef: doc.AccountRef,
		CreatedAt:  doc.CreatedAt.UTC(),
	}, nil
}

func toTransaction(snap *firestore.DocumentSnapshot) (core.Transaction, error) {
	var doc transactionDoc
	if err := snap.DataTo(&doc); err != nil {
		return core.Transaction{}, fmt.Errorf("failed to parse transaction: %w", err)
	}
	amount, err := decimal.NewFromString(doc.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount for transaction %s: %w", doc.ID, err)
	}
	posted, err := core.ParseDate(doc.PostedOn)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", doc.ID, err)
	}
	return core.Transaction{
		ID:          doc.ID,
		AccountRef:  doc.AccountRef,
		Amount:      amount,
		PostedOn:    posted,
		Description: doc.Description,
	}, nil
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"spendcast/internal/core"
	"spendcast/internal/store"

	"github.com/google/uuid"
)

// Store implements store.Store with in-memory maps.
type Store struct {
	mu sync.RWMutex

	users        map[string]core.User
	transactions map[string]map[string]core.Transaction // user id -> tx id -> tx
	now          func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:        make(map[string]core.User),
		transactions: make(map[string]map[string]core.Transaction),
		now:          time.Now,
	}
}

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return core.User{}, fmt.Errorf("%w: %s", core.ErrUserExists, u.Email)
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, ok := s.users[u.ID]; ok {
		return core.User{}, fmt.Errorf("%w: id %s", core.ErrUserExists, u.ID)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, id)
	}
	return u, nil
}

func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrUserNotFound, id)
	}
	delete(s.users, id)
	delete(s.transactions, id)
	return nil
}

func (s *Store) UpsertTransactions(_ context.Context, userID string, txs []core.Transaction) (int, error) {
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return 0, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return 0, fmt.Errorf("%w: %s", core.ErrUserNotFound, userID)
	}

	byID := s.transactions[userID]
	if byID == nil {
		byID = make(map[string]core.Transaction)
		s.transactions[userID] = byID
	}
	inserted := 0
	for _, tx := range txs {
		if _, ok := byID[tx.ID]; !ok {
			inserted++
		}
		byID[tx.ID] = tx
	}
	return inserted, nil
}

func (s *Store) ListTransactions(_ context.Context, userID string) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Transaction, 0, len(s.transactions[userID]))
	for _, tx := range s.transactions[userID] {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PostedOn.Equal(out[j].PostedOn) {
			return out[i].PostedOn.Before(out[j].PostedOn)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Close() error { return nil }

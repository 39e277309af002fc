package services

import (
	"context"
	"fmt"
	"time"

	"spendcast/internal/core"
	"spendcast/internal/log"
	"spendcast/internal/store"

	"golang.org/x/sync/singleflight"
)

// HistoryFetcher retrieves the complete debit history of an account.
// history.Fetcher is the production implementation.
type HistoryFetcher interface {
	Fetch(ctx context.Context, accountRef string, rng core.DateRange) ([]core.Transaction, error)
}

// SyncResult summarises one history refresh.
type SyncResult struct {
	UserID  string         `json:"user_id"`
	Range   core.DateRange `json:"-"`
	From    string         `json:"from"`
	To      string         `json:"to"`
	Fetched int            `json:"fetched"`
	Stored  int            `json:"stored"`
}

// SyncService pulls a user's history from upstream into the store.
type SyncService struct {
	store         store.Store
	fetcher       HistoryFetcher
	historyMonths int
	now           func() time.Time
	logger        *log.Logger

	flights singleflight.Group
}

func NewSyncService(st store.Store, fetcher HistoryFetcher, historyMonths int, logger *log.Logger) *SyncService {
	if logger == nil {
		logger = log.Discard()
	}
	if historyMonths < 1 {
		historyMonths = 24
	}
	return &SyncService{
		store:         st,
		fetcher:       fetcher,
		historyMonths: historyMonths,
		now:           time.Now,
		logger:        logger.WithComponent(log.ComponentSync),
	}
}

// DefaultWindow is the last historyMonths calendar months through today.
func (s *SyncService) DefaultWindow() core.DateRange {
	return core.LastMonths(s.now().UTC(), s.historyMonths)
}

// Sync fetches rng (or the default window when nil) for the user and upserts
// it. Concurrent calls for the same user and window share one fetch.
func (s *SyncService) Sync(ctx context.Context, userID string, rng *core.DateRange) (SyncResult, error) {
	window := s.DefaultWindow()
	if rng != nil {
		window = *rng
	}
	if err := window.Validate(); err != nil {
		return SyncResult{}, err
	}

	key := userID + "|" + window.String()
	ch := s.flights.DoChan(key, func() (interface{}, error) {
		// Detached so one caller giving up does not fail the others
		return s.sync(context.WithoutCancel(ctx), userID, window)
	})

	select {
	case <-ctx.Done():
		return SyncResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return SyncResult{}, res.Err
		}
		return res.Val.(SyncResult), nil
	}
}

func (s *SyncService) sync(ctx context.Context, userID string, window core.DateRange) (SyncResult, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return SyncResult{}, err
	}

	start := time.Now()
	txs, err := s.fetcher.Fetch(ctx, user.AccountRef, window)
	if err != nil {
		return SyncResult{}, fmt.Errorf("fetch history: %w", err)
	}

	stored, err := s.store.UpsertTransactions(ctx, userID, txs)
	if err != nil {
		return SyncResult{}, fmt.Errorf("store history: %w", err)
	}

	s.logger.InfoContext(ctx, "History synced",
		log.FieldUserID, userID,
		log.FieldAccountRef, user.AccountRef,
		log.FieldRange, window.String(),
		log.FieldCount, len(txs),
		"stored", stored,
		"duration_ms", time.Since(start).Milliseconds())

	return SyncResult{
		UserID:  userID,
		Range:   window,
		From:    core.FormatDate(window.Start),
		To:      core.FormatDate(window.End),
		Fetched: len(txs),
		Stored:  stored,
	}, nil
}

package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"spendcast/internal/core"
	"spendcast/internal/history"
	storemem "spendcast/internal/store/memory"
	"spendcast/internal/upstream"
	upstreammem "spendcast/internal/upstream/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func debit(id string, posted time.Time, amount string) upstream.RawTransaction {
	return upstream.RawTransaction{
		ID:       id,
		Type:     upstream.Debit,
		Amount:   decimal.RequireFromString(amount),
		PostedOn: posted,
	}
}

func newUser(t *testing.T, st *storemem.Store) core.User {
	t.Helper()
	u, err := st.CreateUser(context.Background(), core.User{Email: "ada@example.com", AccountRef: "acc-1"})
	require.NoError(t, err)
	return u
}

func TestSyncService_SyncIsIdempotent(t *testing.T) {
	st := storemem.New()
	u := newUser(t, st)

	src := upstreammem.New(2)
	src.Add("acc-1",
		debit("t1", core.NewDate(2025, 1, 3), "-10"),
		debit("t2", core.NewDate(2025, 1, 9), "-20"),
		debit("t3", core.NewDate(2025, 2, 1), "-30"),
	)
	svc := NewSyncService(st, history.NewFetcher(src, history.DefaultConfig(), nil), 12, nil)
	rng := core.DateRange{Start: core.NewDate(2025, 1, 1), End: core.NewDate(2025, 2, 28)}

	res, err := svc.Sync(context.Background(), u.ID, &rng)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 3, res.Stored)
	assert.Equal(t, "2025-01-01", res.From)

	res, err = svc.Sync(context.Background(), u.ID, &rng)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 0, res.Stored)

	txs, err := st.ListTransactions(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}

func TestSyncService_DefaultWindow(t *testing.T) {
	svc := NewSyncService(storemem.New(), nil, 6, nil)
	svc.now = func() time.Time { return time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC) }

	w := svc.DefaultWindow()
	assert.Equal(t, core.NewDate(2025, 2, 1), w.Start)
	assert.Equal(t, core.NewDate(2025, 7, 15), w.End)
}

func TestSyncService_UnknownUser(t *testing.T) {
	svc := NewSyncService(storemem.New(), history.NewFetcher(upstreammem.New(5), history.DefaultConfig(), nil), 6, nil)
	_, err := svc.Sync(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, core.ErrUserNotFound)
}

func TestSyncService_InvalidRange(t *testing.T) {
	svc := NewSyncService(storemem.New(), nil, 6, nil)
	rng := core.DateRange{Start: core.NewDate(2025, 3, 1), End: core.NewDate(2025, 1, 1)}
	_, err := svc.Sync(context.Background(), "u", &rng)
	assert.ErrorIs(t, err, core.ErrInvalidRange)
}

type blockingFetcher struct {
	calls   atomic.Int32
	release chan struct{}
}

func (f *blockingFetcher) Fetch(ctx context.Context, accountRef string, rng core.DateRange) ([]core.Transaction, error) {
	f.calls.Add(1)
	<-f.release
	return []core.Transaction{{ID: "t1", AccountRef: accountRef, Amount: decimal.NewFromInt(5), PostedOn: rng.Start}}, nil
}

func TestSyncService_ConcurrentCallsShareOneFetch(t *testing.T) {
	st := storemem.New()
	u := newUser(t, st)
	f := &blockingFetcher{release: make(chan struct{})}
	svc := NewSyncService(st, f, 3, nil)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]SyncResult, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.Sync(context.Background(), u.ID, nil)
		}()
	}

	// Give every caller time to join the flight before releasing it
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(f.release)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, 1, results[i].Stored)
	}
}

func TestSyncService_CallerCancellation(t *testing.T) {
	st := storemem.New()
	u := newUser(t, st)
	f := &blockingFetcher{release: make(chan struct{})}
	defer close(f.release)
	svc := NewSyncService(st, f, 3, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Sync(ctx, u.ID, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

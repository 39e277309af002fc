package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"spendcast/internal/amqp"
	"spendcast/internal/core"
	"spendcast/internal/log"
	"spendcast/internal/services"
	"spendcast/internal/store"

	"golang.org/x/sync/errgroup"
)

// Syncer refreshes one user's stored history. services.SyncService implements it.
type Syncer interface {
	Sync(ctx context.Context, userID string, rng *core.DateRange) (services.SyncResult, error)
}

// RefreshSummary counts the outcome of a RefreshAll pass.
type RefreshSummary struct {
	Users  int
	Synced int
	Failed int
	Stored int
}

// RefreshWorker keeps stored histories current, either per queued request or
// for every registered user.
type RefreshWorker struct {
	users       store.UserStore
	syncer      Syncer
	concurrency int
	logger      *log.Logger
}

func NewRefreshWorker(users store.UserStore, syncer Syncer, concurrency int, logger *log.Logger) *RefreshWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &RefreshWorker{
		users:       users,
		syncer:      syncer,
		concurrency: concurrency,
		logger:      logger.WithComponent(log.ComponentWorker),
	}
}

// HandleRefresh processes a single refresh message from AMQP
func (w *RefreshWorker) HandleRefresh(ctx context.Context, msg *amqp.HistoryRefreshMessage) error {
	rng, err := msg.Range()
	if err != nil {
		return fmt.Errorf("refresh window: %w", err)
	}

	w.logger.InfoContext(ctx, "Processing refresh message",
		log.FieldUserID, msg.UserID,
		"requested_at", msg.RequestedAt)

	res, err := w.syncer.Sync(ctx, msg.UserID, rng)
	if err != nil {
		return fmt.Errorf("sync user %s: %w", msg.UserID, err)
	}

	w.logger.InfoContext(ctx, "Refresh completed",
		log.FieldUserID, msg.UserID,
		"fetched", res.Fetched,
		"stored", res.Stored)
	return nil
}

// RefreshAll syncs every user over the default window with bounded
// parallelism. A failing user is logged and counted; it never stops the pass.
func (w *RefreshWorker) RefreshAll(ctx context.Context) (RefreshSummary, error) {
	users, err := w.users.ListUsers(ctx)
	if err != nil {
		return RefreshSummary{}, fmt.Errorf("list users: %w", err)
	}

	var synced, failed, stored atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for _, u := range users {
		g.Go(func() error {
			res, err := w.syncer.Sync(gctx, u.ID, nil)
			if err != nil {
				failed.Add(1)
				w.logger.WarnContext(gctx, "Refresh failed for user",
					log.FieldUserID, u.ID,
					log.FieldError, err)
				return nil
			}
			synced.Add(1)
			stored.Add(int64(res.Stored))
			return nil
		})
	}
	_ = g.Wait()

	summary := RefreshSummary{
		Users:  len(users),
		Synced: int(synced.Load()),
		Failed: int(failed.Load()),
		Stored: int(stored.Load()),
	}
	w.logger.InfoContext(ctx, "Refresh pass completed",
		"users", summary.Users,
		"synced", summary.Synced,
		"failed", summary.Failed,
		"stored", summary.Stored)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

package history

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"spendcast/internal/core"
	"spendcast/internal/upstream"
)

const opPage = "list transactions"

// Config controls how pages are requested.
type Config struct {
	Retry       RetryConfig
	PageTimeout time.Duration // Per request; zero means only ctx bounds it
}

func DefaultConfig() Config {
	return Config{Retry: DefaultRetryConfig(), PageTimeout: 20 * time.Second}
}

// Pages walks the source lazily, one request per pull, following NextCursor
// until it is empty. The sequence ends after the first error it yields.
// Breaking out of the range loop stops further requests.
func Pages(ctx context.Context, src upstream.Source, accountRef string, rng core.DateRange, cfg Config) iter.Seq2[upstream.Page, error] {
	return func(yield func(upstream.Page, error) bool) {
		cursor := ""
		seen := map[string]struct{}{}

		for {
			if err := ctx.Err(); err != nil {
				yield(upstream.Page{}, err)
				return
			}

			page, attempts, err := WithRetry(ctx, cfg.Retry, func(ctx context.Context) (upstream.Page, error) {
				return requestPage(ctx, src, accountRef, rng, cursor, cfg.PageTimeout)
			})
			if err != nil {
				yield(upstream.Page{}, pageError(ctx, cursor, attempts, err))
				return
			}
			if !yield(page, nil) {
				return
			}

			next := page.NextCursor
			if next == "" {
				return
			}
			seen[cursor] = struct{}{}
			if _, dup := seen[next]; dup {
				yield(upstream.Page{}, &core.FetchError{
					Op:    opPage,
					Page:  next,
					Cause: fmt.Errorf("source returned cursor %q twice", next),
				})
				return
			}
			cursor = next
		}
	}
}

func requestPage(ctx context.Context, src upstream.Source, accountRef string, rng core.DateRange, cursor string, timeout time.Duration) (upstream.Page, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	page, err := src.ListTransactions(callCtx, accountRef, rng, cursor)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		// Only the per-page deadline fired; the walk itself is still live.
		return upstream.Page{}, &core.FetchError{Op: opPage, Page: cursor, Retryable: true, Cause: err}
	}
	return page, err
}

func pageError(ctx context.Context, cursor string, attempts int, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("fetch page %q: %w", cursor, ctxErr)
	}
	var fe *core.FetchError
	if errors.As(err, &fe) && fe.Retryable {
		return &core.FetchError{
			Op:         opPage,
			Page:       cursor,
			Attempts:   attempts,
			StatusCode: fe.StatusCode,
			Retryable:  true,
			Cause:      fmt.Errorf("%w: %w", core.ErrTransientFetch, err),
		}
	}
	return err
}

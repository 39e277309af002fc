// Package history retrieves the complete debit history of an account from a
// paged upstream source.
package history

import (
	"context"
	"fmt"
	"sort"

	"spendcast/internal/core"
	"spendcast/internal/log"
	"spendcast/internal/upstream"
)

// Fetcher turns a paged source into a validated, ordered transaction list.
type Fetcher struct {
	src    upstream.Source
	cfg    Config
	logger *log.Logger
}

func NewFetcher(src upstream.Source, cfg Config, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.Discard()
	}
	return &Fetcher{src: src, cfg: cfg, logger: logger.WithComponent(log.ComponentFetch)}
}

// Fetch returns every debit of accountRef posted inside rng, each exactly once,
// ordered by posting date then id. An account with no debits yields an empty
// non-nil slice.
func (f *Fetcher) Fetch(ctx context.Context, accountRef string, rng core.DateRange) ([]core.Transaction, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}

	out := []core.Transaction{}
	seen := map[string]struct{}{}
	pages := 0
	skipped := 0

	for page, err := range Pages(ctx, f.src, accountRef, rng, f.cfg) {
		if err != nil {
			f.logger.WarnContext(ctx, "Fetch aborted",
				log.FieldAccountRef, accountRef,
				log.FieldRange, rng.String(),
				log.FieldPage, pages+1,
				log.FieldError, err)
			return nil, err
		}
		pages++

		for _, raw := range page.Transactions {
			if raw.Type != upstream.Debit {
				continue
			}
			if !rng.Contains(raw.PostedOn) {
				return nil, fmt.Errorf("%w: transaction %s posted %s not in %s",
					core.ErrOutOfRange, raw.ID, core.FormatDate(raw.PostedOn), rng)
			}
			if _, dup := seen[raw.ID]; dup {
				continue
			}
			amount, err := core.DebitAmount(raw.Amount)
			if err != nil {
				skipped++
				f.logger.DebugContext(ctx, "Skipping zero amount debit", "transaction_id", raw.ID)
				continue
			}
			seen[raw.ID] = struct{}{}
			out = append(out, core.Transaction{
				ID:          raw.ID,
				AccountRef:  accountRef,
				Amount:      amount,
				PostedOn:    core.TruncateDay(raw.PostedOn),
				Description: raw.Description,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PostedOn.Equal(out[j].PostedOn) {
			return out[i].PostedOn.Before(out[j].PostedOn)
		}
		return out[i].ID < out[j].ID
	})

	f.logger.InfoContext(ctx, "Fetched transaction history",
		log.FieldAccountRef, accountRef,
		log.FieldRange, rng.String(),
		log.FieldCount, len(out),
		"pages", pages,
		"skipped", skipped)
	return out, nil
}

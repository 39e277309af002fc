// Package upstream defines the contract for paged transaction sources.
package upstream

import (
	"context"
	"time"

	"spendcast/internal/core"

	"github.com/shopspring/decimal"
)

// EntryType is the direction of a money movement as reported by the source.
type EntryType string

const (
	Debit  EntryType = "DEBIT"
	Credit EntryType = "CREDIT"
)

// RawTransaction is an entry as a source reports it, before filtering.
// Amount may carry either sign.
type RawTransaction struct {
	ID          string
	AccountRef  string
	Type        EntryType
	Amount      decimal.Decimal
	PostedOn    time.Time
	Description string
}

// Page is one response of a paged listing. An empty NextCursor ends the walk.
type Page struct {
	Transactions []RawTransaction
	NextCursor   string
}

//go:generate mockgen -source=ports.go -destination=source_mock.go -package=upstream

// Source lists the transactions of one account in a date range, page by page.
// Implementations return *core.FetchError for request failures so callers can
// tell transient from permanent ones.
type Source interface {
	ListTransactions(ctx context.Context, accountRef string, rng core.DateRange, cursor string) (Page, error)
}

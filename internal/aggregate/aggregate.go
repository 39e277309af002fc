// Package aggregate buckets transactions into a gap-free monthly series.
package aggregate

import (
	"fmt"

	"spendcast/internal/core"

	"github.com/shopspring/decimal"
)

// Aggregate returns one bucket per calendar month touched by rng, oldest first.
// Months without activity carry a zero total. Every transaction must fall
// inside rng and carry a positive amount; nothing is dropped silently.
func Aggregate(txs []core.Transaction, rng core.DateRange) ([]core.MonthBucket, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}

	months := rng.Months()
	buckets := make([]core.MonthBucket, len(months))
	for i, m := range months {
		buckets[i] = core.MonthBucket{Month: m, Total: decimal.Zero}
	}
	first := months[0].Index()

	for _, tx := range txs {
		if !rng.Contains(tx.PostedOn) {
			return nil, fmt.Errorf("%w: transaction %s posted %s not in %s",
				core.ErrOutOfRange, tx.ID, core.FormatDate(tx.PostedOn), rng)
		}
		if !tx.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: transaction %s has amount %s", core.ErrInvalidAmount, tx.ID, tx.Amount)
		}
		i := core.MonthOf(tx.PostedOn).Index() - first
		buckets[i].Total = buckets[i].Total.Add(tx.Amount)
		buckets[i].Count++
	}

	return buckets, nil
}

// Window returns the range from the month of the earliest transaction through
// end. ok is false when txs is empty.
func Window(txs []core.Transaction, end core.MonthKey) (core.DateRange, bool) {
	if len(txs) == 0 {
		return core.DateRange{}, false
	}
	earliest := txs[0].PostedOn
	for _, tx := range txs[1:] {
		if tx.PostedOn.Before(earliest) {
			earliest = tx.PostedOn
		}
	}
	return core.DateRange{Start: core.MonthOf(earliest).FirstDay(), End: end.LastDay()}, true
}

// Within keeps the transactions posted inside rng.
func Within(txs []core.Transaction, rng core.DateRange) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if rng.Contains(tx.PostedOn) {
			out = append(out, tx)
		}
	}
	return out
}

package sheets

import (
	"fmt"
	"strings"

	"spendcast/internal/core"
	"spendcast/internal/upstream"
)

const (
	colID = iota
	colAccount
	colDate
	colType
	colAmount
	colDescription
)

// parseRow converts one ledger row. Blank rows report ok=false.
func parseRow(row []interface{}) (upstream.RawTransaction, bool, error) {
	cells := toStrings(row)
	id := strings.TrimSpace(safeGet(cells, colID))
	if id == "" {
		return upstream.RawTransaction{}, false, nil
	}
	posted, err := core.ParseDate(safeGet(cells, colDate))
	if err != nil {
		return upstream.RawTransaction{}, false, err
	}
	amount, err := core.ParseAmount(safeGet(cells, colAmount))
	if err != nil {
		return upstream.RawTransaction{}, false, fmt.Errorf("amount %q: %w", safeGet(cells, colAmount), err)
	}

	entryType := upstream.EntryType(strings.ToUpper(strings.TrimSpace(safeGet(cells, colType))))
	if entryType == "" {
		// Unlabelled rows follow the bank convention: negative is money out.
		entryType = upstream.Credit
		if amount.IsNegative() {
			entryType = upstream.Debit
		}
	}

	return upstream.RawTransaction{
		ID:          id,
		AccountRef:  strings.TrimSpace(safeGet(cells, colAccount)),
		Type:        entryType,
		Amount:      amount,
		PostedOn:    posted,
		Description: strings.TrimSpace(safeGet(cells, colDescription)),
	}, true, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

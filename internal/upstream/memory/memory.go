package memory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"spendcast/internal/core"
	"spendcast/internal/upstream"
)

const defaultPageSize = 50

// Source is an in-process paged transaction source.
type Source struct {
	mu       sync.Mutex
	pageSize int
	entries  map[string][]upstream.RawTransaction
	failures map[string]int // cursor -> remaining transient failures
	calls    int
}

func New(pageSize int) *Source {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Source{
		pageSize: pageSize,
		entries:  map[string][]upstream.RawTransaction{},
		failures: map[string]int{},
	}
}

// NewFromFile seeds a source from a comma separated file with lines of
// account,id,type,amount,date,description. Blank lines and # comments are skipped.
// A missing file yields an empty source.
func NewFromFile(path string, pageSize int) (*Source, error) {
	s := New(pageSize)
	if path == "" {
		return s, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tx, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("seed file line %d: %w", lineNo, err)
		}
		s.Add(tx.AccountRef, tx)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return s, nil
}

func parseLine(line string) (upstream.RawTransaction, error) {
	parts := strings.SplitN(line, ",", 6)
	if len(parts) < 5 {
		return upstream.RawTransaction{}, fmt.Errorf("expected at least 5 fields, got %d", len(parts))
	}
	amount, err := core.ParseAmount(parts[3])
	if err != nil {
		return upstream.RawTransaction{}, err
	}
	posted, err := core.ParseDate(parts[4])
	if err != nil {
		return upstream.RawTransaction{}, err
	}
	tx := upstream.RawTransaction{
		AccountRef: strings.TrimSpace(parts[0]),
		ID:         strings.TrimSpace(parts[1]),
		Type:       upstream.EntryType(strings.ToUpper(strings.TrimSpace(parts[2]))),
		Amount:     amount,
		PostedOn:   posted,
	}
	if len(parts) == 6 {
		tx.Description = strings.TrimSpace(parts[5])
	}
	return tx, nil
}

// Add appends entries to an account. Entries are served in posting order.
func (s *Source) Add(accountRef string, txs ...upstream.RawTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		tx.AccountRef = accountRef
		s.entries[accountRef] = append(s.entries[accountRef], tx)
	}
	list := s.entries[accountRef]
	sort.SliceStable(list, func(i, j int) bool { return list[i].PostedOn.Before(list[j].PostedOn) })
}

// FailPage makes the next n requests for cursor fail with a retryable error.
func (s *Source) FailPage(cursor string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[cursor] = n
}

// Calls returns how many page requests were served, failed ones included.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// ListTransactions returns the page at cursor, an entry offset within the
// account's in-range entries.
func (s *Source) ListTransactions(ctx context.Context, accountRef string, rng core.DateRange, cursor string) (upstream.Page, error) {
	if err := ctx.Err(); err != nil {
		return upstream.Page{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if n := s.failures[cursor]; n > 0 {
		s.failures[cursor] = n - 1
		return upstream.Page{}, &core.FetchError{
			Op:        "memory list transactions",
			Page:      cursor,
			Retryable: true,
			Cause:     errors.New("injected failure"),
		}
	}

	offset := 0
	if cursor != "" {
		v, err := strconv.Atoi(cursor)
		if err != nil || v < 0 {
			return upstream.Page{}, &core.FetchError{
				Op:    "memory list transactions",
				Page:  cursor,
				Cause: fmt.Errorf("invalid cursor %q", cursor),
			}
		}
		offset = v
	}

	var inRange []upstream.RawTransaction
	for _, tx := range s.entries[accountRef] {
		if rng.Contains(tx.PostedOn) {
			inRange = append(inRange, tx)
		}
	}
	if offset > len(inRange) {
		offset = len(inRange)
	}
	end := min(offset+s.pageSize, len(inRange))

	page := upstream.Page{Transactions: append([]upstream.RawTransaction(nil), inRange[offset:end]...)}
	if end < len(inRange) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

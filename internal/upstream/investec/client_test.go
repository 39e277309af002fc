package investec

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"spendcast/internal/core"
	"spendcast/internal/upstream"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var janRange = core.DateRange{Start: core.NewDate(2025, 1, 1), End: core.NewDate(2025, 1, 31)}

func newTestServer(t *testing.T, txHandler http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/identity/v2/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		if r.Header.Get("x-api-key") != "key" {
			http.Error(w, "missing api key", http.StatusUnauthorized)
			return
		}
		id, secret, ok := r.BasicAuth()
		if !ok || id != "client" || secret != "secret" {
			http.Error(w, "bad client", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/za/pb/v1/accounts/acc-1/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" || r.Header.Get("x-api-key") != "key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		txHandler(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokenCalls
}

func newClient(srv *httptest.Server) *Client {
	return New(context.Background(), Config{
		BaseURL:      srv.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		APIKey:       "key",
		HTTPClient:   srv.Client(),
	})
}

func TestListTransactionsPaging(t *testing.T) {
	srv, tokenCalls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2025-01-01", r.URL.Query().Get("fromDate"))
		assert.Equal(t, "2025-01-31", r.URL.Query().Get("toDate"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{"data":{"transactions":[
				{"uuid":"u1","type":"DEBIT","description":"Shop","amount":120.55,"transactionDate":"2025-01-03"},
				{"uuid":"u2","type":"CREDIT","description":"Salary","amount":5000,"transactionDate":"2025-01-04"}
			]},"meta":{"totalPages":2}}`)
		case "2":
			fmt.Fprint(w, `{"data":{"transactions":[
				{"type":"DEBIT","description":"Fuel","amount":"80.10","postingDate":"2025-01-09"}
			]},"meta":{"totalPages":2}}`)
		default:
			http.Error(w, "no such page", http.StatusNotFound)
		}
	})
	c := newClient(srv)

	p1, err := c.ListTransactions(context.Background(), "acc-1", janRange, "")
	require.NoError(t, err)
	require.Len(t, p1.Transactions, 2)
	assert.Equal(t, "2", p1.NextCursor)
	assert.Equal(t, "u1", p1.Transactions[0].ID)
	assert.Equal(t, upstream.Debit, p1.Transactions[0].Type)
	assert.True(t, p1.Transactions[0].Amount.Equal(decimal.RequireFromString("120.55")))
	assert.Equal(t, core.NewDate(2025, 1, 3), p1.Transactions[0].PostedOn)
	assert.Equal(t, upstream.Credit, p1.Transactions[1].Type)

	p2, err := c.ListTransactions(context.Background(), "acc-1", janRange, p1.NextCursor)
	require.NoError(t, err)
	require.Len(t, p2.Transactions, 1)
	assert.Empty(t, p2.NextCursor)
	assert.Contains(t, p2.Transactions[0].ID, "sha256:")
	assert.Equal(t, core.NewDate(2025, 1, 9), p2.Transactions[0].PostedOn)

	assert.Equal(t, int32(1), atomic.LoadInt32(tokenCalls), "token should be cached across pages")
}

func TestListTransactionsWithoutTotalPages(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, `{"data":{"transactions":[{"uuid":"u1","type":"DEBIT","amount":1,"transactionDate":"2025-01-03"}]}}`)
			return
		}
		fmt.Fprint(w, `{"data":{"transactions":[]}}`)
	})
	c := newClient(srv)

	p1, err := c.ListTransactions(context.Background(), "acc-1", janRange, "")
	require.NoError(t, err)
	assert.Equal(t, "2", p1.NextCursor)

	p2, err := c.ListTransactions(context.Background(), "acc-1", janRange, "2")
	require.NoError(t, err)
	assert.Empty(t, p2.Transactions)
	assert.Empty(t, p2.NextCursor)
}

func TestListTransactionsIdenticalEntriesWithoutUUID(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"transactions":[
			{"type":"DEBIT","description":"Coffee","amount":3.5,"transactionDate":"2025-01-06"},
			{"type":"DEBIT","description":"Coffee","amount":3.5,"transactionDate":"2025-01-06"},
			{"type":"DEBIT","description":"Lunch","amount":12,"transactionDate":"2025-01-06","postedOrder":7},
			{"type":"DEBIT","description":"Lunch","amount":12,"transactionDate":"2025-01-06","postedOrder":8}
		]},"meta":{"totalPages":1}}`)
	})
	c := newClient(srv)

	first, err := c.ListTransactions(context.Background(), "acc-1", janRange, "")
	require.NoError(t, err)
	require.Len(t, first.Transactions, 4)

	ids := make(map[string]bool)
	for _, tx := range first.Transactions {
		ids[tx.ID] = true
	}
	assert.Len(t, ids, 4, "each purchase keeps its own id")

	again, err := c.ListTransactions(context.Background(), "acc-1", janRange, "")
	require.NoError(t, err)
	for i := range first.Transactions {
		assert.Equal(t, first.Transactions[i].ID, again.Transactions[i].ID, "ids are stable across fetches")
	}
}

func TestListTransactionsErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantRetryable bool
	}{
		{name: "server error is retryable", status: http.StatusServiceUnavailable, wantRetryable: true},
		{name: "rate limited is retryable", status: http.StatusTooManyRequests, wantRetryable: true},
		{name: "not found is permanent", status: http.StatusNotFound, wantRetryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", tt.status)
			})
			c := newClient(srv)

			_, err := c.ListTransactions(context.Background(), "acc-1", janRange, "")
			require.Error(t, err)

			var fe *core.FetchError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.status, fe.StatusCode)
			assert.Equal(t, tt.wantRetryable, fe.Retryable)
		})
	}
}

func TestListTransactionsInvalidCursor(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	c := newClient(srv)

	_, err := c.ListTransactions(context.Background(), "acc-1", janRange, "zero")
	require.Error(t, err)
	assert.False(t, core.IsRetryable(err))
}

package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spendcast/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Config{
		SpreadsheetID: "sheet-1",
		SheetName:     "Ledger",
		PageSize:      3,
		Options: []goption.ClientOption{
			goption.WithEndpoint(srv.URL + "/"),
			goption.WithHTTPClient(srv.Client()),
		},
	})
	require.NoError(t, err)
	return c
}

func writeValues(w http.ResponseWriter, rows [][]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"majorDimension": "ROWS",
		"values":         rows,
	})
}

func TestListTransactionsPagesByRow(t *testing.T) {
	var requested []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Path)
		switch {
		case strings.HasSuffix(r.URL.Path, "Ledger!A2:F4"):
			writeValues(w, [][]interface{}{
				{"t1", "acc", "2025-01-05", "DEBIT", "10"},
				{"t2", "other", "2025-01-06", "DEBIT", "20"},
				{"t3", "acc", "2024-12-31", "DEBIT", "30"},
			})
		case strings.HasSuffix(r.URL.Path, "Ledger!A5:F7"):
			writeValues(w, [][]interface{}{
				{"t4", "acc", "2025-01-20", "CREDIT", "40"},
			})
		default:
			http.Error(w, "unexpected range", http.StatusBadRequest)
		}
	})
	rng := core.DateRange{Start: core.NewDate(2025, 1, 1), End: core.NewDate(2025, 1, 31)}

	p1, err := c.ListTransactions(context.Background(), "acc", rng, "")
	require.NoError(t, err)
	require.Len(t, p1.Transactions, 1)
	assert.Equal(t, "t1", p1.Transactions[0].ID)
	assert.Equal(t, "5", p1.NextCursor)

	p2, err := c.ListTransactions(context.Background(), "acc", rng, p1.NextCursor)
	require.NoError(t, err)
	require.Len(t, p2.Transactions, 1)
	assert.Empty(t, p2.NextCursor)
	assert.Len(t, requested, 2)
}

func TestListTransactionsClassifiesErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantRetryable bool
	}{
		{name: "unavailable", status: http.StatusServiceUnavailable, wantRetryable: true},
		{name: "forbidden", status: http.StatusForbidden, wantRetryable: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			})

			_, err := c.ListTransactions(context.Background(), "acc", core.DateRange{Start: core.NewDate(2025, 1, 1), End: core.NewDate(2025, 1, 2)}, "")
			require.Error(t, err)
			assert.Equal(t, tt.wantRetryable, core.IsRetryable(err))
		})
	}
}

func TestNewRequiresSpreadsheet(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestUserTokenSource(t *testing.T) {
	dir := t.TempDir()
	clientFile := filepath.Join(dir, "client.json")
	require.NoError(t, os.WriteFile(clientFile, []byte(`{"installed":{
		"client_id":"id.apps.googleusercontent.com",
		"client_secret":"secret",
		"auth_uri":"https://accounts.google.com/o/oauth2/auth",
		"token_uri":"https://oauth2.googleapis.com/token",
		"redirect_uris":["http://localhost"]}}`), 0o600))

	tokenFile := filepath.Join(dir, "token.json")
	require.NoError(t, os.WriteFile(tokenFile, []byte(`{"access_token":"a","refresh_token":"r"}`), 0o600))

	ts, err := userTokenSource(context.Background(), clientFile, tokenFile)
	require.NoError(t, err)
	assert.NotNil(t, ts)

	_, err = userTokenSource(context.Background(), "", tokenFile)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{}`), 0o600))
	_, err = userTokenSource(context.Background(), clientFile, empty)
	assert.ErrorContains(t, err, "no token")

	_, err = OAuthConfig([]byte("not json"))
	assert.Error(t, err)
}

// Package investec lists account transactions from the Investec private banking API.
package investec

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"spendcast/internal/core"
	"spendcast/internal/upstream"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	tokenPath = "/identity/v2/oauth2/token"
	opList    = "investec list transactions"
)

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	APIKey       string
	Timeout      time.Duration
	// HTTPClient is the base transport client; nil uses http.DefaultClient.
	HTTPClient *http.Client
}

// Client implements upstream.Source.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ upstream.Source = (*Client)(nil)

// apiKeyTransport adds the x-api-key header required on every request,
// the token exchange included.
type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("x-api-key", t.key)
	return t.base.RoundTrip(r)
}

// New builds a client that authenticates with the client-credentials grant.
// ctx is used for token refreshes for the lifetime of the client.
func New(ctx context.Context, cfg Config) *Client {
	base := cfg.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	keyed := &http.Client{Transport: &apiKeyTransport{key: cfg.APIKey, base: rt}, Timeout: cfg.Timeout}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     baseURL + tokenPath,
		Scopes:       []string{"accounts", "balances", "transactions"},
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	httpClient := cc.Client(context.WithValue(ctx, oauth2.HTTPClient, keyed))
	httpClient.Timeout = cfg.Timeout

	return &Client{baseURL: baseURL, http: httpClient}
}

type transactionsResponse struct {
	Data struct {
		Transactions []apiTransaction `json:"transactions"`
		TotalPages   *int             `json:"totalPages"`
	} `json:"data"`
	Meta struct {
		TotalPages *int `json:"totalPages"`
	} `json:"meta"`
}

type apiTransaction struct {
	UUID            string           `json:"uuid"`
	AccountID       string           `json:"accountId"`
	Type            string           `json:"type"`
	Description     string           `json:"description"`
	Amount          decimal.Decimal  `json:"amount"`
	TransactionDate string           `json:"transactionDate"`
	PostingDate     string           `json:"postingDate"`
	PostedOrder     *int             `json:"postedOrder"`
	RunningBalance  *decimal.Decimal `json:"runningBalance"`
}

// ListTransactions fetches one page. The cursor is the 1-based page number.
func (c *Client) ListTransactions(ctx context.Context, accountRef string, rng core.DateRange, cursor string) (upstream.Page, error) {
	page := 1
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 1 {
			return upstream.Page{}, &core.FetchError{Op: opList, Page: cursor, Cause: fmt.Errorf("invalid page cursor %q", cursor)}
		}
		page = n
	}

	q := url.Values{}
	q.Set("fromDate", core.FormatDate(rng.Start))
	q.Set("toDate", core.FormatDate(rng.End))
	q.Set("page", strconv.Itoa(page))
	endpoint := fmt.Sprintf("%s/za/pb/v1/accounts/%s/transactions?%s", c.baseURL, url.PathEscape(accountRef), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return upstream.Page{}, &core.FetchError{Op: opList, Page: cursor, Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return upstream.Page{}, &core.FetchError{Op: opList, Page: cursor, Retryable: isTransientTransport(ctx, err), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return upstream.Page{}, &core.FetchError{
			Op:         opList,
			Page:       cursor,
			StatusCode: resp.StatusCode,
			Retryable:  retryableStatus(resp.StatusCode),
			Cause:      fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(body))),
		}
	}

	var payload transactionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return upstream.Page{}, &core.FetchError{Op: opList, Page: cursor, Cause: fmt.Errorf("decode response: %w", err)}
	}

	out := upstream.Page{Transactions: make([]upstream.RawTransaction, 0, len(payload.Data.Transactions))}
	// Identical uuid-less entries on a page are told apart by their ordinal.
	dupes := make(map[string]int)
	for _, at := range payload.Data.Transactions {
		tx, err := at.toRaw(accountRef, dupes)
		if err != nil {
			return upstream.Page{}, &core.FetchError{Op: opList, Page: cursor, Cause: err}
		}
		out.Transactions = append(out.Transactions, tx)
	}

	total := payload.Meta.TotalPages
	if total == nil {
		total = payload.Data.TotalPages
	}
	switch {
	case total != nil && page < *total:
		out.NextCursor = strconv.Itoa(page + 1)
	case total == nil && len(out.Transactions) > 0:
		out.NextCursor = strconv.Itoa(page + 1)
	}
	return out, nil
}

func (at apiTransaction) toRaw(accountRef string, dupes map[string]int) (upstream.RawTransaction, error) {
	dateStr := at.TransactionDate
	if dateStr == "" {
		dateStr = at.PostingDate
	}
	posted, err := core.ParseDate(dateStr)
	if err != nil {
		return upstream.RawTransaction{}, err
	}
	id := at.UUID
	if id == "" {
		key := at.fingerprint(accountRef, dateStr)
		id = syntheticID(key, dupes[key])
		dupes[key]++
	}
	return upstream.RawTransaction{
		ID:          id,
		AccountRef:  accountRef,
		Type:        upstream.EntryType(strings.ToUpper(at.Type)),
		Amount:      at.Amount,
		PostedOn:    posted,
		Description: at.Description,
	}, nil
}

// fingerprint joins the fields that identify an entry without a uuid.
func (at apiTransaction) fingerprint(accountRef, date string) string {
	parts := []string{accountRef, date, at.Amount.String(), at.Description, "", ""}
	if at.PostedOrder != nil {
		parts[4] = strconv.Itoa(*at.PostedOrder)
	}
	if at.RunningBalance != nil {
		parts[5] = at.RunningBalance.String()
	}
	return strings.Join(parts, "|")
}

// syntheticID derives a stable id for entries the API returns without a uuid.
// ordinal counts earlier entries on the same page with the same fingerprint.
func syntheticID(fingerprint string, ordinal int) string {
	sum := sha256.Sum256([]byte(fingerprint + "|" + strconv.Itoa(ordinal)))
	return "sha256:" + hex.EncodeToString(sum[:12])
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func isTransientTransport(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return retryableStatus(re.Response.StatusCode)
	}
	return true
}

// Package sheets reads a transaction ledger kept in a Google Sheet.
//
// The sheet holds one transaction per row below a header row, with columns
// ID | Account | Date | Type | Amount | Description.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"spendcast/internal/core"
	"spendcast/internal/upstream"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	firstDataRow = 2
	lastColumn   = "F"
	opList       = "sheets list transactions"
)

type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
	// OAuthClientFile and OAuthTokenFile authorize as a user instead of a
	// service account. The token is written by cmd/spendcast-oauth-init.
	OAuthClientFile string
	OAuthTokenFile  string
	PageSize        int
	// Options replaces credential handling when set (tests, custom endpoints).
	Options []goption.ClientOption
}

// Client implements upstream.Source over the Sheets values API.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	pageSize      int
}

var _ upstream.Source = (*Client)(nil)

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Transactions"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}

	opts := cfg.Options
	if len(opts) == 0 {
		var err error
		opts, err = credentialOptions(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
		pageSize:      cfg.PageSize,
	}, nil
}

// credentialOptions prefers a saved OAuth user token, then a service account
// file, and falls back to application default credentials.
func credentialOptions(ctx context.Context, cfg Config) ([]goption.ClientOption, error) {
	if cfg.OAuthTokenFile != "" {
		ts, err := userTokenSource(ctx, cfg.OAuthClientFile, cfg.OAuthTokenFile)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Using OAuth user token for Google Sheets", "path", cfg.OAuthTokenFile)
		return []goption.ClientOption{goption.WithTokenSource(ts)}, nil
	}

	opts := []goption.ClientOption{
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope),
	}
	file := cfg.CredentialsFile
	if file == "" {
		slog.InfoContext(ctx, "Using application default credentials for Google Sheets")
		return opts, nil
	}
	credentialsJSON, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	slog.InfoContext(ctx, "Read Google Sheets credentials file", "path", file, "size", len(credentialsJSON))
	return append(opts, goption.WithCredentialsJSON(credentialsJSON)), nil
}

// NewHTTPClient returns a pooled client suitable for the Sheets API.
func NewHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// ListTransactions reads PageSize rows starting at the row named by cursor and
// keeps those belonging to accountRef inside rng. A short read ends the walk.
func (c *Client) ListTransactions(ctx context.Context, accountRef string, rng core.DateRange, cursor string) (upstream.Page, error) {
	start := firstDataRow
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < firstDataRow {
			return upstream.Page{}, &core.FetchError{Op: opList, Page: cursor, Cause: fmt.Errorf("invalid row cursor %q", cursor)}
		}
		start = n
	}
	end := start + c.pageSize - 1
	a1 := fmt.Sprintf("%s!A%d:%s%d", c.sheetName, start, lastColumn, end)

	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, a1).Context(ctx).Do()
	if err != nil {
		return upstream.Page{}, classify(ctx, cursor, err)
	}

	page := upstream.Page{Transactions: []upstream.RawTransaction{}}
	for i, row := range resp.Values {
		tx, ok, err := parseRow(row)
		if err != nil {
			return upstream.Page{}, &core.FetchError{
				Op:    opList,
				Page:  cursor,
				Cause: fmt.Errorf("row %d: %w", start+i, err),
			}
		}
		if !ok || tx.AccountRef != accountRef || !rng.Contains(tx.PostedOn) {
			continue
		}
		page.Transactions = append(page.Transactions, tx)
	}
	if len(resp.Values) >= c.pageSize {
		page.NextCursor = strconv.Itoa(end + 1)
	}
	return page, nil
}

func classify(ctx context.Context, cursor string, err error) error {
	fe := &core.FetchError{Op: opList, Page: cursor, Cause: err}
	var gerr *googleapi.Error
	switch {
	case errors.As(err, &gerr):
		fe.StatusCode = gerr.Code
		fe.Retryable = gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	case ctx.Err() == nil:
		fe.Retryable = true
	}
	return fe
}

// OAuthConfig builds the installed-app OAuth config for read-only sheet access.
func OAuthConfig(clientJSON []byte) (*oauth2.Config, error) {
	cfg, err := google.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("oauth client config: %w", err)
	}
	return cfg, nil
}

// userTokenSource refreshes the saved token with the client credentials.
func userTokenSource(ctx context.Context, clientFile, tokenFile string) (oauth2.TokenSource, error) {
	if clientFile == "" {
		return nil, errors.New("oauth token file set without a client file")
	}
	clientJSON, err := os.ReadFile(clientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	cfg, err := OAuthConfig(clientJSON)
	if err != nil {
		return nil, err
	}
	tokenJSON, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return nil, errors.New("oauth token file holds no token")
	}
	return cfg.TokenSource(ctx, &tok), nil
}

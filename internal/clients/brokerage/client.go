// Package brokerage provides the client for the external trading-platform
// API: transaction history and daily price history per account. The
// client only classifies failures; retry and backoff policy belongs to
// the sync engine.
package brokerage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/tdworks/basistracker/internal/domain"
)

// Client talks to the trading platform's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new brokerage API client. Credentials are validated
// lazily: the first request with bad credentials fails with
// domain.ErrConfiguration.
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "brokerage").Logger(),
	}
}

// FetchAccounts lists the accounts visible to the configured credentials.
func (c *Client) FetchAccounts(ctx context.Context) ([]RawAccount, error) {
	body, err := c.get(ctx, "/v1/accounts", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch accounts: %w", err)
	}

	var accounts []RawAccount
	if err := json.Unmarshal(body, &accounts); err != nil {
		return nil, fmt.Errorf("failed to decode accounts response: %w", err)
	}

	return accounts, nil
}

// FetchTransactions returns all transaction records for the account at or
// after since. The original JSON of each record is preserved in Payload.
func (c *Client) FetchTransactions(ctx context.Context, accountID string, since time.Time) ([]RawTransaction, error) {
	params := url.Values{}
	if !since.IsZero() {
		params.Set("since", strconv.FormatInt(since.Unix(), 10))
	}

	body, err := c.get(ctx, "/v1/accounts/"+url.PathEscape(accountID)+"/transactions", params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions for account %s: %w", accountID, err)
	}

	// Decode in two passes so each record keeps its verbatim payload.
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("failed to decode transactions response: %w", err)
	}

	txs := make([]RawTransaction, 0, len(raws))
	for _, raw := range raws {
		var tx RawTransaction
		if err := json.Unmarshal(raw, &tx); err != nil {
			return nil, fmt.Errorf("failed to decode transaction record: %w", err)
		}
		tx.Payload = raw
		txs = append(txs, tx)
	}

	c.log.Debug().
		Str("account", accountID).
		Int("count", len(txs)).
		Time("since", since).
		Msg("Fetched transactions")

	return txs, nil
}

// FetchDailyCloses returns one closing price per trading day in
// [fromDay, toDay]. Days the market was closed are absent.
func (c *Client) FetchDailyCloses(ctx context.Context, symbol, fromDay, toDay string) ([]DailyClose, error) {
	params := url.Values{}
	params.Set("from", fromDay)
	params.Set("to", toDay)

	body, err := c.get(ctx, "/v1/marketdata/"+url.PathEscape(symbol)+"/daily", params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch daily closes for %s: %w", symbol, err)
	}

	var closes []DailyClose
	if err := json.Unmarshal(body, &closes); err != nil {
		return nil, fmt.Errorf("failed to decode daily closes response: %w", err)
	}

	return closes, nil
}

// get performs one GET request and classifies the failure mode.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network-level failure: timeouts, refused connections, DNS.
		return nil, fmt.Errorf("%s: %w", path, errors.Join(domain.ErrTransient, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, errors.Join(domain.ErrTransient, err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		// Rate limited. The retry-after hint is logged for operators; the
		// sync engine's backoff decides the actual wait.
		c.log.Warn().
			Str("path", path).
			Str("retry_after", resp.Header.Get("Retry-After")).
			Msg("Rate limited by platform API")
		return nil, fmt.Errorf("%s: rate limited: %w", path, domain.ErrTransient)

	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%s: platform returned %d: %w", path, resp.StatusCode, domain.ErrTransient)

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s: platform rejected credentials (%d): %w", path, resp.StatusCode, domain.ErrConfiguration)

	default:
		return nil, fmt.Errorf("%s: unexpected status %d: %s", path, resp.StatusCode, string(body))
	}
}

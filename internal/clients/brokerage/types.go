package brokerage

import (
	"context"
	"encoding/json"
	"time"
)

// API is the capability the sync engine consumes. Both calls are
// fallible, rate-limited, and may return overlapping or duplicate
// records; the caller relies on ledger idempotence to absorb that.
type API interface {
	// FetchAccounts lists the accounts visible to the configured credentials.
	FetchAccounts(ctx context.Context) ([]RawAccount, error)

	// FetchTransactions returns all transaction records for the account at
	// or after since. A zero since means the full account history.
	FetchTransactions(ctx context.Context, accountID string, since time.Time) ([]RawTransaction, error)

	// FetchDailyCloses returns one closing price per trading day for the
	// symbol, inclusive of both bounds (YYYY-MM-DD). Market holidays are
	// simply absent from the result.
	FetchDailyCloses(ctx context.Context, symbol, fromDay, toDay string) ([]DailyClose, error)
}

// RawAccount is an account as reported by the platform.
type RawAccount struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// RawTransaction is a transaction record exactly as the platform reports
// it. Payload keeps the original JSON so unsupported records can be
// stored verbatim and reprocessed later.
type RawTransaction struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`        // e.g. TRADE, TRANSFER, DIVIDEND
	Instruction string  `json:"instruction"` // e.g. BUY, SELL, IN, OUT, REINVEST
	Symbol      string  `json:"symbol"`
	ExecutedAt  string  `json:"executed_at"` // RFC 3339
	Quantity    float64 `json:"quantity"`
	NetAmount   float64 `json:"net_amount"`
	Description string  `json:"description"`

	Payload json.RawMessage `json:"-"`
}

// DailyClose is one (day, closing price) pair.
type DailyClose struct {
	Day   string  `json:"date"` // YYYY-MM-DD
	Close float64 `json:"close"`
}

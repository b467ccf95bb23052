// Package domain contains the core types shared across the basis tracker.
// The domain layer is pure: no database, HTTP, or broker dependencies.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TxKind is the closed set of transaction kinds the ledger understands.
// Anything the broker reports that does not map onto one of the supported
// kinds is stored as TxUnsupported with its raw payload preserved.
type TxKind string

const (
	TxBuy              TxKind = "BUY"
	TxSell             TxKind = "SELL"
	TxDividendReinvest TxKind = "DIVIDEND_REINVEST"
	TxTransferIn       TxKind = "TRANSFER_IN"
	TxTransferOut      TxKind = "TRANSFER_OUT"
	TxUnsupported      TxKind = "UNSUPPORTED"
)

// CashSymbol is the pseudo-ticker recorded for transactions the broker
// reports without an instrument, e.g. cash transfers and fees. It keeps
// symbol-less records in the same ledger without a nullable column.
const CashSymbol = "$CASH$"

// ParseTxKind maps a string onto the closed kind set.
// Unknown values map to TxUnsupported, never to an error.
func ParseTxKind(s string) TxKind {
	switch TxKind(strings.ToUpper(strings.TrimSpace(s))) {
	case TxBuy:
		return TxBuy
	case TxSell:
		return TxSell
	case TxDividendReinvest:
		return TxDividendReinvest
	case TxTransferIn:
		return TxTransferIn
	case TxTransferOut:
		return TxTransferOut
	default:
		return TxUnsupported
	}
}

// Acquires reports whether the kind increases the position.
func (k TxKind) Acquires() bool {
	return k == TxBuy || k == TxTransferIn || k == TxDividendReinvest
}

// Disposes reports whether the kind reduces the position.
func (k TxKind) Disposes() bool {
	return k == TxSell || k == TxTransferOut
}

// Account is a brokerage account. The ID is assigned by the external
// platform and is opaque to us. Accounts are created on first sync and
// never deleted automatically.
type Account struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

// Ticker is a symbol scoped to one account. The same symbol held in two
// accounts is tracked independently.
type Ticker struct {
	AccountID string `json:"account_id"`
	Symbol    string `json:"symbol"`
}

// Transaction is one immutable ledger entry. ExternalID is the source
// system's transaction id and is globally unique within the store:
// re-ingesting the same id is a no-op.
type Transaction struct {
	ExternalID  string          `json:"external_id"`
	AccountID   string          `json:"account_id"`
	Symbol      string          `json:"symbol"`
	Timestamp   time.Time       `json:"timestamp"`
	Kind        TxKind          `json:"kind"`
	Quantity    decimal.Decimal `json:"quantity"`    // signed: positive = acquisition
	CashAmount  decimal.Decimal `json:"cash_amount"` // signed: cost or proceeds
	Description string          `json:"description,omitempty"`
	RawPayload  string          `json:"raw_payload,omitempty"` // original broker record, kept for UNSUPPORTED kinds
}

// Validate checks the invariants the ledger relies on before insertion.
func (t Transaction) Validate() error {
	if t.ExternalID == "" {
		return fmt.Errorf("%w: transaction has no external id", ErrInvalidLedgerState)
	}
	if t.AccountID == "" {
		return fmt.Errorf("%w: transaction %s has no account", ErrInvalidLedgerState, t.ExternalID)
	}
	if t.Symbol == "" {
		return fmt.Errorf("%w: transaction %s has no symbol", ErrInvalidLedgerState, t.ExternalID)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("%w: transaction %s has no timestamp", ErrInvalidLedgerState, t.ExternalID)
	}
	return nil
}

// Day returns the trade date of the transaction. Valuation is computed as
// of the trade date, not the settlement date.
func (t Transaction) Day() string {
	return DayOf(t.Timestamp)
}

// PriceSnapshot is the closing price of one ticker on one day.
// At most one snapshot exists per (account, symbol, day); a later sync may
// revise the close but never creates a second row.
type PriceSnapshot struct {
	AccountID string  `json:"account_id"`
	Symbol    string  `json:"symbol"`
	Day       string  `json:"day"` // YYYY-MM-DD
	Close     float64 `json:"close"`
}

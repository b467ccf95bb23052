package testing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tdworks/basistracker/internal/clients/brokerage"
	"github.com/tdworks/basistracker/internal/domain"
)

// NewBuyFixture returns a validated BUY transaction
func NewBuyFixture(accountID, symbol, externalID string, ts time.Time, quantity, cash float64) domain.Transaction {
	return domain.Transaction{
		ExternalID: externalID,
		AccountID:  accountID,
		Symbol:     symbol,
		Timestamp:  ts,
		Kind:       domain.TxBuy,
		Quantity:   decimal.NewFromFloat(quantity),
		CashAmount: decimal.NewFromFloat(cash),
	}
}

// NewSellFixture returns a validated SELL transaction
func NewSellFixture(accountID, symbol, externalID string, ts time.Time, quantity, cash float64) domain.Transaction {
	return domain.Transaction{
		ExternalID: externalID,
		AccountID:  accountID,
		Symbol:     symbol,
		Timestamp:  ts,
		Kind:       domain.TxSell,
		Quantity:   decimal.NewFromFloat(quantity),
		CashAmount: decimal.NewFromFloat(cash),
	}
}

// NewRawTradeFixture returns a raw platform trade record
func NewRawTradeFixture(id, instruction, symbol string, ts time.Time, quantity, netAmount float64) brokerage.RawTransaction {
	return brokerage.RawTransaction{
		ID:          id,
		Type:        "TRADE",
		Instruction: instruction,
		Symbol:      symbol,
		ExecutedAt:  ts.UTC().Format(time.RFC3339),
		Quantity:    quantity,
		NetAmount:   netAmount,
		Description: fmt.Sprintf("%s %v %s", instruction, quantity, symbol),
	}
}

// NewSnapshotFixture returns a price snapshot
func NewSnapshotFixture(accountID, symbol, day string, close float64) domain.PriceSnapshot {
	return domain.PriceSnapshot{
		AccountID: accountID,
		Symbol:    symbol,
		Day:       day,
		Close:     close,
	}
}

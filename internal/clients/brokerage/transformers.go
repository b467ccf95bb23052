package brokerage

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tdworks/basistracker/internal/domain"
)

// ToDomainTransaction maps one raw platform record onto the closed
// transaction-kind set. Anything not recognized comes back as
// UNSUPPORTED with the raw payload preserved, never as an error: an
// unknown product must not crash a sync run.
func ToDomainTransaction(accountID string, raw RawTransaction) (domain.Transaction, error) {
	if raw.ID == "" {
		return domain.Transaction{}, fmt.Errorf("transaction record has no id")
	}

	executedAt, err := time.Parse(time.RFC3339, raw.ExecutedAt)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction %s has malformed timestamp %q: %w", raw.ID, raw.ExecutedAt, err)
	}

	// Cash movements carry no instrument; they land on the cash
	// pseudo-ticker instead of failing ledger validation.
	symbol := raw.Symbol
	if symbol == "" {
		symbol = domain.CashSymbol
	}

	tx := domain.Transaction{
		ExternalID:  raw.ID,
		AccountID:   accountID,
		Symbol:      symbol,
		Timestamp:   executedAt.UTC(),
		Kind:        mapKind(raw),
		Quantity:    decimal.NewFromFloat(raw.Quantity),
		CashAmount:  decimal.NewFromFloat(raw.NetAmount),
		Description: raw.Description,
	}

	if tx.Kind == domain.TxUnsupported {
		tx.RawPayload = string(raw.Payload)
	}

	return tx, nil
}

// mapKind translates the platform's (type, instruction) pair into our
// closed kind set.
func mapKind(raw RawTransaction) domain.TxKind {
	switch raw.Type {
	case "TRADE":
		switch raw.Instruction {
		case "BUY":
			return domain.TxBuy
		case "SELL":
			return domain.TxSell
		}

	case "TRANSFER":
		switch raw.Instruction {
		case "IN":
			return domain.TxTransferIn
		case "OUT":
			return domain.TxTransferOut
		}

	case "DIVIDEND":
		// Cash dividends do not change the position or its basis; only
		// reinvested dividends are supported ledger entries.
		if raw.Instruction == "REINVEST" {
			return domain.TxDividendReinvest
		}
	}

	return domain.TxUnsupported
}

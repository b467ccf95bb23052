package testing

import (
	"context"
	"sync"
	"time"

	"github.com/tdworks/basistracker/internal/alert"
	"github.com/tdworks/basistracker/internal/clients/brokerage"
)

// MockBrokerAPI is a mock implementation of brokerage.API for testing
type MockBrokerAPI struct {
	mu           sync.RWMutex
	accounts     []brokerage.RawAccount
	transactions map[string][]brokerage.RawTransaction
	closes       map[string][]brokerage.DailyClose

	accountsErr     error
	transactionsErr map[string]error
	closesErr       map[string]error

	// FetchTransactionsCalls records the since argument of every call,
	// keyed by account
	FetchTransactionsCalls map[string][]time.Time
}

// NewMockBrokerAPI creates a new mock broker API
func NewMockBrokerAPI() *MockBrokerAPI {
	return &MockBrokerAPI{
		transactions:           make(map[string][]brokerage.RawTransaction),
		closes:                 make(map[string][]brokerage.DailyClose),
		transactionsErr:        make(map[string]error),
		closesErr:              make(map[string]error),
		FetchTransactionsCalls: make(map[string][]time.Time),
	}
}

// SetAccounts sets the accounts to return
func (m *MockBrokerAPI) SetAccounts(accounts ...brokerage.RawAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = accounts
}

// SetAccountsError sets the error returned by FetchAccounts
func (m *MockBrokerAPI) SetAccountsError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountsErr = err
}

// SetTransactions sets the transactions to return for an account
func (m *MockBrokerAPI) SetTransactions(accountID string, txs ...brokerage.RawTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[accountID] = txs
}

// SetTransactionsError sets the error returned for an account
func (m *MockBrokerAPI) SetTransactionsError(accountID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactionsErr[accountID] = err
}

// SetDailyCloses sets the daily closes to return for a symbol
func (m *MockBrokerAPI) SetDailyCloses(symbol string, closes ...brokerage.DailyClose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes[symbol] = closes
}

// SetDailyClosesError sets the error returned for a symbol
func (m *MockBrokerAPI) SetDailyClosesError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closesErr[symbol] = err
}

// FetchAccounts implements brokerage.API
func (m *MockBrokerAPI) FetchAccounts(ctx context.Context) ([]brokerage.RawAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.accountsErr != nil {
		return nil, m.accountsErr
	}
	return m.accounts, nil
}

// FetchTransactions implements brokerage.API
func (m *MockBrokerAPI) FetchTransactions(ctx context.Context, accountID string, since time.Time) ([]brokerage.RawTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchTransactionsCalls[accountID] = append(m.FetchTransactionsCalls[accountID], since)
	if err := m.transactionsErr[accountID]; err != nil {
		return nil, err
	}

	// Honor the since bound the way the platform does
	var out []brokerage.RawTransaction
	for _, tx := range m.transactions[accountID] {
		if since.IsZero() {
			out = append(out, tx)
			continue
		}
		ts, err := time.Parse(time.RFC3339, tx.ExecutedAt)
		if err != nil || !ts.Before(since) {
			out = append(out, tx)
		}
	}
	return out, nil
}

// FetchDailyCloses implements brokerage.API
func (m *MockBrokerAPI) FetchDailyCloses(ctx context.Context, symbol, fromDay, toDay string) ([]brokerage.DailyClose, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.closesErr[symbol]; err != nil {
		return nil, err
	}

	var out []brokerage.DailyClose
	for _, c := range m.closes[symbol] {
		if c.Day >= fromDay && c.Day <= toDay {
			out = append(out, c)
		}
	}
	return out, nil
}

// MockNotifier captures alerts for assertions
type MockNotifier struct {
	mu       sync.Mutex
	messages []CapturedAlert
}

// CapturedAlert is one recorded alert
type CapturedAlert struct {
	Severity alert.Severity
	Message  string
}

// NewMockNotifier creates a new capturing notifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// Notify implements alert.Notifier
func (m *MockNotifier) Notify(severity alert.Severity, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, CapturedAlert{Severity: severity, Message: message})
}

// Alerts returns a copy of all captured alerts
func (m *MockNotifier) Alerts() []CapturedAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CapturedAlert, len(m.messages))
	copy(out, m.messages)
	return out
}

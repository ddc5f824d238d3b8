package execution

import (
	"context"
	"log/slog"
	"sync"

	"trade_stream/internal/stream"
	"trade_stream/pkg/quant"
)

// MockCall records one request made against a MockTrader.
type MockCall struct {
	Op         string // "quote", "purchase", "close"
	Params     stream.ProposalParams
	ProposalID string
	ContractID int64
	Price      quant.AmountMicros
}

// MockTrader is a safe implementation that logs and records requests.
type MockTrader struct {
	mu      sync.Mutex
	calls   []MockCall
	nextReq int64
}

func NewMockTrader() *MockTrader {
	return &MockTrader{}
}

func (m *MockTrader) RequestQuote(_ context.Context, p stream.ProposalParams) (int64, error) {
	slog.Info("MOCK: quote requested",
		slog.String("symbol", p.Symbol),
		slog.String("type", p.ContractType),
		slog.String("amount", p.Amount.String()))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextReq++
	m.calls = append(m.calls, MockCall{Op: "quote", Params: p})
	return m.nextReq, nil
}

func (m *MockTrader) Purchase(_ context.Context, proposalID string, price quant.AmountMicros) error {
	slog.Info("MOCK: purchase",
		slog.String("proposal", proposalID),
		slog.String("price", price.String()))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Op: "purchase", ProposalID: proposalID, Price: price})
	return nil
}

func (m *MockTrader) CloseEarly(_ context.Context, contractID int64, price quant.AmountMicros) error {
	slog.Info("MOCK: close early",
		slog.Int64("contract", contractID),
		slog.String("price", price.String()))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Op: "close", ContractID: contractID, Price: price})
	return nil
}

// Calls returns a copy of everything requested so far.
func (m *MockTrader) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

var _ Trader = (*MockTrader)(nil)

package execution

import (
	"fmt"
	"log/slog"
	"os"

	"trade_stream/internal/infra"
	"trade_stream/internal/stream"
	"trade_stream/pkg/quant"
)

// Mode selects the execution backend.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
	ModeMock  Mode = "mock"
)

// Paper trading starts with 10k of virtual currency.
const paperInitialBalance quant.AmountMicros = 10_000_000_000

// NewTrader returns the Trader implementation for the configured mode.
// Live mode requires an explicit CONFIRM_REAL_MONEY=true latch.
func NewTrader(cfg *infra.Config, session *stream.Session) (Trader, error) {
	mode := Mode(cfg.Trading.Mode)
	slog.Info("initializing execution", "mode", mode)

	switch mode {
	case ModePaper:
		trader := NewPaperTrader(session.Bus(), paperInitialBalance, cfg.API.Currency)
		trader.Attach(session.Bus())
		return trader, nil

	case ModeLive:
		if os.Getenv("CONFIRM_REAL_MONEY") != "true" {
			return nil, fmt.Errorf("live trading requires CONFIRM_REAL_MONEY=true in the environment")
		}
		return NewLiveTrader(session), nil

	case ModeMock:
		return NewMockTrader(), nil

	default:
		return nil, fmt.Errorf("unknown trading mode: %s", cfg.Trading.Mode)
	}
}

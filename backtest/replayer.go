package backtest

import (
	"context"
	"fmt"
	"log/slog"

	"trade_stream/internal/domain"
	"trade_stream/internal/event"
	"trade_stream/internal/execution"
	"trade_stream/internal/storage"
	"trade_stream/internal/strategy"
	"trade_stream/pkg/quant"
)

// Result summarizes one backtest run.
type Result struct {
	Ticks        int
	Trades       int
	Wins         int
	Losses       int
	FinalBalance domain.Balance
}

// Replayer feeds journaled ticks through a strategy against a paper trader.
// Replay is synchronous and deterministic: one tick fully processed before
// the next.
type Replayer struct {
	journal *storage.Journal
}

// NewReplayer opens the journal at dbPath.
func NewReplayer(dbPath string) (*Replayer, error) {
	journal, err := storage.NewJournal(dbPath)
	if err != nil {
		return nil, err
	}
	return &Replayer{journal: journal}, nil
}

// Close releases the journal.
func (r *Replayer) Close() error {
	return r.journal.Close()
}

// Run replays all journaled ticks from fromSeq through the strategy. The
// trader starts with initialBalance of virtual currency.
func (r *Replayer) Run(ctx context.Context, strat strategy.Strategy, initialBalance quant.AmountMicros, currency string, fromSeq uint64) (Result, error) {
	ticks, err := r.journal.LoadTickEvents(ctx, fromSeq)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load ticks: %w", err)
	}

	bus := event.NewBus()
	trader := execution.NewPaperTrader(bus, initialBalance, currency)
	trader.Attach(bus)

	var res Result
	bus.Subscribe(event.EvContractUpdate, func(ev event.Event) {
		c := ev.(event.ContractEvent).Contract
		if !c.IsClosed() {
			return
		}
		res.Trades++
		switch c.Status {
		case domain.StatusWon:
			res.Wins++
		case domain.StatusLost:
			res.Losses++
		}
	})

	runner := strategy.NewRunner(trader, strat, currency)
	runner.Attach(bus)
	defer runner.Stop()

	for _, tev := range ticks {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}
		bus.Publish(*tev)
		res.Ticks++
	}

	res.FinalBalance = trader.Balance()
	slog.Info("replay finished",
		"ticks", res.Ticks,
		"trades", res.Trades,
		"wins", res.Wins,
		"losses", res.Losses,
		"balance", res.FinalBalance.Amount)
	return res, nil
}

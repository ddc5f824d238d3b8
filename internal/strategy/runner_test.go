package strategy

import (
	"testing"

	"trade_stream/internal/domain"
	"trade_stream/internal/event"
	"trade_stream/internal/execution"
	"trade_stream/pkg/quant"
)

// stubStrategy signals a CALL on every tick at or above the trigger price,
// at most limit times (0 = unlimited).
type stubStrategy struct {
	trigger   quant.PriceMicros
	limit     int
	emitted   int
	contracts []domain.Contract
}

func (s *stubStrategy) OnTick(t domain.Tick, out []Signal) int {
	if t.Price < s.trigger {
		return 0
	}
	if s.limit > 0 && s.emitted >= s.limit {
		return 0
	}
	s.emitted++
	out[0] = Signal{
		Symbol:       t.Symbol,
		ContractType: "CALL",
		Stake:        10_000_000,
		Duration:     2,
	}
	return 1
}

func (s *stubStrategy) OnContractUpdate(c domain.Contract) {
	s.contracts = append(s.contracts, c)
}

func publishTick(bus *event.Bus, seq uint64, symbol string, price float64, epoch int64) {
	bus.Publish(event.TickEvent{
		BaseEvent: event.BaseEvent{Seq: seq, Ts: quant.TimeStamp(epoch * 1_000_000)},
		Tick: domain.Tick{
			Symbol: symbol,
			Price:  quant.ToPriceMicros(price),
			Ts:     quant.FromEpochSeconds(epoch),
		},
	})
}

func newPaperRig(t *testing.T, strat Strategy) (*event.Bus, *execution.PaperTrader, *Runner) {
	t.Helper()
	bus := event.NewBus()
	trader := execution.NewPaperTrader(bus, 10_000_000_000, "USD")
	trader.Attach(bus)

	r := NewRunner(trader, strat, "USD")
	r.Attach(bus)
	t.Cleanup(r.Stop)
	return bus, trader, r
}

func TestRunner_SignalToSettlement(t *testing.T) {
	strat := &stubStrategy{trigger: quant.ToPriceMicros(100.5), limit: 1}
	bus, trader, r := newPaperRig(t, strat)

	// Below trigger, nothing happens.
	publishTick(bus, 1, "R_100", 100.0, 1700000000)
	if trader.OpenPositions() != 0 || r.InflightQuotes() != 0 {
		t.Fatal("position opened without a signal")
	}

	// Trigger tick: signal, inline quote, purchase.
	publishTick(bus, 2, "R_100", 100.6, 1700000002)
	if trader.OpenPositions() != 1 {
		t.Fatalf("open positions = %d; want 1", trader.OpenPositions())
	}
	if r.OpenPositions() != 1 {
		t.Errorf("runner open positions = %d; want 1", r.OpenPositions())
	}
	if len(strat.contracts) != 1 || !strat.contracts[0].IsOpen() {
		t.Fatalf("strategy saw %+v", strat.contracts)
	}

	// Two expiry ticks; spot above entry wins.
	publishTick(bus, 3, "R_100", 100.8, 1700000004)
	publishTick(bus, 4, "R_100", 100.9, 1700000006)

	if trader.OpenPositions() != 0 {
		t.Fatal("contract did not settle")
	}
	final := strat.contracts[len(strat.contracts)-1]
	if final.Status != domain.StatusWon {
		t.Errorf("final status = %s; want won", final.Status)
	}
	if r.OpenPositions() != 0 {
		t.Error("runner still counts a settled position")
	}
}

func TestRunner_OnePositionPerSymbol(t *testing.T) {
	strat := &stubStrategy{trigger: 0} // signal on every tick
	bus, trader, _ := newPaperRig(t, strat)

	publishTick(bus, 1, "R_100", 100.0, 1700000000)
	publishTick(bus, 2, "R_100", 100.1, 1700000002)

	if got := trader.OpenPositions(); got != 1 {
		t.Errorf("open positions = %d; one position per symbol at a time", got)
	}
}

func TestRunner_SymbolsIndependent(t *testing.T) {
	strat := &stubStrategy{trigger: 0}
	bus, trader, _ := newPaperRig(t, strat)

	publishTick(bus, 1, "R_100", 100.0, 1700000000)
	publishTick(bus, 2, "R_50", 55.0, 1700000001)

	if got := trader.OpenPositions(); got != 2 {
		t.Errorf("open positions = %d; want one per symbol", got)
	}
}

func TestRunner_StopDetaches(t *testing.T) {
	strat := &stubStrategy{trigger: 0}
	bus, trader, r := newPaperRig(t, strat)

	r.Stop()
	publishTick(bus, 1, "R_100", 100.0, 1700000000)

	if trader.OpenPositions() != 0 {
		t.Error("stopped runner still trading")
	}
}

func TestRunner_IgnoresForeignProposals(t *testing.T) {
	strat := &stubStrategy{trigger: quant.ToPriceMicros(1e9)} // never signals
	bus, trader, _ := newPaperRig(t, strat)

	// A proposal nobody asked for must not be bought.
	bus.Publish(event.ProposalEvent{
		BaseEvent: event.BaseEvent{Seq: 1, Ts: 1},
		ReqID:     99,
		Proposal:  domain.Proposal{ID: "foreign", AskPrice: 10_000_000},
	})

	if trader.OpenPositions() != 0 {
		t.Error("runner bought a proposal it never requested")
	}
}

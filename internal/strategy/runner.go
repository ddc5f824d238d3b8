package strategy

import (
	"context"
	"log/slog"
	"sync"

	"trade_stream/internal/domain"
	"trade_stream/internal/event"
	"trade_stream/internal/execution"
	"trade_stream/internal/stream"
)

const signalBufferSize = 8

// Runner drives one strategy from a session bus: ticks in, quote requests
// and purchases out through a Trader. A signal turns into a quote request;
// when the quote arrives its proposal is bought at the asked price. One
// position per symbol at a time.
type Runner struct {
	trader   execution.Trader
	strat    Strategy
	currency string

	mu       sync.Mutex
	awaiting map[int64]Signal // quote correlation id -> originating signal
	open     map[string]int64 // symbol -> open contract id
	buf      []Signal
	cancels  []func()

	// Quotes can be published while RequestQuote is still on the stack
	// (simulated execution answers inline). They are collected here and
	// matched when the correlation id is known.
	collecting int
	collected  map[int64]domain.Proposal
}

// NewRunner creates a runner. Currency is used for every quote request.
func NewRunner(trader execution.Trader, strat Strategy, currency string) *Runner {
	return &Runner{
		trader:    trader,
		strat:     strat,
		currency:  currency,
		awaiting:  make(map[int64]Signal),
		open:      make(map[string]int64),
		buf:       make([]Signal, signalBufferSize),
		collected: make(map[int64]domain.Proposal),
	}
}

// Attach wires the runner to a bus. Detach with Stop.
func (r *Runner) Attach(bus *event.Bus) {
	r.cancels = append(r.cancels,
		bus.Subscribe(event.EvTick, func(ev event.Event) {
			r.onTick(ev.(event.TickEvent).Tick)
		}),
		bus.Subscribe(event.EvProposal, func(ev event.Event) {
			pe := ev.(event.ProposalEvent)
			r.onProposal(pe.ReqID, pe.Proposal)
		}),
		bus.Subscribe(event.EvContractUpdate, func(ev event.Event) {
			r.onContract(ev.(event.ContractEvent).Contract)
		}),
	)
}

// Stop detaches the runner from the bus. In-flight quotes are abandoned.
func (r *Runner) Stop() {
	for _, c := range r.cancels {
		c()
	}
	r.cancels = nil

	r.mu.Lock()
	r.awaiting = make(map[int64]Signal)
	r.mu.Unlock()
}

func (r *Runner) onTick(t domain.Tick) {
	r.mu.Lock()
	n := r.strat.OnTick(t, r.buf)
	signals := make([]Signal, 0, n)
	for _, sig := range r.buf[:n] {
		if r.busyLocked(sig.Symbol) {
			continue
		}
		signals = append(signals, sig)
	}
	r.mu.Unlock()

	for _, sig := range signals {
		r.requestQuote(sig)
	}
}

// busyLocked reports whether a quote or position already covers the symbol.
func (r *Runner) busyLocked(symbol string) bool {
	if _, ok := r.open[symbol]; ok {
		return true
	}
	for _, sig := range r.awaiting {
		if sig.Symbol == symbol {
			return true
		}
	}
	return false
}

func (r *Runner) requestQuote(sig Signal) {
	r.mu.Lock()
	r.collecting++
	r.mu.Unlock()

	reqID, err := r.trader.RequestQuote(context.Background(), stream.ProposalParams{
		Amount:       sig.Stake,
		ContractType: sig.ContractType,
		Currency:     r.currency,
		Duration:     sig.Duration,
		Symbol:       sig.Symbol,
	})

	r.mu.Lock()
	r.collecting--
	var inline *domain.Proposal
	if err == nil {
		if p, ok := r.collected[reqID]; ok {
			inline = &p
		} else {
			r.awaiting[reqID] = sig
		}
	}
	if r.collecting == 0 && len(r.collected) > 0 {
		r.collected = make(map[int64]domain.Proposal)
	}
	r.mu.Unlock()

	if err != nil {
		slog.Warn("quote request failed", "symbol", sig.Symbol, "err", err)
		return
	}
	slog.Debug("quote requested", "symbol", sig.Symbol, "req_id", reqID)
	if inline != nil {
		r.purchase(sig, *inline)
	}
}

func (r *Runner) onProposal(reqID int64, p domain.Proposal) {
	r.mu.Lock()
	sig, ok := r.awaiting[reqID]
	if ok {
		delete(r.awaiting, reqID)
	} else if r.collecting > 0 {
		r.collected[reqID] = p
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.purchase(sig, p)
}

func (r *Runner) purchase(sig Signal, p domain.Proposal) {
	if err := r.trader.Purchase(context.Background(), p.ID, p.AskPrice); err != nil {
		slog.Warn("purchase failed", "symbol", sig.Symbol, "proposal", p.ID, "err", err)
	}
}

func (r *Runner) onContract(c domain.Contract) {
	r.mu.Lock()
	if c.IsOpen() {
		r.open[c.Symbol] = c.ID
	} else if c.IsClosed() {
		if id, ok := r.open[c.Symbol]; ok && id == c.ID {
			delete(r.open, c.Symbol)
		}
	}
	r.mu.Unlock()

	r.strat.OnContractUpdate(c)
}

// InflightQuotes reports signals still waiting for a quote.
func (r *Runner) InflightQuotes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.awaiting)
}

// OpenPositions reports symbols with an open contract.
func (r *Runner) OpenPositions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}

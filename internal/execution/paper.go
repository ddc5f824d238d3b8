package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"trade_stream/internal/domain"
	"trade_stream/internal/event"
	"trade_stream/internal/stream"
	"trade_stream/pkg/quant"
	"trade_stream/pkg/safe"
)

// payoutNum/payoutDen approximate the provider's typical rise/fall payout
// of 95% on the stake.
const (
	payoutNum = 195
	payoutDen = 100
)

// paperQuote is a quoted proposal awaiting purchase.
type paperQuote struct {
	reqID     int64
	params    stream.ProposalParams
	payout    quant.AmountMicros
	entrySpot quant.PriceMicros
}

// paperPosition is an open simulated contract settling after a fixed
// number of ticks.
type paperPosition struct {
	contract  domain.Contract
	direction string // "CALL" or "PUT"
	entrySpot quant.PriceMicros
	ticksLeft int
}

// PaperTrader simulates contract execution against a virtual balance.
// Market data is real (fed through UpdateTick); purchases, settlement, and
// the balance are simulated. Contract and balance events are published on
// the bus exactly as a live session would publish them.
type PaperTrader struct {
	bus      *event.Bus
	currency string

	mu       sync.Mutex
	balance  quant.AmountMicros
	prices   map[string]quant.PriceMicros
	quotes   map[string]*paperQuote
	open     map[int64]*paperPosition
	nextReq  int64
	nextCtID int64
	seq      uint64
}

// NewPaperTrader creates a paper executor with an initial virtual balance.
func NewPaperTrader(bus *event.Bus, initialBalance quant.AmountMicros, currency string) *PaperTrader {
	return &PaperTrader{
		bus:      bus,
		currency: currency,
		balance:  initialBalance,
		prices:   make(map[string]quant.PriceMicros),
		quotes:   make(map[string]*paperQuote),
		open:     make(map[int64]*paperPosition),
		nextCtID: 1_000_000,
	}
}

// RequestQuote prices a proposal immediately: ask equals the stake, payout
// follows the fixed ratio. The quote is published as a proposal event.
func (t *PaperTrader) RequestQuote(_ context.Context, p stream.ProposalParams) (int64, error) {
	if p.Basis == "" {
		p.Basis = "stake"
	}
	if p.DurationUnit == "" {
		p.DurationUnit = "t"
	}
	if p.ContractType != "CALL" && p.ContractType != "PUT" {
		return 0, fmt.Errorf("paper quote: unsupported contract type %q", p.ContractType)
	}
	if p.DurationUnit != "t" {
		return 0, fmt.Errorf("paper quote: only tick durations are simulated")
	}

	t.mu.Lock()
	spot, ok := t.prices[p.Symbol]
	if !ok {
		t.mu.Unlock()
		return 0, fmt.Errorf("paper quote: no price seen for %s yet", p.Symbol)
	}
	t.nextReq++
	reqID := t.nextReq

	q := &paperQuote{
		reqID:     reqID,
		params:    p,
		payout:    quant.AmountMicros(safe.SafeDiv(safe.SafeMul(int64(p.Amount), payoutNum), payoutDen)),
		entrySpot: spot,
	}
	proposalID := uuid.New().String()
	t.quotes[proposalID] = q

	ev := event.ProposalEvent{
		BaseEvent: t.newBaseLocked(),
		ReqID:     reqID,
		Proposal: domain.Proposal{
			ID:       proposalID,
			AskPrice: p.Amount,
			Payout:   q.payout,
			Spot:     spot,
			SpotTs:   quant.TimeStamp(time.Now().UnixMicro()),
		},
	}
	t.mu.Unlock()

	t.bus.Publish(ev)
	return reqID, nil
}

// Purchase opens a simulated contract, debiting the stake from the virtual
// balance.
func (t *PaperTrader) Purchase(_ context.Context, proposalID string, price quant.AmountMicros) error {
	t.mu.Lock()
	q, ok := t.quotes[proposalID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("paper purchase: unknown proposal %s", proposalID)
	}
	delete(t.quotes, proposalID)

	stake := q.params.Amount
	if price < stake {
		t.mu.Unlock()
		return fmt.Errorf("paper purchase: price %s below ask %s", price, stake)
	}
	if t.balance < stake {
		t.mu.Unlock()
		return fmt.Errorf("paper purchase: insufficient balance: need %s, have %s", stake, t.balance)
	}
	t.balance = quant.AmountMicros(safe.SafeSub(int64(t.balance), int64(stake)))

	t.nextCtID++
	now := quant.TimeStamp(time.Now().UnixMicro())
	pos := &paperPosition{
		contract: domain.Contract{
			ID:       t.nextCtID,
			Symbol:   q.params.Symbol,
			Status:   domain.StatusOpen,
			BuyPrice: stake,
			Payout:   q.payout,
			Spot:     q.entrySpot,
			SpotTs:   now,
			OpenedTs: now,
		},
		direction: q.params.ContractType,
		entrySpot: q.entrySpot,
		ticksLeft: q.params.Duration,
	}
	t.open[pos.contract.ID] = pos

	opened := event.ContractEvent{BaseEvent: t.newBaseLocked(), Contract: pos.contract}
	balanceEv := t.balanceEventLocked()
	t.mu.Unlock()

	slog.Info("PAPER: contract opened",
		slog.Int64("contract", opened.Contract.ID),
		slog.String("symbol", opened.Contract.Symbol),
		slog.String("stake", stake.String()))

	t.bus.Publish(opened)
	t.bus.Publish(balanceEv)
	return nil
}

// CloseEarly sells an open position back at its stake, a neutral unwind.
func (t *PaperTrader) CloseEarly(_ context.Context, contractID int64, _ quant.AmountMicros) error {
	t.mu.Lock()
	pos, ok := t.open[contractID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("paper close: no open contract %d", contractID)
	}
	delete(t.open, contractID)

	now := quant.TimeStamp(time.Now().UnixMicro())
	pos.contract.Status = domain.StatusSold
	pos.contract.SellPrice = pos.contract.BuyPrice
	pos.contract.Profit = 0
	pos.contract.ClosedTs = now
	t.balance = quant.AmountMicros(safe.SafeAdd(int64(t.balance), int64(pos.contract.SellPrice)))

	closed := event.ContractEvent{BaseEvent: t.newBaseLocked(), Contract: pos.contract}
	balanceEv := t.balanceEventLocked()
	t.mu.Unlock()

	t.bus.Publish(closed)
	t.bus.Publish(balanceEv)
	return nil
}

// UpdateTick feeds one market tick. Open positions on the symbol count
// down; at zero the contract settles against the entry spot.
func (t *PaperTrader) UpdateTick(tick domain.Tick) {
	t.mu.Lock()
	t.prices[tick.Symbol] = tick.Price

	var settled []event.Event
	for id, pos := range t.open {
		if pos.contract.Symbol != tick.Symbol {
			continue
		}
		pos.ticksLeft--
		pos.contract.Spot = tick.Price
		pos.contract.SpotTs = tick.Ts
		if pos.ticksLeft > 0 {
			continue
		}

		won := tick.Price > pos.entrySpot
		if pos.direction == "PUT" {
			won = tick.Price < pos.entrySpot
		}
		if won {
			pos.contract.Status = domain.StatusWon
			pos.contract.Profit = quant.AmountMicros(
				safe.SafeSub(int64(pos.contract.Payout), int64(pos.contract.BuyPrice)))
			t.balance = quant.AmountMicros(safe.SafeAdd(int64(t.balance), int64(pos.contract.Payout)))
		} else {
			pos.contract.Status = domain.StatusLost
			pos.contract.Profit = quant.AmountMicros(safe.SafeSub(0, int64(pos.contract.BuyPrice)))
		}
		pos.contract.ClosedTs = tick.Ts
		delete(t.open, id)

		settled = append(settled,
			event.ContractEvent{BaseEvent: t.newBaseLocked(), Contract: pos.contract},
			t.balanceEventLocked(),
		)
	}
	t.mu.Unlock()

	for _, ev := range settled {
		t.bus.Publish(ev)
	}
}

// Attach wires the trader to a bus carrying real ticks. Returns a detach
// func.
func (t *PaperTrader) Attach(bus *event.Bus) func() {
	return bus.Subscribe(event.EvTick, func(ev event.Event) {
		t.UpdateTick(ev.(event.TickEvent).Tick)
	})
}

// Balance returns the current virtual balance.
func (t *PaperTrader) Balance() domain.Balance {
	t.mu.Lock()
	defer t.mu.Unlock()
	return domain.Balance{Amount: t.balance, Currency: t.currency}
}

// OpenPositions reports the number of unsettled contracts.
func (t *PaperTrader) OpenPositions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

func (t *PaperTrader) newBaseLocked() event.BaseEvent {
	t.seq++
	return event.BaseEvent{Seq: t.seq, Ts: quant.TimeStamp(time.Now().UnixMicro())}
}

func (t *PaperTrader) balanceEventLocked() event.BalanceEvent {
	return event.BalanceEvent{
		BaseEvent: t.newBaseLocked(),
		Balance:   domain.Balance{Amount: t.balance, Currency: t.currency},
	}
}

var _ Trader = (*PaperTrader)(nil)

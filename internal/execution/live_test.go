package execution

import (
	"context"
	"errors"
	"testing"

	"trade_stream/internal/event"
	"trade_stream/internal/infra"
	"trade_stream/internal/stream"
)

func TestLiveTrader_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	// Session never started, so every buy fails before reaching the wire.
	trader := NewLiveTrader(testSession())

	ctx := context.Background()
	var lastErr error
	for i := 0; i < 5; i++ {
		lastErr = trader.Purchase(ctx, "p-1", 10_000_000)
		if !errors.Is(lastErr, stream.ErrNotAuthorized) {
			t.Fatalf("purchase %d: %v; want not-authorized", i, lastErr)
		}
	}

	if got := trader.BreakerState(); got != infra.StateOpen {
		t.Fatalf("breaker = %s; want OPEN after repeated failures", got)
	}

	// Now the breaker fails fast locally, before the session is consulted.
	err := trader.Purchase(ctx, "p-1", 10_000_000)
	if err == nil || errors.Is(err, stream.ErrNotAuthorized) {
		t.Errorf("err = %v; want a local breaker rejection", err)
	}
}

func TestLiveTrader_BreakerIgnoresNonBuyRejections(t *testing.T) {
	sess := testSession()
	trader := NewLiveTrader(sess)
	bus := sess.Bus()

	reject := func(op string) {
		err := &stream.APIError{Op: op, Code: "ContractBuyValidationError", Message: "stake too low"}
		bus.Publish(event.ErrorEvent{Err: err, Message: err.Error()})
	}

	// A run of refused quotes and subscribe errors leaves the breaker alone.
	for i := 0; i < 5; i++ {
		reject("proposal")
		reject("ticks")
	}
	if got := trader.BreakerState(); got != infra.StateClosed {
		t.Fatalf("breaker = %s after non-buy rejections; want CLOSED", got)
	}

	// Refused purchases are what it counts.
	for i := 0; i < 5; i++ {
		reject("buy")
	}
	if got := trader.BreakerState(); got != infra.StateOpen {
		t.Fatalf("breaker = %s after buy rejections; want OPEN", got)
	}
}

func TestLiveTrader_QuotesBypassBreaker(t *testing.T) {
	trader := NewLiveTrader(testSession())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		trader.Purchase(ctx, "p-1", 10_000_000)
	}

	// Quote requests are not gated; they fail only on session state.
	_, err := trader.RequestQuote(ctx, stream.ProposalParams{
		Amount:       10_000_000,
		ContractType: "CALL",
		Currency:     "USD",
		Duration:     5,
		Symbol:       "R_100",
	})
	if !errors.Is(err, stream.ErrNotAuthorized) {
		t.Errorf("err = %v; want not-authorized from the session", err)
	}
}

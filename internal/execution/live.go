package execution

import (
	"context"
	"errors"
	"fmt"

	"trade_stream/internal/infra"
	"trade_stream/internal/stream"
	"trade_stream/pkg/quant"
)

// LiveTrader executes against the real provider through an authorized
// session. Purchases pass through a circuit breaker: a run of failed or
// rejected buys trips it and further purchases are refused until the
// cooldown expires.
type LiveTrader struct {
	session *stream.Session
	breaker *infra.CircuitBreaker
}

// NewLiveTrader creates a live executor on top of a session. The breaker
// watches purchase outcomes only; quotes and closes always pass.
func NewLiveTrader(session *stream.Session) *LiveTrader {
	t := &LiveTrader{
		session: session,
		breaker: infra.NewCircuitBreaker(infra.DefaultCircuitBreakerConfig("purchase")),
	}

	// Rejected purchases count against the breaker like send failures.
	// Other rejections, refused quotes included, never trip it.
	session.OnError(func(err error) {
		var apiErr *stream.APIError
		if errors.As(err, &apiErr) && apiErr.IsBuyRejection() {
			t.breaker.RecordFailure()
		}
	})
	return t
}

func (t *LiveTrader) RequestQuote(_ context.Context, p stream.ProposalParams) (int64, error) {
	return t.session.RequestProposal(p)
}

func (t *LiveTrader) Purchase(_ context.Context, proposalID string, price quant.AmountMicros) error {
	if !t.breaker.Allow() {
		return fmt.Errorf("purchase refused: circuit breaker %s", t.breaker.GetState())
	}

	if err := t.session.Buy(proposalID, price); err != nil {
		t.breaker.RecordFailure()
		return err
	}
	t.breaker.RecordSuccess()
	return nil
}

func (t *LiveTrader) CloseEarly(_ context.Context, contractID int64, price quant.AmountMicros) error {
	return t.session.Sell(contractID, price)
}

// BreakerState exposes the purchase breaker state for the status banner.
func (t *LiveTrader) BreakerState() infra.State {
	return t.breaker.GetState()
}

var _ Trader = (*LiveTrader)(nil)

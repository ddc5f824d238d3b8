package execution

import (
	"context"

	"trade_stream/internal/stream"
	"trade_stream/pkg/quant"
)

// Trader defines the interface for contract execution. Results are
// asynchronous in every implementation: quotes arrive as proposal events
// and purchases as contract events on the session bus.
type Trader interface {
	// RequestQuote asks for a priced proposal and returns the correlation id
	// its quotes will carry.
	RequestQuote(ctx context.Context, p stream.ProposalParams) (int64, error)

	// Purchase buys a quoted proposal at the agreed price.
	Purchase(ctx context.Context, proposalID string, price quant.AmountMicros) error

	// CloseEarly sells an open contract before expiry.
	CloseEarly(ctx context.Context, contractID int64, price quant.AmountMicros) error
}

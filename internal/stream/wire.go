package stream

import (
	"encoding/json"
	"fmt"

	"trade_stream/internal/domain"
	"trade_stream/pkg/quant"
)

// Inbound message kinds. The provider tags every reply and push frame with
// a msg_type discriminator; anything not listed here is ignored.
const (
	msgAuthorize = "authorize"
	msgBalance   = "balance"
	msgTick      = "tick"
	msgProposal  = "proposal"
	msgBuy       = "buy"
	msgSell      = "sell"
	msgContract  = "proposal_open_contract"
	msgForget    = "forget"
)

// APIError is a protocol-level rejection from the provider. It is terminal
// for the single request that caused it and never triggers a reconnect. Op
// is the msg_type the rejection came back under, so consumers can tell a
// refused purchase from a refused quote.
type APIError struct {
	Op      string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsBuyRejection reports whether the error rejected a buy request.
func (e *APIError) IsBuyRejection() bool {
	return e.Op == msgBuy
}

// Request frames. The key names select the operation on the wire.

type authorizeRequest struct {
	Authorize string `json:"authorize"`
}

type ticksRequest struct {
	Ticks     string `json:"ticks"`
	Subscribe int    `json:"subscribe,omitempty"`
}

type forgetRequest struct {
	Forget string `json:"forget"`
}

type balanceRequest struct {
	Balance   int `json:"balance"`
	Subscribe int `json:"subscribe"`
}

type proposalRequest struct {
	Proposal     int     `json:"proposal"`
	Amount       float64 `json:"amount"`
	Basis        string  `json:"basis"`
	ContractType string  `json:"contract_type"`
	Currency     string  `json:"currency"`
	Duration     int     `json:"duration"`
	DurationUnit string  `json:"duration_unit"`
	Symbol       string  `json:"symbol"`
	Subscribe    int     `json:"subscribe,omitempty"`
	ReqID        int64   `json:"req_id,omitempty"`
}

type buyRequest struct {
	Buy   string  `json:"buy"`
	Price float64 `json:"price"`
	ReqID int64   `json:"req_id,omitempty"`
}

type sellRequest struct {
	Sell  int64   `json:"sell"`
	Price float64 `json:"price"`
	ReqID int64   `json:"req_id,omitempty"`
}

type contractStatusRequest struct {
	ProposalOpenContract int   `json:"proposal_open_contract"`
	ContractID           int64 `json:"contract_id"`
	Subscribe            int   `json:"subscribe"`
}

// ProposalParams describes a quote request. Amounts are micros; the wire
// carries plain numbers.
type ProposalParams struct {
	Amount       quant.AmountMicros
	Basis        string // "stake" or "payout"
	ContractType string // e.g. "CALL", "PUT"
	Currency     string
	Duration     int
	DurationUnit string // "t", "s", "m", "h", "d"
	Symbol       string
}

func (p ProposalParams) validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("proposal: symbol is required")
	}
	if p.Amount <= 0 {
		return fmt.Errorf("proposal: amount must be positive")
	}
	if p.ContractType == "" {
		return fmt.Errorf("proposal: contract type is required")
	}
	if p.Currency == "" {
		return fmt.Errorf("proposal: currency is required")
	}
	if p.Duration <= 0 {
		return fmt.Errorf("proposal: duration must be positive")
	}
	return nil
}

// Reply envelope. Exactly one payload pointer is set per frame, named after
// msg_type; error replaces the payload on rejection.

type replyEnvelope struct {
	MsgType      string            `json:"msg_type"`
	ReqID        int64             `json:"req_id,omitempty"`
	Error        *apiErrorPayload  `json:"error,omitempty"`
	Subscription *subscriptionInfo `json:"subscription,omitempty"`

	Authorize            *authorizePayload `json:"authorize,omitempty"`
	Balance              *balancePayload   `json:"balance,omitempty"`
	Tick                 *tickPayload      `json:"tick,omitempty"`
	Proposal             *proposalPayload  `json:"proposal,omitempty"`
	Buy                  *buyPayload       `json:"buy,omitempty"`
	Sell                 *sellPayload      `json:"sell,omitempty"`
	ProposalOpenContract *contractPayload  `json:"proposal_open_contract,omitempty"`
}

type apiErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type subscriptionInfo struct {
	ID string `json:"id"`
}

type authorizePayload struct {
	LoginID  string  `json:"loginid"`
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

type balancePayload struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

type tickPayload struct {
	Symbol string  `json:"symbol"`
	Quote  float64 `json:"quote"`
	Epoch  int64   `json:"epoch"`
	ID     string  `json:"id,omitempty"`
}

type proposalPayload struct {
	ID           string  `json:"id"`
	AskPrice     float64 `json:"ask_price"`
	DisplayValue string  `json:"display_value,omitempty"`
	Payout       float64 `json:"payout"`
	Spot         float64 `json:"spot"`
	SpotTime     int64   `json:"spot_time"`
}

type buyPayload struct {
	ContractID   int64   `json:"contract_id"`
	BuyPrice     float64 `json:"buy_price"`
	Payout       float64 `json:"payout"`
	PurchaseTime int64   `json:"purchase_time"`
}

type sellPayload struct {
	ContractID    int64   `json:"contract_id"`
	SoldFor       float64 `json:"sold_for"`
	TransactionID int64   `json:"transaction_id"`
}

type contractPayload struct {
	ContractID      int64   `json:"contract_id"`
	Underlying      string  `json:"underlying"`
	Status          string  `json:"status"`
	BuyPrice        float64 `json:"buy_price"`
	Payout          float64 `json:"payout"`
	SellPrice       float64 `json:"sell_price"`
	Profit          float64 `json:"profit"`
	CurrentSpot     float64 `json:"current_spot"`
	CurrentSpotTime int64   `json:"current_spot_time"`
	PurchaseTime    int64   `json:"purchase_time"`
	DateExpiry      int64   `json:"date_expiry"`
	IsSold          int     `json:"is_sold"`
}

func decodeReply(raw []byte) (*replyEnvelope, error) {
	var env replyEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &env, nil
}

// toProposal converts a proposal payload, preferring the exact display
// string over the float when the provider sent one.
func (p *proposalPayload) toProposal() domain.Proposal {
	ask := quant.ToAmountMicros(p.AskPrice)
	if p.DisplayValue != "" {
		if exact, err := quant.ParseAmountMicros(p.DisplayValue); err == nil {
			ask = exact
		}
	}
	return domain.Proposal{
		ID:       p.ID,
		AskPrice: ask,
		Payout:   quant.ToAmountMicros(p.Payout),
		Spot:     quant.ToPriceMicros(p.Spot),
		SpotTs:   quant.FromEpochSeconds(p.SpotTime),
	}
}

func (c *contractPayload) toContract() domain.Contract {
	status := c.Status
	if status == "" && c.IsSold == 0 {
		status = domain.StatusOpen
	}
	out := domain.Contract{
		ID:        c.ContractID,
		Symbol:    c.Underlying,
		Status:    status,
		BuyPrice:  quant.ToAmountMicros(c.BuyPrice),
		Payout:    quant.ToAmountMicros(c.Payout),
		SellPrice: quant.ToAmountMicros(c.SellPrice),
		Profit:    quant.ToAmountMicros(c.Profit),
		Spot:      quant.ToPriceMicros(c.CurrentSpot),
		SpotTs:    quant.FromEpochSeconds(c.CurrentSpotTime),
		OpenedTs:  quant.FromEpochSeconds(c.PurchaseTime),
	}
	if out.IsClosed() {
		out.ClosedTs = quant.FromEpochSeconds(c.CurrentSpotTime)
	}
	return out
}

func (t *tickPayload) toTick() domain.Tick {
	return domain.Tick{
		Symbol: t.Symbol,
		Price:  quant.ToPriceMicros(t.Quote),
		Ts:     quant.FromEpochSeconds(t.Epoch),
	}
}

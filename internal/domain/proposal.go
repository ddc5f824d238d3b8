package domain

import (
	"trade_stream/pkg/quant"
	"trade_stream/pkg/safe"
)

// Proposal is a time-limited, priced quote for a contract the user could
// purchase. A proposal id is only valid until the next quote for the same
// request supersedes it, or until provider-side expiry.
type Proposal struct {
	ID       string             `json:"id"`
	AskPrice quant.AmountMicros `json:"ask_price"`
	Payout   quant.AmountMicros `json:"payout"`
	Spot     quant.PriceMicros  `json:"spot"`
	SpotTs   quant.TimeStamp    `json:"spot_ts"`
}

// ProfitIfWon returns payout minus ask price.
func (p *Proposal) ProfitIfWon() quant.AmountMicros {
	return quant.AmountMicros(safe.SafeSub(int64(p.Payout), int64(p.AskPrice)))
}

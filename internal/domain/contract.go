package domain

import (
	"trade_stream/pkg/quant"
	"trade_stream/pkg/safe"
)

// Contract status values as streamed by the provider.
const (
	StatusOpen = "open"
	StatusWon  = "won"
	StatusLost = "lost"
	StatusSold = "sold"
)

// Contract is a purchased position, open or closed. It is created by a
// successful purchase and mutated in place by status pushes until it
// reaches a closed state, after which further updates are ignored.
type Contract struct {
	ID        int64              `json:"contract_id"`
	Symbol    string             `json:"symbol"`
	Status    string             `json:"status"`
	BuyPrice  quant.AmountMicros `json:"buy_price"`
	Payout    quant.AmountMicros `json:"payout"`
	SellPrice quant.AmountMicros `json:"sell_price,omitempty"`
	Profit    quant.AmountMicros `json:"profit"`
	Spot      quant.PriceMicros  `json:"current_spot"`
	SpotTs    quant.TimeStamp    `json:"current_spot_ts"`
	OpenedTs  quant.TimeStamp    `json:"opened_ts"`
	ClosedTs  quant.TimeStamp    `json:"closed_ts,omitempty"`
}

// IsOpen reports whether the contract can still change state.
func (c *Contract) IsOpen() bool {
	return c.Status == StatusOpen
}

// IsClosed reports whether the contract reached a terminal state.
func (c *Contract) IsClosed() bool {
	switch c.Status {
	case StatusWon, StatusLost, StatusSold:
		return true
	}
	return false
}

// ApplyUpdate merges a status push into the contract. Updates to a closed
// contract are ignored; it reports whether anything changed.
func (c *Contract) ApplyUpdate(u Contract) bool {
	if c.IsClosed() {
		return false
	}
	if u.Status != "" {
		c.Status = u.Status
	}
	if u.Spot != 0 {
		c.Spot = u.Spot
		c.SpotTs = u.SpotTs
	}
	if u.Payout != 0 {
		c.Payout = u.Payout
	}
	if u.SellPrice != 0 {
		c.SellPrice = u.SellPrice
	}
	c.Profit = u.Profit
	if c.IsClosed() {
		c.ClosedTs = u.ClosedTs
	}
	return true
}

// RealizedProfit computes profit from settlement amounts rather than taking
// the provider's word for it: sell/payout proceeds minus buy price.
func (c *Contract) RealizedProfit() quant.AmountMicros {
	proceeds := int64(c.SellPrice)
	if c.Status == StatusWon {
		proceeds = int64(c.Payout)
	}
	if c.Status == StatusLost {
		proceeds = 0
	}
	return quant.AmountMicros(safe.SafeSub(proceeds, int64(c.BuyPrice)))
}

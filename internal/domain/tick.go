package domain

import "trade_stream/pkg/quant"

// Tick is a single quoted price update for a tradable symbol.
// Ticks for one symbol are strictly increasing in time; ticks for
// different symbols carry no relative ordering.
type Tick struct {
	Symbol string            `json:"symbol"`
	Price  quant.PriceMicros `json:"price"`
	Ts     quant.TimeStamp   `json:"ts"`
}

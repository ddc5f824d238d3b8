package domain

import "trade_stream/pkg/quant"

// Balance is the account balance as last reported by the provider.
// Strictly last-message-wins: no merging, no arithmetic on our side.
type Balance struct {
	Amount   quant.AmountMicros `json:"amount"`
	Currency string             `json:"currency"`
}

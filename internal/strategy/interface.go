package strategy

import (
	"trade_stream/internal/domain"
	"trade_stream/pkg/quant"
)

// Signal is a desired purchase emitted by a strategy.
type Signal struct {
	Symbol       string
	ContractType string // "CALL" or "PUT"
	Stake        quant.AmountMicros
	Duration     int // ticks
}

// Strategy defines the interface for trading logic.
type Strategy interface {
	// OnTick is called for every tick on a subscribed symbol. It returns the
	// number of signals written to the 'out' buffer.
	// Zero-Alloc: Caller provides the 'out' slice to avoid heap allocations.
	OnTick(t domain.Tick, out []Signal) int

	// OnContractUpdate is called when a contract changes state (purchase,
	// spot move, settlement).
	OnContractUpdate(c domain.Contract)
}

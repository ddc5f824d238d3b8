package event

import (
	"trade_stream/internal/domain"
	"trade_stream/pkg/quant"
)

// Type defines the type of event.
type Type uint16

const (
	EvTick Type = iota + 1
	EvProposal
	EvContractUpdate
	EvBalanceUpdate
	EvConnect
	EvDisconnect
	EvError
)

// Event is the interface for all session events.
type Event interface {
	GetSeq() uint64
	GetTs() quant.TimeStamp
	GetType() Type
}

// BaseEvent contains common fields for all events. Seq is assigned by the
// session, monotonically per session, and keys the journal.
type BaseEvent struct {
	Seq uint64          `json:"seq"`
	Ts  quant.TimeStamp `json:"ts"`
}

func (e BaseEvent) GetSeq() uint64         { return e.Seq }
func (e BaseEvent) GetTs() quant.TimeStamp { return e.Ts }

// TickEvent carries a price update for a subscribed symbol.
type TickEvent struct {
	BaseEvent
	Tick domain.Tick `json:"tick"`
}

func (e TickEvent) GetType() Type { return EvTick }

// ProposalEvent carries a priced quote. ReqID matches the correlation id
// returned when the proposal was requested.
type ProposalEvent struct {
	BaseEvent
	ReqID    int64           `json:"req_id"`
	Proposal domain.Proposal `json:"proposal"`
}

func (e ProposalEvent) GetType() Type { return EvProposal }

// ContractEvent carries a contract status change (purchase, spot move,
// settlement, early close).
type ContractEvent struct {
	BaseEvent
	Contract domain.Contract `json:"contract"`
}

func (e ContractEvent) GetType() Type { return EvContractUpdate }

// BalanceEvent carries the latest account balance.
type BalanceEvent struct {
	BaseEvent
	Balance domain.Balance `json:"balance"`
}

func (e BalanceEvent) GetType() Type { return EvBalanceUpdate }

// ConnectEvent fires once per successful authorization.
type ConnectEvent struct {
	BaseEvent
}

func (e ConnectEvent) GetType() Type { return EvConnect }

// DisconnectEvent fires when the transport closes, before any reconnect.
type DisconnectEvent struct {
	BaseEvent
	Reason string `json:"reason,omitempty"`
}

func (e DisconnectEvent) GetType() Type { return EvDisconnect }

// ErrorEvent carries an asynchronous failure. Err is the typed error for
// in-process consumers; Message is what the journal persists.
type ErrorEvent struct {
	BaseEvent
	Err     error  `json:"-"`
	Message string `json:"message"`
}

func (e ErrorEvent) GetType() Type { return EvError }

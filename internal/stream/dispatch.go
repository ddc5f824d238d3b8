package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"trade_stream/internal/domain"
	"trade_stream/internal/event"
	"trade_stream/pkg/quant"
	"trade_stream/pkg/safe"
)

// handleOpen runs when the socket comes up, initial connect and reconnect
// alike. The handshake is always the first frame out.
func (s *Session) handleOpen(_ context.Context) {
	s.mu.Lock()
	s.state = Authorizing
	s.mu.Unlock()

	frame, err := json.Marshal(authorizeRequest{Authorize: s.cfg.Token})
	if err != nil {
		s.publishError(err)
		return
	}
	if err := s.sendFrame(frame); err != nil {
		slog.Warn("authorize send failed", "err", err)
	}
}

// handleMessage dispatches one inbound frame by its msg_type discriminator.
// Runs on the transport read goroutine, so per-stream ordering is the
// arrival ordering. Unknown kinds are a forward-compatible no-op.
func (s *Session) handleMessage(raw []byte) {
	env, err := decodeReply(raw)
	if err != nil {
		slog.Debug("undecodable frame dropped", "err", err)
		return
	}

	if env.Error != nil {
		s.handleAPIError(env)
		return
	}

	switch env.MsgType {
	case msgAuthorize:
		s.handleAuthorized(env)
	case msgBalance:
		s.handleBalance(env)
	case msgTick:
		s.handleTick(env)
	case msgProposal:
		s.handleProposal(env)
	case msgBuy:
		s.handleBuy(env)
	case msgSell:
		s.handleSell(env)
	case msgContract:
		s.handleContract(env)
	case msgForget:
		// ack only, nothing to correlate
	default:
	}
}

// handleAPIError surfaces a protocol-level rejection. Terminal for the one
// request it concerns; the session stays up and usable. Each request fails
// at most once: a rejection whose pending entry is already gone, because
// the request timed out or the socket dropped first, is swallowed.
func (s *Session) handleAPIError(env *replyEnvelope) {
	apiErr := &APIError{Op: env.MsgType, Code: env.Error.Code, Message: env.Error.Message}

	s.mu.Lock()
	if env.ReqID != 0 {
		if _, ok := s.pending[env.ReqID]; !ok {
			s.mu.Unlock()
			return
		}
		s.removePendingLocked(env.ReqID)
	}
	if env.MsgType == msgAuthorize {
		// Open but unauthorized. No automatic re-auth; the next transport
		// close starts a full reconnect cycle which retries the handshake.
		s.state = Connected
	}
	s.mu.Unlock()

	s.publishError(apiErr)
}

func (s *Session) handleAuthorized(env *replyEnvelope) {
	p := env.Authorize
	if p == nil {
		return
	}

	// The mutex stays held from the state flip through the replay. A
	// SubscribeTicks that observes Authorized therefore runs after the
	// replay finished and sends its own frame exactly once.
	s.mu.Lock()
	s.state = Authorized
	s.retries = 0
	s.balance = domain.Balance{
		Amount:   quant.ToAmountMicros(p.Balance),
		Currency: p.Currency,
	}
	bal := s.balance

	// The balance stream is private to the session, not a public
	// subscription, so it is not in the registry and is re-sent here on
	// every (re)authorization.
	if frame, err := json.Marshal(balanceRequest{Balance: 1, Subscribe: 1}); err == nil {
		if err := s.sendFrame(frame); err != nil {
			slog.Warn("balance subscribe failed", "err", err)
		}
	}

	err := s.registry.ReplayAll(s.sendFrame)
	n := s.registry.Len()
	s.mu.Unlock()
	if err != nil {
		slog.Warn("subscription replay interrupted", "err", err)
	} else if n > 0 {
		slog.Info("subscriptions replayed", "count", n)
	}

	s.bus.Publish(event.BalanceEvent{BaseEvent: s.newBase(), Balance: bal})
	s.bus.Publish(event.ConnectEvent{BaseEvent: s.newBase()})
	slog.Info("session authorized", "loginid", p.LoginID, "currency", p.Currency)
}

// handleClose runs when the socket drops, whatever the reason. Pending
// requests fail now; subscriptions survive for replay.
func (s *Session) handleClose(err error) {
	s.mu.Lock()
	wasClosing := s.closing
	s.state = Disconnected
	failed := s.takePendingLocked()
	s.mu.Unlock()

	s.failPending(failed, ErrConnectionLost)

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	s.bus.Publish(event.DisconnectEvent{BaseEvent: s.newBase(), Reason: reason})

	if !wasClosing {
		slog.Warn("session disconnected", "err", err)
		s.scheduleReconnect()
	}
}

func (s *Session) handleBalance(env *replyEnvelope) {
	p := env.Balance
	if p == nil {
		return
	}

	bal := domain.Balance{
		Amount:   quant.ToAmountMicros(p.Balance),
		Currency: p.Currency,
	}

	// Last message wins, unconditionally.
	s.mu.Lock()
	s.balance = bal
	s.mu.Unlock()

	s.bus.Publish(event.BalanceEvent{BaseEvent: s.newBase(), Balance: bal})
}

func (s *Session) handleTick(env *replyEnvelope) {
	p := env.Tick
	if p == nil {
		return
	}

	s.mu.Lock()
	if !s.registry.Has(KindTick, p.Symbol) {
		// Straggler after unsubscribe; must not reach consumers.
		s.mu.Unlock()
		return
	}
	if env.Subscription != nil && env.Subscription.ID != "" {
		s.registry.SetUpstreamID(KindTick, p.Symbol, env.Subscription.ID)
	}
	s.mu.Unlock()

	s.bus.Publish(event.TickEvent{BaseEvent: s.newBase(), Tick: p.toTick()})
}

func (s *Session) handleProposal(env *replyEnvelope) {
	p := env.Proposal
	if p == nil {
		return
	}

	// The first reply resolves the correlation entry; the stream keeps
	// delivering superseding quotes under the same req_id.
	s.mu.Lock()
	s.removePendingLocked(env.ReqID)
	s.mu.Unlock()

	s.bus.Publish(event.ProposalEvent{
		BaseEvent: s.newBase(),
		ReqID:     env.ReqID,
		Proposal:  p.toProposal(),
	})
}

func (s *Session) handleBuy(env *replyEnvelope) {
	p := env.Buy
	if p == nil {
		return
	}

	contract := domain.Contract{
		ID:       p.ContractID,
		Status:   domain.StatusOpen,
		BuyPrice: quant.ToAmountMicros(p.BuyPrice),
		Payout:   quant.ToAmountMicros(p.Payout),
		OpenedTs: quant.FromEpochSeconds(p.PurchaseTime),
	}

	s.mu.Lock()
	if _, ok := s.pending[env.ReqID]; !ok {
		// Stale confirmation for a request already failed (disconnect,
		// timeout). The caller saw the failure; nothing may arrive now.
		s.mu.Unlock()
		return
	}
	s.removePendingLocked(env.ReqID)
	c := contract
	s.contracts[p.ContractID] = &c
	// The provider auto-streams status for a fresh purchase; record the
	// explicit status subscription so a reconnect re-establishes it.
	key := strconv.FormatInt(p.ContractID, 10)
	if frame, err := json.Marshal(contractStatusRequest{
		ProposalOpenContract: 1,
		ContractID:           p.ContractID,
		Subscribe:            1,
	}); err == nil {
		s.registry.Record(KindContract, key, frame)
	}
	s.mu.Unlock()

	s.bus.Publish(event.ContractEvent{BaseEvent: s.newBase(), Contract: contract})
}

func (s *Session) handleSell(env *replyEnvelope) {
	p := env.Sell
	if p == nil {
		return
	}

	sold := domain.Contract{
		Status:    domain.StatusSold,
		SellPrice: quant.ToAmountMicros(p.SoldFor),
	}

	s.mu.Lock()
	if _, ok := s.pending[env.ReqID]; !ok {
		s.mu.Unlock()
		return
	}
	s.removePendingLocked(env.ReqID)
	c, ok := s.contracts[p.ContractID]
	if ok {
		sold.Profit = quant.AmountMicros(safe.SafeSub(int64(sold.SellPrice), int64(c.BuyPrice)))
		c.ApplyUpdate(sold)
		sold = *c
		delete(s.contracts, p.ContractID)
	} else {
		sold.ID = p.ContractID
	}
	s.registry.Forget(KindContract, strconv.FormatInt(p.ContractID, 10))
	s.mu.Unlock()

	s.bus.Publish(event.ContractEvent{BaseEvent: s.newBase(), Contract: sold})
}

func (s *Session) handleContract(env *replyEnvelope) {
	p := env.ProposalOpenContract
	if p == nil {
		return
	}
	u := p.toContract()

	s.mu.Lock()
	c, ok := s.contracts[u.ID]
	if !ok {
		if u.IsClosed() {
			// Late push for a contract already settled and forgotten. Its
			// terminal snapshot was published when it closed.
			s.mu.Unlock()
			return
		}
		seeded := u
		if seeded.Status == "" {
			seeded.Status = domain.StatusOpen
		}
		s.contracts[u.ID] = &seeded
		s.mu.Unlock()
		s.bus.Publish(event.ContractEvent{BaseEvent: s.newBase(), Contract: seeded})
		return
	}

	changed := c.ApplyUpdate(u)
	snapshot := *c
	if c.IsClosed() {
		// Terminal: the stream ends upstream, drop the replay entry.
		s.registry.Forget(KindContract, strconv.FormatInt(u.ID, 10))
		delete(s.contracts, u.ID)
	}
	s.mu.Unlock()

	if changed {
		s.bus.Publish(event.ContractEvent{BaseEvent: s.newBase(), Contract: snapshot})
	}
}

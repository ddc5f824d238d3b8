package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"trade_stream/internal/domain"
	"trade_stream/internal/event"
	"trade_stream/internal/infra"
	"trade_stream/pkg/quant"
)

// ConnState is the session connection state.
type ConnState uint8

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Authorizing
	Authorized
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Authorizing:
		return "AUTHORIZING"
	case Authorized:
		return "AUTHORIZED"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrConnectionLost fails pending requests when the socket drops before
	// their reply arrives.
	ErrConnectionLost = errors.New("connection lost")
	// ErrSessionClosed fails pending requests on explicit Stop.
	ErrSessionClosed = errors.New("session closed")
	// ErrRequestTimeout fails a pending request whose reply never came,
	// when a request timeout is configured.
	ErrRequestTimeout = errors.New("request timed out")
	// ErrNotAuthorized rejects requests issued before the handshake completed.
	ErrNotAuthorized = errors.New("session not authorized")
)

// Config describes one session. Token is immutable for the session's
// lifetime; re-authorization after reconnect reuses it.
type Config struct {
	Endpoint string
	Token    string

	// ReconnectDelay is the fixed delay between reconnect attempts.
	// Defaults to 3 seconds. Reconnection repeats forever until Stop.
	ReconnectDelay time.Duration
	// UseBackoff switches the reconnect delay to capped exponential backoff.
	UseBackoff bool
	// RequestTimeout, when positive, fails a correlated request that never
	// receives a reply. Zero preserves the wait-forever baseline.
	RequestTimeout time.Duration
	// RequestsPerSec throttles outbound frames. Zero uses the default limiter.
	RequestsPerSec float64
}

// TransportFactory lets tests supply a fake transport. The handler the
// session passes in must receive every socket callback.
type TransportFactory func(h infra.TransportHandler) infra.Transport

type pendingRequest struct {
	id    int64
	kind  string
	timer *time.Timer
}

// Session is the authenticated, reconnecting logical connection to the
// streaming brokerage API. One socket, many consumers: all subscription
// state and request correlation lives here, serialized under one mutex.
type Session struct {
	cfg       Config
	transport infra.Transport
	bus       *event.Bus
	limiter   *infra.RateLimiter

	mu        sync.Mutex
	state     ConnState
	balance   domain.Balance
	registry  *Registry
	pending   map[int64]*pendingRequest
	contracts map[int64]*domain.Contract
	closing   bool
	retries   int
	reconnect *time.Timer

	ctx    context.Context
	cancel context.CancelFunc

	nextReq atomic.Int64
	seq     uint64
}

// NewSession creates a session speaking to cfg.Endpoint over a websocket.
func NewSession(cfg Config) *Session {
	return NewSessionWithTransport(cfg, nil)
}

// NewSessionWithTransport creates a session with a custom transport factory.
// A nil factory uses the real socket transport.
func NewSessionWithTransport(cfg Config, factory TransportFactory) *Session {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}

	s := &Session{
		cfg:       cfg,
		bus:       event.NewBus(),
		registry:  NewRegistry(),
		pending:   make(map[int64]*pendingRequest),
		contracts: make(map[int64]*domain.Contract),
	}

	if cfg.RequestsPerSec > 0 {
		s.limiter = infra.NewRateLimiter(int(cfg.RequestsPerSec), cfg.RequestsPerSec)
	} else {
		s.limiter = infra.DefaultStreamLimiter()
	}

	hook := &transportHook{s: s}
	if factory != nil {
		s.transport = factory(hook)
	} else {
		s.transport = infra.NewSocketTransport(cfg.Endpoint, hook)
	}
	return s
}

// transportHook adapts the session to the transport callback interface
// without exposing the callbacks on Session's public API.
type transportHook struct {
	s *Session
}

func (h *transportHook) OnOpen(ctx context.Context)            { h.s.handleOpen(ctx) }
func (h *transportHook) OnMessage(_ context.Context, m []byte) { h.s.handleMessage(m) }
func (h *transportHook) OnClose(err error)                     { h.s.handleClose(err) }

// Start connects the session. Dial failures are retried on the reconnect
// schedule like any other drop; Start itself never fails the session.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.closing = false
	s.mu.Unlock()

	s.connect()
}

// Stop tears the session down: pending requests fail, the socket closes,
// no reconnect is scheduled. Subscriptions are forgotten with the session.
func (s *Session) Stop() {
	s.mu.Lock()
	s.closing = true
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	cancel := s.cancel
	s.ctx, s.cancel = nil, nil
	s.state = Disconnected
	failed := s.takePendingLocked()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.failPending(failed, ErrSessionClosed)
	s.transport.Close()
}

func (s *Session) connect() {
	s.mu.Lock()
	if s.closing || s.ctx == nil {
		s.mu.Unlock()
		return
	}
	s.state = Connecting
	ctx := s.ctx
	s.mu.Unlock()

	if err := s.transport.Open(ctx); err != nil {
		slog.Warn("session dial failed", "endpoint", s.cfg.Endpoint, "err", err)
		s.scheduleReconnect()
	}
}

func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing || s.ctx == nil {
		return
	}

	delay := s.cfg.ReconnectDelay
	if s.cfg.UseBackoff {
		delay = infra.CalculateBackoff(s.retries)
	}
	s.retries++
	s.reconnect = time.AfterFunc(delay, s.connect)
	slog.Info("reconnect scheduled", "delay", delay, "attempt", s.retries)
}

// State returns the current connection state.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Balance returns the last reported account balance.
func (s *Session) Balance() domain.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// PendingCount reports outstanding correlated requests.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// SubscriptionCount reports recorded stream subscriptions.
func (s *Session) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Len()
}

// SubscribeTicks starts the tick stream for a symbol. Idempotent: exactly
// one upstream subscription exists per symbol no matter how many consumers
// attach tick callbacks. Before authorization the entry is only recorded;
// the post-authorize replay sends it.
func (s *Session) SubscribeTicks(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("subscribe ticks: empty symbol")
	}

	frame, err := json.Marshal(ticksRequest{Ticks: symbol, Subscribe: 1})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.registry.Record(KindTick, symbol, frame) {
		return nil
	}
	if s.state != Authorized {
		return nil
	}
	// Sending under the mutex keeps this ordered against a concurrent
	// reauthorization replay; the frame goes out exactly once.
	return s.sendFrame(frame)
}

// UnsubscribeTicks stops the tick stream for one symbol. Per-symbol on the
// wire; ticks already in flight for the symbol are dropped locally, so no
// further ticks reach any consumer after this returns.
func (s *Session) UnsubscribeTicks(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("unsubscribe ticks: empty symbol")
	}

	s.mu.Lock()
	upstreamID, ok := s.registry.Forget(KindTick, symbol)
	authorized := s.state == Authorized
	s.mu.Unlock()

	if !ok || !authorized || upstreamID == "" {
		return nil
	}

	frame, err := json.Marshal(forgetRequest{Forget: upstreamID})
	if err != nil {
		return err
	}
	return s.sendFrame(frame)
}

// RequestProposal asks for a streaming quote. Successive proposals for the
// returned correlation id arrive as proposal events until superseded or
// the connection drops; proposal streams are never replayed on reconnect.
func (s *Session) RequestProposal(p ProposalParams) (int64, error) {
	if p.Basis == "" {
		p.Basis = "stake"
	}
	if p.DurationUnit == "" {
		p.DurationUnit = "t"
	}
	if err := p.validate(); err != nil {
		return 0, err
	}

	id := s.nextReq.Add(1)
	frame, err := json.Marshal(proposalRequest{
		Proposal:     1,
		Amount:       p.Amount.Float(),
		Basis:        p.Basis,
		ContractType: p.ContractType,
		Currency:     p.Currency,
		Duration:     p.Duration,
		DurationUnit: p.DurationUnit,
		Symbol:       p.Symbol,
		Subscribe:    1,
		ReqID:        id,
	})
	if err != nil {
		return 0, err
	}

	if err := s.trackAndSend(id, msgProposal, frame); err != nil {
		return 0, err
	}
	return id, nil
}

// Buy purchases a quoted proposal at the agreed price. The result arrives
// asynchronously: a contract event on success, an error event on rejection.
func (s *Session) Buy(proposalID string, price quant.AmountMicros) error {
	if proposalID == "" {
		return fmt.Errorf("buy: empty proposal id")
	}
	if price <= 0 {
		return fmt.Errorf("buy: price must be positive")
	}

	id := s.nextReq.Add(1)
	frame, err := json.Marshal(buyRequest{Buy: proposalID, Price: price.Float(), ReqID: id})
	if err != nil {
		return err
	}
	return s.trackAndSend(id, msgBuy, frame)
}

// Sell closes an open contract early at the given price.
func (s *Session) Sell(contractID int64, price quant.AmountMicros) error {
	if contractID == 0 {
		return fmt.Errorf("sell: empty contract id")
	}

	id := s.nextReq.Add(1)
	frame, err := json.Marshal(sellRequest{Sell: contractID, Price: price.Float(), ReqID: id})
	if err != nil {
		return err
	}
	return s.trackAndSend(id, msgSell, frame)
}

// Send is the low-level escape hatch: a raw frame, rate limited, no
// correlation tracking.
func (s *Session) Send(frame []byte) error {
	return s.sendFrame(frame)
}

func (s *Session) trackAndSend(id int64, kind string, frame []byte) error {
	s.mu.Lock()
	if s.state != Authorized {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", kind, ErrNotAuthorized)
	}
	pr := &pendingRequest{id: id, kind: kind}
	if s.cfg.RequestTimeout > 0 {
		pr.timer = time.AfterFunc(s.cfg.RequestTimeout, func() { s.timeoutPending(id) })
	}
	s.pending[id] = pr
	s.mu.Unlock()

	if err := s.sendFrame(frame); err != nil {
		s.mu.Lock()
		s.removePendingLocked(id)
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Session) timeoutPending(id int64) {
	s.mu.Lock()
	pr, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if ok {
		s.publishError(fmt.Errorf("%s request %d: %w", pr.kind, pr.id, ErrRequestTimeout))
	}
}

// removePendingLocked drops a pending entry without failing it. Caller
// holds s.mu.
func (s *Session) removePendingLocked(id int64) {
	if pr, ok := s.pending[id]; ok {
		if pr.timer != nil {
			pr.timer.Stop()
		}
		delete(s.pending, id)
	}
}

// takePendingLocked empties the pending table and returns the entries.
// Caller holds s.mu.
func (s *Session) takePendingLocked() []*pendingRequest {
	if len(s.pending) == 0 {
		return nil
	}
	out := make([]*pendingRequest, 0, len(s.pending))
	for _, pr := range s.pending {
		out = append(out, pr)
	}
	s.pending = make(map[int64]*pendingRequest)
	return out
}

func (s *Session) failPending(list []*pendingRequest, cause error) {
	for _, pr := range list {
		if pr.timer != nil {
			pr.timer.Stop()
		}
		s.publishError(fmt.Errorf("%s request %d: %w", pr.kind, pr.id, cause))
	}
}

func (s *Session) sendFrame(frame []byte) error {
	s.limiter.Wait()
	err := s.transport.Send(frame)
	if errors.Is(err, infra.ErrNotConnected) {
		slog.Debug("frame dropped, socket not open")
	}
	return err
}

func (s *Session) newBase() event.BaseEvent {
	return event.BaseEvent{
		Seq: quant.NextSeq(&s.seq),
		Ts:  quant.TimeStamp(time.Now().UnixMicro()),
	}
}

func (s *Session) publishError(err error) {
	s.bus.Publish(event.ErrorEvent{BaseEvent: s.newBase(), Err: err, Message: err.Error()})
}

// Bus exposes the session's event bus for consumers that want raw events
// (the journal does).
func (s *Session) Bus() *event.Bus {
	return s.bus
}

// Typed subscription helpers. Each returns a cancel func; any number of
// consumers can attach to the same session without clobbering each other.

func (s *Session) OnTick(fn func(domain.Tick)) func() {
	return s.bus.Subscribe(event.EvTick, func(ev event.Event) {
		fn(ev.(event.TickEvent).Tick)
	})
}

func (s *Session) OnProposal(fn func(reqID int64, p domain.Proposal)) func() {
	return s.bus.Subscribe(event.EvProposal, func(ev event.Event) {
		pe := ev.(event.ProposalEvent)
		fn(pe.ReqID, pe.Proposal)
	})
}

func (s *Session) OnContractUpdate(fn func(domain.Contract)) func() {
	return s.bus.Subscribe(event.EvContractUpdate, func(ev event.Event) {
		fn(ev.(event.ContractEvent).Contract)
	})
}

func (s *Session) OnBalance(fn func(domain.Balance)) func() {
	return s.bus.Subscribe(event.EvBalanceUpdate, func(ev event.Event) {
		fn(ev.(event.BalanceEvent).Balance)
	})
}

func (s *Session) OnError(fn func(error)) func() {
	return s.bus.Subscribe(event.EvError, func(ev event.Event) {
		fn(ev.(event.ErrorEvent).Err)
	})
}

func (s *Session) OnConnect(fn func()) func() {
	return s.bus.Subscribe(event.EvConnect, func(event.Event) { fn() })
}

func (s *Session) OnDisconnect(fn func()) func() {
	return s.bus.Subscribe(event.EvDisconnect, func(event.Event) { fn() })
}

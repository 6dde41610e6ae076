package gateway

import (
	"sort"
	"sync"

	"github.com/yanun0323/logs"

	"main/internal/schema"
	"main/pkg/exception"
)

// Wire is the transport that actually transmits order requests, either a
// venue session or the paper-trading simulator.
type Wire interface {
	WriteNew(schema.NewOrder) error
	WriteCancel(schema.CancelOrder) error
	WriteReplace(schema.CancelReplaceOrder) error
}

// Config controls gateway behavior.
type Config struct {
	Session           string `json:"session"`
	ResendOnReconnect bool   `json:"resendOnReconnect"`
}

type requestKind uint8

const (
	kindNew requestKind = iota
	kindCancel
	kindReplace
)

type pendingRequest struct {
	kind    requestKind
	new     schema.NewOrder
	cancel  schema.CancelOrder
	replace schema.CancelReplaceOrder
}

// Gateway sits between the strategy loops and the wire. It accepts each
// ClOrdID exactly once, making the id an idempotency key, and keeps
// non-terminal requests for resend after a reconnect. Safe for concurrent
// use by multiple symbol loops.
type Gateway struct {
	cfg Config

	mu        sync.Mutex
	wire      Wire
	seen      map[uint64]struct{}
	pending   map[uint64]pendingRequest
	connected bool
}

// New creates a gateway over the given wire.
func New(cfg Config, wire Wire) *Gateway {
	if cfg.Session == "" {
		cfg.Session = "default"
	}
	return &Gateway{
		cfg:       cfg,
		wire:      wire,
		seen:      make(map[uint64]struct{}),
		pending:   make(map[uint64]pendingRequest),
		connected: true,
	}
}

// SendNew transmits a new-order request. A ClOrdID that was ever accepted
// before is rejected without touching the wire.
func (g *Gateway) SendNew(o schema.NewOrder) error {
	if err := g.register(o.ClOrdID, pendingRequest{kind: kindNew, new: o}); err != nil {
		return err
	}
	// The wire runs outside the lock: the paper simulator delivers
	// reports synchronously, which re-enters the gateway.
	return g.wire.WriteNew(o)
}

// SendCancel transmits a cancel request.
func (g *Gateway) SendCancel(o schema.CancelOrder) error {
	if err := g.register(o.ClOrdID, pendingRequest{kind: kindCancel, cancel: o}); err != nil {
		return err
	}
	return g.wire.WriteCancel(o)
}

// SendReplace transmits a cancel-replace request.
func (g *Gateway) SendReplace(o schema.CancelReplaceOrder) error {
	if err := g.register(o.ClOrdID, pendingRequest{kind: kindReplace, replace: o}); err != nil {
		return err
	}
	return g.wire.WriteReplace(o)
}

func (g *Gateway) register(clOrdID uint64, req pendingRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.admit(clOrdID); err != nil {
		return err
	}
	g.pending[clOrdID] = req
	if !g.connected {
		return exception.ErrOrderGatewayClosed
	}
	return nil
}

// OnExecReport clears the pending entry once the venue has acknowledged
// the request; a resend is only useful before that.
func (g *Gateway) OnExecReport(r schema.ExecReport) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, r.ClOrdID)
}

// OnCancelReject drops the rejected request from the resend set.
func (g *Gateway) OnCancelReject(r schema.CancelReject) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, r.ClOrdID)
}

// Disconnect marks the session down; sends fail until Reconnect.
func (g *Gateway) Disconnect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
	logs.Warnf("order gateway disconnected, session %s pending %d", g.cfg.Session, len(g.pending))
}

// Reconnect marks the session up and retransmits unacknowledged requests
// in ClOrdID order. The venue dedups on ClOrdID, so retransmitting an
// already-processed request is harmless.
func (g *Gateway) Reconnect() error {
	g.mu.Lock()
	g.connected = true
	if !g.cfg.ResendOnReconnect || len(g.pending) == 0 {
		g.mu.Unlock()
		return nil
	}
	resend := make([]pendingRequest, 0, len(g.pending))
	for _, req := range g.pending {
		resend = append(resend, req)
	}
	g.mu.Unlock()

	sort.Slice(resend, func(i, j int) bool { return resend[i].id() < resend[j].id() })

	logs.Infof("order gateway reconnected, session %s resending %d", g.cfg.Session, len(resend))
	for _, req := range resend {
		var err error
		switch req.kind {
		case kindNew:
			err = g.wire.WriteNew(req.new)
		case kindCancel:
			err = g.wire.WriteCancel(req.cancel)
		case kindReplace:
			err = g.wire.WriteReplace(req.replace)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r pendingRequest) id() uint64 {
	switch r.kind {
	case kindCancel:
		return r.cancel.ClOrdID
	case kindReplace:
		return r.replace.ClOrdID
	default:
		return r.new.ClOrdID
	}
}

// PendingCount reports unacknowledged requests, for shutdown draining.
func (g *Gateway) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

func (g *Gateway) admit(clOrdID uint64) error {
	if clOrdID == 0 {
		return exception.ErrOrderInvalidRequest
	}
	if _, ok := g.seen[clOrdID]; ok {
		return exception.ErrOrderDuplicateID
	}
	g.seen[clOrdID] = struct{}{}
	return nil
}

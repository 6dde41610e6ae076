package exec

import (
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/book"
	"main/internal/schema"
	"main/internal/signal"
	"main/pkg/exception"
)

// State is the lifecycle stage of a working order slot.
type State uint8

const (
	StateIdle State = iota
	StatePendingNew
	StateWorkingPassive
	StatePartiallyFilled
	StatePendingReplace
	StatePendingCancel
	StateFilled
	StateCanceled
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePendingNew:
		return "pending_new"
	case StateWorkingPassive:
		return "working_passive"
	case StatePartiallyFilled:
		return "partially_filled"
	case StatePendingReplace:
		return "pending_replace"
	case StatePendingCancel:
		return "pending_cancel"
	case StateFilled:
		return "filled"
	case StateCanceled:
		return "canceled"
	case StateRejected:
		return "rejected"
	default:
		return "idle"
	}
}

func (s State) terminal() bool {
	switch s {
	case StateFilled, StateCanceled, StateRejected:
		return true
	default:
		return false
	}
}

// WorkingOrder is the machine's view of the one live order per
// (symbol, side) slot. It is owned exclusively by the machine from
// creation to terminal state.
type WorkingOrder struct {
	ClOrdID            uint64
	SymbolID           schema.SymbolID
	Side               schema.Side
	RequestedQty       schema.Quantity
	LeavesQty          schema.Quantity
	CumQty             schema.Quantity
	LimitPrice         schema.Price
	AvgPx              schema.Price
	State              State
	ExchangeOrderID    string
	SubmittedAtNano    int64
	LastTransitionNano int64

	// set while a cancel/replace is in flight
	replaceClOrdID uint64
	// resting state to restore on cancel-reject
	restingState State
}

// TimerOp tells the owning event loop what to do with the slot's
// latency-budget timer. Timers live in the loop so expirations stay
// totally ordered with market data and acks.
type TimerOp uint8

const (
	TimerNone TimerOp = iota
	TimerArm
	TimerDisarm
)

// Result is the outcome of feeding one event into the machine.
type Result struct {
	Fill  *schema.Fill
	Timer TimerOp
	Side  schema.Side
}

// IDSource hands out client order ids: monotonic, never reused. The id is
// the idempotency key the transport dedups on.
type IDSource struct {
	n atomic.Uint64
}

// NewIDSource creates an id source starting after the given floor.
func NewIDSource(floor uint64) *IDSource {
	src := &IDSource{}
	src.n.Store(floor)
	return src
}

// Next returns a fresh client order id.
func (s *IDSource) Next() uint64 {
	return s.n.Add(1)
}

// Config holds the execution parameters.
type Config struct {
	LatencyBudget time.Duration   `json:"latencyBudget"`
	OrderQty      schema.Quantity `json:"orderQty"`
}

// DefaultConfig returns the stock execution parameters.
func DefaultConfig() Config {
	return Config{LatencyBudget: 200 * time.Millisecond, OrderQty: 1}
}

func (c Config) normalized() Config {
	if c.LatencyBudget <= 0 {
		c.LatencyBudget = 200 * time.Millisecond
	}
	if c.OrderQty <= 0 {
		c.OrderQty = 1
	}
	return c
}

// Machine owns the order lifecycle for one symbol: at most one working
// order per side, passive placement, timed escalation to aggressive,
// terminal reconciliation against venue acks. All methods must be called
// from the symbol's event loop.
type Machine struct {
	symbolID schema.SymbolID
	cfg      Config
	ids      *IDSource

	buy  *WorkingOrder
	sell *WorkingOrder
	byID map[uint64]*WorkingOrder
}

// NewMachine creates an execution machine for one symbol.
func NewMachine(symbolID schema.SymbolID, cfg Config, ids *IDSource) *Machine {
	return &Machine{
		symbolID: symbolID,
		cfg:      cfg.normalized(),
		ids:      ids,
		byID:     make(map[uint64]*WorkingOrder),
	}
}

// LatencyBudget returns the configured passive resting budget.
func (m *Machine) LatencyBudget() time.Duration {
	return m.cfg.LatencyBudget
}

func (m *Machine) slot(side schema.Side) **WorkingOrder {
	if side == schema.SideBuy {
		return &m.buy
	}
	return &m.sell
}

// Slot returns the working order on a side, if any.
func (m *Machine) Slot(side schema.Side) (*WorkingOrder, bool) {
	o := *m.slot(side)
	if o == nil {
		return nil, false
	}
	return o, true
}

// OnSignal converts a non-neutral signal into a passive limit order at the
// best price on the signal's side. A signal arriving while the slot is
// busy is dropped, not queued: at most one working order per side.
func (m *Machine) OnSignal(sig signal.Signal, b *book.Book, nowNano int64) (*schema.NewOrder, error) {
	var side schema.Side
	switch sig.Direction {
	case signal.Buy:
		side = schema.SideBuy
	case signal.Sell:
		side = schema.SideSell
	default:
		return nil, nil
	}

	slot := m.slot(side)
	if *slot != nil {
		return nil, exception.ErrOrderSlotBusy
	}

	best, ok := passivePrice(b, side)
	if !ok {
		return nil, exception.ErrOrderInvalidRequest
	}

	order := &WorkingOrder{
		ClOrdID:            m.ids.Next(),
		SymbolID:           m.symbolID,
		Side:               side,
		RequestedQty:       m.cfg.OrderQty,
		LeavesQty:          m.cfg.OrderQty,
		LimitPrice:         best,
		State:              StatePendingNew,
		SubmittedAtNano:    nowNano,
		LastTransitionNano: nowNano,
	}
	*slot = order
	m.byID[order.ClOrdID] = order

	return &schema.NewOrder{
		ClOrdID:     order.ClOrdID,
		SymbolID:    m.symbolID,
		Side:        side,
		Qty:         order.RequestedQty,
		Price:       order.LimitPrice,
		Type:        schema.OrderTypeLimit,
		TimeInForce: schema.TimeInForceGTC,
	}, nil
}

// OnFlatten opens an aggressive immediate-or-cancel order to unwind a held
// position. Unlike OnSignal it takes an explicit quantity and crosses the
// spread straight away: exits are about urgency, not queue position.
func (m *Machine) OnFlatten(side schema.Side, qty schema.Quantity, b *book.Book, nowNano int64) (*schema.NewOrder, error) {
	if qty <= 0 {
		return nil, exception.ErrOrderInvalidRequest
	}
	slot := m.slot(side)
	if *slot != nil {
		return nil, exception.ErrOrderSlotBusy
	}

	crossing, ok := passivePrice(b, side.Opposite())
	if !ok {
		return nil, exception.ErrOrderInvalidRequest
	}

	order := &WorkingOrder{
		ClOrdID:            m.ids.Next(),
		SymbolID:           m.symbolID,
		Side:               side,
		RequestedQty:       qty,
		LeavesQty:          qty,
		LimitPrice:         crossing,
		State:              StatePendingNew,
		SubmittedAtNano:    nowNano,
		LastTransitionNano: nowNano,
	}
	*slot = order
	m.byID[order.ClOrdID] = order

	return &schema.NewOrder{
		ClOrdID:     order.ClOrdID,
		SymbolID:    m.symbolID,
		Side:        side,
		Qty:         qty,
		Price:       crossing,
		Type:        schema.OrderTypeLimit,
		TimeInForce: schema.TimeInForceIOC,
	}, nil
}

// RejectLocal marks a just-created order as rejected without touching the
// wire, used when the pre-trade risk check denies the intent.
func (m *Machine) RejectLocal(clOrdID uint64, nowNano int64) {
	order, ok := m.byID[clOrdID]
	if !ok {
		return
	}
	m.transition(order, StateRejected, nowNano)
	m.release(order)
}

// OnExecReport reconciles the slot against a venue execution report.
func (m *Machine) OnExecReport(r schema.ExecReport, nowNano int64) (Result, error) {
	order, ok := m.byID[r.ClOrdID]
	if !ok {
		return Result{}, exception.ErrOrderUnknown
	}
	res := Result{Side: order.Side}
	if order.State.terminal() {
		return res, exception.ErrOrderInvalidTransition
	}

	if r.ExchangeOrderID != "" && order.ExchangeOrderID == "" {
		order.ExchangeOrderID = r.ExchangeOrderID
	}

	switch r.ExecType {
	case schema.ExecTypeNew:
		m.transition(order, StateWorkingPassive, nowNano)
		res.Timer = TimerArm

	case schema.ExecTypeReplaced:
		// The aggressive replacement is live under the new id.
		if order.replaceClOrdID != 0 {
			delete(m.byID, order.ClOrdID)
			order.ClOrdID = order.replaceClOrdID
			order.replaceClOrdID = 0
			m.byID[order.ClOrdID] = order
		}
		if r.LeavesQty > 0 {
			order.LeavesQty = r.LeavesQty
		}
		m.transition(order, StateWorkingPassive, nowNano)
		res.Timer = TimerArm

	case schema.ExecTypePartialFill:
		res.Fill = m.applyFill(order, r)
		m.transition(order, StatePartiallyFilled, nowNano)
		// The budget restarts against the remaining quantity only.
		res.Timer = TimerArm

	case schema.ExecTypeFill:
		res.Fill = m.applyFill(order, r)
		m.transition(order, StateFilled, nowNano)
		m.release(order)
		res.Timer = TimerDisarm

	case schema.ExecTypeCanceled:
		m.transition(order, StateCanceled, nowNano)
		m.release(order)
		res.Timer = TimerDisarm

	case schema.ExecTypeRejected:
		// Terminal; no automatic retry against a rejecting venue.
		m.transition(order, StateRejected, nowNano)
		m.release(order)
		res.Timer = TimerDisarm

	default:
		return res, exception.ErrOrderInvalidTransition
	}
	return res, nil
}

// OnTimer handles latency-budget expiry: the passive order is converted to
// an immediate-or-cancel aggressive order at a crossing price for the
// remaining quantity. Passive cost saving is abandoned once it risks
// missing the move.
func (m *Machine) OnTimer(side schema.Side, b *book.Book, nowNano int64) (*schema.CancelReplaceOrder, *schema.CancelOrder, error) {
	order := *m.slot(side)
	if order == nil {
		return nil, nil, nil
	}
	switch order.State {
	case StateWorkingPassive, StatePartiallyFilled:
	default:
		// Stale expiry after a fill or cancel; the loop already disarmed
		// the timer, this is belt and braces.
		return nil, nil, nil
	}

	crossing, ok := passivePrice(b, side.Opposite())
	if !ok {
		// Nothing to cross against; pull the order instead.
		cancel := &schema.CancelOrder{
			ClOrdID:     m.ids.Next(),
			OrigClOrdID: order.ClOrdID,
			SymbolID:    m.symbolID,
		}
		order.restingState = order.State
		m.transition(order, StatePendingCancel, nowNano)
		return nil, cancel, nil
	}

	replace := &schema.CancelReplaceOrder{
		ClOrdID:        m.ids.Next(),
		OrigClOrdID:    order.ClOrdID,
		SymbolID:       m.symbolID,
		Side:           side,
		NewQty:         order.LeavesQty,
		NewPrice:       crossing,
		NewTimeInForce: schema.TimeInForceIOC,
		Type:           schema.OrderTypeLimit,
	}
	order.restingState = order.State
	order.replaceClOrdID = replace.ClOrdID
	m.byID[replace.ClOrdID] = order
	m.transition(order, StatePendingReplace, nowNano)
	return replace, nil, nil
}

// OnCancelReject leaves the order as last known resting: surfaced for
// observability, never retried automatically. The next ack or timer event
// reconciles the slot.
func (m *Machine) OnCancelReject(r schema.CancelReject, nowNano int64) (Result, error) {
	order, ok := m.byID[r.OrigClOrdID]
	if !ok {
		order, ok = m.byID[r.ClOrdID]
	}
	if !ok {
		return Result{}, exception.ErrOrderUnknown
	}
	res := Result{Side: order.Side}

	logs.Warnf("cancel rejected, symbol %d clOrdID %d reason %q state %s",
		m.symbolID, order.ClOrdID, r.Reason, order.State)

	switch order.State {
	case StatePendingCancel, StatePendingReplace:
		if order.replaceClOrdID != 0 {
			delete(m.byID, order.replaceClOrdID)
			order.replaceClOrdID = 0
		}
		resting := order.restingState
		if resting == StateIdle {
			resting = StateWorkingPassive
		}
		m.transition(order, resting, nowNano)
		// Re-arm the budget so a later expiry reconciles the slot.
		res.Timer = TimerArm
	}
	return res, nil
}

// CancelAll issues best-effort cancels for every live order, used on
// shutdown. The caller does not wait for acknowledgements: a held position
// beats a last-command race.
func (m *Machine) CancelAll(nowNano int64) []schema.CancelOrder {
	var out []schema.CancelOrder
	for _, order := range []*WorkingOrder{m.buy, m.sell} {
		if order == nil {
			continue
		}
		switch order.State {
		case StateWorkingPassive, StatePartiallyFilled, StatePendingReplace:
			out = append(out, schema.CancelOrder{
				ClOrdID:     m.ids.Next(),
				OrigClOrdID: order.ClOrdID,
				SymbolID:    m.symbolID,
			})
			order.restingState = order.State
			m.transition(order, StatePendingCancel, nowNano)
		}
	}
	return out
}

func (m *Machine) applyFill(order *WorkingOrder, r schema.ExecReport) *schema.Fill {
	if r.CumQty > 0 {
		order.CumQty = r.CumQty
	}
	order.LeavesQty = r.LeavesQty
	if r.AvgPx > 0 {
		order.AvgPx = r.AvgPx
	}
	if r.LastQty <= 0 {
		return nil
	}
	price := r.LastPx
	if price == 0 {
		price = order.LimitPrice
	}
	return &schema.Fill{
		SymbolID: order.SymbolID,
		Side:     order.Side,
		Price:    price,
		Qty:      r.LastQty,
		TsNano:   r.TsNano,
	}
}

func (m *Machine) transition(order *WorkingOrder, next State, nowNano int64) {
	if order.State == next {
		return
	}
	logs.Debugf("order %d symbol %d %s: %s -> %s",
		order.ClOrdID, order.SymbolID, order.Side, order.State, next)
	order.State = next
	order.LastTransitionNano = nowNano
}

// release returns the slot to idle so a new signal may open a fresh order.
func (m *Machine) release(order *WorkingOrder) {
	delete(m.byID, order.ClOrdID)
	if order.replaceClOrdID != 0 {
		delete(m.byID, order.replaceClOrdID)
	}
	slot := m.slot(order.Side)
	if *slot == order {
		*slot = nil
	}
}

// passivePrice is the best resting price on a side: bids for buy, asks for
// sell.
func passivePrice(b *book.Book, side schema.Side) (schema.Price, bool) {
	var lvl book.Level
	var ok bool
	switch side {
	case schema.SideBuy:
		lvl, ok = b.BestBid()
	case schema.SideSell:
		lvl, ok = b.BestAsk()
	}
	if !ok {
		return 0, false
	}
	return lvl.Price, true
}

package core

import (
	"context"
	"errors"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/book"
	"main/internal/bus"
	"main/internal/exec"
	"main/internal/feature"
	"main/internal/obs"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/signal"
	"main/internal/state"
	"main/pkg/exception"
)

// OrderSender carries order requests to the venue. Implementations must
// dedup on ClOrdID: the runtime may resend after a reconnect.
type OrderSender interface {
	SendNew(schema.NewOrder) error
	SendCancel(schema.CancelOrder) error
	SendReplace(schema.CancelReplaceOrder) error
}

// Resyncer re-requests a book snapshot after the runtime detects a gap or
// a crossed book.
type Resyncer interface {
	RequestSnapshot(schema.SymbolID)
}

// FillRecorder persists confirmed fills. Implementations must not block;
// the runtime calls this from the hot loop.
type FillRecorder interface {
	Record(schema.Fill)
}

// Deps wires the collaborators shared across runtimes.
type Deps struct {
	Sender    OrderSender
	Resync    Resyncer
	Recorder  FillRecorder
	Positions *state.PositionReducer
	IDs       *exec.IDSource
	Metrics   *obs.Metrics

	Feature      feature.Config
	Signal       signal.Config
	OBIThreshold float64
	Exec         exec.Config
	Risk         risk.Config

	// LabelHorizon is how long after a signal the realized move is
	// sampled to train the classifier. Zero disables learning feedback.
	LabelHorizon time.Duration

	MarketDataCapacity int
	ExecReportCapacity int
}

// pendingLabel holds a signal-time snapshot awaiting its realized outcome.
type pendingLabel struct {
	snap feature.Snapshot
	mid  float64
}

// Runtime is the single-threaded strategy loop for one symbol. Market
// data, execution reports, and latency-timer expirations all funnel into
// one goroutine, so every state transition observes a consistent world.
type Runtime struct {
	symbol schema.Symbol
	deps   Deps

	book      *book.Book
	features  *feature.Engine
	signals   *signal.Engine
	machine   *exec.Machine
	riskGuard *risk.Engine

	marketData *bus.Queue[schema.Inbound]
	execRpts   *bus.Queue[schema.Inbound]

	buyTimer  *time.Timer
	sellTimer *time.Timer

	labels []pendingLabel
}

// NewRuntime creates the strategy loop for one symbol.
func NewRuntime(symbol schema.Symbol, deps Deps) *Runtime {
	if deps.MarketDataCapacity <= 0 {
		deps.MarketDataCapacity = 4096
	}
	if deps.ExecReportCapacity <= 0 {
		deps.ExecReportCapacity = 1024
	}
	clf := signal.NewThresholdClassifier(deps.OBIThreshold)
	return &Runtime{
		symbol:     symbol,
		deps:       deps,
		book:       book.New(symbol.ID),
		features:   feature.NewEngine(deps.Feature),
		signals:    signal.NewEngine(symbol.ID, deps.Signal, clf),
		machine:    exec.NewMachine(symbol.ID, deps.Exec, deps.IDs),
		riskGuard:  risk.NewEngine(deps.Risk),
		marketData: bus.NewQueue[schema.Inbound](deps.MarketDataCapacity),
		execRpts:   bus.NewQueue[schema.Inbound](deps.ExecReportCapacity),
	}
}

// SymbolID returns the symbol this runtime trades.
func (r *Runtime) SymbolID() schema.SymbolID {
	return r.symbol.ID
}

// PublishMarketData enqueues a tick without blocking. A full queue drops
// the tick; the book sequence check catches the hole and forces a resync.
func (r *Runtime) PublishMarketData(e schema.Inbound) {
	if err := r.marketData.TryPublish(e); err != nil {
		r.deps.Metrics.Inc(obs.CounterQueueDrops)
	}
}

// PublishExecReport enqueues an execution report, blocking if needed.
// Reports must not be dropped: a lost fill desyncs positions for good.
func (r *Runtime) PublishExecReport(ctx context.Context, e schema.Inbound) error {
	return r.execRpts.Publish(ctx, e)
}

// Run drives the loop until the context is done, then pulls live orders.
func (r *Runtime) Run(ctx context.Context) {
	r.buyTimer = newStoppedTimer()
	r.sellTimer = newStoppedTimer()
	defer r.buyTimer.Stop()
	defer r.sellTimer.Stop()

	logs.Infof("runtime started, symbol %s", r.symbol.Name)
	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return
		case e, ok := <-r.execRpts.Events():
			if !ok {
				r.shutdown()
				return
			}
			r.handle(e)
		case e, ok := <-r.marketData.Events():
			if !ok {
				r.shutdown()
				return
			}
			r.handle(e)
		case <-r.buyTimer.C:
			r.onTimer(schema.SideBuy)
		case <-r.sellTimer.C:
			r.onTimer(schema.SideSell)
		}
	}
}

// Close stops the inbound queues.
func (r *Runtime) Close() {
	r.marketData.Close()
	r.execRpts.Close()
}

func (r *Runtime) handle(e schema.Inbound) {
	now := time.Now().UTC().UnixNano()
	switch ev := e.(type) {
	case schema.BookSnapshot:
		r.deps.Metrics.Inc(obs.CounterSnapshots)
		r.deps.Metrics.ObserveTick(time.Duration(now - ev.TsNano))
		r.book.ApplySnapshot(ev)
		r.evaluate(ev.TsNano)

	case schema.BookIncremental:
		r.deps.Metrics.Inc(obs.CounterIncrements)
		r.deps.Metrics.ObserveTick(time.Duration(now - ev.TsNano))
		if err := r.book.ApplyIncremental(ev); err != nil {
			r.onBookFault(err, ev.Seq)
			return
		}
		r.evaluate(ev.TsNano)

	case schema.Trade:
		r.deps.Metrics.Inc(obs.CounterTrades)
		r.features.OnTrade(ev, r.symbol.Scale)

	case schema.ExecReport:
		r.deps.Metrics.Inc(obs.CounterExecReports)
		r.onExecReport(ev, now)

	case schema.CancelReject:
		r.deps.Metrics.Inc(obs.CounterCancelRejects)
		res, err := r.machine.OnCancelReject(ev, now)
		if err != nil {
			logs.Warnf("cancel reject for unknown order, symbol %s clOrdID %d",
				r.symbol.Name, ev.OrigClOrdID)
			return
		}
		r.applyTimer(res.Side, res.Timer)
	}
}

func (r *Runtime) onBookFault(err error, seq uint64) {
	switch {
	case errors.Is(err, exception.ErrBookSequenceGap):
		r.deps.Metrics.Inc(obs.CounterSequenceGaps)
		logs.Warnf("book gap, symbol %s seq %d: resyncing", r.symbol.Name, seq)
	case errors.Is(err, exception.ErrBookCrossed):
		r.deps.Metrics.Inc(obs.CounterCrossedBooks)
		r.features.Reset()
		logs.Errorf("crossed book, symbol %s seq %d: full reset", r.symbol.Name, seq)
	case errors.Is(err, exception.ErrBookUninitialized), errors.Is(err, exception.ErrBookStale):
		// Still waiting for a snapshot; drops are expected here.
		return
	default:
		logs.Errorf("book update failed, symbol %s: %v", r.symbol.Name, err)
		return
	}
	if r.deps.Resync != nil {
		r.deps.Resync.RequestSnapshot(r.symbol.ID)
	}
}

// evaluate runs the feature, signal, exit, and risk pipeline off a fresh
// book state. It only acts while the book is in sync; a stale or
// uninitialized book produces no features and therefore no orders.
func (r *Runtime) evaluate(tsNano int64) {
	if r.book.Status() != book.StatusSynced {
		return
	}
	start := time.Now()
	snap, ok := r.features.OnBookTick(r.book, tsNano)
	if !ok {
		return
	}
	defer r.deps.Metrics.ObserveDecision(time.Since(start))

	r.resolveLabels(snap)

	position := r.deps.Positions.Position(r.symbol.ID)
	if dir, due := r.signals.ExitCheck(position.Qty, snap); due {
		r.flatten(dir, position.Qty, tsNano)
		return
	}

	sig := r.signals.Evaluate(snap)
	if sig.Direction == signal.Neutral {
		return
	}
	r.deps.Metrics.Inc(obs.CounterSignals)
	logs.Infof("signal %s, symbol %s confidence %.3f mid %.4f",
		sig.Direction, r.symbol.Name, sig.Confidence, snap.Mid)

	order, err := r.machine.OnSignal(sig, r.book, tsNano)
	if err != nil {
		if errors.Is(err, exception.ErrOrderSlotBusy) {
			r.deps.Metrics.Inc(obs.CounterSignalsDropped)
		}
		return
	}
	if order == nil {
		return
	}
	r.enqueueLabel(snap)
	r.submit(*order, position, tsNano)
}

func (r *Runtime) flatten(dir signal.Direction, positionQty schema.Quantity, tsNano int64) {
	side := schema.SideSell
	if dir == signal.Buy {
		side = schema.SideBuy
	}
	qty := positionQty
	if qty < 0 {
		qty = -qty
	}
	order, err := r.machine.OnFlatten(side, qty, r.book, tsNano)
	if err != nil || order == nil {
		return
	}
	logs.Infof("flattening %s, symbol %s qty %d", side, r.symbol.Name, qty)
	r.submit(*order, r.deps.Positions.Position(r.symbol.ID), tsNano)
}

// submit runs the pre-trade risk check and hands the order to the wire.
// A denied intent is rejected locally so the slot frees immediately.
func (r *Runtime) submit(order schema.NewOrder, position state.Position, tsNano int64) {
	view := risk.StateView{
		Position:       position.Qty,
		ReferencePrice: r.referencePrice(),
		Now:            tsNano,
	}
	decision := r.riskGuard.Evaluate(order, view)
	if !decision.Allowed() {
		r.deps.Metrics.Inc(obs.CounterRiskDenies)
		logs.Warnf("risk denied %s, symbol %s clOrdID %d",
			decision.Reason, r.symbol.Name, order.ClOrdID)
		r.machine.RejectLocal(order.ClOrdID, tsNano)
		return
	}
	if err := r.deps.Sender.SendNew(order); err != nil {
		logs.Errorf("order send failed, symbol %s clOrdID %d: %v",
			r.symbol.Name, order.ClOrdID, err)
		r.machine.RejectLocal(order.ClOrdID, tsNano)
		return
	}
	r.deps.Metrics.Inc(obs.CounterOrdersSent)
}

func (r *Runtime) onExecReport(ev schema.ExecReport, nowNano int64) {
	res, err := r.machine.OnExecReport(ev, nowNano)
	if err != nil {
		if errors.Is(err, exception.ErrOrderUnknown) {
			logs.Warnf("exec report for unknown order, symbol %s clOrdID %d",
				r.symbol.Name, ev.ClOrdID)
		}
		return
	}
	r.applyTimer(res.Side, res.Timer)
	if res.Fill == nil {
		return
	}
	r.deps.Metrics.Inc(obs.CounterFills)
	pos := r.deps.Positions.ApplyFill(*res.Fill)
	logs.Infof("fill %s, symbol %s qty %d px %d position %d",
		res.Fill.Side, r.symbol.Name, res.Fill.Qty, res.Fill.Price, pos.Qty)
	if r.deps.Recorder != nil {
		r.deps.Recorder.Record(*res.Fill)
	}
}

func (r *Runtime) onTimer(side schema.Side) {
	now := time.Now().UTC().UnixNano()
	replace, cancel, err := r.machine.OnTimer(side, r.book, now)
	if err != nil {
		logs.Errorf("timer handling failed, symbol %s side %s: %v", r.symbol.Name, side, err)
		return
	}
	switch {
	case replace != nil:
		r.deps.Metrics.Inc(obs.CounterEscalations)
		logs.Infof("escalating %s to aggressive, symbol %s origClOrdID %d px %d",
			side, r.symbol.Name, replace.OrigClOrdID, replace.NewPrice)
		if err := r.deps.Sender.SendReplace(*replace); err != nil {
			logs.Errorf("replace send failed, symbol %s: %v", r.symbol.Name, err)
		}
	case cancel != nil:
		if err := r.deps.Sender.SendCancel(*cancel); err != nil {
			logs.Errorf("cancel send failed, symbol %s: %v", r.symbol.Name, err)
		}
	}
}

func (r *Runtime) applyTimer(side schema.Side, op exec.TimerOp) {
	timer := r.buyTimer
	if side == schema.SideSell {
		timer = r.sellTimer
	}
	switch op {
	case exec.TimerArm:
		resetTimer(timer, r.machine.LatencyBudget())
	case exec.TimerDisarm:
		stopTimer(timer)
	}
}

// shutdown pulls every live order best-effort. Acks are not awaited: a
// resting order left on the venue beats blocking the process exit.
func (r *Runtime) shutdown() {
	now := time.Now().UTC().UnixNano()
	for _, cancel := range r.machine.CancelAll(now) {
		if err := r.deps.Sender.SendCancel(cancel); err != nil {
			logs.Warnf("shutdown cancel failed, symbol %s origClOrdID %d: %v",
				r.symbol.Name, cancel.OrigClOrdID, err)
		}
	}
	logs.Infof("runtime stopped, symbol %s", r.symbol.Name)
}

// enqueueLabel records the snapshot behind an emitted signal so the
// realized move can train the classifier once the horizon passes.
func (r *Runtime) enqueueLabel(snap feature.Snapshot) {
	if r.deps.LabelHorizon <= 0 {
		return
	}
	r.labels = append(r.labels, pendingLabel{snap: snap, mid: snap.Mid})
}

// resolveLabels grades pending labels whose horizon has elapsed. The
// outcome is the sign of the mid move, with a one-basis-point dead band
// counting as flat.
func (r *Runtime) resolveLabels(snap feature.Snapshot) {
	if len(r.labels) == 0 {
		return
	}
	horizon := r.deps.LabelHorizon.Nanoseconds()
	kept := r.labels[:0]
	for _, l := range r.labels {
		if snap.TsNano-l.snap.TsNano < horizon {
			kept = append(kept, l)
			continue
		}
		r.signals.Learn(l.snap, gradeMove(l.mid, snap.Mid))
	}
	r.labels = kept
}

func gradeMove(entry, current float64) signal.Outcome {
	if entry <= 0 {
		return signal.OutcomeFlat
	}
	change := (current - entry) / entry
	const deadBand = 1e-4
	switch {
	case change > deadBand:
		return signal.OutcomeUp
	case change < -deadBand:
		return signal.OutcomeDown
	default:
		return signal.OutcomeFlat
	}
}

// referencePrice is the scaled mid used by the risk price band.
func (r *Runtime) referencePrice() schema.Price {
	bid, okBid := r.book.BestBid()
	ask, okAsk := r.book.BestAsk()
	switch {
	case okBid && okAsk:
		return (bid.Price + ask.Price) / 2
	case okBid:
		return bid.Price
	case okAsk:
		return ask.Price
	default:
		return 0
	}
}

// newStoppedTimer returns a timer that will not fire until reset.
func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	stopTimer(t)
	return t
}

func resetTimer(t *time.Timer, d time.Duration) {
	stopTimer(t)
	t.Reset(d)
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/exec"
	"main/internal/obs"
	"main/internal/schema"
	"main/internal/state"
)

type captureSender struct {
	news     []schema.NewOrder
	cancels  []schema.CancelOrder
	replaces []schema.CancelReplaceOrder
}

func (s *captureSender) SendNew(o schema.NewOrder) error              { s.news = append(s.news, o); return nil }
func (s *captureSender) SendCancel(o schema.CancelOrder) error        { s.cancels = append(s.cancels, o); return nil }
func (s *captureSender) SendReplace(o schema.CancelReplaceOrder) error {
	s.replaces = append(s.replaces, o)
	return nil
}

type captureResync struct {
	requests []schema.SymbolID
}

func (r *captureResync) RequestSnapshot(id schema.SymbolID) {
	r.requests = append(r.requests, id)
}

type captureRecorder struct {
	fills []schema.Fill
}

func (r *captureRecorder) Record(f schema.Fill) { r.fills = append(r.fills, f) }

func newTestRuntime(t *testing.T) (*Runtime, *captureSender, *captureResync, *captureRecorder) {
	t.Helper()
	sender := &captureSender{}
	resync := &captureResync{}
	recorder := &captureRecorder{}
	rt := NewRuntime(
		schema.Symbol{ID: 1, Name: "BTC-PERP"},
		Deps{
			Sender:    sender,
			Resync:    resync,
			Recorder:  recorder,
			Positions: state.NewPositionReducer(),
			IDs:       exec.NewIDSource(0),
			Metrics:   obs.NewMetrics(),
			Exec:      exec.DefaultConfig(),
		},
	)
	rt.buyTimer = newStoppedTimer()
	rt.sellTimer = newStoppedTimer()
	return rt, sender, resync, recorder
}

func snapshotAt(seq uint64, ts int64, bidPx, askPx schema.Price, bidSz, askSz schema.Quantity) schema.BookSnapshot {
	return schema.BookSnapshot{
		SymbolID: 1,
		Seq:      seq,
		TsNano:   ts,
		Levels: []schema.BookLevel{
			{Side: schema.SideBuy, Price: bidPx, Size: bidSz},
			{Side: schema.SideSell, Price: askPx, Size: askSz},
		},
	}
}

func TestBreakoutSignalReachesTheWire(t *testing.T) {
	rt, sender, _, _ := newTestRuntime(t)
	base := time.Now().UTC().UnixNano()

	// Establish the channel, then break above it with heavy bid pressure.
	rt.handle(snapshotAt(1, base, 100, 102, 10, 2))
	rt.handle(snapshotAt(2, base+int64(time.Second), 104, 106, 10, 2))

	require.Len(t, sender.news, 1)
	order := sender.news[0]
	assert.Equal(t, schema.SideBuy, order.Side)
	assert.Equal(t, schema.Price(104), order.Price) // passive at best bid
	assert.Equal(t, schema.TimeInForceGTC, order.TimeInForce)

	// The slot is busy now: another breakout tick must not stack orders.
	rt.handle(snapshotAt(3, base+int64(12*time.Second), 108, 110, 10, 2))
	assert.Len(t, sender.news, 1)
	assert.Equal(t, uint64(1), rt.deps.Metrics.Count(obs.CounterSignalsDropped))
}

func TestSequenceGapRequestsResync(t *testing.T) {
	rt, sender, resync, _ := newTestRuntime(t)
	base := time.Now().UTC().UnixNano()

	rt.handle(snapshotAt(10, base, 100, 102, 5, 5))
	rt.handle(schema.BookIncremental{
		SymbolID: 1, Seq: 12, TsNano: base + 1,
		Updates: []schema.BookUpdate{
			{Action: schema.BookActionChange, Side: schema.SideBuy, Price: 100, Size: 6},
		},
	})

	require.Len(t, resync.requests, 1)
	assert.Equal(t, schema.SymbolID(1), resync.requests[0])
	assert.Empty(t, sender.news)

	// Stale book: further increments are discarded without new requests.
	rt.handle(schema.BookIncremental{
		SymbolID: 1, Seq: 13, TsNano: base + 2,
		Updates: []schema.BookUpdate{
			{Action: schema.BookActionChange, Side: schema.SideBuy, Price: 100, Size: 7},
		},
	})
	assert.Len(t, resync.requests, 1)
}

func TestFillUpdatesPositionAndRecorder(t *testing.T) {
	rt, sender, _, recorder := newTestRuntime(t)
	base := time.Now().UTC().UnixNano()

	rt.handle(snapshotAt(1, base, 100, 102, 10, 2))
	rt.handle(snapshotAt(2, base+int64(time.Second), 104, 106, 10, 2))
	require.Len(t, sender.news, 1)
	clOrdID := sender.news[0].ClOrdID

	rt.handle(schema.ExecReport{
		SymbolID: 1, ClOrdID: clOrdID, ExecType: schema.ExecTypeNew,
		OrdStatus: schema.OrdStatusNew, LeavesQty: 1, TsNano: base + 2,
	})
	rt.handle(schema.ExecReport{
		SymbolID: 1, ClOrdID: clOrdID, ExecType: schema.ExecTypeFill,
		OrdStatus: schema.OrdStatusFilled, CumQty: 1, LastQty: 1, LastPx: 104,
		TsNano: base + 3,
	})

	assert.Equal(t, schema.Quantity(1), rt.deps.Positions.Qty(1))
	require.Len(t, recorder.fills, 1)
	assert.Equal(t, schema.Price(104), recorder.fills[0].Price)
	assert.Equal(t, uint64(1), rt.deps.Metrics.Count(obs.CounterFills))
}

func TestTimerEscalatesToAggressive(t *testing.T) {
	rt, sender, _, _ := newTestRuntime(t)
	base := time.Now().UTC().UnixNano()

	rt.handle(snapshotAt(1, base, 100, 102, 10, 2))
	rt.handle(snapshotAt(2, base+int64(time.Second), 104, 106, 10, 2))
	require.Len(t, sender.news, 1)
	clOrdID := sender.news[0].ClOrdID

	rt.handle(schema.ExecReport{
		SymbolID: 1, ClOrdID: clOrdID, ExecType: schema.ExecTypeNew,
		OrdStatus: schema.OrdStatusNew, LeavesQty: 1, TsNano: base + 2,
	})

	rt.onTimer(schema.SideBuy)
	require.Len(t, sender.replaces, 1)
	replace := sender.replaces[0]
	assert.Equal(t, clOrdID, replace.OrigClOrdID)
	assert.Equal(t, schema.Price(106), replace.NewPrice) // crosses to the ask
	assert.Equal(t, schema.TimeInForceIOC, replace.NewTimeInForce)
	assert.Equal(t, uint64(1), rt.deps.Metrics.Count(obs.CounterEscalations))
}

func TestSupervisorRoutesBySymbol(t *testing.T) {
	registry := schema.NewRegistry()
	_, err := registry.AddSymbol("BTC-PERP", schema.ScaleSpec{})
	require.NoError(t, err)

	sup := NewSupervisor(registry, Deps{
		Sender:    &captureSender{},
		Positions: state.NewPositionReducer(),
		IDs:       exec.NewIDSource(0),
		Metrics:   obs.NewMetrics(),
		Exec:      exec.DefaultConfig(),
	})

	_, ok := sup.Runtime(1)
	assert.True(t, ok)

	// Unknown symbols are logged and dropped, never a panic.
	sup.DispatchMarketData(schema.Trade{SymbolID: 99})
}

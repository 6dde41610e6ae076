package exec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/book"
	"main/internal/schema"
	"main/internal/signal"
	"main/pkg/exception"
)

func testBook(t *testing.T) *book.Book {
	t.Helper()
	b := book.New(1)
	b.ApplySnapshot(schema.BookSnapshot{SymbolID: 1, Seq: 1, Levels: []schema.BookLevel{
		{Side: schema.SideBuy, Price: 100, Size: 5},
		{Side: schema.SideSell, Price: 101, Size: 4},
	}})
	return b
}

func newTestMachine() *Machine {
	return NewMachine(1, Config{LatencyBudget: 200 * time.Millisecond, OrderQty: 10}, NewIDSource(0))
}

func buySignal(ts int64) signal.Signal {
	return signal.Signal{SymbolID: 1, Direction: signal.Buy, Confidence: 0.8, TsNano: ts}
}

func ackNew(clOrdID uint64) schema.ExecReport {
	return schema.ExecReport{
		SymbolID: 1, ClOrdID: clOrdID, ExchangeOrderID: "EX-1",
		ExecType: schema.ExecTypeNew, OrdStatus: schema.OrdStatusNew, LeavesQty: 10,
	}
}

func TestSignalOpensPassiveOrderAtBestPrice(t *testing.T) {
	m := newTestMachine()
	b := testBook(t)

	intent, err := m.OnSignal(buySignal(1), b, 1)
	require.NoError(t, err)
	require.NotNil(t, intent)
	assert.Equal(t, schema.Price(100), intent.Price)
	assert.Equal(t, schema.OrderTypeLimit, intent.Type)
	assert.Equal(t, schema.TimeInForceGTC, intent.TimeInForce)
	assert.Equal(t, schema.Quantity(10), intent.Qty)

	order, ok := m.Slot(schema.SideBuy)
	require.True(t, ok)
	assert.Equal(t, StatePendingNew, order.State)

	// Sell side prices at the best ask.
	sell, err := m.OnSignal(signal.Signal{Direction: signal.Sell, TsNano: 1}, b, 1)
	require.NoError(t, err)
	assert.Equal(t, schema.Price(101), sell.Price)
}

func TestSignalDroppedWhileSlotBusy(t *testing.T) {
	m := newTestMachine()
	b := testBook(t)

	first, err := m.OnSignal(buySignal(1), b, 1)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := m.OnSignal(buySignal(2), b, 2)
	assert.ErrorIs(t, err, exception.ErrOrderSlotBusy)
	assert.Nil(t, second)

	// The opposite side is an independent slot.
	sell, err := m.OnSignal(signal.Signal{Direction: signal.Sell, TsNano: 2}, b, 2)
	require.NoError(t, err)
	require.NotNil(t, sell)
}

func TestAckStartsBudgetAndTimerEscalates(t *testing.T) {
	m := newTestMachine()
	b := testBook(t)

	intent, err := m.OnSignal(buySignal(1), b, 1)
	require.NoError(t, err)

	res, err := m.OnExecReport(ackNew(intent.ClOrdID), 2)
	require.NoError(t, err)
	assert.Equal(t, TimerArm, res.Timer)
	order, _ := m.Slot(schema.SideBuy)
	assert.Equal(t, StateWorkingPassive, order.State)
	assert.Equal(t, "EX-1", order.ExchangeOrderID)

	// Budget expiry converts the remainder to IOC at the crossing price.
	replace, cancel, err := m.OnTimer(schema.SideBuy, b, 3)
	require.NoError(t, err)
	require.NotNil(t, replace)
	assert.Nil(t, cancel)
	assert.Equal(t, intent.ClOrdID, replace.OrigClOrdID)
	assert.Equal(t, schema.Price(101), replace.NewPrice)
	assert.Equal(t, schema.Quantity(10), replace.NewQty)
	assert.Equal(t, schema.TimeInForceIOC, replace.NewTimeInForce)
	assert.Greater(t, replace.ClOrdID, intent.ClOrdID)

	order, _ = m.Slot(schema.SideBuy)
	assert.Equal(t, StatePendingReplace, order.State)

	// No second order may be created for the side while non-terminal.
	_, err = m.OnSignal(buySignal(4), b, 4)
	assert.ErrorIs(t, err, exception.ErrOrderSlotBusy)
}

func TestPartialFillRestartsBudgetAgainstRemainder(t *testing.T) {
	m := newTestMachine()
	b := testBook(t)

	intent, _ := m.OnSignal(buySignal(1), b, 1)
	_, err := m.OnExecReport(ackNew(intent.ClOrdID), 2)
	require.NoError(t, err)

	res, err := m.OnExecReport(schema.ExecReport{
		SymbolID: 1, ClOrdID: intent.ClOrdID,
		ExecType: schema.ExecTypePartialFill, OrdStatus: schema.OrdStatusPartiallyFilled,
		LeavesQty: 6, CumQty: 4, LastQty: 4, LastPx: 100, TsNano: 3,
	}, 3)
	require.NoError(t, err)
	assert.Equal(t, TimerArm, res.Timer)
	require.NotNil(t, res.Fill)
	assert.Equal(t, schema.Quantity(4), res.Fill.Qty)

	order, _ := m.Slot(schema.SideBuy)
	assert.Equal(t, StatePartiallyFilled, order.State)
	assert.Equal(t, schema.Quantity(6), order.LeavesQty)

	// Escalation now replaces only the remaining quantity.
	replace, _, err := m.OnTimer(schema.SideBuy, b, 4)
	require.NoError(t, err)
	require.NotNil(t, replace)
	assert.Equal(t, schema.Quantity(6), replace.NewQty)
}

func TestFullFillReleasesSlot(t *testing.T) {
	m := newTestMachine()
	b := testBook(t)

	intent, _ := m.OnSignal(buySignal(1), b, 1)
	m.OnExecReport(ackNew(intent.ClOrdID), 2)

	res, err := m.OnExecReport(schema.ExecReport{
		SymbolID: 1, ClOrdID: intent.ClOrdID,
		ExecType: schema.ExecTypeFill, OrdStatus: schema.OrdStatusFilled,
		LeavesQty: 0, CumQty: 10, LastQty: 10, LastPx: 100, TsNano: 3,
	}, 3)
	require.NoError(t, err)
	assert.Equal(t, TimerDisarm, res.Timer)
	require.NotNil(t, res.Fill)
	assert.Equal(t, schema.Quantity(10), res.Fill.Qty)

	_, ok := m.Slot(schema.SideBuy)
	assert.False(t, ok)

	// The slot accepts a fresh order now.
	again, err := m.OnSignal(buySignal(4), b, 4)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Greater(t, again.ClOrdID, intent.ClOrdID)
}

func TestRejectIsTerminalWithoutRetry(t *testing.T) {
	m := newTestMachine()
	b := testBook(t)

	intent, _ := m.OnSignal(buySignal(1), b, 1)
	res, err := m.OnExecReport(schema.ExecReport{
		SymbolID: 1, ClOrdID: intent.ClOrdID,
		ExecType: schema.ExecTypeRejected, OrdStatus: schema.OrdStatusRejected,
	}, 2)
	require.NoError(t, err)
	assert.Equal(t, TimerDisarm, res.Timer)
	assert.Nil(t, res.Fill)

	_, ok := m.Slot(schema.SideBuy)
	assert.False(t, ok)
}

func TestReplaceAckAdoptsNewID(t *testing.T) {
	m := newTestMachine()
	b := testBook(t)

	intent, _ := m.OnSignal(buySignal(1), b, 1)
	m.OnExecReport(ackNew(intent.ClOrdID), 2)
	replace, _, err := m.OnTimer(schema.SideBuy, b, 3)
	require.NoError(t, err)

	res, err := m.OnExecReport(schema.ExecReport{
		SymbolID: 1, ClOrdID: replace.ClOrdID,
		ExecType: schema.ExecTypeReplaced, OrdStatus: schema.OrdStatusNew, LeavesQty: 10,
	}, 4)
	require.NoError(t, err)
	assert.Equal(t, TimerArm, res.Timer)

	order, ok := m.Slot(schema.SideBuy)
	require.True(t, ok)
	assert.Equal(t, replace.ClOrdID, order.ClOrdID)
	assert.Equal(t, StateWorkingPassive, order.State)

	// Fills against the new id resolve to the same slot.
	res, err = m.OnExecReport(schema.ExecReport{
		SymbolID: 1, ClOrdID: replace.ClOrdID,
		ExecType: schema.ExecTypeFill, OrdStatus: schema.OrdStatusFilled,
		CumQty: 10, LastQty: 10, LastPx: 101, TsNano: 5,
	}, 5)
	require.NoError(t, err)
	require.NotNil(t, res.Fill)
	assert.Equal(t, schema.Price(101), res.Fill.Price)
}

func TestCancelRejectKeepsLastKnownResting(t *testing.T) {
	m := newTestMachine()
	b := testBook(t)

	intent, _ := m.OnSignal(buySignal(1), b, 1)
	m.OnExecReport(ackNew(intent.ClOrdID), 2)
	replace, _, err := m.OnTimer(schema.SideBuy, b, 3)
	require.NoError(t, err)

	res, err := m.OnCancelReject(schema.CancelReject{
		SymbolID: 1, ClOrdID: replace.ClOrdID, OrigClOrdID: intent.ClOrdID, Reason: "too late to cancel",
	}, 4)
	require.NoError(t, err)
	assert.Equal(t, TimerArm, res.Timer)

	order, ok := m.Slot(schema.SideBuy)
	require.True(t, ok)
	assert.Equal(t, StateWorkingPassive, order.State)
	assert.Equal(t, intent.ClOrdID, order.ClOrdID)
}

func TestStaleTimerAfterTerminalIsNoop(t *testing.T) {
	m := newTestMachine()
	b := testBook(t)

	intent, _ := m.OnSignal(buySignal(1), b, 1)
	m.OnExecReport(ackNew(intent.ClOrdID), 2)
	m.OnExecReport(schema.ExecReport{
		SymbolID: 1, ClOrdID: intent.ClOrdID,
		ExecType: schema.ExecTypeFill, OrdStatus: schema.OrdStatusFilled,
		CumQty: 10, LastQty: 10, LastPx: 100, TsNano: 3,
	}, 3)

	replace, cancel, err := m.OnTimer(schema.SideBuy, b, 4)
	require.NoError(t, err)
	assert.Nil(t, replace)
	assert.Nil(t, cancel)
}

func TestTimerWithEmptyOppositeSideCancels(t *testing.T) {
	m := newTestMachine()
	b := testBook(t)
	intent, _ := m.OnSignal(buySignal(1), b, 1)
	m.OnExecReport(ackNew(intent.ClOrdID), 2)

	// Asks vanish; nothing to cross against.
	empty := book.New(1)
	empty.ApplySnapshot(schema.BookSnapshot{SymbolID: 1, Seq: 2, Levels: []schema.BookLevel{
		{Side: schema.SideBuy, Price: 100, Size: 5},
	}})

	replace, cancel, err := m.OnTimer(schema.SideBuy, empty, 3)
	require.NoError(t, err)
	assert.Nil(t, replace)
	require.NotNil(t, cancel)
	assert.Equal(t, intent.ClOrdID, cancel.OrigClOrdID)

	order, _ := m.Slot(schema.SideBuy)
	assert.Equal(t, StatePendingCancel, order.State)
}

func TestCancelAllBestEffort(t *testing.T) {
	m := newTestMachine()
	b := testBook(t)

	buyIntent, _ := m.OnSignal(buySignal(1), b, 1)
	m.OnExecReport(ackNew(buyIntent.ClOrdID), 2)

	// Pending-new orders have nothing acknowledged to cancel yet.
	_, err := m.OnSignal(signal.Signal{Direction: signal.Sell, TsNano: 2}, b, 2)
	require.NoError(t, err)

	cancels := m.CancelAll(3)
	require.Len(t, cancels, 1)
	assert.Equal(t, buyIntent.ClOrdID, cancels[0].OrigClOrdID)
}

func TestUnknownExecReport(t *testing.T) {
	m := newTestMachine()
	_, err := m.OnExecReport(schema.ExecReport{ClOrdID: 42, ExecType: schema.ExecTypeNew}, 1)
	assert.ErrorIs(t, err, exception.ErrOrderUnknown)
}

func TestIDSourceMonotonic(t *testing.T) {
	src := NewIDSource(100)
	a := src.Next()
	b := src.Next()
	assert.Equal(t, uint64(101), a)
	assert.Equal(t, uint64(102), b)
}

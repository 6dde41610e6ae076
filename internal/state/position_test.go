package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func fill(side schema.Side, price, qty int64) schema.Fill {
	return schema.Fill{SymbolID: 1, Side: side, Price: schema.Price(price), Qty: schema.Quantity(qty)}
}

func TestBuildLongAveragesEntry(t *testing.T) {
	r := NewPositionReducer()

	pos := r.ApplyFill(fill(schema.SideBuy, 100, 10))
	assert.Equal(t, schema.Quantity(10), pos.Qty)
	assert.Equal(t, schema.Price(100), pos.AvgPx)

	pos = r.ApplyFill(fill(schema.SideBuy, 110, 10))
	assert.Equal(t, schema.Quantity(20), pos.Qty)
	assert.Equal(t, schema.Price(105), pos.AvgPx)
	assert.Zero(t, pos.RealizedPnL)
}

func TestReducingLongRealizesPnL(t *testing.T) {
	r := NewPositionReducer()
	r.ApplyFill(fill(schema.SideBuy, 100, 10))

	pos := r.ApplyFill(fill(schema.SideSell, 110, 4))
	assert.Equal(t, schema.Quantity(6), pos.Qty)
	assert.Equal(t, schema.Price(100), pos.AvgPx)
	assert.Equal(t, schema.Notional(40), pos.RealizedPnL)

	pos = r.ApplyFill(fill(schema.SideSell, 90, 6))
	assert.Zero(t, pos.Qty)
	assert.Zero(t, pos.AvgPx)
	assert.Equal(t, schema.Notional(40-60), pos.RealizedPnL)
}

func TestShortSidePnL(t *testing.T) {
	r := NewPositionReducer()
	r.ApplyFill(fill(schema.SideSell, 100, 10))

	pos := r.Position(1)
	assert.Equal(t, schema.Quantity(-10), pos.Qty)
	assert.Equal(t, schema.Price(100), pos.AvgPx)

	// Covering below entry is a profit for a short.
	pos = r.ApplyFill(fill(schema.SideBuy, 95, 10))
	assert.Zero(t, pos.Qty)
	assert.Equal(t, schema.Notional(50), pos.RealizedPnL)
}

func TestCrossingThroughFlat(t *testing.T) {
	r := NewPositionReducer()
	r.ApplyFill(fill(schema.SideBuy, 100, 10))

	pos := r.ApplyFill(fill(schema.SideSell, 110, 15))
	assert.Equal(t, schema.Quantity(-5), pos.Qty)
	assert.Equal(t, schema.Price(110), pos.AvgPx)
	assert.Equal(t, schema.Notional(100), pos.RealizedPnL)
}

func TestSnapshotRoundTrip(t *testing.T) {
	r := NewPositionReducer()
	r.ApplyFill(fill(schema.SideBuy, 100, 10))
	r.ApplyFill(schema.Fill{SymbolID: 2, Side: schema.SideSell, Price: 50, Qty: 3})

	path := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, WriteSnapshot(path, r.Snapshot()))

	snap, err := ReadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, snap.Positions, 2)

	restored := NewPositionReducer()
	restored.ApplySnapshot(snap)
	assert.Equal(t, r.Position(1), restored.Position(1))
	assert.Equal(t, r.Position(2), restored.Position(2))
}

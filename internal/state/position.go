package state

import (
	"sync"

	"main/internal/schema"
)

// Position is one symbol's signed exposure. Mutated only by confirmed
// fills; read by risk checks.
type Position struct {
	SymbolID    schema.SymbolID
	Qty         schema.Quantity
	AvgPx       schema.Price
	RealizedPnL schema.Notional
}

// PositionReducer folds fills into per-symbol positions with average entry
// price and realized PnL. It is shared across symbol loops and safe for
// concurrent use.
type PositionReducer struct {
	mu        sync.RWMutex
	positions map[schema.SymbolID]*Position
}

// NewPositionReducer creates an empty reducer.
func NewPositionReducer() *PositionReducer {
	return &PositionReducer{positions: make(map[schema.SymbolID]*Position)}
}

// ApplyFill updates the position and returns the new view.
func (r *PositionReducer) ApplyFill(fill schema.Fill) Position {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.positions[fill.SymbolID]
	if !ok {
		pos = &Position{SymbolID: fill.SymbolID}
		r.positions[fill.SymbolID] = pos
	}

	qty := int64(fill.Qty)
	if fill.Side == schema.SideSell {
		qty = -qty
	}
	if qty == 0 {
		return *pos
	}

	cur := int64(pos.Qty)
	next := cur + qty

	switch {
	case cur == 0 || sameSign(cur, qty):
		// Adding exposure: volume-weighted average entry.
		total := abs(cur) + abs(qty)
		pos.AvgPx = schema.Price((abs(cur)*int64(pos.AvgPx) + abs(qty)*int64(fill.Price)) / total)
	case abs(qty) <= abs(cur):
		// Reducing exposure realizes PnL against the average entry.
		closeQty := abs(qty)
		pos.RealizedPnL += realized(cur, closeQty, pos.AvgPx, fill.Price)
		if next == 0 {
			pos.AvgPx = 0
		}
	default:
		// Crossing through flat: realize the old side fully, the remainder
		// opens a fresh position at the fill price.
		closeQty := abs(cur)
		pos.RealizedPnL += realized(cur, closeQty, pos.AvgPx, fill.Price)
		pos.AvgPx = fill.Price
	}

	pos.Qty = schema.Quantity(next)
	return *pos
}

// Position returns the current view for a symbol.
func (r *PositionReducer) Position(symbolID schema.SymbolID) Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if pos, ok := r.positions[symbolID]; ok {
		return *pos
	}
	return Position{SymbolID: symbolID}
}

// Qty returns the signed position quantity for a symbol.
func (r *PositionReducer) Qty(symbolID schema.SymbolID) schema.Quantity {
	return r.Position(symbolID).Qty
}

// Count returns the number of tracked symbols.
func (r *PositionReducer) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.positions)
}

// realized computes the PnL of closing closeQty units of a position held
// at avg when the fill prints at px. Long positions profit when px > avg,
// shorts when px < avg. The result carries price x quantity scaling.
func realized(held int64, closeQty int64, avg, px schema.Price) schema.Notional {
	diff := int64(px) - int64(avg)
	if held < 0 {
		diff = -diff
	}
	return schema.Notional(closeQty * diff)
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

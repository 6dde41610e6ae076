package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"main/internal/schema"
)

func limitIntent(side schema.Side, price, qty int64) schema.NewOrder {
	return schema.NewOrder{
		ClOrdID: 1, SymbolID: 1, Side: side,
		Price: schema.Price(price), Qty: schema.Quantity(qty),
		Type: schema.OrderTypeLimit, TimeInForce: schema.TimeInForceGTC,
	}
}

func TestKillSwitchDeniesEverything(t *testing.T) {
	e := NewEngine(Config{KillSwitch: true})
	d := e.Evaluate(limitIntent(schema.SideBuy, 100, 1), StateView{Now: 1})
	assert.False(t, d.Allowed())
	assert.Equal(t, ReasonKillSwitch, d.Reason)
}

func TestQtyNotionalAndPositionLimits(t *testing.T) {
	e := NewEngine(Config{
		MaxOrderQty:      10,
		MaxOrderNotional: 1000,
		MaxPosition:      15,
	})

	assert.True(t, e.Evaluate(limitIntent(schema.SideBuy, 100, 10), StateView{Now: 1}).Allowed())

	d := e.Evaluate(limitIntent(schema.SideBuy, 100, 11), StateView{Now: 1})
	assert.Equal(t, ReasonMaxQty, d.Reason)

	d = e.Evaluate(limitIntent(schema.SideBuy, 200, 6), StateView{Now: 1})
	assert.Equal(t, ReasonMaxNotional, d.Reason)

	d = e.Evaluate(limitIntent(schema.SideBuy, 100, 10), StateView{Position: 8, Now: 1})
	assert.Equal(t, ReasonPositionLimit, d.Reason)

	// Selling out of a long reduces exposure and passes.
	assert.True(t, e.Evaluate(limitIntent(schema.SideSell, 100, 10), StateView{Position: 8, Now: 1}).Allowed())
}

func TestPriceBand(t *testing.T) {
	e := NewEngine(Config{MaxPriceDeviationBps: 100}) // 1%

	view := StateView{ReferencePrice: 10000, Now: 1}
	assert.True(t, e.Evaluate(limitIntent(schema.SideBuy, 10050, 1), view).Allowed())

	d := e.Evaluate(limitIntent(schema.SideBuy, 10200, 1), view)
	assert.Equal(t, ReasonPriceBand, d.Reason)
}

func TestOrderRateLimit(t *testing.T) {
	e := NewEngine(Config{OrderRateLimit: 2, OrderRateWindow: time.Second})
	base := time.Now().UnixNano()

	assert.True(t, e.Evaluate(limitIntent(schema.SideBuy, 100, 1), StateView{Now: base}).Allowed())
	assert.True(t, e.Evaluate(limitIntent(schema.SideBuy, 100, 1), StateView{Now: base + 1}).Allowed())

	d := e.Evaluate(limitIntent(schema.SideBuy, 100, 1), StateView{Now: base + 2})
	assert.Equal(t, ReasonRateLimit, d.Reason)

	// A new window resets the counter.
	assert.True(t, e.Evaluate(limitIntent(schema.SideBuy, 100, 1), StateView{Now: base + int64(2*time.Second)}).Allowed())
}

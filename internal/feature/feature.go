package feature

import (
	"math"
	"time"

	"main/internal/book"
	"main/internal/schema"
)

// Config holds the product parameters of the feature pipeline. These are
// tunables, not invariants; see ops for file-driven overrides.
type Config struct {
	ChannelWindow time.Duration `json:"channelWindow"`
	OBILevels     int           `json:"obiLevels"`
	EWMAAlpha     float64       `json:"ewmaAlpha"`
	JumpThreshold float64       `json:"jumpThreshold"`
	TradeWindow   time.Duration `json:"tradeWindow"`
	HawkesDecay   float64       `json:"hawkesDecay"`
}

// DefaultConfig returns the stock parameter set.
func DefaultConfig() Config {
	return Config{
		ChannelWindow: 120 * time.Second,
		OBILevels:     5,
		EWMAAlpha:     0.94,
		JumpThreshold: 8,
		TradeWindow:   60 * time.Second,
		HawkesDecay:   0.1,
	}
}

func (c Config) normalized() Config {
	if c.ChannelWindow <= 0 {
		c.ChannelWindow = 120 * time.Second
	}
	if c.OBILevels <= 0 {
		c.OBILevels = 5
	}
	if c.EWMAAlpha <= 0 || c.EWMAAlpha >= 1 {
		c.EWMAAlpha = 0.94
	}
	if c.JumpThreshold <= 0 {
		c.JumpThreshold = 8
	}
	if c.TradeWindow <= 0 {
		c.TradeWindow = 60 * time.Second
	}
	if c.HawkesDecay <= 0 {
		c.HawkesDecay = 0.1
	}
	return c
}

// Snapshot is an immutable point-in-time feature vector. It is superseded
// by the next snapshot, never mutated.
type Snapshot struct {
	TsNano          int64
	Mid             float64
	Spread          float64
	ChannelHigh     float64
	ChannelLow      float64
	ChannelPosition float64
	OBI             float64
	Volatility      float64
	TradeImbalance  float64
	VWAPDistance    float64
	FlowIntensity   float64
}

// Vector lays the features out in the order the classifier was trained on.
func (s Snapshot) Vector() []float64 {
	return []float64{
		s.OBI,
		s.Volatility,
		s.TradeImbalance,
		s.VWAPDistance,
		s.FlowIntensity,
		s.ChannelPosition,
	}
}

type tapeEntry struct {
	tsNano int64
	price  float64
	size   float64
	side   schema.Side
}

// Engine derives rolling statistics from one symbol's book and trade tape.
// It is owned by that symbol's event loop and is not safe for concurrent
// use.
type Engine struct {
	cfg Config

	chanHigh *extremeWindow
	chanLow  *extremeWindow

	lastMid  float64
	variance float64

	tape []tapeEntry

	flow       float64
	lastFlowTs int64
}

// NewEngine creates a feature engine with the given parameters.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:      cfg.normalized(),
		chanHigh: newExtremeWindow(true),
		chanLow:  newExtremeWindow(false),
	}
}

// OnTrade appends a trade to the tape and bumps the self-exciting flow
// intensity: decay the previous value and add one per arrival, no rescans.
func (e *Engine) OnTrade(t schema.Trade, scale schema.ScaleSpec) {
	entry := tapeEntry{
		tsNano: t.TsNano,
		price:  t.Price.Float(scale.PriceScale),
		size:   t.Size.Float(scale.QuantityScale),
		side:   t.Side,
	}
	e.tape = append(e.tape, entry)
	e.evictTape(t.TsNano)

	if e.lastFlowTs > 0 {
		dt := float64(t.TsNano-e.lastFlowTs) / float64(time.Second)
		if dt < 0 {
			dt = 0
		}
		e.flow = e.flow*math.Exp(-e.cfg.HawkesDecay*dt) + 1
	} else {
		e.flow = 1
	}
	e.lastFlowTs = t.TsNano
}

// OnBookTick recomputes the snapshot from the current book state. The
// channel bounds are taken over the mids seen before this tick, so a fresh
// extreme registers as a breakout rather than widening its own channel.
func (e *Engine) OnBookTick(b *book.Book, tsNano int64) (Snapshot, bool) {
	mid, ok := b.Mid()
	if !ok {
		return Snapshot{}, false
	}

	cutoff := tsNano - e.cfg.ChannelWindow.Nanoseconds()
	e.chanHigh.Evict(cutoff)
	e.chanLow.Evict(cutoff)

	high, okHigh := e.chanHigh.Value()
	low, okLow := e.chanLow.Value()
	if !okHigh || !okLow {
		high, low = mid, mid
	}

	pos := 0.5
	if high > low {
		pos = (mid - low) / (high - low)
	}

	e.updateVolatility(mid)
	e.chanHigh.Push(tsNano, mid)
	e.chanLow.Push(tsNano, mid)
	e.evictTape(tsNano)

	snap := Snapshot{
		TsNano:          tsNano,
		Mid:             mid,
		ChannelHigh:     high,
		ChannelLow:      low,
		ChannelPosition: pos,
		OBI:             b.OBI(e.cfg.OBILevels),
		Volatility:      math.Sqrt(e.variance),
		TradeImbalance:  e.tradeImbalance(),
		VWAPDistance:    e.vwapDistance(mid),
		FlowIntensity:   e.flowIntensity(tsNano),
	}
	if spread, ok := b.Spread(); ok {
		snap.Spread = float64(spread)
	}
	return snap, true
}

// Reset drops all rolling state, used when the book loses sync.
func (e *Engine) Reset() {
	e.chanHigh.Reset()
	e.chanLow.Reset()
	e.lastMid = 0
	e.variance = 0
	e.tape = e.tape[:0]
	e.flow = 0
	e.lastFlowTs = 0
}

// updateVolatility feeds one return into the EWMA of squared returns. A
// return beyond jumpThreshold sigmas is clipped to that bound before it
// enters the recursion, so a single outlier cannot blow up the estimate.
func (e *Engine) updateVolatility(mid float64) {
	if e.lastMid <= 0 {
		e.lastMid = mid
		return
	}
	r := (mid - e.lastMid) / e.lastMid
	e.lastMid = mid

	sigma := math.Sqrt(e.variance)
	if sigma > 0 {
		bound := e.cfg.JumpThreshold * sigma
		if r > bound {
			r = bound
		} else if r < -bound {
			r = -bound
		}
	}
	e.variance = e.cfg.EWMAAlpha*e.variance + (1-e.cfg.EWMAAlpha)*r*r
}

func (e *Engine) evictTape(tsNano int64) {
	cutoff := tsNano - e.cfg.TradeWindow.Nanoseconds()
	idx := 0
	for idx < len(e.tape) && e.tape[idx].tsNano < cutoff {
		idx++
	}
	if idx > 0 {
		e.tape = append(e.tape[:0], e.tape[idx:]...)
	}
}

func (e *Engine) tradeImbalance() float64 {
	var buyVol, sellVol float64
	for _, t := range e.tape {
		switch t.side {
		case schema.SideBuy:
			buyVol += t.size
		case schema.SideSell:
			sellVol += t.size
		}
	}
	total := buyVol + sellVol
	if total == 0 {
		return 0
	}
	return (buyVol - sellVol) / total
}

func (e *Engine) vwapDistance(mid float64) float64 {
	var notional, volume float64
	for _, t := range e.tape {
		notional += t.price * t.size
		volume += t.size
	}
	if volume == 0 {
		return 0
	}
	vwap := notional / volume
	if vwap == 0 {
		return 0
	}
	return (mid - vwap) / vwap
}

func (e *Engine) flowIntensity(tsNano int64) float64 {
	if e.lastFlowTs == 0 {
		return 0
	}
	dt := float64(tsNano-e.lastFlowTs) / float64(time.Second)
	if dt < 0 {
		dt = 0
	}
	return e.flow * math.Exp(-e.cfg.HawkesDecay*dt)
}

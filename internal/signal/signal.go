package signal

import (
	"math"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/feature"
	"main/internal/schema"
)

// Direction is the trading decision.
type Direction uint8

const (
	Neutral Direction = iota
	Buy
	Sell
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "neutral"
	}
}

// Signal is a directional decision with confidence, consumed exactly once
// by the execution layer.
type Signal struct {
	SymbolID   schema.SymbolID
	Direction  Direction
	Confidence float64
	TsNano     int64
}

// Outcome is the realized short-horizon move fed back for incremental
// learning.
type Outcome int8

const (
	OutcomeDown Outcome = -1
	OutcomeFlat Outcome = 0
	OutcomeUp   Outcome = 1
)

// Classifier produces the probability of an upward move from a feature
// snapshot. The learning algorithm behind it is swappable; the engine only
// relies on this contract.
type Classifier interface {
	Predict(feature.Snapshot) (float64, error)
	Update(feature.Snapshot, Outcome)
}

// Config holds the decision-policy parameters.
type Config struct {
	Threshold float64       `json:"threshold"`
	Cooldown  time.Duration `json:"cooldown"`
}

// DefaultConfig returns the stock decision parameters.
func DefaultConfig() Config {
	return Config{Threshold: 0.65, Cooldown: 10 * time.Second}
}

func (c Config) normalized() Config {
	if c.Threshold <= 0.5 || c.Threshold >= 1 {
		c.Threshold = 0.65
	}
	if c.Cooldown < 0 {
		c.Cooldown = 0
	}
	return c
}

// Engine combines the channel-breakout gate with the classifier gate. Both
// must agree before a non-neutral signal is produced; the conjunction cuts
// false positives compared to either gate alone.
type Engine struct {
	cfg      Config
	symbolID schema.SymbolID
	clf      Classifier

	lastSignalTs int64
}

// NewEngine creates a signal engine for one symbol.
func NewEngine(symbolID schema.SymbolID, cfg Config, clf Classifier) *Engine {
	return &Engine{cfg: cfg.normalized(), symbolID: symbolID, clf: clf}
}

// Evaluate turns a feature snapshot into a signal. Classifier failure or an
// out-of-range probability falls back to neutral; it never propagates into
// execution.
func (e *Engine) Evaluate(snap feature.Snapshot) Signal {
	out := Signal{SymbolID: e.symbolID, Direction: Neutral, TsNano: snap.TsNano}

	if e.cfg.Cooldown > 0 && e.lastSignalTs > 0 &&
		snap.TsNano-e.lastSignalTs < e.cfg.Cooldown.Nanoseconds() {
		return out
	}

	breakout := Neutral
	switch {
	case snap.Mid > snap.ChannelHigh:
		breakout = Buy
	case snap.Mid < snap.ChannelLow:
		breakout = Sell
	}
	if breakout == Neutral {
		return out
	}

	p, err := e.clf.Predict(snap)
	if err != nil {
		logs.Errorf("classifier predict failed, symbol %d: %v", e.symbolID, err)
		return out
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		logs.Errorf("classifier probability out of range, symbol %d: %f", e.symbolID, p)
		return out
	}

	switch {
	case breakout == Buy && p > e.cfg.Threshold:
		out.Direction = Buy
		out.Confidence = p
	case breakout == Sell && p < 1-e.cfg.Threshold:
		out.Direction = Sell
		out.Confidence = 1 - p
	}
	if out.Direction != Neutral {
		e.lastSignalTs = snap.TsNano
	}
	return out
}

// ExitCheck decides whether a held position should be flattened: a strong
// classifier reversal, or the mid sliding back into the channel past the
// exit bands. Returns the flattening direction when an exit is due.
func (e *Engine) ExitCheck(position schema.Quantity, snap feature.Snapshot) (Direction, bool) {
	if position == 0 {
		return Neutral, false
	}

	p, err := e.clf.Predict(snap)
	if err != nil || math.IsNaN(p) || p < 0 || p > 1 {
		p = 0.5
	}

	if position > 0 {
		if p < 0.3 || snap.ChannelPosition < 0.4 {
			return Sell, true
		}
		return Neutral, false
	}
	if p > 0.7 || snap.ChannelPosition > 0.6 {
		return Buy, true
	}
	return Neutral, false
}

// Learn forwards an observed outcome to the classifier.
func (e *Engine) Learn(snap feature.Snapshot, outcome Outcome) {
	e.clf.Update(snap, outcome)
}

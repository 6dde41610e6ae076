package risk

import (
	"time"

	"main/internal/schema"
)

const maxInt64 = int64(^uint64(0) >> 1)

// Action is the outcome of a risk decision.
type Action uint8

const (
	ActionAllow Action = iota
	ActionDeny
)

// Reason is a coarse reason code for denied intents.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonKillSwitch
	ReasonMaxQty
	ReasonMaxNotional
	ReasonRateLimit
	ReasonPriceBand
	ReasonPositionLimit
)

func (r Reason) String() string {
	switch r {
	case ReasonKillSwitch:
		return "kill_switch"
	case ReasonMaxQty:
		return "max_qty"
	case ReasonMaxNotional:
		return "max_notional"
	case ReasonRateLimit:
		return "rate_limit"
	case ReasonPriceBand:
		return "price_band"
	case ReasonPositionLimit:
		return "position_limit"
	default:
		return "none"
	}
}

// Config defines static pre-trade limits.
type Config struct {
	KillSwitch           bool            `json:"killSwitch"`
	MaxOrderQty          schema.Quantity `json:"maxOrderQty"`
	MaxOrderNotional     schema.Notional `json:"maxOrderNotional"`
	MaxPosition          schema.Quantity `json:"maxPosition"`
	OrderRateLimit       int             `json:"orderRateLimit"`
	OrderRateWindow      time.Duration   `json:"orderRateWindow"`
	MaxPriceDeviationBps int64           `json:"maxPriceDeviationBps"`
}

// StateView is the position context an intent is evaluated against.
type StateView struct {
	Position       schema.Quantity
	ReferencePrice schema.Price
	Now            int64
}

// Decision is the result of evaluating one intent.
type Decision struct {
	Action Action
	Reason Reason
}

// Allowed reports whether the intent may go to the wire.
func (d Decision) Allowed() bool {
	return d.Action == ActionAllow
}

// Engine evaluates order intents against static limits before they reach
// the gateway. It runs inside the event loop; no locking.
type Engine struct {
	cfg             Config
	rateWindowStart int64
	rateCount       int
}

// NewEngine creates a risk engine with static limits.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate applies the configured checks to a new-order intent.
func (e *Engine) Evaluate(intent schema.NewOrder, view StateView) Decision {
	now := view.Now
	if now == 0 {
		now = time.Now().UTC().UnixNano()
	}

	if e.cfg.KillSwitch {
		return Decision{Action: ActionDeny, Reason: ReasonKillSwitch}
	}

	if e.cfg.OrderRateLimit > 0 && e.cfg.OrderRateWindow > 0 {
		window := int64(e.cfg.OrderRateWindow)
		if e.rateWindowStart == 0 || now-e.rateWindowStart >= window {
			e.rateWindowStart = now
			e.rateCount = 0
		}
		e.rateCount++
		if e.rateCount > e.cfg.OrderRateLimit {
			return Decision{Action: ActionDeny, Reason: ReasonRateLimit}
		}
	}

	if e.cfg.MaxOrderQty > 0 && intent.Qty > e.cfg.MaxOrderQty {
		return Decision{Action: ActionDeny, Reason: ReasonMaxQty}
	}

	if e.cfg.MaxPriceDeviationBps > 0 && intent.Type == schema.OrderTypeLimit && intent.Price > 0 {
		ref := int64(view.ReferencePrice)
		if ref > 0 {
			diff := absInt64(int64(intent.Price) - ref)
			if exceedsDeviation(diff, ref, e.cfg.MaxPriceDeviationBps) {
				return Decision{Action: ActionDeny, Reason: ReasonPriceBand}
			}
		}
	}

	notional, overflow := mulNotional(intent.Price, intent.Qty)
	if overflow {
		return Decision{Action: ActionDeny, Reason: ReasonMaxNotional}
	}
	if e.cfg.MaxOrderNotional > 0 && notional > e.cfg.MaxOrderNotional {
		return Decision{Action: ActionDeny, Reason: ReasonMaxNotional}
	}

	next := applySide(view.Position, intent.Side, intent.Qty)
	if e.cfg.MaxPosition > 0 && absQuantity(next) > e.cfg.MaxPosition {
		return Decision{Action: ActionDeny, Reason: ReasonPositionLimit}
	}

	return Decision{Action: ActionAllow, Reason: ReasonNone}
}

func mulNotional(price schema.Price, qty schema.Quantity) (schema.Notional, bool) {
	p := int64(price)
	q := int64(qty)
	if p == 0 || q == 0 {
		return 0, false
	}
	if p < 0 {
		p = -p
	}
	if q < 0 {
		q = -q
	}
	if p > maxInt64/q {
		return 0, true
	}
	return schema.Notional(p * q), false
}

func applySide(pos schema.Quantity, side schema.Side, qty schema.Quantity) schema.Quantity {
	switch side {
	case schema.SideBuy:
		return schema.Quantity(int64(pos) + int64(qty))
	case schema.SideSell:
		return schema.Quantity(int64(pos) - int64(qty))
	default:
		return pos
	}
}

func absQuantity(q schema.Quantity) schema.Quantity {
	if q < 0 {
		return -q
	}
	return q
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func exceedsDeviation(diff int64, ref int64, bps int64) bool {
	if diff <= 0 || ref <= 0 || bps <= 0 {
		return false
	}
	if diff > maxInt64/10000 {
		return true
	}
	lhs := diff * 10000
	if ref > maxInt64/bps {
		return true
	}
	rhs := ref * bps
	return lhs > rhs
}

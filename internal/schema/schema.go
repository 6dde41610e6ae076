package schema

// Price is a scaled integer. The scale is defined per symbol in the registry.
type Price int64

// Quantity is a scaled integer. The scale is defined per symbol in the registry.
type Quantity int64

// Notional is a scaled integer. The scale is defined per symbol in the registry.
type Notional int64

// Side describes order or trade direction.
type Side uint8

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the other side of the market.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideUnknown
	}
}

// OrderType describes order type.
type OrderType uint8

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
)

// TimeInForce describes order time-in-force.
type TimeInForce uint8

const (
	TimeInForceUnknown TimeInForce = iota
	TimeInForceGTC
	TimeInForceIOC
	TimeInForceFOK
)

// BookAction describes a single incremental book mutation.
type BookAction uint8

const (
	BookActionUnknown BookAction = iota
	BookActionNew
	BookActionChange
	BookActionDelete
)

// ExecType describes the event carried by an execution report.
type ExecType uint8

const (
	ExecTypeUnknown ExecType = iota
	ExecTypeNew
	ExecTypePartialFill
	ExecTypeFill
	ExecTypeCanceled
	ExecTypeReplaced
	ExecTypeRejected
)

// OrdStatus describes the venue's current view of an order.
type OrdStatus uint8

const (
	OrdStatusUnknown OrdStatus = iota
	OrdStatusNew
	OrdStatusPartiallyFilled
	OrdStatusFilled
	OrdStatusCanceled
	OrdStatusRejected
)

package schema

// Inbound is the closed set of decoded events the core consumes. The
// transport collaborator delivers them already sequenced per symbol.
// Dispatch is an exhaustive type switch; adding a variant is a
// compile-time-visible change.
type Inbound interface {
	inbound()
	Symbol() SymbolID
}

// BookLevel is one price level carried by a snapshot.
type BookLevel struct {
	Side  Side
	Price Price
	Size  Quantity
}

// BookSnapshot replaces both sides of a book wholesale.
type BookSnapshot struct {
	SymbolID SymbolID
	Seq      uint64
	TsNano   int64
	Levels   []BookLevel
}

// BookUpdate is a single mutation inside an incremental batch.
type BookUpdate struct {
	Action BookAction
	Side   Side
	Price  Price
	Size   Quantity
}

// BookIncremental applies an ordered batch of mutations at one sequence id.
type BookIncremental struct {
	SymbolID SymbolID
	Seq      uint64
	TsNano   int64
	Updates  []BookUpdate
}

// Trade is one entry of the trade tape.
type Trade struct {
	SymbolID SymbolID
	Side     Side
	Price    Price
	Size     Quantity
	TsNano   int64
}

// ExecReport is a decoded execution report from the venue.
type ExecReport struct {
	SymbolID        SymbolID
	ClOrdID         uint64
	ExchangeOrderID string
	ExecType        ExecType
	OrdStatus       OrdStatus
	LeavesQty       Quantity
	CumQty          Quantity
	AvgPx           Price
	LastQty         Quantity
	LastPx          Price
	TsNano          int64
}

// CancelReject is a decoded order-cancel-reject from the venue.
type CancelReject struct {
	SymbolID    SymbolID
	ClOrdID     uint64
	OrigClOrdID uint64
	Reason      string
	TsNano      int64
}

func (e BookSnapshot) inbound()    {}
func (e BookIncremental) inbound() {}
func (e Trade) inbound()           {}
func (e ExecReport) inbound()      {}
func (e CancelReject) inbound()    {}

func (e BookSnapshot) Symbol() SymbolID    { return e.SymbolID }
func (e BookIncremental) Symbol() SymbolID { return e.SymbolID }
func (e Trade) Symbol() SymbolID           { return e.SymbolID }
func (e ExecReport) Symbol() SymbolID      { return e.SymbolID }
func (e CancelReject) Symbol() SymbolID    { return e.SymbolID }

// Fill is a confirmed execution derived from execution reports, the only
// thing allowed to mutate positions.
type Fill struct {
	SymbolID SymbolID
	Side     Side
	Price    Price
	Qty      Quantity
	TsNano   int64
}

// NewOrder asks the transport collaborator to submit an order. ClOrdID is
// the idempotency key; the collaborator accepts each id exactly once.
type NewOrder struct {
	ClOrdID     uint64
	SymbolID    SymbolID
	Side        Side
	Qty         Quantity
	Price       Price
	Type        OrderType
	TimeInForce TimeInForce
}

// CancelOrder asks the collaborator to cancel a resting order.
type CancelOrder struct {
	ClOrdID     uint64
	OrigClOrdID uint64
	SymbolID    SymbolID
}

// CancelReplaceOrder atomically replaces a resting order's quantity, price
// and time-in-force.
type CancelReplaceOrder struct {
	ClOrdID        uint64
	OrigClOrdID    uint64
	SymbolID       SymbolID
	Side           Side
	NewQty         Quantity
	NewPrice       Price
	NewTimeInForce TimeInForce
	Type           OrderType
}

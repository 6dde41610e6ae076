package mdg

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// ReportSink receives the simulator's execution reports.
type ReportSink interface {
	DispatchExecReport(context.Context, schema.Inbound) error
}

// Simulator is the paper-trading venue: it acknowledges order requests
// and fills aggressive ones at their limit price. Passive orders rest
// until canceled or replaced, which exercises the latency-escalation
// path the same way a quiet live market would.
type Simulator struct {
	mu   sync.Mutex
	sink ReportSink

	resting map[uint64]restingOrder
}

type restingOrder struct {
	symbolID schema.SymbolID
	side     schema.Side
	price    schema.Price
	qty      schema.Quantity
}

// NewSimulator creates a paper venue delivering reports to the sink.
func NewSimulator(sink ReportSink) *Simulator {
	return &Simulator{sink: sink, resting: make(map[uint64]restingOrder)}
}

// WriteNew acknowledges the order; immediate-or-cancel orders fill in
// full at their limit price straight after the ack.
func (s *Simulator) WriteNew(o schema.NewOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.emit(schema.ExecReport{
		SymbolID:  o.SymbolID,
		ClOrdID:   o.ClOrdID,
		ExecType:  schema.ExecTypeNew,
		OrdStatus: schema.OrdStatusNew,
		LeavesQty: o.Qty,
		TsNano:    now(),
	})

	if o.TimeInForce == schema.TimeInForceIOC {
		s.emit(schema.ExecReport{
			SymbolID:  o.SymbolID,
			ClOrdID:   o.ClOrdID,
			ExecType:  schema.ExecTypeFill,
			OrdStatus: schema.OrdStatusFilled,
			CumQty:    o.Qty,
			AvgPx:     o.Price,
			LastQty:   o.Qty,
			LastPx:    o.Price,
			TsNano:    now(),
		})
		return nil
	}

	s.resting[o.ClOrdID] = restingOrder{
		symbolID: o.SymbolID,
		side:     o.Side,
		price:    o.Price,
		qty:      o.Qty,
	}
	return nil
}

// WriteCancel cancels a resting order, or reports a cancel-reject when
// nothing is resting under the original id.
func (s *Simulator) WriteCancel(o schema.CancelOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resting[o.OrigClOrdID]; !ok {
		s.emit(schema.CancelReject{
			SymbolID:    o.SymbolID,
			ClOrdID:     o.ClOrdID,
			OrigClOrdID: o.OrigClOrdID,
			Reason:      "order not found",
			TsNano:      now(),
		})
		return nil
	}
	delete(s.resting, o.OrigClOrdID)
	s.emit(schema.ExecReport{
		SymbolID:  o.SymbolID,
		ClOrdID:   o.OrigClOrdID,
		ExecType:  schema.ExecTypeCanceled,
		OrdStatus: schema.OrdStatusCanceled,
		TsNano:    now(),
	})
	return nil
}

// WriteReplace replaces a resting order and, matching the aggressive
// intent of a replace, fills the remainder at the new price.
func (s *Simulator) WriteReplace(o schema.CancelReplaceOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resting[o.OrigClOrdID]; !ok {
		s.emit(schema.CancelReject{
			SymbolID:    o.SymbolID,
			ClOrdID:     o.ClOrdID,
			OrigClOrdID: o.OrigClOrdID,
			Reason:      "order not found",
			TsNano:      now(),
		})
		return nil
	}
	delete(s.resting, o.OrigClOrdID)

	s.emit(schema.ExecReport{
		SymbolID:  o.SymbolID,
		ClOrdID:   o.OrigClOrdID,
		ExecType:  schema.ExecTypeReplaced,
		OrdStatus: schema.OrdStatusNew,
		LeavesQty: o.NewQty,
		TsNano:    now(),
	})
	s.emit(schema.ExecReport{
		SymbolID:  o.SymbolID,
		ClOrdID:   o.ClOrdID,
		ExecType:  schema.ExecTypeFill,
		OrdStatus: schema.OrdStatusFilled,
		CumQty:    o.NewQty,
		AvgPx:     o.NewPrice,
		LastQty:   o.NewQty,
		LastPx:    o.NewPrice,
		TsNano:    now(),
	})
	return nil
}

// RestingCount reports orders currently resting on the paper venue.
func (s *Simulator) RestingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resting)
}

func (s *Simulator) emit(e schema.Inbound) {
	if err := s.sink.DispatchExecReport(context.Background(), e); err != nil {
		logs.Errorf("simulator report dispatch: %+v", err)
	}
}

func now() int64 {
	return time.Now().UTC().UnixNano()
}

package obs

import (
	"sync/atomic"
	"time"
)

// Counter identifies one monotone counter tracked by Metrics.
type Counter uint8

const (
	CounterSnapshots Counter = iota
	CounterIncrements
	CounterTrades
	CounterExecReports
	CounterCancelRejects
	CounterSequenceGaps
	CounterCrossedBooks
	CounterSignals
	CounterSignalsDropped
	CounterOrdersSent
	CounterEscalations
	CounterRiskDenies
	CounterFills
	CounterQueueDrops
	counterEnd
)

func (c Counter) String() string {
	switch c {
	case CounterSnapshots:
		return "snapshots"
	case CounterIncrements:
		return "increments"
	case CounterTrades:
		return "trades"
	case CounterExecReports:
		return "exec_reports"
	case CounterCancelRejects:
		return "cancel_rejects"
	case CounterSequenceGaps:
		return "sequence_gaps"
	case CounterCrossedBooks:
		return "crossed_books"
	case CounterSignals:
		return "signals"
	case CounterSignalsDropped:
		return "signals_dropped"
	case CounterOrdersSent:
		return "orders_sent"
	case CounterEscalations:
		return "escalations"
	case CounterRiskDenies:
		return "risk_denies"
	case CounterFills:
		return "fills"
	case CounterQueueDrops:
		return "queue_drops"
	default:
		return "unknown"
	}
}

// Metrics collects lightweight counters and latency stats across the
// per-symbol loops. All operations are atomic and nil-safe.
type Metrics struct {
	counts [counterEnd]uint64

	tickLatency     LatencyStats
	decisionLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Counts          map[string]uint64
	TickLatency     LatencySnapshot
	DecisionLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Inc increments a counter.
func (m *Metrics) Inc(c Counter) {
	if m == nil || c >= counterEnd {
		return
	}
	atomic.AddUint64(&m.counts[c], 1)
}

// Count returns the current value of a counter.
func (m *Metrics) Count(c Counter) uint64 {
	if m == nil || c >= counterEnd {
		return 0
	}
	return atomic.LoadUint64(&m.counts[c])
}

// ObserveTick measures feed-to-loop latency for one market-data event.
func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickLatency.Observe(d)
}

// ObserveDecision measures tick-to-decision latency for one evaluation.
func (m *Metrics) ObserveDecision(d time.Duration) {
	if m == nil {
		return
	}
	m.decisionLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	counts := make(map[string]uint64)
	for i := Counter(0); i < counterEnd; i++ {
		if v := atomic.LoadUint64(&m.counts[i]); v > 0 {
			counts[i.String()] = v
		}
	}
	return Snapshot{
		Counts:          counts,
		TickLatency:     m.tickLatency.Snapshot(),
		DecisionLatency: m.decisionLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}

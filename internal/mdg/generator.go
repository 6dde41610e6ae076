package mdg

import (
	"fmt"
	"math/rand"
	"time"

	"main/internal/schema"
)

// Config controls the synthetic walk.
type Config struct {
	BasePrice     schema.Price    `json:"basePrice"`
	TickSize      schema.Price    `json:"tickSize"`
	Levels        int             `json:"levels"`
	BaseSize      schema.Quantity `json:"baseSize"`
	Seed          int64           `json:"seed"`
	SnapshotEvery int             `json:"snapshotEvery"`
	TradeProb     float64         `json:"tradeProb"`
}

func (c Config) normalized() Config {
	if c.BasePrice <= 0 {
		c.BasePrice = 10000
	}
	if c.TickSize <= 0 {
		c.TickSize = 1
	}
	if c.Levels <= 0 {
		c.Levels = 5
	}
	if c.BaseSize <= 0 {
		c.BaseSize = 10
	}
	if c.SnapshotEvery <= 0 {
		c.SnapshotEvery = 500
	}
	if c.TradeProb <= 0 || c.TradeProb > 1 {
		c.TradeProb = 0.3
	}
	return c
}

type symbolState struct {
	symbol    schema.Symbol
	mid       schema.Price
	seq       uint64
	ticks     int
	forceSnap bool
}

// Generator produces a deterministic synthetic stream of snapshots,
// incremental updates, and trades for every registered symbol. The walk
// is seeded, so a paper run is reproducible.
type Generator struct {
	cfg    Config
	rng    *rand.Rand
	states []*symbolState
	index  int
}

// NewGenerator creates a generator for all symbols in the registry.
func NewGenerator(reg *schema.Registry, cfg Config) (*Generator, error) {
	if reg == nil || reg.SymbolCount() == 0 {
		return nil, fmt.Errorf("registry has no symbols")
	}
	cfg = cfg.normalized()
	states := make([]*symbolState, 0, reg.SymbolCount())
	for i := 0; i < reg.SymbolCount(); i++ {
		symbol, ok := reg.SymbolAt(i)
		if !ok {
			continue
		}
		states = append(states, &symbolState{symbol: symbol, mid: cfg.BasePrice})
	}
	return &Generator{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		states: states,
	}, nil
}

// Next produces the next batch of events, rotating through symbols. The
// first batch per symbol is always a snapshot so books can sync.
func (g *Generator) Next(now time.Time) []schema.Inbound {
	st := g.states[g.index]
	g.index = (g.index + 1) % len(g.states)

	ts := now.UnixNano()
	st.ticks++

	if st.seq == 0 || st.forceSnap || st.ticks%g.cfg.SnapshotEvery == 0 {
		st.forceSnap = false
		st.seq++
		return []schema.Inbound{g.snapshot(st, ts)}
	}

	// Drift the mid by at most one tick per event.
	step := schema.Price(g.rng.Intn(3)-1) * g.cfg.TickSize
	if st.mid+step > g.cfg.TickSize*schema.Price(g.cfg.Levels) {
		st.mid += step
	}

	st.seq++
	out := []schema.Inbound{g.incremental(st, ts)}
	if g.rng.Float64() < g.cfg.TradeProb {
		out = append(out, g.trade(st, ts))
	}
	return out
}

func (g *Generator) snapshot(st *symbolState, ts int64) schema.BookSnapshot {
	levels := make([]schema.BookLevel, 0, 2*g.cfg.Levels)
	for i := 0; i < g.cfg.Levels; i++ {
		depth := schema.Price(i+1) * g.cfg.TickSize
		levels = append(levels,
			schema.BookLevel{
				Side:  schema.SideBuy,
				Price: st.mid - depth,
				Size:  g.levelSize(),
			},
			schema.BookLevel{
				Side:  schema.SideSell,
				Price: st.mid + depth,
				Size:  g.levelSize(),
			},
		)
	}
	return schema.BookSnapshot{
		SymbolID: st.symbol.ID,
		Seq:      st.seq,
		TsNano:   ts,
		Levels:   levels,
	}
}

func (g *Generator) incremental(st *symbolState, ts int64) schema.BookIncremental {
	// The walk moves one tick per event, so clearing both sides at the
	// new mid keeps the book uncrossed. Deletes on absent levels are
	// no-ops downstream.
	updates := []schema.BookUpdate{
		{Action: schema.BookActionDelete, Side: schema.SideBuy, Price: st.mid},
		{Action: schema.BookActionDelete, Side: schema.SideSell, Price: st.mid},
		{
			Action: schema.BookActionChange,
			Side:   schema.SideBuy,
			Price:  st.mid - g.cfg.TickSize,
			Size:   g.levelSize(),
		},
		{
			Action: schema.BookActionChange,
			Side:   schema.SideSell,
			Price:  st.mid + g.cfg.TickSize,
			Size:   g.levelSize(),
		},
	}
	return schema.BookIncremental{
		SymbolID: st.symbol.ID,
		Seq:      st.seq,
		TsNano:   ts,
		Updates:  updates,
	}
}

func (g *Generator) trade(st *symbolState, ts int64) schema.Trade {
	side := schema.SideBuy
	price := st.mid + g.cfg.TickSize
	if g.rng.Intn(2) == 0 {
		side = schema.SideSell
		price = st.mid - g.cfg.TickSize
	}
	return schema.Trade{
		SymbolID: st.symbol.ID,
		Side:     side,
		Price:    price,
		Size:     g.levelSize(),
		TsNano:   ts,
	}
}

// RequestSnapshot marks a symbol so its next batch is a full snapshot,
// mirroring a venue's replay request.
func (g *Generator) RequestSnapshot(id schema.SymbolID) {
	for _, st := range g.states {
		if st.symbol.ID == id {
			st.forceSnap = true
			return
		}
	}
}

func (g *Generator) levelSize() schema.Quantity {
	return g.cfg.BaseSize + schema.Quantity(g.rng.Intn(int(g.cfg.BaseSize)))
}

package book

import (
	"sort"

	"main/internal/schema"
	"main/pkg/exception"
)

// Status tracks whether the book can accept incremental updates.
type Status uint8

const (
	StatusUninitialized Status = iota
	StatusSynced
	StatusStale
)

func (s Status) String() string {
	switch s {
	case StatusSynced:
		return "synced"
	case StatusStale:
		return "stale"
	default:
		return "uninitialized"
	}
}

// Level is one price level. Size is always > 0; a zero-size update removes
// the level instead.
type Level struct {
	Price schema.Price
	Size  schema.Quantity
}

// side keeps levels sorted best-first: bids descending, asks ascending.
type side struct {
	levels     []Level
	descending bool
}

func (s *side) search(price schema.Price) (int, bool) {
	idx := sort.Search(len(s.levels), func(i int) bool {
		if s.descending {
			return s.levels[i].Price <= price
		}
		return s.levels[i].Price >= price
	})
	if idx < len(s.levels) && s.levels[idx].Price == price {
		return idx, true
	}
	return idx, false
}

func (s *side) set(price schema.Price, size schema.Quantity) {
	if size <= 0 {
		s.remove(price)
		return
	}
	idx, ok := s.search(price)
	if ok {
		s.levels[idx].Size = size
		return
	}
	s.levels = append(s.levels, Level{})
	copy(s.levels[idx+1:], s.levels[idx:])
	s.levels[idx] = Level{Price: price, Size: size}
}

func (s *side) remove(price schema.Price) {
	idx, ok := s.search(price)
	if !ok {
		return
	}
	s.levels = append(s.levels[:idx], s.levels[idx+1:]...)
}

func (s *side) best() (Level, bool) {
	if len(s.levels) == 0 {
		return Level{}, false
	}
	return s.levels[0], true
}

func (s *side) top(k int) []Level {
	if k <= 0 || len(s.levels) == 0 {
		return nil
	}
	if k > len(s.levels) {
		k = len(s.levels)
	}
	out := make([]Level, k)
	copy(out, s.levels[:k])
	return out
}

func (s *side) clear() {
	s.levels = s.levels[:0]
}

// Book is the authoritative per-symbol limit order book, rebuilt from
// snapshot plus incremental events. It is owned by a single event loop and
// is not safe for concurrent use.
type Book struct {
	symbolID   schema.SymbolID
	bids       side
	asks       side
	status     Status
	lastSeq    uint64
	lastTsNano int64
}

// New creates an uninitialized book for a symbol.
func New(symbolID schema.SymbolID) *Book {
	return &Book{
		symbolID: symbolID,
		bids:     side{descending: true},
		asks:     side{descending: false},
	}
}

// SymbolID returns the symbol this book tracks.
func (b *Book) SymbolID() schema.SymbolID { return b.symbolID }

// Status returns the current sync status.
func (b *Book) Status() Status { return b.status }

// LastSeq returns the sequence id of the last applied event.
func (b *Book) LastSeq() uint64 { return b.lastSeq }

// LastTsNano returns the event timestamp of the last applied event.
func (b *Book) LastTsNano() int64 { return b.lastTsNano }

// ApplySnapshot replaces both sides wholesale. A snapshot is always
// accepted; it is the only way out of the stale and uninitialized states.
func (b *Book) ApplySnapshot(snap schema.BookSnapshot) {
	b.bids.clear()
	b.asks.clear()
	for _, lvl := range snap.Levels {
		switch lvl.Side {
		case schema.SideBuy:
			b.bids.set(lvl.Price, lvl.Size)
		case schema.SideSell:
			b.asks.set(lvl.Price, lvl.Size)
		}
	}
	b.status = StatusSynced
	b.lastSeq = snap.Seq
	b.lastTsNano = snap.TsNano
}

// ApplyIncremental applies an ordered batch of updates. The batch is
// rejected while the book is uninitialized or stale. A sequence id other
// than last+1 marks the book stale; the caller must re-request a snapshot.
// Cross-side consistency is checked once per batch since transient crossing
// inside a batch is valid.
func (b *Book) ApplyIncremental(inc schema.BookIncremental) error {
	switch b.status {
	case StatusUninitialized:
		return exception.ErrBookUninitialized
	case StatusStale:
		return exception.ErrBookStale
	}
	if inc.Seq != b.lastSeq+1 {
		b.status = StatusStale
		return exception.ErrBookSequenceGap
	}

	for _, u := range inc.Updates {
		var s *side
		switch u.Side {
		case schema.SideBuy:
			s = &b.bids
		case schema.SideSell:
			s = &b.asks
		default:
			continue
		}
		switch u.Action {
		case schema.BookActionNew, schema.BookActionChange:
			// New on an existing price and change on an absent price are
			// both treated as plain upserts.
			s.set(u.Price, u.Size)
		case schema.BookActionDelete:
			// Duplicate deletes are a no-op.
			s.remove(u.Price)
		}
	}

	if b.crossed() {
		// Data-integrity violation: demand a full resync.
		b.Reset()
		return exception.ErrBookCrossed
	}

	b.lastSeq = inc.Seq
	b.lastTsNano = inc.TsNano
	return nil
}

// Reset discards all state and returns the book to uninitialized.
func (b *Book) Reset() {
	b.bids.clear()
	b.asks.clear()
	b.status = StatusUninitialized
	b.lastSeq = 0
	b.lastTsNano = 0
}

func (b *Book) crossed() bool {
	bid, okB := b.bids.best()
	ask, okA := b.asks.best()
	return okB && okA && bid.Price >= ask.Price
}

// BestBid returns the highest bid level.
func (b *Book) BestBid() (Level, bool) { return b.bids.best() }

// BestAsk returns the lowest ask level.
func (b *Book) BestAsk() (Level, bool) { return b.asks.best() }

// TopLevels returns up to k best levels on one side.
func (b *Book) TopLevels(s schema.Side, k int) []Level {
	switch s {
	case schema.SideBuy:
		return b.bids.top(k)
	case schema.SideSell:
		return b.asks.top(k)
	default:
		return nil
	}
}

// Depth returns the number of levels on one side.
func (b *Book) Depth(s schema.Side) int {
	switch s {
	case schema.SideBuy:
		return len(b.bids.levels)
	case schema.SideSell:
		return len(b.asks.levels)
	default:
		return 0
	}
}

// OBI computes the order book imbalance over the top k levels:
// (sum bid size - sum ask size) / (sum bid size + sum ask size).
// Returns 0 when both sides are empty, so the result is always in [-1, 1].
func (b *Book) OBI(k int) float64 {
	var bidVol, askVol int64
	for _, lvl := range b.bids.top(k) {
		bidVol += int64(lvl.Size)
	}
	for _, lvl := range b.asks.top(k) {
		askVol += int64(lvl.Size)
	}
	total := bidVol + askVol
	if total == 0 {
		return 0
	}
	return float64(bidVol-askVol) / float64(total)
}

// Mid returns the mid price as a float in scaled-integer units.
func (b *Book) Mid() (float64, bool) {
	bid, okB := b.bids.best()
	ask, okA := b.asks.best()
	if !okB || !okA {
		return 0, false
	}
	return (float64(bid.Price) + float64(ask.Price)) / 2, true
}

// Spread returns best ask minus best bid in scaled-integer units.
func (b *Book) Spread() (schema.Price, bool) {
	bid, okB := b.bids.best()
	ask, okA := b.asks.best()
	if !okB || !okA {
		return 0, false
	}
	return ask.Price - bid.Price, true
}

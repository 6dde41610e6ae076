package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"main/internal/schema"
)

// Snapshot captures positions at a point in time, written at shutdown and
// loaded back at startup.
type Snapshot struct {
	Timestamp int64           `json:"timestamp"`
	Positions []PositionEntry `json:"positions"`
}

// PositionEntry is a single symbol position entry.
type PositionEntry struct {
	SymbolID    schema.SymbolID `json:"symbolId"`
	Qty         schema.Quantity `json:"qty"`
	AvgPx       schema.Price    `json:"avgPx"`
	RealizedPnL schema.Notional `json:"realizedPnl"`
}

// Snapshot builds a snapshot from current positions.
func (r *PositionReducer) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]PositionEntry, 0, len(r.positions))
	for _, pos := range r.positions {
		entries = append(entries, PositionEntry{
			SymbolID:    pos.SymbolID,
			Qty:         pos.Qty,
			AvgPx:       pos.AvgPx,
			RealizedPnL: pos.RealizedPnL,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SymbolID < entries[j].SymbolID
	})
	return Snapshot{
		Timestamp: time.Now().UTC().UnixNano(),
		Positions: entries,
	}
}

// ApplySnapshot replaces positions with a snapshot.
func (r *PositionReducer) ApplySnapshot(snapshot Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = make(map[schema.SymbolID]*Position, len(snapshot.Positions))
	for _, entry := range snapshot.Positions {
		r.positions[entry.SymbolID] = &Position{
			SymbolID:    entry.SymbolID,
			Qty:         entry.Qty,
			AvgPx:       entry.AvgPx,
			RealizedPnL: entry.RealizedPnL,
		}
	}
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

package store

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"

	"main/internal/bus"
	"main/internal/schema"
)

// FillRecord is the persisted form of a confirmed fill.
type FillRecord struct {
	ID        uint64 `gorm:"primaryKey"`
	SymbolID  uint32 `gorm:"column:symbol_id;not null;index:idx_symbol_ts"`
	Side      string `gorm:"type:varchar(4);not null"`
	Price     int64  `gorm:"not null"`
	Qty       int64  `gorm:"not null"`
	TsNano    int64  `gorm:"column:ts_nano;not null;index:idx_symbol_ts"`
	CreatedAt time.Time
}

func (FillRecord) TableName() string {
	return "fills"
}

// Store persists fills off the hot path: Record enqueues without
// blocking and a background writer batches rows into the database. A
// dropped record loses history, never position state.
type Store struct {
	db    *gorm.DB
	queue *bus.Queue[schema.Fill]
}

// New creates a fill store over an open database handle.
func New(db *gorm.DB, capacity int) (*Store, error) {
	if capacity <= 0 {
		capacity = 1024
	}
	if err := db.AutoMigrate(&FillRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate fills")
	}
	return &Store{db: db, queue: bus.NewQueue[schema.Fill](capacity)}, nil
}

// Record enqueues a fill for persistence without blocking.
func (s *Store) Record(fill schema.Fill) {
	if err := s.queue.TryPublish(fill); err != nil {
		logs.Warnf("fill record dropped, symbol %d: %v", fill.SymbolID, err)
	}
}

// Run drains the queue into the database until the context ends or the
// store is closed.
func (s *Store) Run(ctx context.Context) {
	s.queue.Run(ctx, func(fill schema.Fill) {
		record := FillRecord{
			SymbolID: uint32(fill.SymbolID),
			Side:     fill.Side.String(),
			Price:    int64(fill.Price),
			Qty:      int64(fill.Qty),
			TsNano:   fill.TsNano,
		}
		if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
			logs.Errorf("persist fill, symbol %d: %+v", fill.SymbolID, err)
		}
	})
}

// Close stops accepting new fills; Run returns once the queue drains.
func (s *Store) Close() {
	s.queue.Close()
}

// RecentFills returns the latest fills for a symbol, newest first.
func (s *Store) RecentFills(ctx context.Context, symbolID schema.SymbolID, limit int) ([]FillRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []FillRecord
	err := s.db.WithContext(ctx).
		Where("symbol_id = ?", uint32(symbolID)).
		Order("ts_nano DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "query fills")
	}
	return records, nil
}

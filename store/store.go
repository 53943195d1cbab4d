// Package store implements the Store contract from spec §4.2: schema
// init, batched idempotent upsert for trades and bars, and the resume
// queries the ingester and bar builders need.
//
// PostgresStore is grounded on the stockbit-style reference repository's
// database/trades/repository.go: GORM for connection management and
// simple reads, raw SQL for hypertable DDL and ON CONFLICT upserts.
// MemStore is an in-memory stand-in used by tests, mirroring the
// reference bot's own paper-vs-bridge split between a zero-dependency
// stand-in and the real network/database backend.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/arcanahq/arcana/trade"
)

// ErrIntegrityViolation names the duplicate-bar-key-with-divergent-content
// case. No Store in this package returns or logs it: InsertBars overwrites
// a conflicting row without comparing its content, so the latest writer
// wins and a divergence goes unreported.
var ErrIntegrityViolation = errors.New("store: integrity violation")

// DayCount is one UTC day's trade count, for gap detection (§4.7).
type DayCount struct {
	Day   time.Time
	Count int64
}

// Store is the persistence boundary the core consumes: trade upsert, bar
// upsert, and the monotonic checkpoint queries that make ingestion and
// bar building resumable.
type Store interface {
	InitSchema(ctx context.Context) error

	// InsertTrades upserts in batches of up to the store's configured
	// batch size, committing each batch before returning. Duplicates
	// (by source, trade_id, timestamp) are silently ignored.
	InsertTrades(ctx context.Context, trades []trade.Trade) error

	// InsertBars upserts keyed by (bar_type, source, pair, time_start);
	// metadata overwrites the prior value on conflict.
	InsertBars(ctx context.Context, bars []trade.Bar) error

	// MaxTradeTimestamp returns the latest stored trade timestamp for
	// (source, pair), or ok=false if none exists.
	MaxTradeTimestamp(ctx context.Context, source, pair string) (ts time.Time, ok bool, err error)

	// TradesSince streams trades with timestamp >= ts, ascending.
	TradesSince(ctx context.Context, source, pair string, ts time.Time) ([]trade.Trade, error)

	// LastBar returns the most recently emitted bar of barType for
	// (source, pair), or ok=false if none exists.
	LastBar(ctx context.Context, barType, source, pair string) (b trade.Bar, ok bool, err error)

	// CountByDay returns per-UTC-day trade counts in [start,end).
	CountByDay(ctx context.Context, source, pair string, start, end time.Time) ([]DayCount, error)
}

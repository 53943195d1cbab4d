package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/arcanahq/arcana/decimalx"
	"github.com/arcanahq/arcana/trade"
)

// PostgresStore is the TimescaleDB-backed Store. Connection management and
// simple reads go through gorm.io/gorm, the same driver the stockbit-style
// reference repository uses; schema DDL and upserts go through raw SQL via
// db.Exec, matching that repository's own InitSchema/hypertable pattern
// (database/repository.go) rather than gorm's portable clause.OnConflict
// builder — the reference never uses clause.OnConflict either, so there is
// no precedent in the corpus for it, and raw ON CONFLICT SQL states the
// upsert rule from spec §4.2 more directly than a generic builder would.
type PostgresStore struct {
	db        *gorm.DB
	batchSize int

	barTables map[string]bool
}

// NewPostgresStore opens a connection to dsn. batchSize bounds InsertTrades
// and InsertBars commits (spec §4.2: "batches of up to 1000"); 0 defaults
// to 1000.
func NewPostgresStore(dsn string, batchSize int) (*PostgresStore, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	return &PostgresStore{db: db, batchSize: batchSize, barTables: make(map[string]bool)}, nil
}

// InitSchema creates the raw_trades hypertable. Bar tables are created
// lazily per (bar_type, pair) on the first InsertBars or LastBar call that
// names them, since the spec's
// bar families are open-ended (spec §6) and pre-declaring all of them
// would mean guessing which ones a deployment actually samples.
func (p *PostgresStore) InitSchema(ctx context.Context) error {
	if err := p.db.WithContext(ctx).Exec(`
		CREATE TABLE IF NOT EXISTS raw_trades (
			source     TEXT NOT NULL,
			pair       TEXT NOT NULL,
			trade_id   TEXT NOT NULL,
			timestamp  TIMESTAMPTZ NOT NULL,
			price      NUMERIC NOT NULL,
			size       NUMERIC NOT NULL,
			side       TEXT NOT NULL,
			PRIMARY KEY (source, trade_id, timestamp)
		)
	`).Error; err != nil {
		return fmt.Errorf("store: create raw_trades: %w", err)
	}

	if err := p.db.WithContext(ctx).Exec(`
		CREATE INDEX IF NOT EXISTS idx_raw_trades_lookup
		ON raw_trades (source, pair, timestamp)
	`).Error; err != nil {
		return fmt.Errorf("store: create raw_trades index: %w", err)
	}

	// Best-effort: only succeeds against a real TimescaleDB instance.
	// Plain Postgres (e.g. in CI) keeps working against the plain table.
	if err := p.db.WithContext(ctx).Exec(`
		SELECT create_hypertable('raw_trades', 'timestamp',
			chunk_time_interval => INTERVAL '1 day',
			if_not_exists => TRUE,
			migrate_data => TRUE
		)
	`).Error; err != nil {
		// not fatal: TimescaleDB extension may be absent in dev/test.
	}

	return nil
}

// barTableName returns the lazily-created table name for a bar type and
// pair, per spec §6: bars_<bar_type>_<pair_slug>.
func barTableName(barType, pair string) string {
	return fmt.Sprintf("bars_%s_%s", barType, decimalx.PairSlug(pair))
}

func (p *PostgresStore) ensureBarTable(ctx context.Context, barType, pair string) error {
	name := barTableName(barType, pair)
	if p.barTables[name] {
		return nil
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			bar_type      TEXT NOT NULL,
			source        TEXT NOT NULL,
			pair          TEXT NOT NULL,
			time_start    TIMESTAMPTZ NOT NULL,
			time_end      TIMESTAMPTZ NOT NULL,
			open          NUMERIC NOT NULL,
			high          NUMERIC NOT NULL,
			low           NUMERIC NOT NULL,
			close         NUMERIC NOT NULL,
			volume        NUMERIC NOT NULL,
			dollar_volume NUMERIC NOT NULL,
			vwap          NUMERIC NOT NULL,
			tick_count    BIGINT NOT NULL,
			metadata      JSONB NOT NULL DEFAULT '{}'::jsonb,
			PRIMARY KEY (bar_type, source, pair, time_start)
		)
	`, name)
	if err := p.db.WithContext(ctx).Exec(ddl).Error; err != nil {
		return fmt.Errorf("store: create %s: %w", name, err)
	}
	p.db.WithContext(ctx).Exec(fmt.Sprintf(`
		SELECT create_hypertable('%s', 'time_start',
			chunk_time_interval => INTERVAL '1 day',
			if_not_exists => TRUE,
			migrate_data => TRUE
		)
	`, name))
	p.barTables[name] = true
	return nil
}

// InsertTrades upserts in batches of p.batchSize, each batch committed as
// its own transaction of per-trade INSERT ... ON CONFLICT DO NOTHING
// statements — duplicates (same source, trade_id, timestamp) are silently
// dropped per spec §4.2.
func (p *PostgresStore) InsertTrades(ctx context.Context, trades []trade.Trade) error {
	for start := 0; start < len(trades); start += p.batchSize {
		end := start + p.batchSize
		if end > len(trades) {
			end = len(trades)
		}
		if err := p.insertTradeBatch(ctx, trades[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresStore) insertTradeBatch(ctx context.Context, batch []trade.Trade) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range batch {
			if err := tx.Exec(`
				INSERT INTO raw_trades (source, pair, trade_id, timestamp, price, size, side)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (source, trade_id, timestamp) DO NOTHING
			`, t.Source, t.Pair, t.TradeID, t.Timestamp, t.Price, t.Size, string(t.Side)).Error; err != nil {
				return fmt.Errorf("store: insert trade %s/%s: %w", t.Source, t.TradeID, err)
			}
		}
		return nil
	})
}

// InsertBars upserts keyed by (bar_type, source, pair, time_start);
// metadata overwrites on conflict, matching the "latest writer wins" rule
// from spec §7 kind 3 (EWMA state is re-derivable from the overwritten
// value, so last-write is always consistent with a from-scratch replay).
func (p *PostgresStore) InsertBars(ctx context.Context, bars []trade.Bar) error {
	for start := 0; start < len(bars); start += p.batchSize {
		end := start + p.batchSize
		if end > len(bars) {
			end = len(bars)
		}
		if err := p.insertBarBatch(ctx, bars[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresStore) insertBarBatch(ctx context.Context, batch []trade.Bar) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, b := range batch {
			if err := p.ensureBarTable(ctx, b.BarType, b.Pair); err != nil {
				return err
			}
			name := barTableName(b.BarType, b.Pair)
			metadataJSON, err := metadataToJSON(b.Metadata)
			if err != nil {
				return fmt.Errorf("store: encode metadata for %s: %w", name, err)
			}
			sql := fmt.Sprintf(`
				INSERT INTO %s (bar_type, source, pair, time_start, time_end, open, high, low, close, volume, dollar_volume, vwap, tick_count, metadata)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (bar_type, source, pair, time_start) DO UPDATE SET
					time_end = EXCLUDED.time_end,
					open = EXCLUDED.open,
					high = EXCLUDED.high,
					low = EXCLUDED.low,
					close = EXCLUDED.close,
					volume = EXCLUDED.volume,
					dollar_volume = EXCLUDED.dollar_volume,
					vwap = EXCLUDED.vwap,
					tick_count = EXCLUDED.tick_count,
					metadata = EXCLUDED.metadata
			`, name)
			if err := tx.Exec(sql,
				b.BarType, b.Source, b.Pair, b.TimeStart, b.TimeEnd,
				b.Open, b.High, b.Low, b.Close, b.Volume, b.DollarVolume, b.VWAP,
				b.TickCount, metadataJSON,
			).Error; err != nil {
				return fmt.Errorf("store: insert bar %s/%s/%s: %w", b.BarType, b.Source, b.Pair, err)
			}
		}
		return nil
	})
}

func (p *PostgresStore) MaxTradeTimestamp(ctx context.Context, source, pair string) (time.Time, bool, error) {
	var row struct {
		Timestamp time.Time
	}
	err := p.db.WithContext(ctx).Raw(`
		SELECT MAX(timestamp) AS timestamp FROM raw_trades WHERE source = ? AND pair = ?
	`, source, pair).Scan(&row).Error
	if err != nil {
		return time.Time{}, false, fmt.Errorf("store: max trade timestamp: %w", err)
	}
	if row.Timestamp.IsZero() {
		return time.Time{}, false, nil
	}
	return row.Timestamp, true, nil
}

func (p *PostgresStore) TradesSince(ctx context.Context, source, pair string, ts time.Time) ([]trade.Trade, error) {
	var rows []struct {
		Source    string
		Pair      string
		TradeID   string
		Timestamp time.Time
		Price     string
		Size      string
		Side      string
	}
	err := p.db.WithContext(ctx).Raw(`
		SELECT source, pair, trade_id, timestamp, price, size, side
		FROM raw_trades
		WHERE source = ? AND pair = ? AND timestamp >= ?
		ORDER BY timestamp ASC, trade_id ASC
	`, source, pair, ts).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: trades since: %w", err)
	}
	out := make([]trade.Trade, 0, len(rows))
	for _, r := range rows {
		t, err := rowToTrade(r.Source, r.Pair, r.TradeID, r.Timestamp, r.Price, r.Size, r.Side)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (p *PostgresStore) LastBar(ctx context.Context, barType, source, pair string) (trade.Bar, bool, error) {
	name := barTableName(barType, pair)
	if err := p.ensureBarTable(ctx, barType, pair); err != nil {
		return trade.Bar{}, false, err
	}
	var row barRow
	err := p.db.WithContext(ctx).Raw(fmt.Sprintf(`
		SELECT bar_type, source, pair, time_start, time_end, open, high, low, close, volume, dollar_volume, vwap, tick_count, metadata
		FROM %s
		WHERE source = ? AND pair = ?
		ORDER BY time_start DESC
		LIMIT 1
	`, name), source, pair).Scan(&row).Error
	if err != nil {
		return trade.Bar{}, false, fmt.Errorf("store: last bar: %w", err)
	}
	if row.BarType == "" {
		return trade.Bar{}, false, nil
	}
	b, err := row.toBar()
	if err != nil {
		return trade.Bar{}, false, err
	}
	return b, true, nil
}

func (p *PostgresStore) CountByDay(ctx context.Context, source, pair string, start, end time.Time) ([]DayCount, error) {
	var rows []struct {
		Day   time.Time
		Count int64
	}
	err := p.db.WithContext(ctx).Raw(`
		SELECT date_trunc('day', timestamp) AS day, COUNT(*) AS count
		FROM raw_trades
		WHERE source = ? AND pair = ? AND timestamp >= ? AND timestamp < ?
		GROUP BY day
		ORDER BY day ASC
	`, source, pair, start, end).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: count by day: %w", err)
	}
	counts := make(map[int64]int64, len(rows))
	for _, r := range rows {
		counts[r.Day.Unix()] = r.Count
	}
	out := make([]DayCount, 0)
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		out = append(out, DayCount{Day: d, Count: counts[d.Unix()]})
	}
	return out, nil
}

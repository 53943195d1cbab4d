package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arcanahq/arcana/trade"
)

type tradeKey struct {
	source, tradeID string
	ts              int64
}

type barKey struct {
	barType, source, pair string
	start                 int64
}

// MemStore is an in-memory Store used by tests and by components that
// want to exercise the Store contract without a live Postgres instance.
type MemStore struct {
	mu     sync.Mutex
	trades map[tradeKey]trade.Trade
	bars   map[barKey]trade.Bar
}

func NewMemStore() *MemStore {
	return &MemStore{
		trades: make(map[tradeKey]trade.Trade),
		bars:   make(map[barKey]trade.Bar),
	}
}

func (m *MemStore) InitSchema(ctx context.Context) error { return nil }

func (m *MemStore) InsertTrades(ctx context.Context, trades []trade.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range trades {
		k := tradeKey{t.Source, t.TradeID, t.Timestamp.UnixNano()}
		if _, dup := m.trades[k]; dup {
			continue
		}
		m.trades[k] = t
	}
	return nil
}

func (m *MemStore) InsertBars(ctx context.Context, bars []trade.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bars {
		k := barKey{b.BarType, b.Source, b.Pair, b.TimeStart.UnixNano()}
		m.bars[k] = b // metadata overwrites prior value on conflict
	}
	return nil
}

func (m *MemStore) MaxTradeTimestamp(ctx context.Context, source, pair string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max time.Time
	found := false
	for _, t := range m.trades {
		if t.Source != source || t.Pair != pair {
			continue
		}
		if !found || t.Timestamp.After(max) {
			max = t.Timestamp
			found = true
		}
	}
	return max, found, nil
}

func (m *MemStore) TradesSince(ctx context.Context, source, pair string, ts time.Time) ([]trade.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]trade.Trade, 0)
	for _, t := range m.trades {
		if t.Source != source || t.Pair != pair {
			continue
		}
		if t.Timestamp.Before(ts) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].TradeID < out[j].TradeID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (m *MemStore) LastBar(ctx context.Context, barType, source, pair string) (trade.Bar, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest trade.Bar
	found := false
	for k, b := range m.bars {
		if k.barType != barType || k.source != source || k.pair != pair {
			continue
		}
		if !found || b.TimeStart.After(latest.TimeStart) {
			latest = b
			found = true
		}
	}
	return latest, found, nil
}

func (m *MemStore) CountByDay(ctx context.Context, source, pair string, start, end time.Time) ([]DayCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[int64]int64)
	for _, t := range m.trades {
		if t.Source != source || t.Pair != pair {
			continue
		}
		if t.Timestamp.Before(start) || !t.Timestamp.Before(end) {
			continue
		}
		day := time.Date(t.Timestamp.Year(), t.Timestamp.Month(), t.Timestamp.Day(), 0, 0, 0, 0, time.UTC)
		counts[day.Unix()]++
	}
	out := make([]DayCount, 0, len(counts))
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		out = append(out, DayCount{Day: d, Count: counts[d.Unix()]})
	}
	return out, nil
}

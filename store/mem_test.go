package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcanahq/arcana/trade"
)

func tr(id string, sec int64) trade.Trade {
	return trade.Trade{
		TradeID:   id,
		Timestamp: time.Unix(sec, 0).UTC(),
		Source:    "coinbase",
		Pair:      "ETH-USD",
		Price:     decimal.NewFromInt(100),
		Size:      decimal.NewFromInt(1),
		Side:      trade.Buy,
	}
}

func TestMemStoreInsertTradesDedupes(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.InsertTrades(ctx, []trade.Trade{tr("a", 1), tr("a", 1), tr("b", 2)}))

	ts, ok, err := s.MaxTradeTimestamp(ctx, "coinbase", "ETH-USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Unix(2, 0).UTC(), ts)

	trades, err := s.TradesSince(ctx, "coinbase", "ETH-USD", time.Unix(0, 0).UTC())
	require.NoError(t, err)
	assert.Len(t, trades, 2)
	assert.Equal(t, "a", trades[0].TradeID)
	assert.Equal(t, "b", trades[1].TradeID)
}

func TestMemStoreMaxTradeTimestampEmpty(t *testing.T) {
	s := NewMemStore()
	_, ok, err := s.MaxTradeTimestamp(context.Background(), "coinbase", "ETH-USD")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemStoreInsertBarsOverwritesMetadataOnConflict(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	start := time.Unix(0, 0).UTC()

	b1 := trade.Bar{BarType: "tib_20", Source: "coinbase", Pair: "ETH-USD", TimeStart: start, TimeEnd: start,
		Metadata: map[string]any{"ewma_expected": "1"}}
	require.NoError(t, s.InsertBars(ctx, []trade.Bar{b1}))

	b2 := b1
	b2.Metadata = map[string]any{"ewma_expected": "2"}
	require.NoError(t, s.InsertBars(ctx, []trade.Bar{b2}))

	last, ok, err := s.LastBar(ctx, "tib_20", "coinbase", "ETH-USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", last.Metadata["ewma_expected"])
}

func TestMemStoreLastBarTracksMostRecent(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	older := trade.Bar{BarType: "tick_500", Source: "coinbase", Pair: "ETH-USD", TimeStart: time.Unix(0, 0).UTC()}
	newer := trade.Bar{BarType: "tick_500", Source: "coinbase", Pair: "ETH-USD", TimeStart: time.Unix(100, 0).UTC()}
	require.NoError(t, s.InsertBars(ctx, []trade.Bar{older, newer}))

	last, ok, err := s.LastBar(ctx, "tick_500", "coinbase", "ETH-USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, newer.TimeStart, last.TimeStart)
}

func TestMemStoreCountByDayFillsGapsWithZero(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	day0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertTrades(ctx, []trade.Trade{
		tr("a", day0.Unix()+10),
		tr("b", day0.Unix()+20),
	}))

	counts, err := s.CountByDay(ctx, "coinbase", "ETH-USD", day0, day2)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, int64(2), counts[0].Count)
	assert.Equal(t, int64(0), counts[1].Count)
}

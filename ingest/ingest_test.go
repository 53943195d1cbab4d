package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcanahq/arcana/store"
	"github.com/arcanahq/arcana/trade"
)

type fakeSource struct {
	byWindow func(start, end time.Time) []trade.Trade
	calls    int
}

func (f *fakeSource) SupportedPairs(ctx context.Context) ([]string, error) { return []string{"ETH-USD"}, nil }

func (f *fakeSource) FetchWindow(ctx context.Context, pair string, start, end time.Time) ([]trade.Trade, error) {
	f.calls++
	return f.byWindow(start, end), nil
}

func mkTrade(id string, sec int64) trade.Trade {
	return trade.Trade{
		TradeID: id, Timestamp: time.Unix(sec, 0).UTC(), Source: "coinbase", Pair: "ETH-USD",
		Price: decimal.NewFromInt(10), Size: decimal.NewFromInt(1), Side: trade.Buy,
	}
}

func TestBackfillWalksWindowsAndStores(t *testing.T) {
	since := time.Unix(0, 0).UTC()
	until := time.Unix(7200, 0).UTC() // 2 hours

	var seenWindows [][2]time.Time
	src := &fakeSource{byWindow: func(start, end time.Time) []trade.Trade {
		seenWindows = append(seenWindows, [2]time.Time{start, end})
		return []trade.Trade{mkTrade(start.Format(time.RFC3339), start.Unix()+1)}
	}}
	st := store.NewMemStore()
	ig := New(src, st, "coinbase", "ETH-USD", time.Hour, 1000)

	err := ig.Backfill(context.Background(), since, until)
	require.NoError(t, err)
	assert.Len(t, seenWindows, 2)

	trades, err := st.TradesSince(context.Background(), "coinbase", "ETH-USD", since)
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestBackfillRejectsBadRange(t *testing.T) {
	src := &fakeSource{byWindow: func(start, end time.Time) []trade.Trade { return nil }}
	st := store.NewMemStore()
	ig := New(src, st, "coinbase", "ETH-USD", time.Hour, 1000)

	err := ig.Backfill(context.Background(), time.Unix(10, 0), time.Unix(5, 0))
	require.Error(t, err)
}

func TestTickResumesFromCheckpoint(t *testing.T) {
	st := store.NewMemStore()
	require.NoError(t, st.InsertTrades(context.Background(), []trade.Trade{mkTrade("seed", 1000)}))

	var seenSince time.Time
	src := &fakeSource{byWindow: func(start, end time.Time) []trade.Trade {
		seenSince = start
		return nil
	}}
	ig := New(src, st, "coinbase", "ETH-USD", time.Hour, 1000)
	require.NoError(t, ig.tick(context.Background()))
	assert.Equal(t, time.Unix(1000, 0).UTC(), seenSince)
}

// Scenario 6 from spec §8: a restart's Backfill resumes from the store's
// checkpoint rather than re-walking the whole requested range, so a
// second identical-range run leaves the stored count unchanged.
func TestBackfillResumesFromStoreCheckpoint(t *testing.T) {
	since := time.Unix(0, 0).UTC()
	until := time.Unix(3600, 0).UTC()

	st := store.NewMemStore()
	require.NoError(t, st.InsertTrades(context.Background(), []trade.Trade{mkTrade("seed", 1800)}))

	var seenWindows [][2]time.Time
	src := &fakeSource{byWindow: func(start, end time.Time) []trade.Trade {
		seenWindows = append(seenWindows, [2]time.Time{start, end})
		return nil
	}}
	ig := New(src, st, "coinbase", "ETH-USD", time.Hour, 1000)

	require.NoError(t, ig.Backfill(context.Background(), since, until))
	require.Len(t, seenWindows, 1)
	assert.Equal(t, time.Unix(1800, 0).UTC().Add(checkpointEpsilon), seenWindows[0][0])

	trades, err := st.TradesSince(context.Background(), "coinbase", "ETH-USD", since)
	require.NoError(t, err)
	assert.Len(t, trades, 1, "re-running the same range must not duplicate the checkpointed trade")
}

func TestBackfillNoOpWhenAlreadyCaughtUp(t *testing.T) {
	since := time.Unix(0, 0).UTC()
	until := time.Unix(100, 0).UTC()

	st := store.NewMemStore()
	require.NoError(t, st.InsertTrades(context.Background(), []trade.Trade{mkTrade("seed", 200)}))

	called := false
	src := &fakeSource{byWindow: func(start, end time.Time) []trade.Trade {
		called = true
		return nil
	}}
	ig := New(src, st, "coinbase", "ETH-USD", time.Hour, 1000)
	require.NoError(t, ig.Backfill(context.Background(), since, until))
	assert.False(t, called, "a range fully covered by the checkpoint must not issue any fetch")
}

func TestRunFailsFastWithoutBaseline(t *testing.T) {
	st := store.NewMemStore()
	src := &fakeSource{byWindow: func(start, end time.Time) []trade.Trade { return nil }}
	ig := New(src, st, "coinbase", "ETH-USD", time.Hour, 1000)

	err := ig.Run(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrNoBaseline)
}

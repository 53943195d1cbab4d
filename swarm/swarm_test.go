package swarm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcanahq/arcana/store"
	"github.com/arcanahq/arcana/trade"
)

type fakeSource struct{ pairs []string }

func (f *fakeSource) SupportedPairs(ctx context.Context) ([]string, error) { return f.pairs, nil }
func (f *fakeSource) FetchWindow(ctx context.Context, pair string, start, end time.Time) ([]trade.Trade, error) {
	return nil, nil
}

func TestPlanPartitionsWithoutGapsOrOverlaps(t *testing.T) {
	since := time.Unix(0, 0).UTC()
	until := time.Unix(1000, 0).UTC()
	m, err := Plan("ETH-USD", since, until, 4)
	require.NoError(t, err)
	require.Len(t, m.Workers, 4)

	assert.Equal(t, since, m.Workers[0].Since)
	assert.Equal(t, until, m.Workers[len(m.Workers)-1].Until)
	for i := 1; i < len(m.Workers); i++ {
		assert.Equal(t, m.Workers[i-1].Until, m.Workers[i].Since)
	}
}

func TestPlanRejectsNonPositiveN(t *testing.T) {
	_, err := Plan("ETH-USD", time.Unix(0, 0), time.Unix(10, 0), 0)
	require.Error(t, err)
}

func TestValidateReportsZeroTradeDays(t *testing.T) {
	st := store.NewMemStore()
	day0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.InsertTrades(context.Background(), []trade.Trade{
		{TradeID: "a", Timestamp: day0.Add(time.Hour), Source: "coinbase", Pair: "ETH-USD"},
	}))

	gaps, err := Validate(context.Background(), st, &fakeSource{pairs: []string{"ETH-USD"}}, "coinbase", "ETH-USD", day0, day2)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, day0.AddDate(0, 0, 1), gaps[0].Day)
}

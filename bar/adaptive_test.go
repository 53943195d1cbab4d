package bar

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcanahq/arcana/trade"
)

// Scenario 5: TIB, W=2, all-buy uniform trades converge to one-trade bars
// after the bootstrap bar.
func TestImbalanceBuilderBootstrapAndConvergence(t *testing.T) {
	b := NewImbalanceBuilder("coinbase", "ETH-USD", UnitTick, 2, nil)

	bar1, ok := b.ProcessTrade(mk(0, 10, 1))
	require.True(t, ok, "cold-start bootstrap should emit on the very first trade")
	assert.EqualValues(t, 1, bar1.TickCount)
	st1, ok := trade.EWMAStateFromMetadata(bar1.Metadata)
	require.True(t, ok)
	assert.True(t, st1.ExpectedValue.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 1, st1.BarCount)

	bar2, ok := b.ProcessTrade(mk(1, 10, 1))
	require.True(t, ok, "subsequent bars should emit after one trade given constant unit imbalance")
	assert.EqualValues(t, 1, bar2.TickCount)

	bar3, ok := b.ProcessTrade(mk(2, 10, 1))
	require.True(t, ok)
	assert.EqualValues(t, 1, bar3.TickCount)
}

func TestImbalanceBuilderOppositeSignFiresAtSeededThreshold(t *testing.T) {
	b := NewImbalanceBuilder("coinbase", "ETH-USD", UnitTick, 5, nil)
	// first trade seeds the EWMA (cold start, emits immediately).
	_, ok := b.ProcessTrade(mk(0, 10, 1))
	require.True(t, ok)

	buy := mk(1, 10, 1)
	sell := mk(2, 10, 1)
	sell.Side = trade.Sell
	// a sell after the seed bar drives theta negative; |theta| is what is
	// compared, so it reaches the seeded threshold of 1 and fires.
	_, ok = b.ProcessTrade(sell) // theta: -1, |theta|=1 >= thresh(1) -> fires
	assert.True(t, ok)
	_ = buy
}

func TestImbalanceBuilderResumeSeedsState(t *testing.T) {
	seed := &trade.EWMAState{ExpectedValue: decimal.NewFromInt(3), Window: 10, BarCount: 7, LastTradeSign: -1}
	b := NewImbalanceBuilder("coinbase", "ETH-USD", UnitVolume, 10, seed)
	thresh, cold := b.ewma.threshold()
	assert.False(t, cold)
	assert.True(t, thresh.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, -1, b.carrySign)
}

func TestRunBuilderColdStartEmitsOnFirstTrade(t *testing.T) {
	b := NewRunBuilder("coinbase", "ETH-USD", UnitTick, 3, nil)
	// first trade: cold start, run magnitude 1 > 0 -> fires immediately.
	bar1, ok := b.ProcessTrade(mk(0, 10, 1))
	require.True(t, ok)
	assert.EqualValues(t, 1, bar1.TickCount)
}

func TestEWMATrackerUpdateFormula(t *testing.T) {
	e := &ewmaTracker{window: 2}
	e.update(decimal.NewFromInt(1)) // seed
	assert.True(t, e.expected.Equal(decimal.NewFromInt(1)))
	e.update(decimal.NewFromInt(4)) // alpha = 2/3: 2/3*4 + 1/3*1 = 3
	assert.True(t, e.expected.Equal(decimal.NewFromInt(3)), "got %s", e.expected)
}

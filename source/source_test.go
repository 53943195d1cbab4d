package source

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/arcanahq/arcana/trade"
)

func tr(id string, sec int64) trade.Trade {
	return trade.Trade{
		TradeID:   id,
		Timestamp: time.Unix(sec, 0).UTC(),
		Source:    "coinbase",
		Pair:      "ETH-USD",
		Price:     decimal.NewFromInt(10),
		Size:      decimal.NewFromInt(1),
		Side:      trade.Buy,
	}
}

func TestDedupeSortAscending(t *testing.T) {
	in := []trade.Trade{tr("b", 20), tr("a", 10), tr("b", 20)}
	out := dedupeSortAscending(in)
	assert.Len(t, out, 2)
	assert.Equal(t, "a", out[0].TradeID)
	assert.Equal(t, "b", out[1].TradeID)
}

func TestEarliestTimestamp(t *testing.T) {
	in := []trade.Trade{tr("a", 30), tr("b", 10), tr("c", 20)}
	assert.Equal(t, time.Unix(10, 0).UTC(), earliestTimestamp(in))
}

func TestFixedLadderFourRetriesThenStop(t *testing.T) {
	l := newFixedLadder()
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for _, w := range want {
		assert.Equal(t, w, l.NextBackOff())
	}
	assert.LessOrEqual(t, l.NextBackOff(), time.Duration(0), "ladder must stop after four delays")
}

func TestRawTradeParsesExactDecimal(t *testing.T) {
	rt := rawTrade{TradeID: "1", ProductID: "ETH-USD", Price: "1234.56789012", Size: "0.001", Time: "2024-01-01T00:00:00Z", Side: "BUY"}
	tt, err := rt.toTrade("coinbase", "ETH-USD")
	assert.NoError(t, err)
	assert.Equal(t, "1234.56789012", tt.Price.String())
	assert.Equal(t, trade.Buy, tt.Side)
}

func TestRawTradeRejectsNonPositive(t *testing.T) {
	rt := rawTrade{TradeID: "1", Price: "0", Size: "1", Time: "2024-01-01T00:00:00Z", Side: "BUY"}
	_, err := rt.toTrade("coinbase", "ETH-USD")
	assert.Error(t, err)
}

func TestRawTradeUnknownSide(t *testing.T) {
	rt := rawTrade{TradeID: "1", Price: "1", Size: "1", Time: "2024-01-01T00:00:00Z", Side: "WEIRD"}
	tt, err := rt.toTrade("coinbase", "ETH-USD")
	assert.NoError(t, err)
	assert.Equal(t, trade.Unknown, tt.Side)
}

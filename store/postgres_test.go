package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarTableNameSlugifiesPair(t *testing.T) {
	assert.Equal(t, "bars_tib_20_eth_usd", barTableName("tib_20", "ETH-USD"))
	assert.Equal(t, "bars_time_5m_btc_usdt", barTableName("time_5m", "BTC/USDT"))
}

func TestMetadataToJSONRoundTrip(t *testing.T) {
	meta := map[string]any{"ewma_expected": "123.456", "ewma_window": 20}
	raw, err := metadataToJSON(meta)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "123.456")
}

func TestMetadataToJSONNilMapEncodesEmptyObject(t *testing.T) {
	raw, err := metadataToJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(raw))
}

func TestRowToTradeParsesExactDecimal(t *testing.T) {
	ts := time.Unix(1700000000, 0).UTC()
	tt, err := rowToTrade("coinbase", "ETH-USD", "42", ts, "1234.56789012", "0.001", "buy")
	require.NoError(t, err)
	assert.Equal(t, "1234.56789012", tt.Price.String())
	assert.Equal(t, "42", tt.TradeID)
}

func TestBarRowToBarDecodesMetadata(t *testing.T) {
	row := barRow{
		BarType:      "tick_500",
		Source:       "coinbase",
		Pair:         "ETH-USD",
		TimeStart:    time.Unix(0, 0).UTC(),
		TimeEnd:      time.Unix(10, 0).UTC(),
		Open:         "100",
		High:         "110",
		Low:          "95",
		Close:        "105",
		Volume:       "500",
		DollarVolume: "52500",
		VWAP:         "105",
		TickCount:    500,
		Metadata:     []byte(`{"ewma_expected":"1.5"}`),
	}
	b, err := row.toBar()
	require.NoError(t, err)
	assert.True(t, b.Open.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "1.5", b.Metadata["ewma_expected"])
}

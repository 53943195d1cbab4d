package trade

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is an immutable, sampled aggregate over a contiguous run of trades.
// Uniqueness key: (BarType, Source, Pair, TimeStart).
type Bar struct {
	TimeStart    time.Time
	TimeEnd      time.Time
	BarType      string
	Source       string
	Pair         string
	Open         decimal.Decimal
	High         decimal.Decimal
	Low          decimal.Decimal
	Close        decimal.Decimal
	VWAP         decimal.Decimal
	Volume       decimal.Decimal
	DollarVolume decimal.Decimal
	TickCount    int64
	Metadata     map[string]any
}

// TimeSpan is TimeEnd - TimeStart.
func (b Bar) TimeSpan() time.Duration { return b.TimeEnd.Sub(b.TimeStart) }

// EWMAState is the adaptive-threshold state carried inside an adaptive
// bar's Metadata. The bar table is authoritative for both bars and
// adaptive-threshold state; there is no separate state store.
type EWMAState struct {
	ExpectedValue   decimal.Decimal
	Window          int
	BarCount        int
	LastTradeSign   int
}

const (
	metaEWMAExpected = "ewma_expected"
	metaEWMAWindow   = "ewma_window"
	metaEWMABarCount = "ewma_bar_count"
	metaLastSign     = "last_trade_sign"
)

// WithEWMAState attaches adaptive-threshold state to a bar's metadata.
func WithEWMAState(meta map[string]any, st EWMAState) map[string]any {
	if meta == nil {
		meta = make(map[string]any, 4)
	}
	meta[metaEWMAExpected] = st.ExpectedValue
	meta[metaEWMAWindow] = st.Window
	meta[metaEWMABarCount] = st.BarCount
	meta[metaLastSign] = st.LastTradeSign
	return meta
}

// EWMAStateFromMetadata recovers adaptive-threshold state from a
// previously stored bar's metadata, as returned by Store.LastBar. Returns
// ok=false when the metadata carries no EWMA state (fixed-threshold bar,
// or cold start).
func EWMAStateFromMetadata(meta map[string]any) (st EWMAState, ok bool) {
	if meta == nil {
		return st, false
	}
	raw, present := meta[metaEWMAExpected]
	if !present {
		return st, false
	}
	exp, err := toDecimal(raw)
	if err != nil {
		return st, false
	}
	st.ExpectedValue = exp
	st.Window = toInt(meta[metaEWMAWindow])
	st.BarCount = toInt(meta[metaEWMABarCount])
	st.LastTradeSign = toInt(meta[metaLastSign])
	return st, true
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case string:
		return decimal.NewFromString(t)
	case float64:
		return decimal.NewFromFloat(t), nil
	default:
		return decimal.Zero, fmt.Errorf("trade: unsupported metadata value type %T", v)
	}
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

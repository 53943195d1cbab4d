package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arcanahq/arcana/trade"
)

// metadataToJSON encodes a bar's metadata map for the JSONB column.
// decimal.Decimal marshals to its exact string form via its own
// MarshalJSON, so EWMA state round-trips without float conversion.
func metadataToJSON(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(meta)
}

func rowToTrade(source, pair, tradeID string, ts time.Time, price, size, side string) (trade.Trade, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return trade.Trade{}, fmt.Errorf("store: decode price %q: %w", price, err)
	}
	s, err := decimal.NewFromString(size)
	if err != nil {
		return trade.Trade{}, fmt.Errorf("store: decode size %q: %w", size, err)
	}
	return trade.Trade{
		Timestamp: ts.UTC(),
		TradeID:   tradeID,
		Source:    source,
		Pair:      pair,
		Price:     p,
		Size:      s,
		Side:      trade.Side(side),
	}, nil
}

// barRow mirrors one row of a bars_<bar_type>_<pair> table for scanning.
type barRow struct {
	BarType      string
	Source       string
	Pair         string
	TimeStart    time.Time
	TimeEnd      time.Time
	Open         string
	High         string
	Low          string
	Close        string
	Volume       string
	DollarVolume string
	VWAP         string
	TickCount    int64
	Metadata     []byte
}

func (r barRow) toBar() (trade.Bar, error) {
	open, err := decimal.NewFromString(r.Open)
	if err != nil {
		return trade.Bar{}, fmt.Errorf("store: decode open: %w", err)
	}
	high, err := decimal.NewFromString(r.High)
	if err != nil {
		return trade.Bar{}, fmt.Errorf("store: decode high: %w", err)
	}
	low, err := decimal.NewFromString(r.Low)
	if err != nil {
		return trade.Bar{}, fmt.Errorf("store: decode low: %w", err)
	}
	clos, err := decimal.NewFromString(r.Close)
	if err != nil {
		return trade.Bar{}, fmt.Errorf("store: decode close: %w", err)
	}
	volume, err := decimal.NewFromString(r.Volume)
	if err != nil {
		return trade.Bar{}, fmt.Errorf("store: decode volume: %w", err)
	}
	dollarVolume, err := decimal.NewFromString(r.DollarVolume)
	if err != nil {
		return trade.Bar{}, fmt.Errorf("store: decode dollar_volume: %w", err)
	}
	vwap, err := decimal.NewFromString(r.VWAP)
	if err != nil {
		return trade.Bar{}, fmt.Errorf("store: decode vwap: %w", err)
	}
	var meta map[string]any
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &meta); err != nil {
			return trade.Bar{}, fmt.Errorf("store: decode metadata: %w", err)
		}
	}
	return trade.Bar{
		TimeStart:    r.TimeStart.UTC(),
		TimeEnd:      r.TimeEnd.UTC(),
		BarType:      r.BarType,
		Source:       r.Source,
		Pair:         r.Pair,
		Open:         open,
		High:         high,
		Low:          low,
		Close:        clos,
		VWAP:         vwap,
		Volume:       volume,
		DollarVolume: dollarVolume,
		TickCount:    r.TickCount,
		Metadata:     meta,
	}, nil
}

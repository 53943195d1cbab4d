// Package bar implements the ten bar families (§4.5–§4.6) as a common
// polymorphic Builder interface over trade.Accumulator, the way the
// reference trading bot this module is adapted from implements one
// Broker interface with several concrete execution backends
// (binance/coinbase/hitbtc/paper) — here the same shape drives bar
// emission instead of order placement.
package bar

import "github.com/arcanahq/arcana/trade"

// Builder is the common protocol every bar family implements.
//
// Flush must never be called between batches of the same logical data
// stream — only at end-of-data or graceful shutdown. A premature flush
// yields a bar below threshold and corrupts the EWMA series for
// adaptive families.
type Builder interface {
	// ProcessTrade folds one trade into the accumulator and, if the
	// family's emission predicate fires, emits and resets. The trade
	// that caused the crossing is the last trade of the emitted bar.
	ProcessTrade(t trade.Trade) (bar trade.Bar, emitted bool)

	// ProcessTrades folds a sequence, collecting every emission in order.
	ProcessTrades(ts []trade.Trade) []trade.Bar

	// Flush force-emits a partial in-progress bar, or reports false if
	// the accumulator is empty.
	Flush() (bar trade.Bar, emitted bool)

	// BarType is the string identifier driving table naming.
	BarType() string
}

func processAll(b Builder, ts []trade.Trade) []trade.Bar {
	out := make([]trade.Bar, 0, len(ts)/4+1)
	for _, t := range ts {
		if bar, ok := b.ProcessTrade(t); ok {
			out = append(out, bar)
		}
	}
	return out
}

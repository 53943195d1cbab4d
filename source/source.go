// Package source implements TradeSource: the paginated, deduplicating,
// retrying public-exchange trade fetch described in spec §4.1. It is
// grounded on the reference bot's broker_coinbase.go HTTP plumbing and
// its tools/backfill_bridge_paged.go backward-paging tool, generalized
// from float64 candle fetching to exact-decimal trade fetching.
package source

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/arcanahq/arcana/trade"
)

// TradeSource fetches every trade in [start, end) for a pair, sorted
// ascending, deduplicated by trade_id.
type TradeSource interface {
	FetchWindow(ctx context.Context, pair string, start, end time.Time) ([]trade.Trade, error)
	SupportedPairs(ctx context.Context) ([]string, error)
}

// ErrWindowTooBusy is returned when a single instant holds >= PageLimit
// trades, so the backward cursor cannot advance. Pragmatically impossible
// at minute-granularity windows, per spec §4.1.
var ErrWindowTooBusy = errors.New("source: window too busy — single instant exceeds page limit")

// ErrProtocolViolation wraps an unparseable response or unexpected
// schema from the upstream API. Fatal immediately; the caller aborts the
// enclosing window.
var ErrProtocolViolation = errors.New("source: protocol violation")

// dedupeSortAscending implements step 5 of the backward-page-walk
// algorithm: dedupe by trade_id, sort ascending.
func dedupeSortAscending(trades []trade.Trade) []trade.Trade {
	seen := make(map[string]struct{}, len(trades))
	out := make([]trade.Trade, 0, len(trades))
	for _, t := range trades {
		if _, dup := seen[t.TradeID]; dup {
			continue
		}
		seen[t.TradeID] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func earliestTimestamp(trades []trade.Trade) time.Time {
	earliest := trades[0].Timestamp
	for _, t := range trades[1:] {
		if t.Timestamp.Before(earliest) {
			earliest = t.Timestamp
		}
	}
	return earliest
}

// Package ingest drives the backfill and daemon ingestion loops from spec
// §4.3: pull trades from a source.TradeSource window by window, persist
// them through a store.Store, and checkpoint on the stored maximum trade
// timestamp so a restart resumes rather than re-walking from scratch.
//
// Grounded on the teacher's live.go polling loop: a context-cancellable
// for/select driven by a time.Ticker, and its log.Printf bracket-tag
// convention ("[BOOT]", "[EQUITY]") — here "[INGEST]" and "[DAEMON]".
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/arcanahq/arcana/metrics"
	"github.com/arcanahq/arcana/source"
	"github.com/arcanahq/arcana/store"
	"github.com/arcanahq/arcana/trade"
)

// ErrBadInput wraps a malformed backfill request (e.g. since >= until).
var ErrBadInput = errors.New("ingest: bad input")

// ErrNoBaseline is returned by Run when no prior trade exists for the
// pair: per spec §4.3, the daemon requires a backfill-established
// baseline and must not silently originate its own starting point.
var ErrNoBaseline = errors.New("ingest: daemon has no baseline, run backfill first")

// Ingester ties a TradeSource to a Store for one (source, pair).
type Ingester struct {
	Source      source.TradeSource
	Store       store.Store
	SourceTag   string
	Pair        string
	Window      time.Duration
	BatchSize   int
}

// New constructs an Ingester. window and batchSize fall back to the
// spec's defaults (15 minutes, 1000) when zero.
func New(src source.TradeSource, st store.Store, sourceTag, pair string, window time.Duration, batchSize int) *Ingester {
	if window <= 0 {
		window = 15 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Ingester{Source: src, Store: st, SourceTag: sourceTag, Pair: pair, Window: window, BatchSize: batchSize}
}

// checkpointEpsilon is the minimum representable timestamp increment on
// the store (Postgres TIMESTAMPTZ resolution), added to a resumed
// checkpoint so the next window starts strictly after the last stored
// trade rather than re-fetching it.
const checkpointEpsilon = time.Microsecond

// Backfill ingests every trade in [since, until) by walking forward in
// Window-sized steps, logging progress and an ETA after each step. Per
// spec §4.3, the true starting point is max(since, checkpoint+ε): a
// restart resumes from the store's latest stored trade rather than
// re-walking the whole range from since.
func (ig *Ingester) Backfill(ctx context.Context, since, until time.Time) error {
	if !since.Before(until) {
		return fmt.Errorf("%w: since %s must be before until %s", ErrBadInput, since, until)
	}

	cursor := since
	if maxTS, ok, err := ig.Store.MaxTradeTimestamp(ctx, ig.SourceTag, ig.Pair); err != nil {
		return fmt.Errorf("ingest: checkpoint lookup: %w", err)
	} else if ok {
		resume := maxTS.Add(checkpointEpsilon)
		if resume.After(cursor) {
			cursor = resume
		}
	}
	if !cursor.Before(until) {
		log.Printf("[INGEST] pair=%s already caught up to until=%s", ig.Pair, until.Format(time.RFC3339))
		return nil
	}

	total := until.Sub(cursor)
	resumedFrom := cursor
	start := time.Now()
	var tradesWritten int64

	for cursor.Before(until) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		windowEnd := cursor.Add(ig.Window)
		if windowEnd.After(until) {
			windowEnd = until
		}

		fetchStart := time.Now()
		trades, err := ig.Source.FetchWindow(ctx, ig.Pair, cursor, windowEnd)
		metrics.ObserveIngestWindowSeconds(time.Since(fetchStart).Seconds())
		if err != nil {
			return fmt.Errorf("ingest: fetch window [%s,%s): %w", cursor, windowEnd, err)
		}

		if err := ig.storeBatched(ctx, trades); err != nil {
			return err
		}
		tradesWritten += int64(len(trades))
		metrics.IncTradesIngested(ig.SourceTag, ig.Pair, len(trades))

		elapsed := time.Now().Sub(start)
		done := cursor.Add(ig.Window).Sub(resumedFrom)
		if done > total {
			done = total
		}
		var eta time.Duration
		if done > 0 {
			eta = time.Duration(float64(elapsed) * (float64(total-done) / float64(done)))
		}
		log.Printf("[INGEST] pair=%s window=[%s,%s) trades=%d total_written=%d eta=%s",
			ig.Pair, cursor.Format(time.RFC3339), windowEnd.Format(time.RFC3339), len(trades), tradesWritten, eta)

		cursor = windowEnd
	}

	log.Printf("[INGEST] backfill complete pair=%s trades=%d elapsed=%s", ig.Pair, tradesWritten, time.Since(start))
	return nil
}

// Run ingests continuously: on each tick, it resumes from the store's
// checkpoint (MaxTradeTimestamp) up to "now", then sleeps poll before the
// next tick. Cancel ctx to stop. Fails fast with ErrNoBaseline if the
// pair has no prior stored trade — the daemon never originates its own
// starting point, only a backfill does.
func (ig *Ingester) Run(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		poll = time.Minute
	}

	maxTS, ok, err := ig.Store.MaxTradeTimestamp(ctx, ig.SourceTag, ig.Pair)
	if err != nil {
		return fmt.Errorf("ingest: checkpoint lookup: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: pair=%s", ErrNoBaseline, ig.Pair)
	}
	gap := time.Since(maxTS)
	log.Printf("[DAEMON] starting pair=%s poll=%s window=%s gap=%s", ig.Pair, poll, ig.Window, gap)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		if err := ig.tick(ctx); err != nil {
			log.Printf("[DAEMON] tick error pair=%s: %v", ig.Pair, err)
		}
		select {
		case <-ctx.Done():
			log.Printf("[DAEMON] shutdown pair=%s", ig.Pair)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (ig *Ingester) tick(ctx context.Context) error {
	since, ok, err := ig.Store.MaxTradeTimestamp(ctx, ig.SourceTag, ig.Pair)
	if err != nil {
		return fmt.Errorf("ingest: checkpoint lookup: %w", err)
	}
	if !ok {
		since = time.Now().Add(-ig.Window)
	}
	now := time.Now().UTC()
	if !since.Before(now) {
		metrics.SetDaemonGapSeconds(ig.Pair, 0)
		return nil
	}

	trades, err := ig.Source.FetchWindow(ctx, ig.Pair, since, now)
	if err != nil {
		return fmt.Errorf("ingest: fetch window [%s,%s): %w", since, now, err)
	}
	if err := ig.storeBatched(ctx, trades); err != nil {
		return err
	}
	metrics.IncTradesIngested(ig.SourceTag, ig.Pair, len(trades))
	metrics.SetDaemonGapSeconds(ig.Pair, now.Sub(since).Seconds())
	if len(trades) > 0 {
		log.Printf("[DAEMON] pair=%s trades=%d window=[%s,%s)", ig.Pair, len(trades), since.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	return nil
}

func (ig *Ingester) storeBatched(ctx context.Context, trades []trade.Trade) error {
	for start := 0; start < len(trades); start += ig.BatchSize {
		end := start + ig.BatchSize
		if end > len(trades) {
			end = len(trades)
		}
		if err := ig.Store.InsertTrades(ctx, trades[start:end]); err != nil {
			return fmt.Errorf("ingest: insert trades: %w", err)
		}
	}
	return nil
}

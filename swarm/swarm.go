// Package swarm partitions a large backfill range across N workers and
// detects ingestion gaps, per spec §4.7. Plan and Validate are pure data
// operations; launching the actual worker processes (docker-compose/k8s
// generation) is out of scope (§1 Non-goals-as-external-collaborators) —
// Manifest is produced as a plain value a cmd/arcana subcommand can
// marshal however the deployment needs.
package swarm

import (
	"context"
	"fmt"
	"time"

	"github.com/arcanahq/arcana/source"
	"github.com/arcanahq/arcana/store"
)

// WorkerSpec is one worker's share of a backfill: a disjoint, contiguous
// sub-range of [since, until).
type WorkerSpec struct {
	Index int
	Pair  string
	Since time.Time
	Until time.Time
}

// Manifest is the full partition plan for one swarm run.
type Manifest struct {
	Pair    string
	Since   time.Time
	Until   time.Time
	Workers []WorkerSpec
}

// Plan partitions [since, until) into n equal-duration, disjoint,
// contiguous sub-ranges. The last range absorbs any remainder so the
// union of all ranges is exactly [since, until) with no gaps or overlaps.
func Plan(pair string, since, until time.Time, n int) (Manifest, error) {
	if !since.Before(until) {
		return Manifest{}, fmt.Errorf("swarm: since %s must be before until %s", since, until)
	}
	if n <= 0 {
		return Manifest{}, fmt.Errorf("swarm: n must be positive, got %d", n)
	}

	total := until.Sub(since)
	step := total / time.Duration(n)
	workers := make([]WorkerSpec, 0, n)
	cursor := since
	for i := 0; i < n; i++ {
		end := cursor.Add(step)
		if i == n-1 || end.After(until) {
			end = until
		}
		workers = append(workers, WorkerSpec{Index: i, Pair: pair, Since: cursor, Until: end})
		cursor = end
	}
	return Manifest{Pair: pair, Since: since, Until: until, Workers: workers}, nil
}

// GapDay is one UTC day with zero stored trades within the validated
// range — a likely hole left by a failed or skipped worker.
type GapDay struct {
	Day time.Time
}

// Validate compares stored trade counts against [since, until) and
// reports every UTC day with zero trades. It never fetches trades from
// the source; it only calls source.SupportedPairs to confirm the pair is
// still tradeable, matching spec §4.7's "gap detector" framing (detect
// holes in what's stored, not re-fetch to fill them — that's Backfill's
// job).
func Validate(ctx context.Context, st store.Store, src source.TradeSource, sourceTag, pair string, since, until time.Time) ([]GapDay, error) {
	pairs, err := src.SupportedPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("swarm: source unreachable: %w", err)
	}
	listed := false
	for _, p := range pairs {
		if p == pair {
			listed = true
			break
		}
	}
	if !listed {
		return nil, fmt.Errorf("swarm: pair %q is not offered by the source", pair)
	}

	counts, err := st.CountByDay(ctx, sourceTag, pair, since, until)
	if err != nil {
		return nil, fmt.Errorf("swarm: count by day: %w", err)
	}

	var gaps []GapDay
	for _, c := range counts {
		if c.Count == 0 {
			gaps = append(gaps, GapDay{Day: c.Day})
		}
	}
	return gaps, nil
}

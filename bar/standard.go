package bar

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arcanahq/arcana/decimalx"
	"github.com/arcanahq/arcana/trade"
)

// TickBuilder emits a bar every N ticks.
type TickBuilder struct {
	n            int64
	source, pair string
	acc          *trade.Accumulator
	typ          string
}

func NewTickBuilder(source, pair string, n int64, spec string) *TickBuilder {
	if spec == "" {
		spec = fmt.Sprintf("tick_%d", n)
	}
	return &TickBuilder{n: n, source: source, pair: pair, acc: trade.NewAccumulator(), typ: spec}
}

func (b *TickBuilder) BarType() string { return b.typ }

func (b *TickBuilder) ProcessTrade(t trade.Trade) (trade.Bar, bool) {
	b.acc.Add(t)
	if b.acc.TickCount >= b.n {
		bar := b.acc.EmitBar(b.typ, b.source, b.pair, nil)
		b.acc.Reset()
		return bar, true
	}
	return trade.Bar{}, false
}

func (b *TickBuilder) ProcessTrades(ts []trade.Trade) []trade.Bar { return processAll(b, ts) }

func (b *TickBuilder) Flush() (trade.Bar, bool) {
	if b.acc.Empty() {
		return trade.Bar{}, false
	}
	bar := b.acc.EmitBar(b.typ, b.source, b.pair, nil)
	b.acc.Reset()
	return bar, true
}

// VolumeBuilder emits a bar once cumulative base-currency volume reaches V.
type VolumeBuilder struct {
	threshold    decimal.Decimal
	source, pair string
	acc          *trade.Accumulator
	typ          string
}

func NewVolumeBuilder(source, pair string, v decimal.Decimal, spec string) *VolumeBuilder {
	if spec == "" {
		spec = fmt.Sprintf("volume_%s", v.String())
	}
	return &VolumeBuilder{threshold: v, source: source, pair: pair, acc: trade.NewAccumulator(), typ: spec}
}

func (b *VolumeBuilder) BarType() string { return b.typ }

func (b *VolumeBuilder) ProcessTrade(t trade.Trade) (trade.Bar, bool) {
	b.acc.Add(t)
	if b.acc.Volume.GreaterThanOrEqual(b.threshold) {
		bar := b.acc.EmitBar(b.typ, b.source, b.pair, nil)
		b.acc.Reset()
		return bar, true
	}
	return trade.Bar{}, false
}

func (b *VolumeBuilder) ProcessTrades(ts []trade.Trade) []trade.Bar { return processAll(b, ts) }

func (b *VolumeBuilder) Flush() (trade.Bar, bool) {
	if b.acc.Empty() {
		return trade.Bar{}, false
	}
	bar := b.acc.EmitBar(b.typ, b.source, b.pair, nil)
	b.acc.Reset()
	return bar, true
}

// DollarBuilder emits a bar once cumulative quote-currency dollar volume
// reaches D.
type DollarBuilder struct {
	threshold    decimal.Decimal
	source, pair string
	acc          *trade.Accumulator
	typ          string
}

func NewDollarBuilder(source, pair string, d decimal.Decimal, spec string) *DollarBuilder {
	if spec == "" {
		spec = fmt.Sprintf("dollar_%s", d.String())
	}
	return &DollarBuilder{threshold: d, source: source, pair: pair, acc: trade.NewAccumulator(), typ: spec}
}

func (b *DollarBuilder) BarType() string { return b.typ }

func (b *DollarBuilder) ProcessTrade(t trade.Trade) (trade.Bar, bool) {
	b.acc.Add(t)
	if b.acc.DollarVolume.GreaterThanOrEqual(b.threshold) {
		bar := b.acc.EmitBar(b.typ, b.source, b.pair, nil)
		b.acc.Reset()
		return bar, true
	}
	return trade.Bar{}, false
}

func (b *DollarBuilder) ProcessTrades(ts []trade.Trade) []trade.Bar { return processAll(b, ts) }

func (b *DollarBuilder) Flush() (trade.Bar, bool) {
	if b.acc.Empty() {
		return trade.Bar{}, false
	}
	bar := b.acc.EmitBar(b.typ, b.source, b.pair, nil)
	b.acc.Reset()
	return bar, true
}

// TimeBuilder emits a bar whenever a trade lands in a new epoch-anchored
// Δ-wide bucket. The first trade anchors its own bucket; emitting
// requires the accumulator be non-empty before the boundary is crossed,
// so empty clock intervals produce no bars.
type TimeBuilder struct {
	delta        time.Duration
	source, pair string
	acc          *trade.Accumulator
	typ          string
	haveBucket   bool
	bucket       int64
}

func NewTimeBuilder(source, pair string, delta time.Duration, spec string) *TimeBuilder {
	return &TimeBuilder{delta: delta, source: source, pair: pair, acc: trade.NewAccumulator(), typ: spec}
}

func (b *TimeBuilder) BarType() string { return b.typ }

func (b *TimeBuilder) ProcessTrade(t trade.Trade) (trade.Bar, bool) {
	bucket := decimalx.EpochBucket(t.Timestamp, b.delta)
	if !b.haveBucket {
		b.haveBucket = true
		b.bucket = bucket
		b.acc.Add(t)
		return trade.Bar{}, false
	}
	if bucket == b.bucket {
		b.acc.Add(t)
		return trade.Bar{}, false
	}
	// trade belongs to a new bucket: emit the accumulator's contents
	// excluding this trade, reset, then add this trade to the new bucket.
	var emitted trade.Bar
	var ok bool
	if !b.acc.Empty() {
		emitted = b.acc.EmitBar(b.typ, b.source, b.pair, nil)
		emitted.TimeStart = decimalx.BucketStart(emitted.TimeStart, b.delta)
		ok = true
	}
	b.acc.Reset()
	b.bucket = bucket
	b.acc.Add(t)
	return emitted, ok
}

func (b *TimeBuilder) ProcessTrades(ts []trade.Trade) []trade.Bar { return processAll(b, ts) }

func (b *TimeBuilder) Flush() (trade.Bar, bool) {
	if b.acc.Empty() {
		return trade.Bar{}, false
	}
	bar := b.acc.EmitBar(b.typ, b.source, b.pair, nil)
	bar.TimeStart = decimalx.BucketStart(bar.TimeStart, b.delta)
	b.acc.Reset()
	b.haveBucket = false
	return bar, true
}

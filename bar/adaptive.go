package bar

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/arcanahq/arcana/trade"
)

// Unit is the quantity an information-driven bar accumulates per trade:
// 1 for tick-based families, size for volume-based, price*size for
// dollar-based.
type Unit int

const (
	UnitTick Unit = iota
	UnitVolume
	UnitDollar
)

func unitValue(u Unit, t trade.Trade) decimal.Decimal {
	switch u {
	case UnitVolume:
		return t.Size
	case UnitDollar:
		return t.Price.Mul(t.Size)
	default:
		return decimal.NewFromInt(1)
	}
}

// ewmaTracker implements the EWMA update from §4.6: after every
// emission, let x be the realized statistic; E seeds from the first
// bar's x, then decays with α = 2/(W+1).
type ewmaTracker struct {
	window   int
	expected decimal.Decimal
	barCount int
}

// threshold returns the emission threshold and whether this is a cold
// start (no prior bars, so the predicate degrades to "any nonzero
// statistic" to form the seed).
func (e *ewmaTracker) threshold() (decimal.Decimal, bool) {
	if e.barCount == 0 {
		return decimal.Zero, true
	}
	return e.expected, false
}

func (e *ewmaTracker) update(x decimal.Decimal) {
	if e.barCount == 0 {
		e.expected = x
		e.barCount++
		return
	}
	// α·x + (1−α)·E == (2·x + (W−1)·E) / (W+1); dividing once at the end
	// keeps the result exact whenever the true value is representable.
	w := decimal.NewFromInt(int64(e.window))
	num := x.Mul(decimal.NewFromInt(2)).Add(w.Sub(decimal.NewFromInt(1)).Mul(e.expected))
	e.expected = num.DivRound(w.Add(decimal.NewFromInt(1)), 16)
	e.barCount++
}

func (e *ewmaTracker) state(lastSign int) trade.EWMAState {
	return trade.EWMAState{ExpectedValue: e.expected, Window: e.window, BarCount: e.barCount, LastTradeSign: lastSign}
}

func imbalanceBarType(u Unit, w int) string {
	switch u {
	case UnitVolume:
		return fmt.Sprintf("vib_%d", w)
	case UnitDollar:
		return fmt.Sprintf("dib_%d", w)
	default:
		return fmt.Sprintf("tib_%d", w)
	}
}

func runBarType(u Unit, w int) string {
	switch u {
	case UnitVolume:
		return fmt.Sprintf("vrb_%d", w)
	case UnitDollar:
		return fmt.Sprintf("drb_%d", w)
	default:
		return fmt.Sprintf("trb_%d", w)
	}
}

// ImbalanceBuilder implements tib/vib/dib: a running signed quantity θ
// accumulates sign(trade)·unit(trade) within the active bar; it emits
// when |θ| crosses the EWMA-estimated expected absolute imbalance.
type ImbalanceBuilder struct {
	unit         Unit
	source, pair string
	acc          *trade.Accumulator
	typ          string

	theta decimal.Decimal

	havePrevPrice bool
	prevPrice     decimal.Decimal
	carrySign     int

	ewma ewmaTracker
}

// NewImbalanceBuilder constructs tib/vib/dib depending on unit. seed, if
// non-nil, recovers EWMA state from the most recently persisted bar of
// this family/source/pair (warm resume per §4.6).
func NewImbalanceBuilder(source, pair string, unit Unit, window int, seed *trade.EWMAState) *ImbalanceBuilder {
	b := &ImbalanceBuilder{
		unit:      unit,
		source:    source,
		pair:      pair,
		acc:       trade.NewAccumulator(),
		typ:       imbalanceBarType(unit, window),
		theta:     decimal.Zero,
		carrySign: 1,
		ewma:      ewmaTracker{window: window},
	}
	if seed != nil {
		b.ewma = ewmaTracker{window: seed.Window, expected: seed.ExpectedValue, barCount: seed.BarCount}
		b.carrySign = seed.LastTradeSign
	}
	return b
}

func (b *ImbalanceBuilder) BarType() string { return b.typ }

func (b *ImbalanceBuilder) ProcessTrade(t trade.Trade) (trade.Bar, bool) {
	sign := t.Sign(b.prevPrice, b.havePrevPrice, b.carrySign)
	b.prevPrice = t.Price
	b.havePrevPrice = true
	b.carrySign = sign

	b.acc.Add(t)
	signedUnit := unitValue(b.unit, t).Mul(decimal.NewFromInt(int64(sign)))
	b.theta = b.theta.Add(signedUnit)

	thresh, cold := b.ewma.threshold()
	absTheta := b.theta.Abs()
	fire := absTheta.GreaterThan(decimal.Zero)
	if !cold {
		fire = absTheta.GreaterThanOrEqual(thresh)
	}
	if !fire {
		return trade.Bar{}, false
	}

	x := absTheta
	b.ewma.update(x)
	meta := trade.WithEWMAState(nil, b.ewma.state(b.carrySign))
	emitted := b.acc.EmitBar(b.typ, b.source, b.pair, meta)
	b.acc.Reset()
	b.theta = decimal.Zero
	return emitted, true
}

func (b *ImbalanceBuilder) ProcessTrades(ts []trade.Trade) []trade.Bar { return processAll(b, ts) }

func (b *ImbalanceBuilder) Flush() (trade.Bar, bool) {
	if b.acc.Empty() {
		return trade.Bar{}, false
	}
	meta := trade.WithEWMAState(nil, b.ewma.state(b.carrySign))
	bar := b.acc.EmitBar(b.typ, b.source, b.pair, meta)
	b.acc.Reset()
	b.theta = decimal.Zero
	return bar, true
}

// RunBuilder implements trb/vrb/drb: tracks the current run's sign and
// magnitude, with R the maximum run magnitude seen so far in the active
// bar; it emits when R crosses the EWMA-estimated expected max run.
type RunBuilder struct {
	unit         Unit
	source, pair string
	acc          *trade.Accumulator
	typ          string

	runSign int
	runMag  decimal.Decimal
	maxRun  decimal.Decimal

	havePrevPrice bool
	prevPrice     decimal.Decimal
	carrySign     int

	ewma ewmaTracker
}

func NewRunBuilder(source, pair string, unit Unit, window int, seed *trade.EWMAState) *RunBuilder {
	b := &RunBuilder{
		unit:      unit,
		source:    source,
		pair:      pair,
		acc:       trade.NewAccumulator(),
		typ:       runBarType(unit, window),
		runMag:    decimal.Zero,
		maxRun:    decimal.Zero,
		carrySign: 1,
		ewma:      ewmaTracker{window: window},
	}
	if seed != nil {
		b.ewma = ewmaTracker{window: seed.Window, expected: seed.ExpectedValue, barCount: seed.BarCount}
		b.carrySign = seed.LastTradeSign
		b.runSign = seed.LastTradeSign
	}
	return b
}

func (b *RunBuilder) BarType() string { return b.typ }

func (b *RunBuilder) ProcessTrade(t trade.Trade) (trade.Bar, bool) {
	sign := t.Sign(b.prevPrice, b.havePrevPrice, b.carrySign)
	b.prevPrice = t.Price
	b.havePrevPrice = true
	b.carrySign = sign

	b.acc.Add(t)
	u := unitValue(b.unit, t)
	if sign == b.runSign && !b.runMag.IsZero() {
		b.runMag = b.runMag.Add(u)
	} else {
		b.runSign = sign
		b.runMag = u
	}
	if b.runMag.GreaterThan(b.maxRun) {
		b.maxRun = b.runMag
	}

	thresh, cold := b.ewma.threshold()
	fire := b.maxRun.GreaterThan(decimal.Zero)
	if !cold {
		fire = b.maxRun.GreaterThanOrEqual(thresh)
	}
	if !fire {
		return trade.Bar{}, false
	}

	x := b.maxRun
	b.ewma.update(x)
	meta := trade.WithEWMAState(nil, b.ewma.state(b.carrySign))
	emitted := b.acc.EmitBar(b.typ, b.source, b.pair, meta)
	b.acc.Reset()
	b.runMag = decimal.Zero
	b.maxRun = decimal.Zero
	return emitted, true
}

func (b *RunBuilder) ProcessTrades(ts []trade.Trade) []trade.Bar { return processAll(b, ts) }

func (b *RunBuilder) Flush() (trade.Bar, bool) {
	if b.acc.Empty() {
		return trade.Bar{}, false
	}
	meta := trade.WithEWMAState(nil, b.ewma.state(b.carrySign))
	bar := b.acc.EmitBar(b.typ, b.source, b.pair, meta)
	b.acc.Reset()
	b.runMag = decimal.Zero
	b.maxRun = decimal.Zero
	return bar, true
}

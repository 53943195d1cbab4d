package trade

import (
	"time"

	"github.com/shopspring/decimal"
)

// Accumulator is mutable, in-memory, per-active-bar running state. It is
// never persisted directly — only the Bar it emits is. Empty iff
// TickCount == 0.
type Accumulator struct {
	TickCount     int64
	Volume        decimal.Decimal
	DollarVolume  decimal.Decimal
	VWAPNumerator decimal.Decimal
	Open          decimal.Decimal
	High          decimal.Decimal
	Low           decimal.Decimal
	Close         decimal.Decimal
	TimeStart     time.Time
	TimeEnd       time.Time
}

// Empty reports whether the accumulator holds no trades yet.
func (a *Accumulator) Empty() bool { return a.TickCount == 0 }

// Add folds one trade into the running state.
func (a *Accumulator) Add(t Trade) {
	dv := t.Price.Mul(t.Size)
	if a.Empty() {
		a.Open = t.Price
		a.High = t.Price
		a.Low = t.Price
		a.TimeStart = t.Timestamp
	} else {
		if t.Price.GreaterThan(a.High) {
			a.High = t.Price
		}
		if t.Price.LessThan(a.Low) {
			a.Low = t.Price
		}
	}
	a.Close = t.Price
	a.TimeEnd = t.Timestamp
	a.Volume = a.Volume.Add(t.Size)
	a.DollarVolume = a.DollarVolume.Add(dv)
	a.VWAPNumerator = a.VWAPNumerator.Add(dv)
	a.TickCount++
}

// EmitBar produces an immutable Bar from current state. VWAP is computed
// here, at emission, never as a running quantity, to avoid division
// drift across many small updates.
func (a *Accumulator) EmitBar(barType, source, pair string, meta map[string]any) Bar {
	vwap := decimal.Zero
	if a.Volume.GreaterThan(decimal.Zero) {
		vwap = a.VWAPNumerator.Div(a.Volume)
	}
	return Bar{
		TimeStart:    a.TimeStart,
		TimeEnd:      a.TimeEnd,
		BarType:      barType,
		Source:       source,
		Pair:         pair,
		Open:         a.Open,
		High:         a.High,
		Low:          a.Low,
		Close:        a.Close,
		VWAP:         vwap,
		Volume:       a.Volume,
		DollarVolume: a.DollarVolume,
		TickCount:    a.TickCount,
		Metadata:     meta,
	}
}

// Reset clears the accumulator back to empty.
func (a *Accumulator) Reset() {
	*a = Accumulator{
		Volume:        decimal.Zero,
		DollarVolume:  decimal.Zero,
		VWAPNumerator: decimal.Zero,
	}
}

// NewAccumulator returns a zeroed, empty accumulator.
func NewAccumulator() *Accumulator {
	a := &Accumulator{}
	a.Reset()
	return a
}

// Package trade defines the core immutable Trade record and the mutable
// Accumulator/Bar types every bar family folds trades through.
//
// All price/size arithmetic uses decimal.Decimal end to end — never
// float64 — so the trade log and every derived bar stay exact from parse
// to store.
package trade

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the aggressor side of a trade.
type Side string

const (
	Buy     Side = "buy"
	Sell    Side = "sell"
	Unknown Side = "unknown"
)

// Trade is an immutable tick produced by a TradeSource. (source, trade_id)
// is the global dedup key; timestamp carries sub-second precision in UTC.
type Trade struct {
	Timestamp time.Time
	TradeID   string
	Source    string
	Pair      string
	Price     decimal.Decimal
	Size      decimal.Decimal
	Side      Side
}

// Sign resolves the signed direction of a trade using the tick rule when
// Side is Unknown: +1 above prevPrice, -1 below, carrySign when equal or
// when there is no prevPrice to compare against.
func (t Trade) Sign(prevPrice decimal.Decimal, havePrev bool, carrySign int) int {
	switch t.Side {
	case Buy:
		return 1
	case Sell:
		return -1
	default:
		if !havePrev {
			return carrySign
		}
		switch {
		case t.Price.GreaterThan(prevPrice):
			return 1
		case t.Price.LessThan(prevPrice):
			return -1
		default:
			return carrySign
		}
	}
}

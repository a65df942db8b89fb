package replicator

import "github.com/shopspring/decimal"

// scaledSizePlaces is the precision every replicated order size is rounded
// to, matching the exchange's smallest tradable increment on most markets.
const scaledSizePlaces = 3

// ScaleSize scales a leader order quantity by a follower's percentage and
// rounds half-up to three decimal places. ok is false when the scaled size
// rounds to zero or below; the caller logs and skips instead of submitting a
// zero-size order.
func ScaleSize(quantity, scalePercent decimal.Decimal) (decimal.Decimal, bool) {
	scaled := quantity.Mul(scalePercent).Div(decimal.NewFromInt(100)).Round(scaledSizePlaces)
	if !scaled.GreaterThan(decimal.Zero) {
		return decimal.Zero, false
	}

	return scaled, true
}

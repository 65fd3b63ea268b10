package service

import "math"

// RefundPercentage maps the time left before departure to a refund bracket.
// A boundary value belongs to the upper bracket: exactly 24h refunds 100%.
func RefundPercentage(hoursUntilDeparture float64) int {
	switch {
	case hoursUntilDeparture >= 24:
		return 100
	case hoursUntilDeparture >= 6:
		return 75
	case hoursUntilDeparture >= 2:
		return 50
	default:
		return 0
	}
}

// RefundAmount 依百分比計算退款，四捨五入到分，結果介於 0 與 pricePaid 之間
func RefundAmount(pricePaid float64, percentage int) float64 {
	if pricePaid <= 0 || percentage <= 0 {
		return 0
	}
	amount := roundCents(pricePaid * float64(percentage) / 100)
	return math.Min(amount, pricePaid)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

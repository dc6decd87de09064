package accrual

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMonthlyPenaltyRate is the mora rate, percent per month, applied
// when no rate is configured.
var DefaultMonthlyPenaltyRate = decimal.NewFromInt(2)

var daysPerMonth = decimal.NewFromInt(30)

// Penalty accrues the late fee on an overdue balance: a monthly percent
// rate prorated linearly by days overdue, without compounding or cap.
func Penalty(balance decimal.Decimal, daysOverdue int, monthlyRate decimal.Decimal) decimal.Decimal {
	if daysOverdue <= 0 || balance.LessThanOrEqual(decimal.Zero) || monthlyRate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	days := decimal.NewFromInt(int64(daysOverdue))
	return balance.Mul(monthlyRate).Div(hundred).Mul(days).Div(daysPerMonth)
}

// CapPenalty limits a computed penalty to a percent of the balance it was
// charged on. A non-positive cap disables capping.
func CapPenalty(penalty, balance, capPct decimal.Decimal) decimal.Decimal {
	if capPct.LessThanOrEqual(decimal.Zero) {
		return penalty
	}
	cap := balance.Mul(capPct).Div(hundred)
	if penalty.GreaterThan(cap) {
		return cap
	}
	return penalty
}

// DaysOverdue counts whole days elapsed from the due date to asOf, rounding
// partial days up, never negative.
func DaysOverdue(due, asOf time.Time) int {
	if !asOf.After(due) {
		return 0
	}
	return int(math.Ceil(asOf.Sub(due).Hours() / 24))
}

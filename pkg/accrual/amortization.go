// Package accrual holds the pure interest math for both repayment regimes:
// fixed-term amortized loans and open-ended biweekly-interest loans, plus
// late-fee accrual. Every function takes explicit dates and returns computed
// values; nothing in this package reads the clock or touches storage.
package accrual

import (
	"time"

	"github.com/prestamax/loancore/pkg/models"
	"github.com/shopspring/decimal"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// AmortizationSchedule is the computed repayment plan for a fixed-term loan.
type AmortizationSchedule struct {
	PeriodRate    decimal.Decimal `json:"period_rate"` // fractional, per period
	Installment   decimal.Decimal `json:"installment"`
	TotalInterest decimal.Decimal `json:"total_interest"` // flat, informational
	MaturityDate  time.Time       `json:"maturity_date"`
	NextDueDate   time.Time       `json:"next_due_date"`
}

// PeriodRate converts a nominal annual-equivalent percent rate to the
// fractional per-period rate for the given basis.
func PeriodRate(rate decimal.Decimal, basis models.RateBasis) decimal.Decimal {
	switch basis {
	case models.BasisQuincenal:
		return rate.Div(decimal.NewFromInt(24)).Div(hundred)
	case models.BasisMensual:
		return rate.Div(decimal.NewFromInt(12)).Div(hundred)
	default:
		return rate.Div(hundred)
	}
}

// Amortize computes the fixed installment, flat interest total and schedule
// dates for a fixed-term loan. Degenerate inputs (non-positive principal,
// rate or term) yield the zero schedule rather than an error; callers must
// not persist a positive balance with a zero installment.
func Amortize(principal, rate decimal.Decimal, periods int, basis models.RateBasis, start time.Time) AmortizationSchedule {
	if principal.LessThanOrEqual(decimal.Zero) || rate.LessThanOrEqual(decimal.Zero) || periods <= 0 {
		return AmortizationSchedule{}
	}

	i := PeriodRate(rate, basis)
	return AmortizationSchedule{
		PeriodRate:    i,
		Installment:   Installment(principal, i, periods),
		TotalInterest: principal.Mul(i).Mul(decimal.NewFromInt(int64(periods))),
		MaturityDate:  AdvancePeriods(start, basis, periods),
		NextDueDate:   AdvancePeriods(start, basis, 1),
	}
}

// Installment is the fixed per-period payment for a loan of n periods at
// fractional per-period rate i: the annuity formula P*i*(1+i)^n/((1+i)^n-1),
// degrading to straight division when i is zero.
func Installment(principal, periodRate decimal.Decimal, periods int) decimal.Decimal {
	n := decimal.NewFromInt(int64(periods))
	if periodRate.IsZero() {
		return principal.Div(n)
	}
	compound := one.Add(periodRate).Pow(n)
	return principal.Mul(periodRate).Mul(compound).Div(compound.Sub(one))
}

// AdvancePeriods moves a date forward by n periods of the given basis:
// 15-day steps for quincenal, calendar months for mensual, calendar years
// for anual.
func AdvancePeriods(from time.Time, basis models.RateBasis, n int) time.Time {
	switch basis {
	case models.BasisQuincenal:
		return from.AddDate(0, 0, 15*n)
	case models.BasisMensual:
		return from.AddDate(0, n, 0)
	default:
		return from.AddDate(n, 0, 0)
	}
}

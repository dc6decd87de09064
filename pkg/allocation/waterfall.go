// Package allocation splits one incoming payment across the amounts a loan
// owes, in strict priority order: penalty, then interest, then principal.
package allocation

import (
	"github.com/shopspring/decimal"
)

// Pending is the loan's outstanding position at allocation time. Negative
// inputs are treated as zero.
type Pending struct {
	PenaltyDue       decimal.Decimal
	InterestDue      decimal.Decimal
	PrincipalBalance decimal.Decimal
}

// Allocation is the decomposition of one payment amount. The four parts
// always sum exactly to the amount passed to Allocate.
type Allocation struct {
	PenaltyPaid   decimal.Decimal `json:"penalty_paid"`
	InterestPaid  decimal.Decimal `json:"interest_paid"`
	PrincipalPaid decimal.Decimal `json:"principal_paid"`
	Overflow      decimal.Decimal `json:"overflow"`
}

// Total returns the sum of all four parts.
func (a Allocation) Total() decimal.Decimal {
	return a.PenaltyPaid.Add(a.InterestPaid).Add(a.PrincipalPaid).Add(a.Overflow)
}

// Allocate runs the gated waterfall. Penalty is settled first, then
// interest. Principal may only be reduced once interest is fully current;
// while any interest remains owed the rest of the payment becomes overflow
// instead of touching principal. Anything left past the principal balance
// is overflow too; the caller decides whether to reject, refund or hold it.
func Allocate(amount decimal.Decimal, pending Pending) Allocation {
	if amount.LessThanOrEqual(decimal.Zero) {
		return Allocation{
			PenaltyPaid:   decimal.Zero,
			InterestPaid:  decimal.Zero,
			PrincipalPaid: decimal.Zero,
			Overflow:      decimal.Zero,
		}
	}

	remaining := amount

	penaltyPaid := decimal.Min(remaining, clamp(pending.PenaltyDue))
	remaining = remaining.Sub(penaltyPaid)

	interestPaid := decimal.Min(remaining, clamp(pending.InterestDue))
	remaining = remaining.Sub(interestPaid)

	principalPaid := decimal.Zero
	if clamp(pending.InterestDue).Sub(interestPaid).LessThanOrEqual(decimal.Zero) {
		principalPaid = decimal.Min(remaining, clamp(pending.PrincipalBalance))
		remaining = remaining.Sub(principalPaid)
	}

	return Allocation{
		PenaltyPaid:   penaltyPaid,
		InterestPaid:  interestPaid,
		PrincipalPaid: principalPaid,
		Overflow:      remaining,
	}
}

func clamp(d decimal.Decimal) decimal.Decimal {
	if d.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	return d
}

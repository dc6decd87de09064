package accrual

import (
	"time"

	"github.com/prestamax/loancore/pkg/models"
	"github.com/shopspring/decimal"
)

// ArrearsToleranceDays is the window around a quincena due date within which
// a payment's interest portion is matched against that due date.
const ArrearsToleranceDays = 7

// Statement quantifies what an open-ended loan owes as of a given date.
type Statement struct {
	CurrentInterest  decimal.Decimal `json:"current_interest"`
	ArrearsInterest  decimal.Decimal `json:"arrears_interest"`
	TotalInterestDue decimal.Decimal `json:"total_interest_due"`
	NextDueDate      time.Time       `json:"next_due_date"`
	NextDueAmount    decimal.Decimal `json:"next_due_amount"`
	MissedDueDates   []time.Time     `json:"missed_due_dates,omitempty"`
}

// NextQuincena returns the next biweekly due date on or after asOf: the 15th
// of the current month while the day is at most 15, the last calendar day of
// the month after that, rolling to the 15th of the next month once the last
// day has passed.
func NextQuincena(asOf time.Time) time.Time {
	y, m, d := asOf.Date()
	if d <= 15 {
		return time.Date(y, m, 15, 0, 0, 0, 0, asOf.Location())
	}
	return endOfMonth(y, m, asOf.Location())
}

// QuincenaDueDates enumerates every quincenal due date from the loan's start
// date through asOf, inclusive. The sequence is strictly increasing and each
// element is a 15th or a last day of month.
func QuincenaDueDates(start, asOf time.Time) []time.Time {
	var dues []time.Time
	for d := NextQuincena(start); !d.After(asOf); d = nextQuincenaAfter(d) {
		dues = append(dues, d)
	}
	return dues
}

// Accrue computes the interest position of an open-ended loan: interest for
// the upcoming quincena plus arrears from elapsed quincenas no recorded
// payment covers. Each missed quincena contributes a flat charge on the
// current principal balance (no compounding). Degenerate inputs yield zero
// amounts but a next due date is still computed from asOf so the schedule
// stays well-defined for dormant loans.
func Accrue(balance, rate decimal.Decimal, start, asOf time.Time, payments []*models.Payment) Statement {
	next := NextQuincena(asOf)
	if balance.LessThanOrEqual(decimal.Zero) || rate.LessThanOrEqual(decimal.Zero) {
		return Statement{
			CurrentInterest:  decimal.Zero,
			ArrearsInterest:  decimal.Zero,
			TotalInterestDue: decimal.Zero,
			NextDueDate:      next,
			NextDueAmount:    decimal.Zero,
		}
	}

	quincenaInterest := balance.Mul(rate).Div(hundred)

	var missed []time.Time
	used := make([]bool, len(payments))
	for _, due := range QuincenaDueDates(start, asOf) {
		if !matchPayment(due, quincenaInterest, payments, used) {
			missed = append(missed, due)
		}
	}

	arrears := quincenaInterest.Mul(decimal.NewFromInt(int64(len(missed))))
	return Statement{
		CurrentInterest:  quincenaInterest,
		ArrearsInterest:  arrears,
		TotalInterestDue: arrears.Add(quincenaInterest),
		NextDueDate:      next,
		NextDueAmount:    quincenaInterest,
		MissedDueDates:   missed,
	}
}

// matchPayment finds an unused payment whose interest portion covers the
// quincena amount and whose paid date falls within the tolerance window of
// the due date. A payment settles at most one due date.
func matchPayment(due time.Time, quincenaInterest decimal.Decimal, payments []*models.Payment, used []bool) bool {
	for i, p := range payments {
		if used[i] {
			continue
		}
		if p.InterestPaid.LessThan(quincenaInterest) {
			continue
		}
		if absDays(p.DatePaid, due) <= ArrearsToleranceDays {
			used[i] = true
			return true
		}
	}
	return false
}

// nextQuincenaAfter steps from one due date to the next: a 15th advances to
// the same month's last day, a last day advances to the 15th of the next
// month.
func nextQuincenaAfter(due time.Time) time.Time {
	y, m, d := due.Date()
	if d == 15 {
		return endOfMonth(y, m, due.Location())
	}
	return time.Date(y, m+1, 15, 0, 0, 0, 0, due.Location())
}

func endOfMonth(y int, m time.Month, loc *time.Location) time.Time {
	// Day zero of the following month normalizes to the last day of m.
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc)
}

func absDays(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}

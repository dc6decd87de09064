package accrual

import (
	"testing"
	"time"

	"github.com/prestamax/loancore/pkg/models"
	"github.com/shopspring/decimal"
)

func TestNextQuincena(t *testing.T) {
	cases := []struct {
		name string
		asOf time.Time
		want time.Time
	}{
		{"start of month", date(2024, time.January, 1), date(2024, time.January, 15)},
		{"on the 15th", date(2024, time.January, 15), date(2024, time.January, 15)},
		{"after the 15th", date(2024, time.January, 16), date(2024, time.January, 31)},
		{"last day of month", date(2024, time.January, 31), date(2024, time.January, 31)},
		{"february leap year", date(2024, time.February, 20), date(2024, time.February, 29)},
		{"february non leap", date(2023, time.February, 20), date(2023, time.February, 28)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextQuincena(tc.asOf)
			if !got.Equal(tc.want) {
				t.Errorf("NextQuincena(%s) = %s, want %s", tc.asOf.Format("2006-01-02"), got.Format("2006-01-02"), tc.want.Format("2006-01-02"))
			}
		})
	}
}

func TestQuincenaDueDatesMonotonic(t *testing.T) {
	start := date(2023, time.January, 7)
	dues := QuincenaDueDates(start, date(2024, time.December, 31))

	if len(dues) != 48 {
		t.Fatalf("Expected 48 due dates over two years, got %d", len(dues))
	}
	for i, d := range dues {
		if i > 0 && !dues[i-1].Before(d) {
			t.Errorf("Due dates not strictly increasing: %s then %s", dues[i-1], d)
		}
		lastOfMonth := d.AddDate(0, 0, 1).Day() == 1
		if d.Day() != 15 && !lastOfMonth {
			t.Errorf("Due date %s is neither a 15th nor a last day of month", d.Format("2006-01-02"))
		}
	}
}

func TestAccrueNoPayments(t *testing.T) {
	// 1000 at 15% per quincena from 2024-01-01, evaluated 2024-02-20:
	// three missed quincenas (Jan 15, Jan 31, Feb 15) at 150 each, plus
	// 150 for the running period ending Feb 29.
	stmt := Accrue(decimal.NewFromInt(1000), decimal.NewFromInt(15),
		date(2024, time.January, 1), date(2024, time.February, 20), nil)

	if !stmt.CurrentInterest.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Expected current interest 150, got %s", stmt.CurrentInterest)
	}
	if !stmt.ArrearsInterest.Equal(decimal.NewFromInt(450)) {
		t.Errorf("Expected arrears interest 450, got %s", stmt.ArrearsInterest)
	}
	if !stmt.TotalInterestDue.Equal(decimal.NewFromInt(600)) {
		t.Errorf("Expected total interest due 600, got %s", stmt.TotalInterestDue)
	}
	if !stmt.NextDueDate.Equal(date(2024, time.February, 29)) {
		t.Errorf("Expected next due 2024-02-29, got %s", stmt.NextDueDate.Format("2006-01-02"))
	}
	if !stmt.NextDueAmount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Expected next due amount 150, got %s", stmt.NextDueAmount)
	}
	if len(stmt.MissedDueDates) != 3 {
		t.Errorf("Expected 3 missed due dates, got %d", len(stmt.MissedDueDates))
	}
}

func TestAccrueMatchesPaymentWithinTolerance(t *testing.T) {
	payments := []*models.Payment{
		{InterestPaid: decimal.NewFromInt(150), DatePaid: date(2024, time.January, 17)},
	}
	stmt := Accrue(decimal.NewFromInt(1000), decimal.NewFromInt(15),
		date(2024, time.January, 1), date(2024, time.February, 20), payments)

	if !stmt.ArrearsInterest.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Expected arrears 300 after one covered quincena, got %s", stmt.ArrearsInterest)
	}
	if len(stmt.MissedDueDates) != 2 {
		t.Fatalf("Expected 2 missed due dates, got %d", len(stmt.MissedDueDates))
	}
	if !stmt.MissedDueDates[0].Equal(date(2024, time.January, 31)) {
		t.Errorf("Expected oldest missed due 2024-01-31, got %s", stmt.MissedDueDates[0].Format("2006-01-02"))
	}
}

func TestAccrueIgnoresPaymentOutsideToleranceOrTooSmall(t *testing.T) {
	payments := []*models.Payment{
		// Right amount, too far from any due date.
		{InterestPaid: decimal.NewFromInt(150), DatePaid: date(2024, time.January, 5)},
		// Close to Jan 31 but under the quincena amount.
		{InterestPaid: decimal.NewFromInt(100), DatePaid: date(2024, time.January, 30)},
	}
	stmt := Accrue(decimal.NewFromInt(1000), decimal.NewFromInt(15),
		date(2024, time.January, 1), date(2024, time.February, 20), payments)

	if !stmt.ArrearsInterest.Equal(decimal.NewFromInt(450)) {
		t.Errorf("Expected arrears 450 with no matching payments, got %s", stmt.ArrearsInterest)
	}
}

func TestAccruePaymentSettlesSingleDueDate(t *testing.T) {
	// The amount would cover several quincenas, but a single payment
	// settles only the one due date whose window it falls in.
	payments := []*models.Payment{
		{InterestPaid: decimal.NewFromInt(500), DatePaid: date(2024, time.January, 28)},
	}
	stmt := Accrue(decimal.NewFromInt(1000), decimal.NewFromInt(15),
		date(2024, time.January, 1), date(2024, time.February, 20), payments)

	if len(stmt.MissedDueDates) != 2 {
		t.Errorf("Expected 2 missed due dates, got %d", len(stmt.MissedDueDates))
	}
}

func TestAccrueDegenerateInputs(t *testing.T) {
	stmt := Accrue(decimal.Zero, decimal.NewFromInt(15),
		date(2024, time.January, 1), date(2024, time.February, 20), nil)

	if !stmt.TotalInterestDue.IsZero() {
		t.Errorf("Expected zero interest for zero balance, got %s", stmt.TotalInterestDue)
	}
	// The schedule stays well-defined even while dormant.
	if !stmt.NextDueDate.Equal(date(2024, time.February, 29)) {
		t.Errorf("Expected next due 2024-02-29 for dormant loan, got %s", stmt.NextDueDate.Format("2006-01-02"))
	}
}

package accrual

import (
	"testing"
	"time"

	"github.com/prestamax/loancore/pkg/models"
	"github.com/shopspring/decimal"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPeriodRate(t *testing.T) {
	rate := decimal.NewFromInt(24)

	quincenal := PeriodRate(rate, models.BasisQuincenal)
	if !quincenal.Equal(decimal.NewFromFloat(0.01)) {
		t.Errorf("Expected quincenal period rate 0.01, got %s", quincenal)
	}

	mensual := PeriodRate(rate, models.BasisMensual)
	if !mensual.Equal(decimal.NewFromFloat(0.02)) {
		t.Errorf("Expected mensual period rate 0.02, got %s", mensual)
	}

	anual := PeriodRate(rate, models.BasisAnual)
	if !anual.Equal(decimal.NewFromFloat(0.24)) {
		t.Errorf("Expected anual period rate 0.24, got %s", anual)
	}
}

func TestInstallmentZeroRate(t *testing.T) {
	got := Installment(decimal.NewFromInt(1000), decimal.Zero, 4)
	if !got.Equal(decimal.NewFromInt(250)) {
		t.Errorf("Expected installment 250 at zero rate, got %s", got)
	}
}

func TestAmortizeSinglePeriodAnnual(t *testing.T) {
	// With one period the annuity collapses to principal plus one period
	// of interest: 1000 at 12% anual pays back 1120.
	sched := Amortize(decimal.NewFromInt(1000), decimal.NewFromInt(12), 1, models.BasisAnual, date(2024, time.January, 1))

	if !sched.Installment.Equal(decimal.NewFromInt(1120)) {
		t.Errorf("Expected installment 1120, got %s", sched.Installment)
	}
	if !sched.TotalInterest.Equal(decimal.NewFromInt(120)) {
		t.Errorf("Expected total interest 120, got %s", sched.TotalInterest)
	}
	if !sched.MaturityDate.Equal(date(2025, time.January, 1)) {
		t.Errorf("Expected maturity 2025-01-01, got %s", sched.MaturityDate)
	}
	if !sched.NextDueDate.Equal(date(2025, time.January, 1)) {
		t.Errorf("Expected next due 2025-01-01, got %s", sched.NextDueDate)
	}
}

func TestAmortizeMonthlyTwelvePeriods(t *testing.T) {
	principal := decimal.NewFromInt(5000)
	rate := decimal.NewFromInt(15)
	start := date(2024, time.January, 1)

	first := Amortize(principal, rate, 12, models.BasisMensual, start)
	second := Amortize(principal, rate, 12, models.BasisMensual, start)

	if !first.Installment.Equal(second.Installment) {
		t.Errorf("Expected identical installments on repeated calls, got %s and %s", first.Installment, second.Installment)
	}
	if !first.PeriodRate.Equal(decimal.NewFromFloat(0.0125)) {
		t.Errorf("Expected period rate 0.0125, got %s", first.PeriodRate)
	}
	// 5000 at 1.25% per month over 12 months lands just above 451.
	if first.Installment.LessThan(decimal.NewFromInt(451)) || first.Installment.GreaterThan(decimal.NewFromInt(452)) {
		t.Errorf("Expected installment near 451.3, got %s", first.Installment)
	}
	if !first.MaturityDate.Equal(date(2025, time.January, 1)) {
		t.Errorf("Expected maturity 2025-01-01, got %s", first.MaturityDate)
	}
	if !first.NextDueDate.Equal(date(2024, time.February, 1)) {
		t.Errorf("Expected next due 2024-02-01, got %s", first.NextDueDate)
	}
}

func TestAmortizeQuincenalDates(t *testing.T) {
	sched := Amortize(decimal.NewFromInt(1200), decimal.NewFromInt(24), 4, models.BasisQuincenal, date(2024, time.March, 1))

	if !sched.NextDueDate.Equal(date(2024, time.March, 16)) {
		t.Errorf("Expected next due 2024-03-16, got %s", sched.NextDueDate)
	}
	if !sched.MaturityDate.Equal(date(2024, time.April, 30)) {
		t.Errorf("Expected maturity 2024-04-30, got %s", sched.MaturityDate)
	}
}

func TestAmortizeDegenerateInputs(t *testing.T) {
	cases := []struct {
		name      string
		principal decimal.Decimal
		rate      decimal.Decimal
		periods   int
	}{
		{"zero principal", decimal.Zero, decimal.NewFromInt(10), 12},
		{"negative principal", decimal.NewFromInt(-100), decimal.NewFromInt(10), 12},
		{"zero rate", decimal.NewFromInt(1000), decimal.Zero, 12},
		{"zero periods", decimal.NewFromInt(1000), decimal.NewFromInt(10), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sched := Amortize(tc.principal, tc.rate, tc.periods, models.BasisMensual, date(2024, time.January, 1))
			if !sched.Installment.IsZero() || !sched.TotalInterest.IsZero() {
				t.Errorf("Expected all-zero schedule, got installment %s interest %s", sched.Installment, sched.TotalInterest)
			}
		})
	}
}

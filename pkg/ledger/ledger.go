// Package ledger owns the loan state machine: it creates loans, applies
// payments through the gated waterfall, and re-derives status and schedule
// fields from the pure accrual math. All I/O goes through store.Storage;
// the arithmetic itself never blocks.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prestamax/loancore/pkg/accrual"
	"github.com/prestamax/loancore/pkg/allocation"
	"github.com/prestamax/loancore/pkg/models"
	"github.com/prestamax/loancore/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidInput rejects non-positive principal/rate/amount and
	// malformed terms before any computation runs.
	ErrInvalidInput = errors.New("invalid input")
	// ErrLoanNotActive rejects payments and cancellation against settled
	// or cancelled loans.
	ErrLoanNotActive = errors.New("loan is not active")
	// ErrAllocationOverflow signals that part of a payment had nowhere to
	// go. Nothing is persisted; the caller decides whether to refund,
	// hold as credit, or resubmit a smaller amount.
	ErrAllocationOverflow = errors.New("payment exceeds amounts owed")
)

// OverflowError carries the rejected allocation so the caller can see how
// much of the payment was unallocatable.
type OverflowError struct {
	Allocation allocation.Allocation
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("payment exceeds amounts owed: overflow %s", e.Allocation.Overflow.StringFixed(2))
}

func (e *OverflowError) Unwrap() error { return ErrAllocationOverflow }

// Ledger handles the business logic for loans and payments.
type Ledger struct {
	storage     store.Storage
	log         *logrus.Logger
	penaltyRate decimal.Decimal // percent per month
	penaltyCap  decimal.Decimal // percent of balance, <=0 disables
}

// New creates a Ledger over the given Storage. A non-positive penaltyRate
// falls back to the default mora rate.
func New(s store.Storage, log *logrus.Logger, penaltyRate, penaltyCap decimal.Decimal) *Ledger {
	if penaltyRate.LessThanOrEqual(decimal.Zero) {
		penaltyRate = accrual.DefaultMonthlyPenaltyRate
	}
	return &Ledger{storage: s, log: log, penaltyRate: penaltyRate, penaltyCap: penaltyCap}
}

// CreateLoanParams carries everything needed to open a loan. Exactly one of
// OpenEnded or a positive TermPeriods must be set.
type CreateLoanParams struct {
	ClientID     string
	Principal    decimal.Decimal
	InterestRate decimal.Decimal // percent; annual-equivalent for fixed-term, per-quincena for open-ended
	RateBasis    models.RateBasis
	TermPeriods  int
	OpenEnded    bool
	StartDate    time.Time
}

// CreateLoan validates the parameters, computes the initial schedule for
// the loan's regime, and persists the first snapshot with status active.
func (l *Ledger) CreateLoan(p CreateLoanParams) (*models.Loan, error) {
	if p.Principal.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: principal must be positive", ErrInvalidInput)
	}
	if p.InterestRate.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: interest rate must be positive", ErrInvalidInput)
	}
	if p.StartDate.IsZero() {
		return nil, fmt.Errorf("%w: start date is required", ErrInvalidInput)
	}
	if p.OpenEnded && p.TermPeriods > 0 {
		return nil, fmt.Errorf("%w: term and open-ended are mutually exclusive", ErrInvalidInput)
	}
	if !p.OpenEnded && p.TermPeriods <= 0 {
		return nil, fmt.Errorf("%w: either a positive term or the open-ended flag is required", ErrInvalidInput)
	}

	now := time.Now()
	loan := &models.Loan{
		ID:                 uuid.New(),
		ClientID:           p.ClientID,
		Principal:          p.Principal,
		InterestRate:       p.InterestRate,
		PrincipalBalance:   p.Principal,
		InterestDue:        decimal.Zero,
		PenaltyAccrued:     decimal.Zero,
		InterestPaidToDate: decimal.Zero,
		StartDate:          p.StartDate,
		Status:             models.StatusActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if p.OpenEnded {
		loan.RateBasis = models.BasisIndefinite
		loan.Terms = models.OpenEnded()
		stmt := accrual.Accrue(p.Principal, p.InterestRate, p.StartDate, p.StartDate, nil)
		next := stmt.NextDueDate
		loan.NextDueDate = &next
		loan.NextDueAmount = stmt.NextDueAmount
	} else {
		switch p.RateBasis {
		case models.BasisQuincenal, models.BasisMensual, models.BasisAnual:
		default:
			return nil, fmt.Errorf("%w: rate basis %q is not valid for a fixed-term loan", ErrInvalidInput, p.RateBasis)
		}
		loan.RateBasis = p.RateBasis
		sched := accrual.Amortize(p.Principal, p.InterestRate, p.TermPeriods, p.RateBasis, p.StartDate)
		loan.Terms = models.FixedTerm(p.TermPeriods, sched.MaturityDate)
		next := sched.NextDueDate
		loan.NextDueDate = &next
		loan.NextDueAmount = sched.Installment
	}

	// A positive balance with nothing ever coming due is a data-quality
	// error; log and refuse to persist it.
	if loan.PrincipalBalance.GreaterThan(decimal.Zero) && loan.NextDueAmount.LessThanOrEqual(decimal.Zero) {
		l.log.WithFields(logrus.Fields{
			"client_id": p.ClientID,
			"principal": p.Principal,
			"rate":      p.InterestRate,
		}).Error("computed zero next-due amount for positive balance, refusing to persist")
		return nil, fmt.Errorf("%w: loan terms produce a zero installment", ErrInvalidInput)
	}

	if err := l.storage.CreateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	l.log.WithFields(logrus.Fields{
		"loan_id":   loan.ID,
		"client_id": loan.ClientID,
		"kind":      loan.Terms.Kind,
	}).Info("loan created")
	return loan, nil
}

// ApplyPayment recomputes what the loan owes as of asOf, runs the payment
// through the waterfall, and atomically persists the new loan snapshot with
// the immutable payment record. A payment that would overflow is rejected
// without persisting anything. store.ErrConflict means the snapshot went
// stale mid-flight; the caller should retry the whole call, which reloads
// and recomputes against fresh balances.
func (l *Ledger) ApplyPayment(loanID uuid.UUID, amount decimal.Decimal, paidAt, asOf time.Time) (*models.Loan, *models.Payment, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, fmt.Errorf("%w: payment amount must be positive", ErrInvalidInput)
	}
	if paidAt.IsZero() {
		paidAt = asOf
	}

	loan, err := l.storage.LoadLoan(loanID)
	if err != nil {
		return nil, nil, err
	}
	if loan.Status.Terminal() {
		return nil, nil, fmt.Errorf("%w: loan %s is %s", ErrLoanNotActive, loanID, loan.Status)
	}

	payments, err := l.storage.LoadPayments(loanID)
	if err != nil {
		return nil, nil, err
	}

	l.accrue(loan, payments, asOf)

	alloc := allocation.Allocate(amount, allocation.Pending{
		PenaltyDue:       loan.PenaltyAccrued,
		InterestDue:      loan.InterestDue,
		PrincipalBalance: loan.PrincipalBalance,
	})
	if alloc.Overflow.GreaterThan(decimal.Zero) {
		return nil, nil, &OverflowError{Allocation: alloc}
	}

	loan.PrincipalBalance = loan.PrincipalBalance.Sub(alloc.PrincipalPaid)
	loan.InterestDue = loan.InterestDue.Sub(alloc.InterestPaid)
	loan.PenaltyAccrued = loan.PenaltyAccrued.Sub(alloc.PenaltyPaid)
	loan.InterestPaidToDate = loan.InterestPaidToDate.Add(alloc.InterestPaid)

	payment := &models.Payment{
		ID:            uuid.New(),
		LoanID:        loan.ID,
		Amount:        amount,
		PenaltyPaid:   alloc.PenaltyPaid,
		InterestPaid:  alloc.InterestPaid,
		PrincipalPaid: alloc.PrincipalPaid,
		Overflow:      alloc.Overflow,
		DatePaid:      paidAt,
		DateRecorded:  time.Now(),
	}

	l.refreshSchedule(loan, append(payments, payment), asOf)

	payment.BalanceAfter = loan.PrincipalBalance
	payment.InterestDueAfter = loan.InterestDue
	payment.PenaltyAfter = loan.PenaltyAccrued
	loan.UpdatedAt = time.Now()

	if err := l.storage.Commit(loan, payment); err != nil {
		return nil, nil, err
	}

	l.log.WithFields(logrus.Fields{
		"loan_id":        loan.ID,
		"amount":         amount,
		"penalty_paid":   alloc.PenaltyPaid,
		"interest_paid":  alloc.InterestPaid,
		"principal_paid": alloc.PrincipalPaid,
		"balance":        loan.PrincipalBalance,
		"status":         loan.Status,
	}).Info("payment applied")
	return loan, payment, nil
}

// GetLoan returns the loan with status, arrears and schedule fields
// re-derived as of asOf. The reconciled view is not persisted; the sweep
// does that on its own cadence.
func (l *Ledger) GetLoan(id uuid.UUID, asOf time.Time) (*models.Loan, error) {
	loan, err := l.storage.LoadLoan(id)
	if err != nil {
		return nil, err
	}
	if loan.Status.Terminal() {
		return loan, nil
	}
	payments, err := l.storage.LoadPayments(id)
	if err != nil {
		return nil, err
	}
	l.Reconcile(loan, payments, asOf)
	return loan, nil
}

// ListLoans retrieves all loans as stored.
func (l *Ledger) ListLoans() ([]*models.Loan, error) {
	return l.storage.ListLoans()
}

// ListPayments retrieves a loan's payments, oldest first.
func (l *Ledger) ListPayments(loanID uuid.UUID) ([]*models.Payment, error) {
	if _, err := l.storage.LoadLoan(loanID); err != nil {
		return nil, err
	}
	return l.storage.LoadPayments(loanID)
}

// Cancel administratively closes a loan from any non-terminal state.
func (l *Ledger) Cancel(loanID uuid.UUID) (*models.Loan, error) {
	loan, err := l.storage.LoadLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status.Terminal() {
		return nil, fmt.Errorf("%w: loan %s is %s", ErrLoanNotActive, loanID, loan.Status)
	}
	loan.Status = models.StatusCancelled
	loan.NextDueDate = nil
	loan.NextDueAmount = decimal.Zero
	loan.UpdatedAt = time.Now()
	if err := l.storage.UpdateLoan(loan); err != nil {
		return nil, err
	}
	l.log.WithField("loan_id", loan.ID).Info("loan cancelled")
	return loan, nil
}

// Reconcile re-derives the loan's balances, days overdue and status as of
// asOf without applying a payment. It mutates the snapshot in place and
// reports whether anything changed.
func (l *Ledger) Reconcile(loan *models.Loan, payments []*models.Payment, asOf time.Time) bool {
	if loan.Status.Terminal() {
		return false
	}
	before := *loan
	l.accrue(loan, payments, asOf)
	l.refreshSchedule(loan, payments, asOf)
	changed := loan.Status != before.Status ||
		loan.DaysOverdue != before.DaysOverdue ||
		!loan.InterestDue.Equal(before.InterestDue) ||
		!loan.PenaltyAccrued.Equal(before.PenaltyAccrued) ||
		!loan.NextDueAmount.Equal(before.NextDueAmount)
	if changed {
		loan.UpdatedAt = time.Now()
	}
	return changed
}

// ReconcileAll sweeps every active loan, persisting snapshots whose derived
// state moved. Conflicts are logged and skipped; the next sweep catches up.
func (l *Ledger) ReconcileAll(asOf time.Time) {
	loans, err := l.storage.ListActiveLoans()
	if err != nil {
		l.log.WithError(err).Error("failed to list active loans for reconciliation")
		return
	}
	for _, loan := range loans {
		payments, err := l.storage.LoadPayments(loan.ID)
		if err != nil {
			l.log.WithError(err).WithField("loan_id", loan.ID).Error("failed to load payments")
			continue
		}
		if !l.Reconcile(loan, payments, asOf) {
			continue
		}
		if err := l.storage.UpdateLoan(loan); err != nil {
			l.log.WithError(err).WithField("loan_id", loan.ID).Warn("failed to persist reconciled loan")
		}
	}
}

// accrue refreshes what the loan owes as of asOf: arrears interest for
// open-ended loans via the quincena engine, and the mora penalty for both
// regimes. Penalty accrues incrementally: only the days elapsed since the
// last evaluation add to the stored balance, so amounts already paid down
// are not re-charged.
func (l *Ledger) accrue(loan *models.Loan, payments []*models.Payment, asOf time.Time) {
	daysNow := loan.DaysOverdue
	if loan.Terms.OpenEnded() {
		stmt := accrual.Accrue(loan.PrincipalBalance, loan.InterestRate, loan.StartDate, asOf, payments)
		loan.InterestDue = stmt.TotalInterestDue
		daysNow = 0
		if len(stmt.MissedDueDates) > 0 {
			daysNow = accrual.DaysOverdue(stmt.MissedDueDates[0], asOf)
		}
	} else if due := l.fixedDueDate(loan); due != nil {
		daysNow = accrual.DaysOverdue(*due, asOf)
	}

	prev := accrual.Penalty(loan.PrincipalBalance, loan.DaysOverdue, l.penaltyRate)
	curr := accrual.Penalty(loan.PrincipalBalance, daysNow, l.penaltyRate)
	if delta := curr.Sub(prev); delta.GreaterThan(decimal.Zero) {
		loan.PenaltyAccrued = accrual.CapPenalty(loan.PenaltyAccrued.Add(delta), loan.PrincipalBalance, l.penaltyCap)
	}
	loan.DaysOverdue = daysNow
}

// refreshSchedule re-derives status and next-due fields after an accrual or
// payment. Settlement is terminal: a zero balance clears the schedule for
// good.
func (l *Ledger) refreshSchedule(loan *models.Loan, payments []*models.Payment, asOf time.Time) {
	if loan.PrincipalBalance.LessThanOrEqual(decimal.Zero) {
		loan.PrincipalBalance = decimal.Zero
		loan.Status = models.StatusSettled
		loan.NextDueDate = nil
		loan.NextDueAmount = decimal.Zero
		loan.DaysOverdue = 0
		return
	}

	if loan.Terms.OpenEnded() {
		stmt := accrual.Accrue(loan.PrincipalBalance, loan.InterestRate, loan.StartDate, asOf, payments)
		next := stmt.NextDueDate
		loan.NextDueDate = &next
		loan.NextDueAmount = stmt.NextDueAmount
		if len(stmt.MissedDueDates) > 0 {
			loan.Status = models.StatusOverdue
		} else if loan.Status == models.StatusOverdue {
			loan.Status = models.StatusActive
		}
		return
	}

	sched := accrual.Amortize(loan.Principal, loan.InterestRate, loan.Terms.Periods, loan.RateBasis, loan.StartDate)
	next := l.upcomingInstallmentDate(loan, asOf)
	loan.NextDueDate = &next
	loan.NextDueAmount = sched.Installment
	if loan.Terms.MaturityDate != nil && asOf.After(*loan.Terms.MaturityDate) {
		loan.Status = models.StatusOverdue
	} else if loan.Status == models.StatusOverdue || loan.Status == models.StatusPending {
		loan.Status = models.StatusActive
	}
}

// fixedDueDate is the installment date penalties count from: the stored
// next due date, falling back to maturity.
func (l *Ledger) fixedDueDate(loan *models.Loan) *time.Time {
	if loan.NextDueDate != nil {
		return loan.NextDueDate
	}
	return loan.Terms.MaturityDate
}

// upcomingInstallmentDate finds the first scheduled installment date after
// asOf, capped at maturity once the term has run out.
func (l *Ledger) upcomingInstallmentDate(loan *models.Loan, asOf time.Time) time.Time {
	for k := 1; k <= loan.Terms.Periods; k++ {
		d := accrual.AdvancePeriods(loan.StartDate, loan.RateBasis, k)
		if d.After(asOf) {
			return d
		}
	}
	return accrual.AdvancePeriods(loan.StartDate, loan.RateBasis, loan.Terms.Periods)
}

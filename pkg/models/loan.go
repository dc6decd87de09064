package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LoanStatus string

const (
	StatusPending   LoanStatus = "pending"
	StatusActive    LoanStatus = "active"
	StatusOverdue   LoanStatus = "overdue"
	StatusSettled   LoanStatus = "settled"
	StatusCancelled LoanStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s LoanStatus) Terminal() bool {
	return s == StatusSettled || s == StatusCancelled
}

// RateBasis is the period the nominal interest rate is quoted against.
// Fixed-term loans use quincenal/mensual/anual (annual-equivalent rate);
// open-ended loans quote a per-quincena rate and use BasisIndefinite.
type RateBasis string

const (
	BasisQuincenal  RateBasis = "quincenal"
	BasisMensual    RateBasis = "mensual"
	BasisAnual      RateBasis = "anual"
	BasisIndefinite RateBasis = "indefinite"
)

type TermKind string

const (
	TermFixed     TermKind = "fixed"
	TermOpenEnded TermKind = "open_ended"
)

// LoanTerms distinguishes fixed-term loans (a period count and a maturity
// date) from open-ended ones (billed per quincena until paid off, no
// maturity). Exactly one shape is valid per loan.
type LoanTerms struct {
	Kind         TermKind   `json:"kind"`
	Periods      int        `json:"periods,omitempty"`
	MaturityDate *time.Time `json:"maturity_date,omitempty"`
}

// FixedTerm builds terms for a loan repaid over a known number of periods.
func FixedTerm(periods int, maturity time.Time) LoanTerms {
	return LoanTerms{Kind: TermFixed, Periods: periods, MaturityDate: &maturity}
}

// OpenEnded builds terms for a loan with no maturity date.
func OpenEnded() LoanTerms {
	return LoanTerms{Kind: TermOpenEnded}
}

func (t LoanTerms) OpenEnded() bool {
	return t.Kind == TermOpenEnded
}

// Loan is the mutable aggregate the ledger owns. Balances are running
// values as of the last accepted payment or reconciliation; status is
// re-derived on every read and payment.
type Loan struct {
	ID           uuid.UUID       `json:"id"`
	ClientID     string          `json:"client_id"`
	Principal    decimal.Decimal `json:"principal"`
	InterestRate decimal.Decimal `json:"interest_rate"` // percent, per RateBasis
	RateBasis    RateBasis       `json:"rate_basis"`
	Terms        LoanTerms       `json:"terms"`

	PrincipalBalance   decimal.Decimal `json:"principal_balance"`
	InterestDue        decimal.Decimal `json:"interest_due"`
	PenaltyAccrued     decimal.Decimal `json:"penalty_accrued"`
	InterestPaidToDate decimal.Decimal `json:"interest_paid_to_date"`
	DaysOverdue        int             `json:"days_overdue"`

	StartDate     time.Time       `json:"start_date"`
	NextDueDate   *time.Time      `json:"next_due_date,omitempty"`
	NextDueAmount decimal.Decimal `json:"next_due_amount"`

	Status    LoanStatus `json:"status"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

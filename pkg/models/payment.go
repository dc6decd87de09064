package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is an immutable record of one accepted payment and how it was
// split across penalty, interest and principal. The After fields snapshot
// the loan balances that resulted, for audit. A payment never changes once
// written.
type Payment struct {
	ID     uuid.UUID `json:"id"`
	LoanID uuid.UUID `json:"loan_id"`

	Amount        decimal.Decimal `json:"amount"`
	PenaltyPaid   decimal.Decimal `json:"penalty_paid"`
	InterestPaid  decimal.Decimal `json:"interest_paid"`
	PrincipalPaid decimal.Decimal `json:"principal_paid"`
	Overflow      decimal.Decimal `json:"overflow"`

	DatePaid     time.Time `json:"date_paid"`
	DateRecorded time.Time `json:"date_recorded"`

	BalanceAfter     decimal.Decimal `json:"balance_after"`
	InterestDueAfter decimal.Decimal `json:"interest_due_after"`
	PenaltyAfter     decimal.Decimal `json:"penalty_after"`
}

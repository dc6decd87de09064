package store

import (
	"errors"

	"github.com/google/uuid"
	"github.com/prestamax/loancore/pkg/models"
)

var (
	// ErrNotFound is returned when no loan exists for the given id.
	ErrNotFound = errors.New("loan not found")
	// ErrConflict is returned when a write is based on a stale loan
	// snapshot. Callers must reload and recompute, never retry blindly.
	ErrConflict = errors.New("loan modified concurrently")
)

// Storage defines the persistence contract for loans and their payments.
// Loan writes are version-checked so concurrent payments against the same
// loan serialize: the second writer gets ErrConflict instead of clobbering.
type Storage interface {
	CreateLoan(loan *models.Loan) error
	LoadLoan(id uuid.UUID) (*models.Loan, error)
	ListLoans() ([]*models.Loan, error)
	ListActiveLoans() ([]*models.Loan, error)

	// UpdateLoan persists a new snapshot of an existing loan, checking
	// the version it was loaded at. Used for reconciliation and
	// administrative changes that produce no payment.
	UpdateLoan(loan *models.Loan) error

	// LoadPayments returns a loan's payments ordered by date paid
	// ascending.
	LoadPayments(loanID uuid.UUID) ([]*models.Payment, error)

	// Commit atomically writes a new loan snapshot together with the
	// payment that produced it. Both land or neither does; a stale
	// snapshot yields ErrConflict.
	Commit(loan *models.Loan, payment *models.Payment) error

	Close() error
}

package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prestamax/loancore/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists loans and payments in SQLite. Decimal fields are
// stored as TEXT so no precision is lost; every loan row carries a version
// counter used for optimistic concurrency.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database and initializes the schema.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err = db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		principal TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		rate_basis TEXT NOT NULL,
		term_kind TEXT NOT NULL,
		term_periods INTEGER NOT NULL DEFAULT 0,
		maturity_date DATETIME,
		principal_balance TEXT NOT NULL,
		interest_due TEXT NOT NULL DEFAULT '0',
		penalty_accrued TEXT NOT NULL DEFAULT '0',
		interest_paid_to_date TEXT NOT NULL DEFAULT '0',
		days_overdue INTEGER NOT NULL DEFAULT 0,
		start_date DATETIME NOT NULL,
		next_due_date DATETIME,
		next_due_amount TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		penalty_paid TEXT NOT NULL,
		interest_paid TEXT NOT NULL,
		principal_paid TEXT NOT NULL,
		overflow TEXT NOT NULL,
		date_paid DATETIME NOT NULL,
		date_recorded DATETIME NOT NULL,
		balance_after TEXT NOT NULL,
		interest_due_after TEXT NOT NULL,
		penalty_after TEXT NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const loanColumns = `id, client_id, principal, interest_rate, rate_basis, term_kind, term_periods, maturity_date, principal_balance, interest_due, penalty_accrued, interest_paid_to_date, days_overdue, start_date, next_due_date, next_due_amount, status, version, created_at, updated_at`

// CreateLoan inserts a new loan at version 1.
func (s *SQLiteStore) CreateLoan(loan *models.Loan) error {
	loan.Version = 1
	_, err := s.db.Exec(
		`INSERT INTO loans (`+loanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.ClientID, loan.Principal, loan.InterestRate, loan.RateBasis,
		loan.Terms.Kind, loan.Terms.Periods, nullableTime(loan.Terms.MaturityDate),
		loan.PrincipalBalance, loan.InterestDue, loan.PenaltyAccrued, loan.InterestPaidToDate,
		loan.DaysOverdue, loan.StartDate, nullableTime(loan.NextDueDate), loan.NextDueAmount,
		loan.Status, loan.Version, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// LoadLoan retrieves a loan by its id.
func (s *SQLiteStore) LoadLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// ListLoans retrieves all loans.
func (s *SQLiteStore) ListLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT ` + loanColumns + ` FROM loans`)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()
	return scanLoans(rows)
}

// ListActiveLoans retrieves loans that still require accrual: active or
// overdue.
func (s *SQLiteStore) ListActiveLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT `+loanColumns+` FROM loans WHERE status IN (?, ?)`,
		models.StatusActive, models.StatusOverdue)
	if err != nil {
		return nil, fmt.Errorf("failed to list active loans: %w", err)
	}
	defer rows.Close()
	return scanLoans(rows)
}

// UpdateLoan writes a new snapshot of the loan, bumping its version. The
// write only lands if the row still carries the version this snapshot was
// loaded at; otherwise ErrConflict (or ErrNotFound if the row is gone).
func (s *SQLiteStore) UpdateLoan(loan *models.Loan) error {
	res, err := s.updateLoanExec(s.db, loan)
	if err != nil {
		return err
	}
	if err := s.checkWrite(res, loan.ID); err != nil {
		return err
	}
	loan.Version++
	return nil
}

// LoadPayments retrieves all payments for a loan, oldest paid first.
func (s *SQLiteStore) LoadPayments(loanID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, amount, penalty_paid, interest_paid, principal_paid, overflow, date_paid, date_recorded, balance_after, interest_due_after, penalty_after
		FROM payments WHERE loan_id = ? ORDER BY date_paid ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		var p models.Payment
		var idStr, loanIDStr string
		if err := rows.Scan(&idStr, &loanIDStr, &p.Amount, &p.PenaltyPaid, &p.InterestPaid, &p.PrincipalPaid, &p.Overflow,
			&p.DatePaid, &p.DateRecorded, &p.BalanceAfter, &p.InterestDueAfter, &p.PenaltyAfter); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		p.ID = uuid.MustParse(idStr)
		p.LoanID = uuid.MustParse(loanIDStr)
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for loan payments: %w", err)
	}
	return payments, nil
}

// Commit writes the new loan snapshot and its causing payment in one
// transaction. The loan update is version-checked, so a payment computed
// against a stale snapshot rolls back with ErrConflict and nothing is
// persisted.
func (s *SQLiteStore) Commit(loan *models.Loan, payment *models.Payment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := s.updateLoanExec(tx, loan)
	if err != nil {
		return err
	}
	if err := s.checkWrite(res, loan.ID); err != nil {
		return err
	}

	_, err = tx.Exec(
		`INSERT INTO payments (id, loan_id, amount, penalty_paid, interest_paid, principal_paid, overflow, date_paid, date_recorded, balance_after, interest_due_after, penalty_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID.String(), payment.LoanID.String(), payment.Amount,
		payment.PenaltyPaid, payment.InterestPaid, payment.PrincipalPaid, payment.Overflow,
		payment.DatePaid, payment.DateRecorded,
		payment.BalanceAfter, payment.InterestDueAfter, payment.PenaltyAfter,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment: %w", err)
	}
	loan.Version++
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// updateLoanExec writes the snapshot at version+1, guarded on the version
// the snapshot was loaded at. loan.Version is bumped by the caller once the
// whole write is known to have landed.
func (s *SQLiteStore) updateLoanExec(e execer, loan *models.Loan) (sql.Result, error) {
	res, err := e.Exec(
		`UPDATE loans SET client_id = ?, principal = ?, interest_rate = ?, rate_basis = ?, term_kind = ?, term_periods = ?, maturity_date = ?, principal_balance = ?, interest_due = ?, penalty_accrued = ?, interest_paid_to_date = ?, days_overdue = ?, start_date = ?, next_due_date = ?, next_due_amount = ?, status = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		loan.ClientID, loan.Principal, loan.InterestRate, loan.RateBasis,
		loan.Terms.Kind, loan.Terms.Periods, nullableTime(loan.Terms.MaturityDate),
		loan.PrincipalBalance, loan.InterestDue, loan.PenaltyAccrued, loan.InterestPaidToDate,
		loan.DaysOverdue, loan.StartDate, nullableTime(loan.NextDueDate), loan.NextDueAmount,
		loan.Status, loan.Version+1, loan.UpdatedAt,
		loan.ID.String(), loan.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update loan: %w", err)
	}
	return res, nil
}

// checkWrite maps a zero-row UPDATE to ErrConflict or ErrNotFound.
func (s *SQLiteStore) checkWrite(res sql.Result, id uuid.UUID) error {
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM loans WHERE id = ?`, id.String()).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check loan existence: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var idStr, termKind string
	var maturity, nextDue sql.NullTime
	err := row.Scan(&idStr, &loan.ClientID, &loan.Principal, &loan.InterestRate, &loan.RateBasis,
		&termKind, &loan.Terms.Periods, &maturity,
		&loan.PrincipalBalance, &loan.InterestDue, &loan.PenaltyAccrued, &loan.InterestPaidToDate,
		&loan.DaysOverdue, &loan.StartDate, &nextDue, &loan.NextDueAmount,
		&loan.Status, &loan.Version, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	loan.ID = uuid.MustParse(idStr)
	loan.Terms.Kind = models.TermKind(termKind)
	if maturity.Valid {
		t := maturity.Time
		loan.Terms.MaturityDate = &t
	}
	if nextDue.Valid {
		t := nextDue.Time
		loan.NextDueDate = &t
	}
	return &loan, nil
}

func scanLoans(rows *sql.Rows) ([]*models.Loan, error) {
	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

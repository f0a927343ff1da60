package loan

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/repslend/repslend/internal/settlement"
)

var (
	// ErrLoanNotFound indicates no loan matched the id.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrLoanExists indicates the application is already funded.
	ErrLoanExists = errors.New("loan already exists for application")

	// ErrLoanClosed indicates the loan is in a terminal state.
	ErrLoanClosed = errors.New("loan is closed or defaulted")
)

// Repository persists funded loans and their payment logs.
type Repository interface {
	Create(ctx context.Context, l Loan) error
	Get(ctx context.Context, id string) (Loan, error)
	GetByApplication(ctx context.Context, applicationID string) (Loan, error)
	Update(ctx context.Context, l Loan) error
	ListByLender(ctx context.Context, lenderID string) ([]Loan, error)
	ListAll(ctx context.Context) ([]Loan, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed loan repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const loanColumns = `id, application_id, holder_key, lender_id, product_id, principal,
        remaining, interest_rate, term_months, monthly_payment, schedule, payments,
        missed_count, status, created_at`

func (r *PostgresRepository) Create(ctx context.Context, l Loan) error {
	schedule, err := json.Marshal(l.Schedule)
	if err != nil {
		return err
	}
	payments, err := json.Marshal(l.Payments)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO loans (`+loanColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		l.ID, l.ApplicationID, l.HolderKey, l.LenderID, l.ProductID, l.Principal,
		l.Remaining, l.InterestRate, l.TermMonths, l.MonthlyPayment, schedule, payments,
		l.MissedCount, l.Status, l.CreatedAt.UTC())
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Loan, error) {
	row := r.db.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
	return scanLoan(row)
}

func (r *PostgresRepository) GetByApplication(ctx context.Context, applicationID string) (Loan, error) {
	row := r.db.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE application_id = $1`, applicationID)
	return scanLoan(row)
}

// Update overwrites the mutable loan fields. The payment log is stored whole;
// callers only ever append to it.
func (r *PostgresRepository) Update(ctx context.Context, l Loan) error {
	payments, err := json.Marshal(l.Payments)
	if err != nil {
		return err
	}
	cmd, err := r.db.Exec(ctx, `UPDATE loans SET
        remaining = $2, payments = $3, missed_count = $4, status = $5
        WHERE id = $1`,
		l.ID, l.Remaining, payments, l.MissedCount, l.Status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrLoanNotFound
	}
	return nil
}

func (r *PostgresRepository) ListByLender(ctx context.Context, lenderID string) ([]Loan, error) {
	rows, err := r.db.Query(ctx, `SELECT `+loanColumns+` FROM loans
        WHERE lender_id = $1 ORDER BY created_at`, lenderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLoans(rows)
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]Loan, error) {
	rows, err := r.db.Query(ctx, `SELECT `+loanColumns+` FROM loans ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLoans(rows)
}

func collectLoans(rows pgx.Rows) ([]Loan, error) {
	var loans []Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

func scanLoan(row pgx.Row) (Loan, error) {
	var (
		l        Loan
		schedule []byte
		payments []byte
	)
	err := row.Scan(&l.ID, &l.ApplicationID, &l.HolderKey, &l.LenderID, &l.ProductID,
		&l.Principal, &l.Remaining, &l.InterestRate, &l.TermMonths, &l.MonthlyPayment,
		&schedule, &payments, &l.MissedCount, &l.Status, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Loan{}, ErrLoanNotFound
		}
		return Loan{}, err
	}
	if err := json.Unmarshal(schedule, &l.Schedule); err != nil {
		return Loan{}, err
	}
	if err := json.Unmarshal(payments, &l.Payments); err != nil {
		return Loan{}, err
	}
	if l.Schedule == nil {
		l.Schedule = []settlement.Installment{}
	}
	if l.Payments == nil {
		l.Payments = []Payment{}
	}
	return l, nil
}

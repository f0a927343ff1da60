package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists settlement instructions as balanced double-entry
// postings in PostgreSQL.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed settlement ledger.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureAccount guarantees a settlement account row exists for the code.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, code string) error {
	_, err := l.db.Exec(ctx, `INSERT INTO settlement_accounts (id, code) VALUES ($1, $2)
        ON CONFLICT (code) DO NOTHING`, uuid.New(), code)
	return err
}

// Disburse moves principal from the suspense account to the loan account in
// one transaction, keyed idempotently by application id.
func (l *PostgresLedger) Disburse(ctx context.Context, applicationID string, principal int64, schedule []Installment) (Disbursement, error) {
	if principal <= 0 {
		return Disbursement{}, ErrInsufficientFunds
	}
	if len(schedule) == 0 {
		return Disbursement{}, fmt.Errorf("empty repayment schedule")
	}
	scheduleJSON, err := json.Marshal(schedule)
	if err != nil {
		return Disbursement{}, err
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Disbursement{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var existing Disbursement
	err = tx.QueryRow(ctx, `SELECT id, principal, status FROM settlement_instructions
        WHERE application_id = $1`, applicationID).
		Scan(&existing.InstructionID, &existing.Principal, &existing.Status)
	if err == nil {
		existing.ApplicationID = applicationID
		return existing, ErrDuplicateInstruction
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Disbursement{}, err
	}

	suspenseID, err := lockAccount(ctx, tx, DisbursementSuspenseAccount)
	if err != nil {
		return Disbursement{}, err
	}
	loanID, err := ensureLockedAccount(ctx, tx, loanAccount(applicationID))
	if err != nil {
		return Disbursement{}, err
	}

	balance, err := accountBalance(ctx, tx, suspenseID)
	if err != nil {
		return Disbursement{}, err
	}
	if balance < principal {
		return Disbursement{}, ErrInsufficientFunds
	}

	instructionID := uuid.New()
	_, err = tx.Exec(ctx, `INSERT INTO settlement_instructions
        (id, application_id, principal, schedule, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		instructionID, applicationID, principal, scheduleJSON, StatusConfirmed, time.Now().UTC())
	if err != nil {
		return Disbursement{}, err
	}
	if err := post(ctx, tx, instructionID, suspenseID, -principal); err != nil {
		return Disbursement{}, err
	}
	if err := post(ctx, tx, instructionID, loanID, principal); err != nil {
		return Disbursement{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Disbursement{}, err
	}

	return Disbursement{
		InstructionID: instructionID.String(),
		ApplicationID: applicationID,
		Principal:     principal,
		Status:        StatusConfirmed,
	}, nil
}

// ConfirmPayment posts a repayment from the loan account back to suspense,
// deduplicated on (loan id, confirmation timestamp).
func (l *PostgresLedger) ConfirmPayment(ctx context.Context, loanID string, amount int64, at time.Time) (PaymentAck, error) {
	if amount <= 0 {
		return PaymentAck{}, fmt.Errorf("amount must be positive")
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return PaymentAck{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	at = at.UTC()
	var existingID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM settlement_payments
        WHERE loan_id = $1 AND confirmed_at = $2`, loanID, at).Scan(&existingID)
	if err == nil {
		return PaymentAck{PaymentID: existingID.String(), LoanID: loanID, Amount: amount, At: at},
			ErrDuplicatePayment
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return PaymentAck{}, err
	}

	loanAccountID, err := ensureLockedAccount(ctx, tx, loanAccount(loanID))
	if err != nil {
		return PaymentAck{}, err
	}
	suspenseID, err := lockAccount(ctx, tx, DisbursementSuspenseAccount)
	if err != nil {
		return PaymentAck{}, err
	}

	paymentID := uuid.New()
	_, err = tx.Exec(ctx, `INSERT INTO settlement_payments (id, loan_id, amount, confirmed_at)
        VALUES ($1, $2, $3, $4)`, paymentID, loanID, amount, at)
	if err != nil {
		return PaymentAck{}, err
	}
	if err := post(ctx, tx, paymentID, loanAccountID, -amount); err != nil {
		return PaymentAck{}, err
	}
	if err := post(ctx, tx, paymentID, suspenseID, amount); err != nil {
		return PaymentAck{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return PaymentAck{}, err
	}

	return PaymentAck{PaymentID: paymentID.String(), LoanID: loanID, Amount: amount, At: at}, nil
}

func lockAccount(ctx context.Context, tx pgx.Tx, code string) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM settlement_accounts WHERE code = $1 FOR UPDATE`, code).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("settlement account %s not found", code)
		}
		return uuid.Nil, err
	}
	return id, nil
}

func ensureLockedAccount(ctx context.Context, tx pgx.Tx, code string) (uuid.UUID, error) {
	_, err := tx.Exec(ctx, `INSERT INTO settlement_accounts (id, code) VALUES ($1, $2)
        ON CONFLICT (code) DO NOTHING`, uuid.New(), code)
	if err != nil {
		return uuid.Nil, err
	}
	return lockAccount(ctx, tx, code)
}

func accountBalance(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM settlement_entries
        WHERE account_id = $1`, accountID).Scan(&balance)
	return balance, err
}

func post(ctx context.Context, tx pgx.Tx, refID, accountID uuid.UUID, amount int64) error {
	_, err := tx.Exec(ctx, `INSERT INTO settlement_entries (id, reference_id, account_id, amount)
        VALUES ($1, $2, $3, $4)`, uuid.New(), refID, accountID, amount)
	return err
}

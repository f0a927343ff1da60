package settlement

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateInstruction indicates the application already has a
	// disbursement instruction; the operation is idempotent.
	ErrDuplicateInstruction = errors.New("duplicate settlement instruction")

	// ErrInsufficientFunds occurs when the disbursement suspense account
	// lacks available balance to cover the principal.
	ErrInsufficientFunds = errors.New("insufficient settlement funds")

	// ErrDuplicatePayment indicates the payment was already confirmed.
	ErrDuplicatePayment = errors.New("duplicate payment confirmation")

	// ErrSettlementTimeout indicates the ledger did not confirm within the
	// configured window; the caller must not advance state.
	ErrSettlementTimeout = errors.New("settlement confirmation timed out")
)

const (
	// StatusPendingConfirmation marks an instruction awaiting ledger confirmation.
	StatusPendingConfirmation = "pending_confirmation"
	// StatusConfirmed marks a confirmed instruction.
	StatusConfirmed = "confirmed"
	// DisbursementSuspenseAccount parks lender funds pre-disbursement.
	DisbursementSuspenseAccount = "suspense:disbursement"
)

// Installment is one scheduled repayment the ledger is instructed about.
type Installment struct {
	Seq    int       `json:"seq"`
	Due    time.Time `json:"due"`
	Amount int64     `json:"amount"`
}

// Disbursement captures the outcome of a disbursement instruction.
type Disbursement struct {
	InstructionID string
	ApplicationID string
	Principal     int64
	Status        string
}

// PaymentAck acknowledges one confirmed repayment.
type PaymentAck struct {
	PaymentID string
	LoanID    string
	Amount    int64
	At        time.Time
}

// Ledger is the external settlement layer boundary. The core only emits
// well-formed instructions and consumes confirmations; it never assumes
// synchronous completion beyond what the context allows.
type Ledger interface {
	Disburse(ctx context.Context, applicationID string, principal int64, schedule []Installment) (Disbursement, error)
	ConfirmPayment(ctx context.Context, loanID string, amount int64, at time.Time) (PaymentAck, error)
}

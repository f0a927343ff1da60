package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryLedger struct {
	mu            sync.RWMutex
	balances      map[string]int64
	disbursements map[string]Disbursement
	payments      map[string]PaymentAck
}

// NewInMemory creates a concurrency-safe in-memory settlement ledger for
// development mode and unit tests.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		balances:      map[string]int64{DisbursementSuspenseAccount: 0},
		disbursements: make(map[string]Disbursement),
		payments:      make(map[string]PaymentAck),
	}
}

func loanAccount(loanID string) string {
	return "loan:" + loanID
}

func (l *inMemoryLedger) Disburse(_ context.Context, applicationID string, principal int64, schedule []Installment) (Disbursement, error) {
	if principal <= 0 {
		return Disbursement{}, ErrInsufficientFunds
	}
	if len(schedule) == 0 {
		return Disbursement{}, fmt.Errorf("empty repayment schedule")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, exists := l.disbursements[applicationID]; exists {
		return existing, ErrDuplicateInstruction
	}

	if l.balances[DisbursementSuspenseAccount] < principal {
		return Disbursement{}, ErrInsufficientFunds
	}

	l.balances[DisbursementSuspenseAccount] -= principal
	l.balances[loanAccount(applicationID)] += principal

	instruction := Disbursement{
		InstructionID: uuid.NewString(),
		ApplicationID: applicationID,
		Principal:     principal,
		Status:        StatusConfirmed,
	}
	l.disbursements[applicationID] = instruction
	return instruction, nil
}

func (l *inMemoryLedger) ConfirmPayment(_ context.Context, loanID string, amount int64, at time.Time) (PaymentAck, error) {
	if amount <= 0 {
		return PaymentAck{}, fmt.Errorf("amount must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := fmt.Sprintf("%s:%d", loanID, at.UTC().UnixNano())
	if existing, exists := l.payments[key]; exists {
		return existing, ErrDuplicatePayment
	}

	l.balances[loanAccount(loanID)] -= amount
	l.balances[DisbursementSuspenseAccount] += amount

	ack := PaymentAck{
		PaymentID: uuid.NewString(),
		LoanID:    loanID,
		Amount:    amount,
		At:        at.UTC(),
	}
	l.payments[key] = ack
	return ack, nil
}

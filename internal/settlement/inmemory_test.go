package settlement

import (
	"context"
	"errors"
	"testing"
	"time"
)

func schedule(n int, amount int64) []Installment {
	installments := make([]Installment, n)
	due := time.Now().UTC()
	for i := range installments {
		due = due.AddDate(0, 1, 0)
		installments[i] = Installment{Seq: i + 1, Due: due, Amount: amount}
	}
	return installments
}

func TestDisburseMovesFundsFromSuspense(t *testing.T) {
	l := NewInMemory()
	SeedFunds(l, 100_000)
	ctx := context.Background()

	instruction, err := l.Disburse(ctx, "app-1", 15_000, schedule(12, 1_300))
	if err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if instruction.InstructionID == "" || instruction.Status != StatusConfirmed {
		t.Fatalf("unexpected instruction: %+v", instruction)
	}

	if got := Balance(l, DisbursementSuspenseAccount); got != 85_000 {
		t.Fatalf("expected suspense 85000, got %d", got)
	}
	if got := Balance(l, "loan:app-1"); got != 15_000 {
		t.Fatalf("expected loan account 15000, got %d", got)
	}
}

func TestDisburseIdempotentPerApplication(t *testing.T) {
	l := NewInMemory()
	SeedFunds(l, 100_000)
	ctx := context.Background()

	first, err := l.Disburse(ctx, "app-1", 15_000, schedule(12, 1_300))
	if err != nil {
		t.Fatalf("disburse: %v", err)
	}

	again, err := l.Disburse(ctx, "app-1", 15_000, schedule(12, 1_300))
	if !errors.Is(err, ErrDuplicateInstruction) {
		t.Fatalf("expected ErrDuplicateInstruction, got %v", err)
	}
	if again.InstructionID != first.InstructionID {
		t.Fatalf("duplicate must return the original instruction, got %s", again.InstructionID)
	}

	if got := Balance(l, DisbursementSuspenseAccount); got != 85_000 {
		t.Fatalf("duplicate must not move funds twice, suspense %d", got)
	}
}

func TestDisburseInsufficientFunds(t *testing.T) {
	l := NewInMemory()
	SeedFunds(l, 1_000)

	if _, err := l.Disburse(context.Background(), "app-1", 15_000, schedule(12, 1_300)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestConfirmPaymentIdempotent(t *testing.T) {
	l := NewInMemory()
	SeedFunds(l, 100_000)
	ctx := context.Background()

	if _, err := l.Disburse(ctx, "app-1", 15_000, schedule(12, 1_300)); err != nil {
		t.Fatalf("disburse: %v", err)
	}

	at := time.Now().UTC()
	ack, err := l.ConfirmPayment(ctx, "app-1", 1_300, at)
	if err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	if ack.Amount != 1_300 {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	if _, err := l.ConfirmPayment(ctx, "app-1", 1_300, at); !errors.Is(err, ErrDuplicatePayment) {
		t.Fatalf("expected ErrDuplicatePayment, got %v", err)
	}

	if got := Balance(l, "loan:app-1"); got != 13_700 {
		t.Fatalf("expected loan account 13700, got %d", got)
	}
}

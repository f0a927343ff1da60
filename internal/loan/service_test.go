package loan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/repslend/repslend/internal/logging"
	"github.com/repslend/repslend/internal/settlement"
)

func testService(t *testing.T) (*Service, settlement.Ledger) {
	t.Helper()
	ledger := settlement.NewInMemory()
	settlement.SeedFunds(ledger, 10_000_000)
	return NewService(NewMemoryRepository(), ledger, nil, 3, logging.Discard()), ledger
}

func openInput() OpenInput {
	return OpenInput{
		ApplicationID: "app-1",
		HolderKey:     "a1b2c3",
		LenderID:      "protocol-bank",
		ProductID:     "prod-1",
		Principal:     1_000_000,
		InterestRate:  12.0,
		TermMonths:    12,
	}
}

func TestMonthlyPaymentAmortization(t *testing.T) {
	// $10,000 at 12% APR over 12 months: fixed payment of $888.49.
	if got := MonthlyPayment(1_000_000, 12.0, 12); got != 88_849 {
		t.Fatalf("expected monthly payment 88849, got %d", got)
	}
	if got := MonthlyPayment(120_000, 0, 12); got != 10_000 {
		t.Fatalf("zero-rate payment should be principal/term, got %d", got)
	}
}

func TestBuildScheduleSumsToTotalPayable(t *testing.T) {
	schedule := BuildSchedule(1_000_000, 12.0, 12, time.Now())
	if len(schedule) != 12 {
		t.Fatalf("expected 12 installments, got %d", len(schedule))
	}
	var sum int64
	for i, inst := range schedule {
		if inst.Seq != i+1 {
			t.Fatalf("installment %d has seq %d", i, inst.Seq)
		}
		sum += inst.Amount
	}
	if want := MonthlyPayment(1_000_000, 12.0, 12) * 12; sum != want {
		t.Fatalf("schedule sums to %d, want %d", sum, want)
	}
}

func TestOpenIsIdempotentPerApplication(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	first, err := svc.Open(ctx, openInput())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if first.Status != StatusActive || first.Remaining != first.Principal {
		t.Fatalf("unexpected loan: %+v", first)
	}

	again, err := svc.Open(ctx, openInput())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("open must be idempotent per application, got %s and %s", first.ID, again.ID)
	}
}

func TestRecordPaymentDecreasesRemainingAndCloses(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	input := openInput()
	input.Principal = 2_000
	input.InterestRate = 0
	input.TermMonths = 2
	l, err := svc.Open(ctx, input)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	l, err = svc.RecordPayment(ctx, l.ID, 1_000, time.Now())
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if l.Remaining != 1_000 || l.Status != StatusActive {
		t.Fatalf("unexpected loan after first payment: %+v", l)
	}

	// Overpayment is clamped to the remaining balance and closes the loan.
	l, err = svc.RecordPayment(ctx, l.ID, 5_000, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("final payment: %v", err)
	}
	if l.Remaining != 0 || l.Status != StatusClosed {
		t.Fatalf("expected closed loan at zero, got %+v", l)
	}
	if len(l.Payments) != 2 || l.Payments[1].Amount != 1_000 {
		t.Fatalf("unexpected payment log: %+v", l.Payments)
	}

	if _, err := svc.RecordPayment(ctx, l.ID, 100, time.Now()); !errors.Is(err, ErrLoanClosed) {
		t.Fatalf("expected ErrLoanClosed, got %v", err)
	}
}

func TestRecordPaymentRejectsDuplicateConfirmation(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	l, err := svc.Open(ctx, openInput())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	at := time.Now()
	if _, err := svc.RecordPayment(ctx, l.ID, 1_000, at); err != nil {
		t.Fatalf("payment: %v", err)
	}
	if _, err := svc.RecordPayment(ctx, l.ID, 1_000, at); !errors.Is(err, settlement.ErrDuplicatePayment) {
		t.Fatalf("expected ErrDuplicatePayment, got %v", err)
	}

	l, err = svc.Get(ctx, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(l.Payments) != 1 || l.Remaining != l.Principal-1_000 {
		t.Fatalf("duplicate confirmation must not mutate the loan: %+v", l)
	}
}

func TestMissedPaymentsDefaultAtThreshold(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	l, err := svc.Open(ctx, openInput())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for i := 0; i < 2; i++ {
		if l, err = svc.RecordMissedPayment(ctx, l.ID); err != nil {
			t.Fatalf("miss %d: %v", i+1, err)
		}
		if l.Status != StatusActive {
			t.Fatalf("loan defaulted too early at miss %d", i+1)
		}
	}

	// A payment resets the consecutive-miss counter.
	if l, err = svc.RecordPayment(ctx, l.ID, 1_000, time.Now()); err != nil {
		t.Fatalf("payment: %v", err)
	}
	if l.MissedCount != 0 {
		t.Fatalf("payment should reset missed count, got %d", l.MissedCount)
	}

	for i := 0; i < 3; i++ {
		if l, err = svc.RecordMissedPayment(ctx, l.ID); err != nil {
			t.Fatalf("miss %d: %v", i+1, err)
		}
	}
	if l.Status != StatusDefaulted {
		t.Fatalf("expected defaulted loan after threshold, got %s", l.Status)
	}
}

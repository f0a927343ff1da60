package settlement

import (
	"context"
	"time"
)

// SeedFunds is a test helper that seeds the disbursement suspense account
// when using the in-memory ledger.
func SeedFunds(l Ledger, amount int64) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[DisbursementSuspenseAccount] = amount
	}
}

// Balance is a test helper exposing an account balance of the in-memory ledger.
func Balance(l Ledger, account string) int64 {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.RLock()
		defer mem.mu.RUnlock()
		return mem.balances[account]
	}
	return 0
}

// StalledLedger simulates a settlement layer that never confirms: every call
// blocks until the context expires. Used to exercise timeout handling.
type StalledLedger struct{}

func (StalledLedger) Disburse(ctx context.Context, _ string, _ int64, _ []Installment) (Disbursement, error) {
	<-ctx.Done()
	return Disbursement{}, ctx.Err()
}

func (StalledLedger) ConfirmPayment(ctx context.Context, _ string, _ int64, _ time.Time) (PaymentAck, error) {
	<-ctx.Done()
	return PaymentAck{}, ctx.Err()
}

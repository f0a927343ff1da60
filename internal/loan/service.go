package loan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/repslend/repslend/internal/notification"
	"github.com/repslend/repslend/internal/settlement"
)

// Service manages funded loans: creation on funding, the append-only payment
// log, and the missed-payment default threshold.
type Service struct {
	repo               Repository
	ledger             settlement.Ledger
	notifier           notification.Notifier
	defaultAfterMissed int
	logger             *slog.Logger
	now                func() time.Time
}

// NewService builds a loan service. defaultAfterMissed is the number of
// consecutive missed payments after which a loan defaults.
func NewService(repo Repository, ledger settlement.Ledger, notifier notification.Notifier, defaultAfterMissed int, logger *slog.Logger) *Service {
	return &Service{
		repo:               repo,
		ledger:             ledger,
		notifier:           notifier,
		defaultAfterMissed: defaultAfterMissed,
		logger:             logger,
		now:                time.Now,
	}
}

// OpenInput carries the approved application terms a loan is opened with.
type OpenInput struct {
	ApplicationID string
	HolderKey     string
	LenderID      string
	ProductID     string
	Principal     int64
	InterestRate  float64
	TermMonths    int
}

// Open records a funded loan with its amortized schedule. The disbursement
// itself is the caller's responsibility; Open is idempotent per application.
func (s *Service) Open(ctx context.Context, input OpenInput) (Loan, error) {
	if input.Principal <= 0 {
		return Loan{}, fmt.Errorf("principal must be positive")
	}
	if input.TermMonths <= 0 {
		return Loan{}, fmt.Errorf("term must be positive")
	}

	if existing, err := s.repo.GetByApplication(ctx, input.ApplicationID); err == nil {
		return existing, nil
	}

	createdAt := s.now().UTC()
	l := Loan{
		ID:             uuid.NewString(),
		ApplicationID:  input.ApplicationID,
		HolderKey:      input.HolderKey,
		LenderID:       input.LenderID,
		ProductID:      input.ProductID,
		Principal:      input.Principal,
		Remaining:      input.Principal,
		InterestRate:   input.InterestRate,
		TermMonths:     input.TermMonths,
		MonthlyPayment: MonthlyPayment(input.Principal, input.InterestRate, input.TermMonths),
		Schedule:       BuildSchedule(input.Principal, input.InterestRate, input.TermMonths, createdAt),
		Payments:       []Payment{},
		Status:         StatusActive,
		CreatedAt:      createdAt,
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return Loan{}, fmt.Errorf("create loan: %w", err)
	}

	s.logger.Info("loan opened", "loan_id", l.ID, "application_id", l.ApplicationID, "principal", l.Principal)
	return l, nil
}

// RecordPayment confirms a repayment with the settlement layer and appends it
// to the payment log. Remaining never increases; the loan closes at zero.
func (s *Service) RecordPayment(ctx context.Context, loanID string, amount int64, at time.Time) (Loan, error) {
	l, err := s.repo.Get(ctx, loanID)
	if err != nil {
		return Loan{}, err
	}
	if l.Status != StatusActive {
		return Loan{}, ErrLoanClosed
	}
	if amount <= 0 {
		return Loan{}, fmt.Errorf("amount must be positive")
	}
	if amount > l.Remaining {
		amount = l.Remaining
	}

	ack, err := s.ledger.ConfirmPayment(ctx, l.ID, amount, at)
	if err != nil {
		return Loan{}, fmt.Errorf("confirm payment: %w", err)
	}

	l.Payments = append(l.Payments, Payment{ID: ack.PaymentID, Amount: amount, At: ack.At})
	l.Remaining -= amount
	l.MissedCount = 0
	if l.Remaining == 0 {
		l.Status = StatusClosed
	}
	if err := s.repo.Update(ctx, l); err != nil {
		return Loan{}, err
	}

	s.logger.Info("payment recorded", "loan_id", l.ID, "amount", amount, "remaining", l.Remaining, "status", l.Status)
	s.notify(ctx, notification.KindPayment, l.HolderKey,
		fmt.Sprintf("payment of %d recorded, %d remaining", amount, l.Remaining))
	return l, nil
}

// RecordMissedPayment increments the missed-payment counter and defaults the
// loan once the threshold is crossed.
func (s *Service) RecordMissedPayment(ctx context.Context, loanID string) (Loan, error) {
	l, err := s.repo.Get(ctx, loanID)
	if err != nil {
		return Loan{}, err
	}
	if l.Status != StatusActive {
		return Loan{}, ErrLoanClosed
	}

	l.MissedCount++
	if l.MissedCount >= s.defaultAfterMissed {
		l.Status = StatusDefaulted
		s.logger.Warn("loan defaulted", "loan_id", l.ID, "missed", l.MissedCount)
	}
	if err := s.repo.Update(ctx, l); err != nil {
		return Loan{}, err
	}
	return l, nil
}

// Get returns a loan by id.
func (s *Service) Get(ctx context.Context, loanID string) (Loan, error) {
	return s.repo.Get(ctx, loanID)
}

// ByApplication returns the loan funded for an application, if any.
func (s *Service) ByApplication(ctx context.Context, applicationID string) (Loan, error) {
	return s.repo.GetByApplication(ctx, applicationID)
}

// ListByLender returns a lender's loans ordered by creation time.
func (s *Service) ListByLender(ctx context.Context, lenderID string) ([]Loan, error) {
	return s.repo.ListByLender(ctx, lenderID)
}

func (s *Service) notify(ctx context.Context, kind, destination, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, notification.Message{Kind: kind, Destination: destination, Body: body}); err != nil {
		s.logger.Warn("notification failed", "kind", kind, "error", err)
	}
}

package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/repslend/repslend/internal/catalog"
	"github.com/repslend/repslend/internal/loan"
	"github.com/repslend/repslend/internal/notification"
	"github.com/repslend/repslend/internal/proof"
	"github.com/repslend/repslend/internal/settlement"
)

// ActorSystem marks transitions performed by the engine itself.
const ActorSystem = "system"

var (
	// ErrProductNotOpen indicates the product is archived and accepts no
	// new applications.
	ErrProductNotOpen = errors.New("product is not open for applications")

	// ErrTermsOutOfRange indicates the requested amount or term falls
	// outside the product's bounds.
	ErrTermsOutOfRange = errors.New("requested terms outside product bounds")
)

// Service drives applications through the lifecycle. Every state change goes
// through the transition table and is persisted with optimistic versioning.
type Service struct {
	repo              Repository
	products          *catalog.Service
	prover            *proof.Generator
	verifier          *proof.Verifier
	loans             *loan.Service
	ledger            settlement.Ledger
	notifier          notification.Notifier
	settlementTimeout time.Duration
	logger            *slog.Logger
	now               func() time.Time
}

// NewService wires the application service.
func NewService(repo Repository, products *catalog.Service, prover *proof.Generator,
	verifier *proof.Verifier, loans *loan.Service, ledger settlement.Ledger,
	notifier notification.Notifier, settlementTimeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		repo:              repo,
		products:          products,
		prover:            prover,
		verifier:          verifier,
		loans:             loans,
		ledger:            ledger,
		notifier:          notifier,
		settlementTimeout: settlementTimeout,
		logger:            logger,
		now:               time.Now,
	}
}

// SubmitInput carries a borrower's application request.
type SubmitInput struct {
	HolderKey  string
	ProductID  string
	Amount     int64
	TermMonths int
}

// Submit pins the latest product version, records the application, and runs
// eligibility proof generation. If proof generation times out or is already
// in flight the application stays in proof_pending and can be retried.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (Application, error) {
	product, err := s.products.Latest(ctx, input.ProductID)
	if err != nil {
		return Application{}, err
	}
	if product.Status != catalog.StatusActive {
		return Application{}, ErrProductNotOpen
	}
	if input.Amount < product.MinAmount || input.Amount > product.MaxAmount {
		return Application{}, fmt.Errorf("%w: amount %d", ErrTermsOutOfRange, input.Amount)
	}
	if input.TermMonths < product.MinTermMonths || input.TermMonths > product.MaxTermMonths {
		return Application{}, fmt.Errorf("%w: term %d months", ErrTermsOutOfRange, input.TermMonths)
	}

	now := s.now().UTC()
	app := Application{
		ID:             uuid.NewString(),
		HolderKey:      input.HolderKey,
		LenderID:       product.LenderID,
		ProductID:      product.ID,
		ProductVersion: product.Version,
		Amount:         input.Amount,
		TermMonths:     input.TermMonths,
		State:          StateDraft,
		Version:        1,
		CreatedAt:      now,
	}
	if err := transition(&app, StateProofPending, ActorSystem, "application submitted", now); err != nil {
		return Application{}, err
	}
	if err := s.repo.Create(ctx, app); err != nil {
		return Application{}, fmt.Errorf("create application: %w", err)
	}

	s.logger.Info("application submitted", "application_id", app.ID, "product", product.Ref())
	return s.runProof(ctx, app, product)
}

// RetryProof reruns proof generation for an application stuck in
// proof_pending after a timeout or an in-flight collision.
func (s *Service) RetryProof(ctx context.Context, applicationID string) (Application, error) {
	app, err := s.repo.Get(ctx, applicationID)
	if err != nil {
		return Application{}, err
	}
	if app.State != StateProofPending {
		return app, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, app.State, StateProofVerified)
	}
	product, err := s.products.Resolve(ctx, app.ProductID, app.ProductVersion)
	if err != nil {
		return Application{}, err
	}
	return s.runProof(ctx, app, product)
}

// runProof generates and verifies the eligibility proof, then routes the
// application: auto-approval when the product allows it and the amount is
// within bound, manual review otherwise. Predicate failure rejects with every
// failing predicate recorded; timeouts leave the state untouched.
func (s *Service) runProof(ctx context.Context, app Application, product catalog.LoanProduct) (Application, error) {
	p, err := s.prover.Prove(ctx, app.ID, app.HolderKey, product)
	if err != nil {
		var unsatisfied *proof.UnsatisfiedError
		if errors.As(err, &unsatisfied) {
			return s.reject(ctx, app, rejectionReason(unsatisfied), err)
		}
		// Timeout, cancellation, in-flight collision, stale credential:
		// the application stays in proof_pending for a retry.
		s.logger.Warn("proof generation did not complete",
			"application_id", app.ID, "error", err)
		return app, err
	}

	if err := s.verifier.Verify(p, app.HolderKey, product); err != nil {
		return app, fmt.Errorf("verify proof: %w", err)
	}

	now := s.now().UTC()
	app.Proof = &p
	if err := transition(&app, StateProofVerified, ActorSystem, "eligibility proof verified", now); err != nil {
		return app, err
	}

	if product.AutoApprove && app.Amount <= product.AutoApproveMax {
		if err := transition(&app, StateAutoApproved, ActorSystem,
			fmt.Sprintf("within auto-approval bound %d", product.AutoApproveMax), now); err != nil {
			return app, err
		}
		if err := transition(&app, StateApproved, ActorSystem, "auto-approval confirmed", now); err != nil {
			return app, err
		}
	} else {
		if err := transition(&app, StatePendingManualReview, ActorSystem, "manual review required", now); err != nil {
			return app, err
		}
		app.ReviewDeadline = now.Add(product.ReviewSLA)
	}

	updated, err := s.repo.Update(ctx, app, app.Version)
	if err != nil {
		return Application{}, err
	}
	s.notify(ctx, notification.KindDecision, updated.HolderKey,
		fmt.Sprintf("application %s is now %s", updated.ID, updated.State))
	return updated, nil
}

func rejectionReason(unsatisfied *proof.UnsatisfiedError) string {
	failing := unsatisfied.Failing()
	texts := make([]string, 0, len(failing))
	for _, result := range failing {
		texts = append(texts, result.Predicate)
	}
	return "unsatisfied: " + strings.Join(texts, "; ")
}

func (s *Service) reject(ctx context.Context, app Application, reason string, cause error) (Application, error) {
	if err := transition(&app, StateRejected, ActorSystem, reason, s.now()); err != nil {
		return app, err
	}
	updated, err := s.repo.Update(ctx, app, app.Version)
	if err != nil {
		return Application{}, err
	}
	s.notify(ctx, notification.KindDecision, updated.HolderKey,
		fmt.Sprintf("application %s rejected", updated.ID))
	return updated, cause
}

// Decide records a lender decision on an application pending manual review.
// expectedVersion guards against concurrent decisions.
func (s *Service) Decide(ctx context.Context, applicationID string, expectedVersion int, approve bool, actor, reason string) (Application, error) {
	app, err := s.repo.Get(ctx, applicationID)
	if err != nil {
		return Application{}, err
	}

	to := StateRejected
	if approve {
		to = StateApproved
	}
	if err := transition(&app, to, actor, reason, s.now()); err != nil {
		return Application{}, err
	}

	updated, err := s.repo.Update(ctx, app, expectedVersion)
	if err != nil {
		return Application{}, err
	}

	s.logger.Info("decision recorded", "application_id", updated.ID, "state", updated.State, "actor", actor)
	s.notify(ctx, notification.KindDecision, updated.HolderKey,
		fmt.Sprintf("application %s %s", updated.ID, updated.State))
	return updated, nil
}

// Fund disburses an approved application through the settlement layer and
// opens the loan. If the ledger does not confirm within the settlement
// timeout the application stays approved for later reconciliation.
func (s *Service) Fund(ctx context.Context, applicationID, actor string) (Application, loan.Loan, error) {
	app, err := s.repo.Get(ctx, applicationID)
	if err != nil {
		return Application{}, loan.Loan{}, err
	}
	if !CanTransition(app.State, StateFunded) {
		return Application{}, loan.Loan{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, app.State, StateFunded)
	}
	product, err := s.products.Resolve(ctx, app.ProductID, app.ProductVersion)
	if err != nil {
		return Application{}, loan.Loan{}, err
	}

	now := s.now().UTC()
	schedule := loan.BuildSchedule(app.Amount, product.InterestRate, app.TermMonths, now)

	disburseCtx, cancel := context.WithTimeout(ctx, s.settlementTimeout)
	defer cancel()

	instruction, err := s.ledger.Disburse(disburseCtx, app.ID, app.Amount, schedule)
	switch {
	case err == nil:
	case errors.Is(err, settlement.ErrDuplicateInstruction):
		// Reconciling an earlier attempt that disbursed but failed to
		// record: proceed with the original instruction.
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("settlement confirmation timed out",
			"application_id", app.ID, "timeout", s.settlementTimeout)
		return app, loan.Loan{}, fmt.Errorf("%w: %v", settlement.ErrSettlementTimeout, err)
	default:
		return Application{}, loan.Loan{}, fmt.Errorf("disburse: %w", err)
	}

	funded, err := s.loans.Open(ctx, loan.OpenInput{
		ApplicationID: app.ID,
		HolderKey:     app.HolderKey,
		LenderID:      app.LenderID,
		ProductID:     app.ProductID,
		Principal:     app.Amount,
		InterestRate:  product.InterestRate,
		TermMonths:    app.TermMonths,
	})
	if err != nil {
		return Application{}, loan.Loan{}, err
	}

	if err := transition(&app, StateFunded, actor, "disbursement "+instruction.InstructionID, now); err != nil {
		return Application{}, loan.Loan{}, err
	}
	if instruction.Status == settlement.StatusConfirmed {
		if err := transition(&app, StateRepaying, ActorSystem, "disbursement confirmed", now); err != nil {
			return Application{}, loan.Loan{}, err
		}
	}

	updated, err := s.repo.Update(ctx, app, app.Version)
	if err != nil {
		return Application{}, loan.Loan{}, err
	}

	s.notify(ctx, notification.KindDisbursement, updated.HolderKey,
		fmt.Sprintf("loan %s disbursed for %d", funded.ID, funded.Principal))
	return updated, funded, nil
}

// ConfirmDisbursement moves a funded application to repaying once the
// settlement layer confirms an instruction that was pending.
func (s *Service) ConfirmDisbursement(ctx context.Context, applicationID string) (Application, error) {
	app, err := s.repo.Get(ctx, applicationID)
	if err != nil {
		return Application{}, err
	}
	if err := transition(&app, StateRepaying, ActorSystem, "disbursement confirmed", s.now()); err != nil {
		return Application{}, err
	}
	return s.repo.Update(ctx, app, app.Version)
}

// RecordPayment applies a repayment to the funded loan and closes the
// application when the loan reaches zero remaining.
func (s *Service) RecordPayment(ctx context.Context, applicationID string, amount int64, at time.Time) (Application, loan.Loan, error) {
	app, err := s.repo.Get(ctx, applicationID)
	if err != nil {
		return Application{}, loan.Loan{}, err
	}
	funded, err := s.loans.ByApplication(ctx, app.ID)
	if err != nil {
		return Application{}, loan.Loan{}, err
	}
	funded, err = s.loans.RecordPayment(ctx, funded.ID, amount, at)
	if err != nil {
		return app, loan.Loan{}, err
	}

	if funded.Status == loan.StatusClosed {
		if err := transition(&app, StateClosed, ActorSystem, "loan repaid in full", s.now()); err != nil {
			return app, funded, err
		}
		if app, err = s.repo.Update(ctx, app, app.Version); err != nil {
			return Application{}, funded, err
		}
	}
	return app, funded, nil
}

// RecordMissedPayment marks a missed installment and defaults the
// application once the loan crosses the missed-payment threshold.
func (s *Service) RecordMissedPayment(ctx context.Context, applicationID string) (Application, loan.Loan, error) {
	app, err := s.repo.Get(ctx, applicationID)
	if err != nil {
		return Application{}, loan.Loan{}, err
	}
	funded, err := s.loans.ByApplication(ctx, app.ID)
	if err != nil {
		return Application{}, loan.Loan{}, err
	}
	funded, err = s.loans.RecordMissedPayment(ctx, funded.ID)
	if err != nil {
		return app, loan.Loan{}, err
	}

	if funded.Status == loan.StatusDefaulted {
		if err := transition(&app, StateDefaulted, ActorSystem, "missed-payment threshold crossed", s.now()); err != nil {
			return app, funded, err
		}
		if app, err = s.repo.Update(ctx, app, app.Version); err != nil {
			return Application{}, funded, err
		}
	}
	return app, funded, nil
}

// FlagOverdueReviews returns applications whose manual-review SLA has lapsed.
// Lapsed reviews escalate; they are never auto-rejected.
func (s *Service) FlagOverdueReviews(ctx context.Context) ([]Application, error) {
	pending, err := s.repo.ListByState(ctx, StatePendingManualReview)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var overdue []Application
	for _, app := range pending {
		if !app.ReviewDeadline.IsZero() && app.ReviewDeadline.Before(now) {
			s.logger.Warn("manual review overdue",
				"application_id", app.ID, "lender_id", app.LenderID, "deadline", app.ReviewDeadline)
			overdue = append(overdue, app)
		}
	}
	return overdue, nil
}

// Get returns one application.
func (s *Service) Get(ctx context.Context, applicationID string) (Application, error) {
	return s.repo.Get(ctx, applicationID)
}

// ListByLender returns a lender's applications, optionally filtered by state.
func (s *Service) ListByLender(ctx context.Context, lenderID string, states ...State) ([]Application, error) {
	return s.repo.ListByLender(ctx, lenderID, states...)
}

// ListByHolder returns a borrower's applications.
func (s *Service) ListByHolder(ctx context.Context, holderKey string) ([]Application, error) {
	return s.repo.ListByHolder(ctx, holderKey)
}

func (s *Service) notify(ctx context.Context, kind, destination, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, notification.Message{Kind: kind, Destination: destination, Body: body}); err != nil {
		s.logger.Warn("notification failed", "kind", kind, "error", err)
	}
}

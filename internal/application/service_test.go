package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/repslend/repslend/internal/catalog"
	"github.com/repslend/repslend/internal/identity"
	"github.com/repslend/repslend/internal/loan"
	"github.com/repslend/repslend/internal/logging"
	"github.com/repslend/repslend/internal/proof"
	"github.com/repslend/repslend/internal/score"
	"github.com/repslend/repslend/internal/settlement"
)

const testSecret = "test-proof-secret"

type fixture struct {
	svc      *Service
	repo     *MemoryRepository
	products *catalog.Service
	loans    *loan.Service
	ledger   settlement.Ledger
	holder   string
}

// newFixture registers a holder whose credentials score 900 on the reps
// scale (payment discipline with dti 0.32, income stability, credit history).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	registry := identity.NewRegistry(identity.NewMemoryRepository(), false, logging.Discard())
	record, err := registry.Register(ctx, "0xborrower")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	now := time.Now().UTC()
	creds := []identity.Credential{
		{Type: identity.CredPaymentDiscipline, Attributes: map[string]string{"dti": "0.32"}},
		{Type: identity.CredIncomeStability, Attributes: map[string]string{"income_verified": "true"}},
		{Type: identity.CredCreditHistory, Attributes: map[string]string{}},
	}
	for _, cred := range creds {
		cred.Issuer = "test-oracle"
		cred.IssuedAt = now
		cred.ExpiresAt = now.Add(time.Hour)
		if err := registry.AddCredential(ctx, record.HolderKey, cred); err != nil {
			t.Fatalf("add credential: %v", err)
		}
	}

	engine, err := score.NewEngine(registry, score.DefaultWeightTable())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	prover := proof.NewGenerator(engine, registry, testSecret, 5*time.Second, logging.Discard())
	verifier := proof.NewVerifier(testSecret)

	repo := NewMemoryRepository()
	products := catalog.NewService(catalog.NewMemoryRepository(), repo,
		catalog.Defaults{AutoApproveMax: 25_000, ReviewSLA: 48 * time.Hour})

	ledger := settlement.NewInMemory()
	settlement.SeedFunds(ledger, 10_000_000)
	loans := loan.NewService(loan.NewMemoryRepository(), ledger, nil, 3, logging.Discard())

	svc := NewService(repo, products, prover, verifier, loans, ledger, nil,
		5*time.Second, logging.Discard())
	return &fixture{
		svc:      svc,
		repo:     repo,
		products: products,
		loans:    loans,
		ledger:   ledger,
		holder:   record.HolderKey,
	}
}

func (f *fixture) createProduct(t *testing.T, mutate func(*catalog.ProductInput)) catalog.LoanProduct {
	t.Helper()
	input := catalog.ProductInput{
		LenderID:      "protocol-bank",
		Name:          "Personal Loan - Standard",
		MinAmount:     5_000,
		MaxAmount:     25_000,
		InterestRate:  8.5,
		MinTermMonths: 12,
		MaxTermMonths: 36,
		Scale:         score.ScaleReps,
		MinScore:      600,
		Predicates:    []string{"score > 600", "dti < 0.40", "income_verified"},
		AutoApprove:   true,
	}
	if mutate != nil {
		mutate(&input)
	}
	product, err := f.products.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

func (f *fixture) submit(t *testing.T, productID string, amount int64) Application {
	t.Helper()
	app, err := f.svc.Submit(context.Background(), SubmitInput{
		HolderKey:  f.holder,
		ProductID:  productID,
		Amount:     amount,
		TermMonths: 12,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return app
}

func states(history []Transition) []State {
	out := make([]State, 0, len(history))
	for _, entry := range history {
		out = append(out, entry.To)
	}
	return out
}

func TestSubmitAutoApprovesWithinBound(t *testing.T) {
	f := newFixture(t)
	product := f.createProduct(t, nil)

	app := f.submit(t, product.ID, 10_000)
	if app.State != StateApproved {
		t.Fatalf("expected approved application, got %s", app.State)
	}
	if app.Proof == nil || !app.Proof.Satisfied() {
		t.Fatalf("expected attached satisfied proof")
	}

	want := []State{StateProofPending, StateProofVerified, StateAutoApproved, StateApproved}
	got := states(app.History)
	if len(got) != len(want) {
		t.Fatalf("expected history %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected history %v, got %v", want, got)
		}
	}
}

func TestSubmitRoutesToManualReview(t *testing.T) {
	f := newFixture(t)
	product := f.createProduct(t, func(input *catalog.ProductInput) {
		input.AutoApprove = false
	})

	app := f.submit(t, product.ID, 10_000)
	if app.State != StatePendingManualReview {
		t.Fatalf("expected pending manual review, got %s", app.State)
	}
	if app.ReviewDeadline.IsZero() {
		t.Fatalf("expected review deadline set")
	}
}

func TestSubmitAboveAutoBoundNeedsReview(t *testing.T) {
	f := newFixture(t)
	product := f.createProduct(t, func(input *catalog.ProductInput) {
		input.AutoApproveMax = 8_000
	})

	app := f.submit(t, product.ID, 10_000)
	if app.State != StatePendingManualReview {
		t.Fatalf("amount above auto bound must require review, got %s", app.State)
	}
}

func TestSubmitRejectsWithAllFailingPredicates(t *testing.T) {
	f := newFixture(t)
	product := f.createProduct(t, func(input *catalog.ProductInput) {
		input.Predicates = []string{"score > 950", "dti < 0.40"}
	})

	app, err := f.svc.Submit(context.Background(), SubmitInput{
		HolderKey:  f.holder,
		ProductID:  product.ID,
		Amount:     10_000,
		TermMonths: 12,
	})
	var unsatisfied *proof.UnsatisfiedError
	if !errors.As(err, &unsatisfied) {
		t.Fatalf("expected UnsatisfiedError, got %v", err)
	}
	if app.State != StateRejected {
		t.Fatalf("expected rejected application, got %s", app.State)
	}

	last := app.History[len(app.History)-1]
	if !strings.Contains(last.Reason, "score > 950") {
		t.Fatalf("rejection must record the failing predicate, got %q", last.Reason)
	}
	if strings.Contains(last.Reason, "dti") {
		t.Fatalf("passing predicate must not be recorded as failing: %q", last.Reason)
	}
}

func TestSubmitValidatesTermsAgainstProduct(t *testing.T) {
	f := newFixture(t)
	product := f.createProduct(t, nil)

	_, err := f.svc.Submit(context.Background(), SubmitInput{
		HolderKey:  f.holder,
		ProductID:  product.ID,
		Amount:     1_000,
		TermMonths: 12,
	})
	if !errors.Is(err, ErrTermsOutOfRange) {
		t.Fatalf("expected ErrTermsOutOfRange, got %v", err)
	}
}

func TestDecideGuardsConcurrentModification(t *testing.T) {
	f := newFixture(t)
	product := f.createProduct(t, func(input *catalog.ProductInput) {
		input.AutoApprove = false
	})
	app := f.submit(t, product.ID, 10_000)

	decided, err := f.svc.Decide(context.Background(), app.ID, app.Version, true, "lender:protocol-bank", "strong score")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided.State != StateApproved {
		t.Fatalf("expected approved, got %s", decided.State)
	}

	// A second decision against the stale version loses the race.
	_, err = f.svc.Decide(context.Background(), app.ID, app.Version, false, "lender:protocol-bank", "changed mind")
	if !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
}

func TestDecideRejectedIsTerminal(t *testing.T) {
	f := newFixture(t)
	product := f.createProduct(t, func(input *catalog.ProductInput) {
		input.AutoApprove = false
	})
	app := f.submit(t, product.ID, 10_000)

	rejected, err := f.svc.Decide(context.Background(), app.ID, app.Version, false, "lender:protocol-bank", "portfolio full")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}

	_, err = f.svc.Decide(context.Background(), rejected.ID, rejected.Version, true, "lender:protocol-bank", "reconsidered")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("terminal state must reject transitions, got %v", err)
	}
}

func TestFundDisbursesAndOpensLoan(t *testing.T) {
	f := newFixture(t)
	product := f.createProduct(t, nil)
	app := f.submit(t, product.ID, 10_000)

	funded, l, err := f.svc.Fund(context.Background(), app.ID, "lender:protocol-bank")
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if funded.State != StateRepaying {
		t.Fatalf("expected repaying after confirmed disbursement, got %s", funded.State)
	}
	if l.Status != loan.StatusActive || l.Principal != 10_000 {
		t.Fatalf("unexpected loan: %+v", l)
	}
	if got := settlement.Balance(f.ledger, settlement.DisbursementSuspenseAccount); got != 10_000_000-10_000 {
		t.Fatalf("suspense balance %d after disbursement", got)
	}

	// Funding again is an invalid transition, not a second disbursement.
	if _, _, err := f.svc.Fund(context.Background(), app.ID, "lender:protocol-bank"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestFundTimeoutLeavesApproved(t *testing.T) {
	f := newFixture(t)
	product := f.createProduct(t, nil)
	app := f.submit(t, product.ID, 10_000)

	stalled := NewService(f.repo, f.products, nil, nil, f.loans, settlement.StalledLedger{}, nil,
		50*time.Millisecond, logging.Discard())

	_, _, err := stalled.Fund(context.Background(), app.ID, "lender:protocol-bank")
	if !errors.Is(err, settlement.ErrSettlementTimeout) {
		t.Fatalf("expected ErrSettlementTimeout, got %v", err)
	}

	stored, err := f.repo.Get(context.Background(), app.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.State != StateApproved {
		t.Fatalf("timed-out funding must leave the application approved, got %s", stored.State)
	}
}

func TestRepaymentClosesApplication(t *testing.T) {
	f := newFixture(t)
	product := f.createProduct(t, func(input *catalog.ProductInput) {
		input.MinAmount = 1_000
	})
	app := f.submit(t, product.ID, 1_000)

	if _, _, err := f.svc.Fund(context.Background(), app.ID, "lender:protocol-bank"); err != nil {
		t.Fatalf("fund: %v", err)
	}

	at := time.Now()
	app2, l, err := f.svc.RecordPayment(context.Background(), app.ID, 2_000, at)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if l.Status != loan.StatusClosed {
		t.Fatalf("expected closed loan, got %s", l.Status)
	}
	if app2.State != StateClosed {
		t.Fatalf("expected closed application, got %s", app2.State)
	}
}

func TestMissedPaymentsDefaultApplication(t *testing.T) {
	f := newFixture(t)
	product := f.createProduct(t, nil)
	app := f.submit(t, product.ID, 10_000)

	if _, _, err := f.svc.Fund(context.Background(), app.ID, "lender:protocol-bank"); err != nil {
		t.Fatalf("fund: %v", err)
	}

	var defaulted Application
	for i := 0; i < 3; i++ {
		var err error
		if defaulted, _, err = f.svc.RecordMissedPayment(context.Background(), app.ID); err != nil {
			t.Fatalf("miss %d: %v", i+1, err)
		}
	}
	if defaulted.State != StateDefaulted {
		t.Fatalf("expected defaulted application, got %s", defaulted.State)
	}
}

func TestFlagOverdueReviewsEscalatesWithoutRejecting(t *testing.T) {
	f := newFixture(t)
	product := f.createProduct(t, func(input *catalog.ProductInput) {
		input.AutoApprove = false
		input.ReviewSLA = time.Hour
	})
	app := f.submit(t, product.ID, 10_000)

	SetClock(f.svc, func() time.Time { return time.Now().Add(2 * time.Hour) })
	overdue, err := f.svc.FlagOverdueReviews(context.Background())
	if err != nil {
		t.Fatalf("flag overdue: %v", err)
	}
	if len(overdue) != 1 || overdue[0].ID != app.ID {
		t.Fatalf("expected one overdue application, got %+v", overdue)
	}
	if overdue[0].State != StatePendingManualReview {
		t.Fatalf("overdue reviews must escalate, not reject, got %s", overdue[0].State)
	}
}

package proof

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/repslend/repslend/internal/catalog"
	"github.com/repslend/repslend/internal/identity"
	"github.com/repslend/repslend/internal/logging"
	"github.com/repslend/repslend/internal/score"
)

type proofFixture struct {
	generator *Generator
	verifier  *Verifier
	registry  *identity.Registry
	holder    string
}

const testSecret = "test-proof-secret"

// newProofFixture registers a holder with the requested credential types.
// Payment discipline carries dti 0.32; income stability carries the
// income_verified flag.
func newProofFixture(t *testing.T, types ...identity.CredentialType) proofFixture {
	t.Helper()
	registry := identity.NewRegistry(identity.NewMemoryRepository(), false, logging.Discard())
	record, err := registry.Register(context.Background(), "0xprover")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	now := time.Now().UTC()
	for _, credType := range types {
		attrs := map[string]string{}
		switch credType {
		case identity.CredPaymentDiscipline:
			attrs["dti"] = "0.32"
		case identity.CredIncomeStability:
			attrs["income_verified"] = "true"
		}
		err := registry.AddCredential(context.Background(), record.HolderKey, identity.Credential{
			Type:       credType,
			Issuer:     "test-oracle",
			IssuedAt:   now,
			ExpiresAt:  now.Add(time.Hour),
			Attributes: attrs,
		})
		if err != nil {
			t.Fatalf("add credential: %v", err)
		}
	}

	engine, err := score.NewEngine(registry, score.DefaultWeightTable())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	generator := NewGenerator(engine, registry, testSecret, 5*time.Second, logging.Discard())
	return proofFixture{
		generator: generator,
		verifier:  NewVerifier(testSecret),
		registry:  registry,
		holder:    record.HolderKey,
	}
}

func repsProduct(minScore int, predicates ...string) catalog.LoanProduct {
	return catalog.LoanProduct{
		ID:         "prod-1",
		Version:    1,
		LenderID:   "protocol-bank",
		Name:       "Personal Loan - Standard",
		Scale:      score.ScaleReps,
		MinScore:   minScore,
		Predicates: predicates,
	}
}

func TestProveSatisfiedAndVerifiable(t *testing.T) {
	// payment + income + history on reps: 400 + 300 + 200 = 900
	f := newProofFixture(t,
		identity.CredPaymentDiscipline,
		identity.CredIncomeStability,
		identity.CredCreditHistory,
	)
	product := repsProduct(600, "score > 600", "dti < 0.40", "income_verified")

	p, err := f.generator.Prove(context.Background(), "app-1", f.holder, product)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if len(p.Results) != 4 {
		t.Fatalf("expected 4 results (min-score gate + 3 predicates), got %d", len(p.Results))
	}
	if !p.Satisfied() {
		t.Fatalf("expected satisfied proof, got %+v", p.Results)
	}

	if err := f.verifier.Verify(p, f.holder, product); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestProveExactMinScoreIsEligible(t *testing.T) {
	// payment + income + history = 900 on reps; gate at exactly 900
	f := newProofFixture(t,
		identity.CredPaymentDiscipline,
		identity.CredIncomeStability,
		identity.CredCreditHistory,
	)
	product := repsProduct(900)

	p, err := f.generator.Prove(context.Background(), "app-1", f.holder, product)
	if err != nil {
		t.Fatalf("score == minScore must be eligible: %v", err)
	}
	if !p.Results[0].Satisfied {
		t.Fatalf("inclusive min-score gate failed: %+v", p.Results[0])
	}
}

func TestProveEnumeratesAllUnsatisfied(t *testing.T) {
	// payment + history = 600 on reps; score 600 fails "score > 700",
	// dti 0.32 passes "dti < 0.35" independently
	f := newProofFixture(t,
		identity.CredPaymentDiscipline,
		identity.CredCreditHistory,
	)
	product := repsProduct(550, "score > 700", "dti < 0.35")

	_, err := f.generator.Prove(context.Background(), "app-1", f.holder, product)
	var unsat *UnsatisfiedError
	if !errors.As(err, &unsat) {
		t.Fatalf("expected UnsatisfiedError, got %v", err)
	}
	if len(unsat.Results) != 3 {
		t.Fatalf("expected every predicate reported, got %d", len(unsat.Results))
	}

	byText := map[string]bool{}
	for _, r := range unsat.Results {
		byText[r.Predicate] = r.Satisfied
	}
	if byText["score > 700"] {
		t.Fatal("score predicate must be reported failed")
	}
	if !byText["dti < 0.35"] {
		t.Fatal("dti predicate must be reported independently as satisfied")
	}
	if len(unsat.Failing()) != 1 {
		t.Fatalf("expected exactly one failing predicate, got %v", unsat.Failing())
	}
}

func TestProofCarriesNoNumericInputs(t *testing.T) {
	f := newProofFixture(t,
		identity.CredPaymentDiscipline,
		identity.CredIncomeStability,
		identity.CredCreditHistory,
	)
	product := repsProduct(600, "dti < 0.40")

	p, err := f.generator.Prove(context.Background(), "app-1", f.holder, product)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}

	// structural inspection: blank the fields whose encodings are arbitrary
	// bytes (commitment, timestamp) so the scan sees only domain data
	flattened := p
	flattened.Commitment = nil
	flattened.IssuedAt = time.Time{}
	serialized, err := json.Marshal(flattened)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// the holder's score is 900 and dti is 0.32; neither may appear
	for _, leaked := range []string{"900", "0.32"} {
		if strings.Contains(string(serialized), leaked) {
			t.Fatalf("serialized proof leaks numeric input %q: %s", leaked, serialized)
		}
	}
}

func TestProofReplayRejected(t *testing.T) {
	f := newProofFixture(t,
		identity.CredPaymentDiscipline,
		identity.CredIncomeStability,
		identity.CredCreditHistory,
	)
	product := repsProduct(600)

	p, err := f.generator.Prove(context.Background(), "app-1", f.holder, product)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}

	otherProduct := product
	otherProduct.ID = "prod-2"
	if err := f.verifier.Verify(p, f.holder, otherProduct); !errors.Is(err, ErrProofMismatch) {
		t.Fatalf("expected replay against another product rejected, got %v", err)
	}

	otherVersion := product
	otherVersion.Version = 2
	if err := f.verifier.Verify(p, f.holder, otherVersion); !errors.Is(err, ErrProofMismatch) {
		t.Fatalf("expected replay against another version rejected, got %v", err)
	}

	if err := f.verifier.Verify(p, "someone-else", product); !errors.Is(err, ErrProofMismatch) {
		t.Fatalf("expected replay by another identity rejected, got %v", err)
	}

	tampered := p
	tampered.Results = append([]Result{}, p.Results...)
	tampered.Results[0].Satisfied = true
	if err := f.verifier.Verify(tampered, f.holder, product); !errors.Is(err, ErrProofMismatch) {
		t.Fatalf("expected tampered results rejected, got %v", err)
	}
}

func TestProveStaleCredential(t *testing.T) {
	f := newProofFixture(t,
		identity.CredPaymentDiscipline,
		identity.CredIncomeStability,
		identity.CredCreditHistory,
	)
	product := repsProduct(600)

	// emission clock jumps past credential expiry, simulating a credential
	// expiring mid-computation
	SetClock(f.generator, func() time.Time { return time.Now().UTC().Add(2 * time.Hour) })

	_, err := f.generator.Prove(context.Background(), "app-1", f.holder, product)
	var stale *StaleCredentialError
	if !errors.As(err, &stale) {
		t.Fatalf("expected StaleCredentialError, got %v", err)
	}
	if stale.CredentialID == "" {
		t.Fatalf("stale error must name the offending credential: %+v", stale)
	}
}

func TestConcurrentProveSharesSingleComputation(t *testing.T) {
	f := newProofFixture(t,
		identity.CredPaymentDiscipline,
		identity.CredIncomeStability,
		identity.CredCreditHistory,
	)
	product := repsProduct(600)

	// the emission clock stalls the first computation until every caller
	// has launched, then counts how many computations actually ran
	var computations atomic.Int32
	release := make(chan struct{})
	SetClock(f.generator, func() time.Time {
		<-release
		computations.Add(1)
		return time.Now().UTC()
	})

	const callers = 8
	var wg sync.WaitGroup
	proofs := make([]Proof, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			proofs[i], errs[i] = f.generator.Prove(context.Background(), "app-1", f.holder, product)
		}(i)
	}
	time.Sleep(50 * time.Millisecond) // let callers pile into the flight
	close(release)
	wg.Wait()

	ids := map[string]bool{}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		ids[proofs[i].ID] = true
	}
	// callers racing into the same flight share one computation; a straggler
	// arriving after completion may compute afresh but never duplicates an
	// in-flight evaluation
	if got := computations.Load(); got > 2 {
		t.Fatalf("expected shared in-flight computation, got %d computations", got)
	}
	if len(ids) != int(computations.Load()) {
		t.Fatalf("distinct proofs (%d) must match computations (%d)", len(ids), computations.Load())
	}
}

func TestTryProveRejectsWhileInFlight(t *testing.T) {
	f := newProofFixture(t,
		identity.CredPaymentDiscipline,
		identity.CredIncomeStability,
		identity.CredCreditHistory,
	)
	product := repsProduct(600)

	release := make(chan struct{})
	SetClock(f.generator, func() time.Time {
		<-release
		return time.Now().UTC()
	})

	started := make(chan struct{})
	var firstErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		close(started)
		_, firstErr = f.generator.Prove(context.Background(), "app-1", f.holder, product)
	}()

	<-started
	time.Sleep(20 * time.Millisecond) // let the flight reach the blocked clock

	_, err := f.generator.TryProve(context.Background(), "app-1", f.holder, product)
	if !errors.Is(err, ErrProofInProgress) {
		t.Fatalf("expected ErrProofInProgress, got %v", err)
	}

	close(release)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("in-flight prove failed: %v", firstErr)
	}
}

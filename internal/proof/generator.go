package proof

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/repslend/repslend/internal/catalog"
	"github.com/repslend/repslend/internal/identity"
	"github.com/repslend/repslend/internal/predicate"
	"github.com/repslend/repslend/internal/score"
)

// Generator is the privacy boundary: it evaluates a product's predicate set
// against the holder's score and attributes and emits only boolean outcomes.
// At most one generation runs per (identity, product) pair; concurrent
// requests for the same pair join the in-flight computation.
type Generator struct {
	engine   *score.Engine
	registry *identity.Registry
	secret   []byte
	timeout  time.Duration
	logger   *slog.Logger

	group    singleflight.Group
	mu       sync.Mutex
	inflight map[string]struct{}

	now func() time.Time
}

// NewGenerator builds a proof generator sharing the verifier's commitment key.
func NewGenerator(engine *score.Engine, registry *identity.Registry, secret string, timeout time.Duration, logger *slog.Logger) *Generator {
	return &Generator{
		engine:   engine,
		registry: registry,
		secret:   []byte(secret),
		timeout:  timeout,
		logger:   logger,
		inflight: make(map[string]struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func flightKey(holderKey string, product catalog.LoanProduct) string {
	return holderKey + "|" + product.Ref()
}

// Prove generates (or joins the in-flight generation of) a proof for the
// holder against the product's declared predicates.
func (g *Generator) Prove(ctx context.Context, applicationID, holderKey string, product catalog.LoanProduct) (Proof, error) {
	key := flightKey(holderKey, product)

	value, err, shared := g.group.Do(key, func() (any, error) {
		g.mu.Lock()
		g.inflight[key] = struct{}{}
		g.mu.Unlock()
		defer func() {
			g.mu.Lock()
			delete(g.inflight, key)
			g.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.generate(ctx, applicationID, holderKey, product)
	})
	if err != nil {
		return Proof{}, err
	}
	if shared {
		g.logger.Debug("joined in-flight proof generation", "key", key)
	}
	return value.(Proof), nil
}

// TryProve is the non-blocking variant: it rejects with ErrProofInProgress
// when a generation for the pair is already running instead of joining it.
func (g *Generator) TryProve(ctx context.Context, applicationID, holderKey string, product catalog.LoanProduct) (Proof, error) {
	key := flightKey(holderKey, product)
	g.mu.Lock()
	_, busy := g.inflight[key]
	g.mu.Unlock()
	if busy {
		return Proof{}, fmt.Errorf("%s: %w", product.Ref(), ErrProofInProgress)
	}
	return g.Prove(ctx, applicationID, holderKey, product)
}

func (g *Generator) generate(ctx context.Context, applicationID, holderKey string, product catalog.LoanProduct) (Proof, error) {
	// fixed credential basis for the whole evaluation
	snapshot, err := g.registry.ActiveCredentials(ctx, holderKey)
	if err != nil {
		return Proof{}, err
	}

	composite, err := g.engine.Compute(ctx, holderKey, product.Scale)
	if err != nil {
		return Proof{}, err
	}

	attrs := mergeAttributes(snapshot)

	preds, err := predicate.ParseAll(declaredPredicates(product))
	if err != nil {
		return Proof{}, err
	}

	results := make([]Result, 0, len(preds))
	for _, p := range preds {
		results = append(results, Result{
			Predicate: p.Text,
			Satisfied: p.Eval(composite.Composite, attrs),
		})
	}

	if err := ctx.Err(); err != nil {
		return Proof{}, err
	}

	// the snapshot must still be valid at emission; a credential expiring
	// mid-computation invalidates the whole proof
	emittedAt := g.now()
	for _, cred := range snapshot {
		if !cred.ValidAt(emittedAt) {
			return Proof{}, &StaleCredentialError{CredentialID: cred.ID, CredentialType: cred.Type}
		}
	}

	p := Proof{
		ID:             uuid.NewString(),
		ApplicationID:  applicationID,
		HolderKey:      holderKey,
		ProductID:      product.ID,
		ProductVersion: product.Version,
		Results:        results,
		IssuedAt:       emittedAt,
		TableVersion:   composite.WeightTableVersion,
	}
	p.Commitment = commitment(g.secret, p)

	if !p.Satisfied() {
		return Proof{}, &UnsatisfiedError{Results: results}
	}

	g.logger.Info("proof generated",
		"application", applicationID, "product", product.Ref(), "predicates", len(results))
	return p, nil
}

// mergeAttributes flattens the credential set's attributes for predicate
// evaluation. Later-issued credentials win on key collisions.
func mergeAttributes(creds []identity.Credential) map[string]string {
	sorted := make([]identity.Credential, len(creds))
	copy(sorted, creds)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].IssuedAt.Before(sorted[j-1].IssuedAt); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	attrs := make(map[string]string)
	for _, c := range sorted {
		for k, v := range c.Attributes {
			attrs[k] = v
		}
	}
	return attrs
}

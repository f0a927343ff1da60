package proof

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/repslend/repslend/internal/catalog"
	"github.com/repslend/repslend/internal/identity"
	"github.com/repslend/repslend/internal/predicate"
)

var (
	// ErrProofInProgress indicates another proof generation for the same
	// (identity, product) pair is already running.
	ErrProofInProgress = errors.New("proof generation already in progress")

	// ErrProofMismatch indicates a proof replayed against a different
	// identity or product, or with a tampered commitment.
	ErrProofMismatch = errors.New("proof does not bind to this identity and product")
)

// StaleCredentialError indicates a credential expired between the score
// snapshot and proof emission.
type StaleCredentialError struct {
	CredentialID   string
	CredentialType identity.CredentialType
}

func (e *StaleCredentialError) Error() string {
	return fmt.Sprintf("credential %s (%s) expired during proof generation", e.CredentialID, e.CredentialType)
}

// UnsatisfiedError enumerates every predicate outcome when at least one
// predicate fails, so the holder knows exactly what to remediate.
type UnsatisfiedError struct {
	Results []Result
}

// Failing returns only the unsatisfied outcomes.
func (e *UnsatisfiedError) Failing() []Result {
	var failing []Result
	for _, r := range e.Results {
		if !r.Satisfied {
			failing = append(failing, r)
		}
	}
	return failing
}

func (e *UnsatisfiedError) Error() string {
	var texts []string
	for _, r := range e.Failing() {
		texts = append(texts, r.Predicate)
	}
	return "predicates unsatisfied: " + strings.Join(texts, "; ")
}

// Result is one predicate outcome. Only the predicate's own text and the
// boolean verdict: the numeric inputs never leave the generator.
type Result struct {
	Predicate string `json:"predicate"`
	Satisfied bool   `json:"satisfied"`
}

// Proof states that a named predicate set holds for one identity and one
// product version, without revealing the underlying values. Immutable once
// verified; its commitment prevents replay against another pairing.
type Proof struct {
	ID               string    `json:"id"`
	ApplicationID    string    `json:"application_id"`
	HolderKey        string    `json:"holder_key"`
	ProductID        string    `json:"product_id"`
	ProductVersion   int       `json:"product_version"`
	Results          []Result  `json:"results"`
	IssuedAt         time.Time `json:"issued_at"`
	TableVersion     string    `json:"weight_table_version"`
	Commitment       []byte    `json:"commitment"`
	VerifierDecision string    `json:"verifier_decision,omitempty"`
}

// Satisfied reports whether every predicate outcome holds.
func (p Proof) Satisfied() bool {
	for _, r := range p.Results {
		if !r.Satisfied {
			return false
		}
	}
	return len(p.Results) > 0
}

func commitment(secret []byte, p Proof) []byte {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s\n%s\n%d\n%s\n%s\n",
		p.HolderKey, p.ProductID, p.ProductVersion,
		p.IssuedAt.UTC().Format(time.RFC3339Nano), p.TableVersion)
	for _, r := range p.Results {
		fmt.Fprintf(mac, "%s=%s\n", r.Predicate, strconv.FormatBool(r.Satisfied))
	}
	return mac.Sum(nil)
}

// Verifier checks a proof on behalf of a lender or the settlement layer.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a proof verifier sharing the generator's commitment key.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify accepts a proof iff its commitment binds it to the given holder and
// product version, its predicate set matches the product's declaration, and
// every predicate is satisfied.
func (v *Verifier) Verify(p Proof, holderKey string, product catalog.LoanProduct) error {
	if p.HolderKey != holderKey || p.ProductID != product.ID || p.ProductVersion != product.Version {
		return ErrProofMismatch
	}
	if !hmac.Equal(p.Commitment, commitment(v.secret, p)) {
		return ErrProofMismatch
	}

	declared := declaredPredicates(product)
	if len(declared) != len(p.Results) {
		return ErrProofMismatch
	}
	for i, text := range declared {
		if p.Results[i].Predicate != text {
			return ErrProofMismatch
		}
	}

	if !p.Satisfied() {
		return &UnsatisfiedError{Results: p.Results}
	}
	return nil
}

// declaredPredicates is the full ordered assertion set for a product: the
// implicit inclusive minimum-score gate followed by the lender's predicates.
func declaredPredicates(product catalog.LoanProduct) []string {
	declared := make([]string, 0, len(product.Predicates)+1)
	declared = append(declared, fmt.Sprintf("%s >= %d", predicate.ScoreField, product.MinScore))
	declared = append(declared, product.Predicates...)
	return declared
}

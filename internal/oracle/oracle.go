package oracle

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/repslend/repslend/internal/identity"
)

// SourceType tags which external data provider a payload came from. Adapter
// dispatch is by tag, one adapter per source.
type SourceType string

const (
	SourceBank          SourceType = "bank"
	SourceEmployment    SourceType = "employment"
	SourcePaymentApp    SourceType = "payment_app"
	SourcePublicRecords SourceType = "public_records"
)

// VerificationFailure describes why an oracle payload could not be verified.
// Retryable failures (provider still finalizing) are retried with backoff
// inside the verifier; permanent ones surface immediately.
type VerificationFailure struct {
	Source    SourceType
	Reason    string
	Retryable bool
}

func (f *VerificationFailure) Error() string {
	kind := "permanent"
	if f.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("verification failed (%s, %s): %s", f.Source, kind, f.Reason)
}

func permanent(source SourceType, format string, args ...any) *VerificationFailure {
	return &VerificationFailure{Source: source, Reason: fmt.Sprintf(format, args...)}
}

func retryable(source SourceType, format string, args ...any) *VerificationFailure {
	return &VerificationFailure{Source: source, Reason: fmt.Sprintf(format, args...), Retryable: true}
}

// Envelope is the signed wire format shared by all oracle sources. Data stays
// opaque until the source adapter normalizes it.
type Envelope struct {
	Issuer    string          `json:"issuer"`
	IssuedAt  time.Time       `json:"issued_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Signature []byte          `json:"signature"`
}

// SigningBytes is the canonical byte sequence the issuer signs.
func (e Envelope) SigningBytes() []byte {
	header := fmt.Sprintf("%s\n%s\n%s\n%s\n",
		e.Issuer,
		e.IssuedAt.UTC().Format(time.RFC3339Nano),
		e.ExpiresAt.UTC().Format(time.RFC3339Nano),
		e.Status,
	)
	return append([]byte(header), e.Data...)
}

// Adapter maps one source's verified payload into canonical credentials. A
// single payload may yield multiple typed credentials.
type Adapter interface {
	Source() SourceType
	Normalize(data json.RawMessage) ([]identity.Credential, error)
}

// IssuerKeys holds the known issuer public keys. Mutation is a rare
// administrative path; reads are concurrent.
type IssuerKeys struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

// NewIssuerKeys builds an empty issuer key registry.
func NewIssuerKeys() *IssuerKeys {
	return &IssuerKeys{keys: make(map[string]ed25519.PublicKey)}
}

// Register stores an issuer's public key.
func (k *IssuerKeys) Register(issuer string, key ed25519.PublicKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[issuer] = key
}

// Lookup returns an issuer's public key if known.
func (k *IssuerKeys) Lookup(issuer string) (ed25519.PublicKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[issuer]
	return key, ok
}

package oracle

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/repslend/repslend/internal/identity"
)

const issuedAtSkew = 5 * time.Minute

// Verifier validates opaque third-party payloads and registers the resulting
// credentials with the DID registry. Retryable failures are retried with
// bounded backoff and never surfaced past the attempt ceiling.
type Verifier struct {
	adapters    map[SourceType]Adapter
	issuers     *IssuerKeys
	registry    *identity.Registry
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewVerifier wires the source adapters into a verification service.
func NewVerifier(adapters []Adapter, issuers *IssuerKeys, registry *identity.Registry, maxAttempts int, backoff time.Duration, logger *slog.Logger) *Verifier {
	by := make(map[SourceType]Adapter, len(adapters))
	for _, a := range adapters {
		by[a.Source()] = a
	}
	return &Verifier{
		adapters:    by,
		issuers:     issuers,
		registry:    registry,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Verify validates a source payload for a holder and registers the resulting
// credentials. Registration is idempotent: resubmitting an already-verified
// source updates the stored credentials rather than duplicating them.
func (v *Verifier) Verify(ctx context.Context, holderKey string, source SourceType, payload []byte) ([]identity.Credential, error) {
	adapter, ok := v.adapters[source]
	if !ok {
		return nil, permanent(source, "unknown source type")
	}

	var lastErr error
	for attempt := 1; attempt <= v.maxAttempts; attempt++ {
		creds, err := v.verifyOnce(ctx, holderKey, adapter, payload)
		if err == nil {
			return creds, nil
		}
		lastErr = err

		var failure *VerificationFailure
		if !errors.As(err, &failure) || !failure.Retryable || attempt == v.maxAttempts {
			return nil, err
		}

		v.logger.Warn("oracle verification retry",
			"source", string(source), "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(v.backoff * time.Duration(attempt)):
		}
	}
	return nil, lastErr
}

func (v *Verifier) verifyOnce(ctx context.Context, holderKey string, adapter Adapter, payload []byte) ([]identity.Credential, error) {
	source := adapter.Source()

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, permanent(source, "malformed envelope: %v", err)
	}
	if env.Issuer == "" {
		return nil, permanent(source, "issuer missing")
	}

	key, known := v.issuers.Lookup(env.Issuer)
	if !known {
		return nil, permanent(source, "unknown issuer %q", env.Issuer)
	}
	if !ed25519.Verify(key, env.SigningBytes(), env.Signature) {
		return nil, permanent(source, "issuer signature mismatch")
	}

	now := v.now()
	if env.IssuedAt.After(now.Add(issuedAtSkew)) {
		return nil, permanent(source, "issued_at in the future")
	}
	if !env.ExpiresAt.After(now) {
		return nil, permanent(source, "payload already expired")
	}
	if env.Status == "pending" {
		return nil, retryable(source, "provider verification still pending")
	}
	if env.Status != "verified" {
		return nil, permanent(source, "unexpected status %q", env.Status)
	}

	creds, err := adapter.Normalize(env.Data)
	if err != nil {
		return nil, err
	}

	for i := range creds {
		creds[i].Issuer = env.Issuer
		creds[i].IssuedAt = env.IssuedAt.UTC()
		creds[i].ExpiresAt = env.ExpiresAt.UTC()
		creds[i].Signature = env.Signature
		if err := v.registry.AddCredential(ctx, holderKey, creds[i]); err != nil {
			return nil, err
		}
	}

	v.logger.Info("oracle verification complete",
		"source", string(source), "issuer", env.Issuer, "credentials", len(creds))
	return creds, nil
}

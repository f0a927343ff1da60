package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrIssuerConflict indicates a second issuer attempted to attest a credential
// type that already has a valid credential from another issuer, while
// multi-issuer corroboration is disabled.
var ErrIssuerConflict = errors.New("credential type already attested by another issuer")

// Registry owns DID records and their credential lifecycle.
type Registry struct {
	repo             Repository
	allowMultiIssuer bool
	logger           *slog.Logger
	now              func() time.Time
}

// NewRegistry builds a DID registry. The multi-issuer flag controls whether
// two issuers may hold simultaneously-valid credentials of the same type for
// one holder.
func NewRegistry(repo Repository, allowMultiIssuer bool, logger *slog.Logger) *Registry {
	return &Registry{
		repo:             repo,
		allowMultiIssuer: allowMultiIssuer,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Register creates the holder's DID record from a wallet address. Fails if the
// holder is already registered; a deregistered key is never reused.
func (r *Registry) Register(ctx context.Context, walletAddress string) (DIDRecord, error) {
	holderKey, err := HolderKeyFromWallet(walletAddress)
	if err != nil {
		return DIDRecord{}, err
	}

	if _, err := r.repo.Get(ctx, holderKey); err == nil {
		return DIDRecord{}, ErrAlreadyRegistered
	} else if !errors.Is(err, ErrNotRegistered) {
		return DIDRecord{}, err
	}

	record := DIDRecord{
		HolderKey: holderKey,
		DID:       DIDFromHolderKey(holderKey),
		CreatedAt: r.now(),
	}
	if err := r.repo.Create(ctx, record); err != nil {
		return DIDRecord{}, err
	}

	r.logger.Info("did registered", "did", record.DID)
	return record, nil
}

// Resolve returns the DID record for a holder key.
func (r *Registry) Resolve(ctx context.Context, holderKey string) (DIDRecord, error) {
	return r.repo.Get(ctx, holderKey)
}

// AddCredential attaches a credential to the holder's record. Idempotent for
// the same (type, issuer) pair: resubmission updates in place.
func (r *Registry) AddCredential(ctx context.Context, holderKey string, cred Credential) error {
	record, err := r.repo.Get(ctx, holderKey)
	if err != nil {
		return err
	}
	if !record.Active() {
		return fmt.Errorf("identity %s: %w", holderKey, ErrNotRegistered)
	}

	if !r.allowMultiIssuer {
		existing, err := r.repo.Credentials(ctx, holderKey)
		if err != nil {
			return err
		}
		now := r.now()
		for _, c := range existing {
			if c.Type == cred.Type && c.Issuer != cred.Issuer && c.ValidAt(now) {
				return fmt.Errorf("type %s issued by %s: %w", cred.Type, c.Issuer, ErrIssuerConflict)
			}
		}
	}

	cred.HolderKey = holderKey
	cred.Status = StatusActive
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	return r.repo.UpsertCredential(ctx, cred)
}

// Revoke invalidates all valid credentials of the given type. The entries
// remain in the store for audit.
func (r *Registry) Revoke(ctx context.Context, holderKey string, credType CredentialType) error {
	revoked, err := r.repo.RevokeByType(ctx, holderKey, credType, r.now())
	if err != nil {
		return err
	}
	if revoked == 0 {
		return fmt.Errorf("type %s for %s: %w", credType, holderKey, ErrCredentialNotFound)
	}
	r.logger.Info("credentials revoked", "holder", holderKey, "type", string(credType), "count", revoked)
	return nil
}

// ActiveCredentials filters the holder's set down to currently valid entries.
// Read-only: expiry is evaluated at read time, nothing is mutated.
func (r *Registry) ActiveCredentials(ctx context.Context, holderKey string) ([]Credential, error) {
	all, err := r.repo.Credentials(ctx, holderKey)
	if err != nil {
		return nil, err
	}
	now := r.now()
	var active []Credential
	for _, c := range all {
		if c.ValidAt(now) {
			active = append(active, c)
		}
	}
	return active, nil
}

// CredentialHistory returns every credential ever attached to the holder,
// including expired and revoked entries.
func (r *Registry) CredentialHistory(ctx context.Context, holderKey string) ([]Credential, error) {
	return r.repo.Credentials(ctx, holderKey)
}

// Deregister closes a DID record. Not mounted on the public router; every
// call is logged.
func (r *Registry) Deregister(ctx context.Context, holderKey string) error {
	if err := r.repo.Deregister(ctx, holderKey, r.now()); err != nil {
		return err
	}
	r.logger.Warn("did deregistered", "holder", holderKey)
	return nil
}

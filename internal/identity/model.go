package identity

import "time"

// CredentialType classifies what a credential attests about its holder. The
// types double as the score engine's weighting categories.
type CredentialType string

const (
	CredPaymentDiscipline CredentialType = "payment_discipline"
	CredIncomeStability   CredentialType = "income_stability"
	CredCreditHistory     CredentialType = "credit_history"
	CredAccountAge        CredentialType = "account_age"
)

// CredentialStatus tracks credential lifecycle. Expired and revoked
// credentials are retained for audit, never deleted.
type CredentialStatus string

const (
	StatusActive  CredentialStatus = "active"
	StatusRevoked CredentialStatus = "revoked"
)

// Credential is a signed, typed, time-bounded assertion about a holder,
// issued by an external verifier through the oracle boundary.
type Credential struct {
	ID         string
	HolderKey  string
	Type       CredentialType
	Issuer     string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Attributes map[string]string
	Signature  []byte
	Status     CredentialStatus
	RevokedAt  *time.Time
}

// ValidAt reports whether the credential is usable at the given instant.
func (c Credential) ValidAt(t time.Time) bool {
	return c.Status == StatusActive && t.Before(c.ExpiresAt)
}

// DIDRecord binds a pseudonymous holder key to its credential set. One record
// per holder, created once, append-only for credentials.
type DIDRecord struct {
	HolderKey      string
	DID            string
	CreatedAt      time.Time
	DeregisteredAt *time.Time
}

// Active reports whether the record still accepts credentials.
func (r DIDRecord) Active() bool {
	return r.DeregisteredAt == nil
}

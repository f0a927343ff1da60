package oracle

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"time"
)

// TestIssuer is a signing identity for use in tests and development seeding.
type TestIssuer struct {
	Name string
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewTestIssuer generates a fresh ed25519 issuer and registers its public key.
func NewTestIssuer(name string, keys *IssuerKeys) TestIssuer {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	keys.Register(name, pub)
	return TestIssuer{Name: name, priv: priv, pub: pub}
}

// SignedPayload builds a signed envelope around the given source data.
func (i TestIssuer) SignedPayload(status string, issuedAt, expiresAt time.Time, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	env := Envelope{
		Issuer:    i.Name,
		IssuedAt:  issuedAt.UTC(),
		ExpiresAt: expiresAt.UTC(),
		Status:    status,
		Data:      raw,
	}
	env.Signature = ed25519.Sign(i.priv, env.SigningBytes())
	payload, err := json.Marshal(env)
	if err != nil {
		panic(err)
	}
	return payload
}

// SetClock is a test helper that overrides the verifier clock.
func SetClock(v *Verifier, now func() time.Time) {
	v.now = now
}

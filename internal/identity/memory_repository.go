package identity

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.RWMutex
	records map[string]DIDRecord
	creds   map[string][]Credential
}

// NewMemoryRepository builds an in-memory DID store for development and testing.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		records: make(map[string]DIDRecord),
		creds:   make(map[string][]Credential),
	}
}

func (r *memoryRepository) Create(_ context.Context, record DIDRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.HolderKey]; exists {
		return ErrAlreadyRegistered
	}
	r.records[record.HolderKey] = record
	return nil
}

func (r *memoryRepository) Get(_ context.Context, holderKey string) (DIDRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[holderKey]
	if !ok {
		return DIDRecord{}, ErrNotRegistered
	}
	return record, nil
}

func (r *memoryRepository) UpsertCredential(_ context.Context, cred Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.creds[cred.HolderKey]
	for i, c := range existing {
		if c.Type == cred.Type && c.Issuer == cred.Issuer {
			cred.ID = c.ID
			existing[i] = cred
			return nil
		}
	}
	r.creds[cred.HolderKey] = append(existing, cred)
	return nil
}

func (r *memoryRepository) Credentials(_ context.Context, holderKey string) ([]Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	creds := make([]Credential, len(r.creds[holderKey]))
	copy(creds, r.creds[holderKey])
	return creds, nil
}

func (r *memoryRepository) RevokeByType(_ context.Context, holderKey string, credType CredentialType, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	revoked := 0
	for i, c := range r.creds[holderKey] {
		if c.Type == credType && c.Status == StatusActive {
			ts := at
			c.Status = StatusRevoked
			c.RevokedAt = &ts
			r.creds[holderKey][i] = c
			revoked++
		}
	}
	return revoked, nil
}

func (r *memoryRepository) Deregister(_ context.Context, holderKey string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[holderKey]
	if !ok || record.DeregisteredAt != nil {
		return ErrNotRegistered
	}
	ts := at
	record.DeregisteredAt = &ts
	r.records[holderKey] = record
	return nil
}

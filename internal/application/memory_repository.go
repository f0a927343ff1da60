package application

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository is an in-memory Repository for dev mode and tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	apps map[string]Application
}

// NewMemoryRepository builds an empty in-memory application repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{apps: make(map[string]Application)}
}

func (r *MemoryRepository) Create(_ context.Context, a Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[a.ID] = cloneApplication(a)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, exists := r.apps[id]
	if !exists {
		return Application{}, ErrApplicationNotFound
	}
	return cloneApplication(a), nil
}

func (r *MemoryRepository) Update(_ context.Context, a Application, expectedVersion int) (Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.apps[a.ID]
	if !exists {
		return Application{}, ErrApplicationNotFound
	}
	if stored.Version != expectedVersion {
		return Application{}, ErrConcurrentModification
	}
	a.Version = expectedVersion + 1
	r.apps[a.ID] = cloneApplication(a)
	return cloneApplication(a), nil
}

func (r *MemoryRepository) ListByLender(_ context.Context, lenderID string, states ...State) ([]Application, error) {
	return r.list(func(a Application) bool {
		return a.LenderID == lenderID && stateMatches(a.State, states)
	}), nil
}

func (r *MemoryRepository) ListByHolder(_ context.Context, holderKey string) ([]Application, error) {
	return r.list(func(a Application) bool { return a.HolderKey == holderKey }), nil
}

func (r *MemoryRepository) ListByState(_ context.Context, states ...State) ([]Application, error) {
	return r.list(func(a Application) bool { return stateMatches(a.State, states) }), nil
}

func (r *MemoryRepository) ProductReferenced(_ context.Context, productID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.apps {
		if a.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) list(keep func(Application) bool) []Application {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var apps []Application
	for _, a := range r.apps {
		if keep(a) {
			apps = append(apps, cloneApplication(a))
		}
	}
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
			return apps[i].ID < apps[j].ID
		}
		return apps[i].CreatedAt.Before(apps[j].CreatedAt)
	})
	return apps
}

func cloneApplication(a Application) Application {
	out := a
	out.History = append(out.History[:0:0], a.History...)
	if a.Proof != nil {
		p := *a.Proof
		p.Results = append(p.Results[:0:0], a.Proof.Results...)
		p.Commitment = append(p.Commitment[:0:0], a.Proof.Commitment...)
		out.Proof = &p
	}
	return out
}

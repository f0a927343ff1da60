package loan

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository is an in-memory Repository for dev mode and tests.
type MemoryRepository struct {
	mu            sync.RWMutex
	loans         map[string]Loan
	byApplication map[string]string
}

// NewMemoryRepository builds an empty in-memory loan repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		loans:         make(map[string]Loan),
		byApplication: make(map[string]string),
	}
}

func (r *MemoryRepository) Create(_ context.Context, l Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byApplication[l.ApplicationID]; exists {
		return ErrLoanExists
	}
	r.loans[l.ID] = cloneLoan(l)
	r.byApplication[l.ApplicationID] = l.ID
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, exists := r.loans[id]
	if !exists {
		return Loan{}, ErrLoanNotFound
	}
	return cloneLoan(l), nil
}

func (r *MemoryRepository) GetByApplication(_ context.Context, applicationID string) (Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byApplication[applicationID]
	if !exists {
		return Loan{}, ErrLoanNotFound
	}
	return cloneLoan(r.loans[id]), nil
}

func (r *MemoryRepository) Update(_ context.Context, l Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.loans[l.ID]; !exists {
		return ErrLoanNotFound
	}
	r.loans[l.ID] = cloneLoan(l)
	return nil
}

func (r *MemoryRepository) ListByLender(_ context.Context, lenderID string) ([]Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var loans []Loan
	for _, l := range r.loans {
		if l.LenderID == lenderID {
			loans = append(loans, cloneLoan(l))
		}
	}
	sortLoans(loans)
	return loans, nil
}

func (r *MemoryRepository) ListAll(_ context.Context) ([]Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loans := make([]Loan, 0, len(r.loans))
	for _, l := range r.loans {
		loans = append(loans, cloneLoan(l))
	}
	sortLoans(loans)
	return loans, nil
}

func sortLoans(loans []Loan) {
	sort.Slice(loans, func(i, j int) bool {
		if loans[i].CreatedAt.Equal(loans[j].CreatedAt) {
			return loans[i].ID < loans[j].ID
		}
		return loans[i].CreatedAt.Before(loans[j].CreatedAt)
	})
}

func cloneLoan(l Loan) Loan {
	out := l
	out.Schedule = append(out.Schedule[:0:0], l.Schedule...)
	out.Payments = append(out.Payments[:0:0], l.Payments...)
	return out
}

package catalog

import (
	"context"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu       sync.RWMutex
	products map[string][]LoanProduct // id -> versions, ascending
}

// NewMemoryRepository builds an in-memory product store for development and testing.
func NewMemoryRepository() Repository {
	return &memoryRepository{products: make(map[string][]LoanProduct)}
}

func (r *memoryRepository) Create(_ context.Context, product LoanProduct) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[product.ID] = append(r.products[product.ID], product)
	sort.Slice(r.products[product.ID], func(i, j int) bool {
		return r.products[product.ID][i].Version < r.products[product.ID][j].Version
	})
	return nil
}

func (r *memoryRepository) Update(_ context.Context, product LoanProduct) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions := r.products[product.ID]
	for i, v := range versions {
		if v.Version == product.Version {
			versions[i] = product
			return nil
		}
	}
	return ErrProductNotFound
}

func (r *memoryRepository) Get(_ context.Context, id string, version int) (LoanProduct, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.products[id] {
		if v.Version == version {
			return v, nil
		}
	}
	return LoanProduct{}, ErrProductNotFound
}

func (r *memoryRepository) Latest(_ context.Context, id string) (LoanProduct, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.products[id]
	if len(versions) == 0 {
		return LoanProduct{}, ErrProductNotFound
	}
	return versions[len(versions)-1], nil
}

func (r *memoryRepository) List(_ context.Context, filter Filter) ([]LoanProduct, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var products []LoanProduct
	for _, versions := range r.products {
		latest := versions[len(versions)-1]
		if matches(latest, filter) {
			products = append(products, latest)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (r *memoryRepository) SetStatus(_ context.Context, id string, status ProductStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions := r.products[id]
	if len(versions) == 0 {
		return ErrProductNotFound
	}
	for i := range versions {
		versions[i].Status = status
	}
	return nil
}

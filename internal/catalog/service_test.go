package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/repslend/repslend/internal/score"
)

type staticRefs struct {
	referenced bool
}

func (s staticRefs) ProductReferenced(context.Context, string) (bool, error) {
	return s.referenced, nil
}

func testDefaults() Defaults {
	return Defaults{AutoApproveMax: 25_000, ReviewSLA: 48 * time.Hour}
}

func standardInput() ProductInput {
	return ProductInput{
		LenderID:      "protocol-bank",
		Name:          "Personal Loan - Standard",
		MinAmount:     5_000,
		MaxAmount:     25_000,
		InterestRate:  8.5,
		MinTermMonths: 12,
		MaxTermMonths: 36,
		Scale:         score.ScaleReps,
		MinScore:      600,
		Predicates:    []string{"score > 600", "dti < 0.40", "income_verified"},
	}
}

func TestCreateAppliesPolicyDefaults(t *testing.T) {
	svc := NewService(NewMemoryRepository(), staticRefs{}, testDefaults())

	product, err := svc.Create(context.Background(), standardInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if product.Version != 1 {
		t.Fatalf("expected version 1, got %d", product.Version)
	}
	if product.AutoApproveMax != 25_000 || product.ReviewSLA != 48*time.Hour {
		t.Fatalf("expected config defaults applied, got %+v", product)
	}
}

func TestCreateRejectsBadPredicates(t *testing.T) {
	svc := NewService(NewMemoryRepository(), staticRefs{}, testDefaults())

	input := standardInput()
	input.Predicates = []string{"score >"}
	if _, err := svc.Create(context.Background(), input); err == nil {
		t.Fatal("expected predicate validation error")
	}
}

func TestCreateRejectsScoreOutsideScale(t *testing.T) {
	svc := NewService(NewMemoryRepository(), staticRefs{}, testDefaults())

	input := standardInput()
	input.Scale = score.ScaleCredit
	input.MinScore = 200
	if _, err := svc.Create(context.Background(), input); err == nil {
		t.Fatal("expected scale bound validation error")
	}
}

func TestUpdateInPlaceWhenUnreferenced(t *testing.T) {
	svc := NewService(NewMemoryRepository(), staticRefs{referenced: false}, testDefaults())
	ctx := context.Background()

	product, _ := svc.Create(ctx, standardInput())

	input := standardInput()
	input.MinScore = 650
	updated, err := svc.Update(ctx, product.ID, input)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 1 {
		t.Fatalf("unreferenced product must keep version 1, got %d", updated.Version)
	}
	if updated.MinScore != 650 {
		t.Fatalf("expected min score 650, got %d", updated.MinScore)
	}
}

func TestUpdateVersionsWhenReferenced(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, staticRefs{referenced: true}, testDefaults())
	ctx := context.Background()

	product, _ := svc.Create(ctx, standardInput())

	input := standardInput()
	input.MinScore = 700
	updated, err := svc.Update(ctx, product.ID, input)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("referenced product must version, got %d", updated.Version)
	}

	// the referenced version stays resolvable and unchanged
	original, err := svc.Resolve(ctx, product.ID, 1)
	if err != nil {
		t.Fatalf("resolve v1: %v", err)
	}
	if original.MinScore != 600 {
		t.Fatalf("old version mutated: min score %d", original.MinScore)
	}
}

func TestArchiveHidesFromDiscovery(t *testing.T) {
	svc := NewService(NewMemoryRepository(), staticRefs{}, testDefaults())
	ctx := context.Background()

	product, _ := svc.Create(ctx, standardInput())
	if err := svc.Archive(ctx, product.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}

	visible, err := svc.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visible) != 0 {
		t.Fatalf("archived product still discoverable: %+v", visible)
	}

	// still resolvable for referencing applications
	if _, err := svc.Resolve(ctx, product.ID, product.Version); err != nil {
		t.Fatalf("archived product must stay resolvable: %v", err)
	}
}

func TestResolveUnknownVersion(t *testing.T) {
	svc := NewService(NewMemoryRepository(), staticRefs{}, testDefaults())
	ctx := context.Background()

	product, _ := svc.Create(ctx, standardInput())
	if _, err := svc.Resolve(ctx, product.ID, 9); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

package score

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/repslend/repslend/internal/identity"
	"github.com/repslend/repslend/internal/logging"
)

func seededRegistry(t *testing.T, wallet string, types ...identity.CredentialType) (*identity.Registry, string) {
	t.Helper()
	reg := identity.NewRegistry(identity.NewMemoryRepository(), false, logging.Discard())
	record, err := reg.Register(context.Background(), wallet)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	now := time.Now().UTC()
	for _, credType := range types {
		err := reg.AddCredential(context.Background(), record.HolderKey, identity.Credential{
			Type:      credType,
			Issuer:    "test-oracle",
			IssuedAt:  now,
			ExpiresAt: now.Add(24 * time.Hour),
		})
		if err != nil {
			t.Fatalf("add credential %s: %v", credType, err)
		}
	}
	return reg, record.HolderKey
}

func TestComputeDeterministicFixture(t *testing.T) {
	// Bank card covers payment discipline and account age; public records
	// cover credit history. On the 300-850 scale with weights 40/30/20/10
	// over a 550-point span: 300 + 220 + 0 + 110 + 55 = 685.
	reg, holder := seededRegistry(t, "0xfixture",
		identity.CredPaymentDiscipline,
		identity.CredAccountAge,
		identity.CredCreditHistory,
	)
	engine, err := NewEngine(reg, DefaultWeightTable())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	result, err := engine.Compute(context.Background(), holder, ScaleCredit)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if result.Composite != 685 {
		t.Fatalf("expected composite 685, got %d", result.Composite)
	}
	if result.WeightTableVersion != "v1" {
		t.Fatalf("expected weight table v1, got %s", result.WeightTableVersion)
	}
	if len(result.Breakdown) != 4 {
		t.Fatalf("expected 4 breakdown entries, got %d", len(result.Breakdown))
	}
	wantContributions := map[identity.CredentialType]int{
		identity.CredPaymentDiscipline: 220,
		identity.CredIncomeStability:   0,
		identity.CredCreditHistory:     110,
		identity.CredAccountAge:        55,
	}
	for _, entry := range result.Breakdown {
		if entry.Contribution != wantContributions[entry.Category] {
			t.Fatalf("category %s: expected contribution %d, got %d",
				entry.Category, wantContributions[entry.Category], entry.Contribution)
		}
	}
}

func TestComputeIsPure(t *testing.T) {
	reg, holder := seededRegistry(t, "0xpure",
		identity.CredPaymentDiscipline,
		identity.CredIncomeStability,
	)
	engine, _ := NewEngine(reg, DefaultWeightTable())

	first, err := engine.Compute(context.Background(), holder, ScaleReps)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := engine.Compute(context.Background(), holder, ScaleReps)
		if err != nil {
			t.Fatalf("compute %d: %v", i, err)
		}
		if again.Composite != first.Composite {
			t.Fatalf("compute not deterministic: %d != %d", again.Composite, first.Composite)
		}
	}

	// full coverage on reps: 0 + 400 + 300 = 700
	if first.Composite != 700 {
		t.Fatalf("expected reps composite 700, got %d", first.Composite)
	}
}

func TestComputeFullCoverageClampsAtMax(t *testing.T) {
	reg, holder := seededRegistry(t, "0xfull",
		identity.CredPaymentDiscipline,
		identity.CredIncomeStability,
		identity.CredCreditHistory,
		identity.CredAccountAge,
	)
	engine, _ := NewEngine(reg, DefaultWeightTable())

	credit, err := engine.Compute(context.Background(), holder, ScaleCredit)
	if err != nil {
		t.Fatalf("compute credit: %v", err)
	}
	if credit.Composite != 850 {
		t.Fatalf("expected credit max 850, got %d", credit.Composite)
	}

	reps, err := engine.Compute(context.Background(), holder, ScaleReps)
	if err != nil {
		t.Fatalf("compute reps: %v", err)
	}
	if reps.Composite != 1000 {
		t.Fatalf("expected reps max 1000, got %d", reps.Composite)
	}
}

func TestComputeInsufficientWithoutCredentials(t *testing.T) {
	reg, holder := seededRegistry(t, "0xempty")
	engine, _ := NewEngine(reg, DefaultWeightTable())

	result, err := engine.Compute(context.Background(), holder, ScaleCredit)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !result.Insufficient {
		t.Fatalf("expected insufficient result, got %+v", result)
	}
	if result.Composite != 0 {
		t.Fatalf("insufficient result must not carry a composite, got %d", result.Composite)
	}
}

func TestComputeRejectsUnknownScale(t *testing.T) {
	reg, holder := seededRegistry(t, "0xscale", identity.CredPaymentDiscipline)
	engine, _ := NewEngine(reg, DefaultWeightTable())

	if _, err := engine.Compute(context.Background(), holder, ScaleName("fico")); !errors.Is(err, ErrUnknownScale) {
		t.Fatalf("expected ErrUnknownScale, got %v", err)
	}
}

func TestWeightTableValidation(t *testing.T) {
	bad := WeightTable{
		Version: "broken",
		Weights: []CategoryWeight{
			{Category: identity.CredPaymentDiscipline, Weight: 60},
			{Category: identity.CredIncomeStability, Weight: 60},
		},
	}
	if _, err := NewEngine(identity.NewRegistry(identity.NewMemoryRepository(), false, logging.Discard()), bad); err == nil {
		t.Fatal("expected weight table validation error")
	}
}

func TestRatingBands(t *testing.T) {
	cases := []struct {
		composite int
		want      string
	}{
		{820, "Excellent"},
		{750, "Very Good"},
		{685, "Good"},
		{600, "Fair"},
		{450, "Poor"},
	}
	for _, tc := range cases {
		if got := Rating(tc.composite); got != tc.want {
			t.Fatalf("rating(%d): expected %s, got %s", tc.composite, tc.want, got)
		}
	}
}

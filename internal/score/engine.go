package score

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/repslend/repslend/internal/identity"
)

// ScaleName selects which scoring scale a computation targets. The two scales
// coexist by domain convention and are never converted into each other.
type ScaleName string

const (
	// ScaleCredit is the conventional 300-850 credit score scale.
	ScaleCredit ScaleName = "credit"
	// ScaleReps is the 0-1000 reputation score scale.
	ScaleReps ScaleName = "reps"
)

// Scale describes the numeric bounds of a scoring scale. Composite scores are
// clamped to [Min, Max]; Base is the floor a holder starts from.
type Scale struct {
	Name ScaleName
	Base int
	Min  int
	Max  int
}

var (
	creditScale = Scale{Name: ScaleCredit, Base: 300, Min: 300, Max: 850}
	repsScale   = Scale{Name: ScaleReps, Base: 0, Min: 0, Max: 1000}
)

// ErrUnknownScale indicates an unrecognized scale name.
var ErrUnknownScale = errors.New("unknown score scale")

// ScaleByName resolves a scale by its name.
func ScaleByName(name ScaleName) (Scale, error) {
	switch name {
	case ScaleCredit:
		return creditScale, nil
	case ScaleReps:
		return repsScale, nil
	default:
		return Scale{}, fmt.Errorf("%q: %w", name, ErrUnknownScale)
	}
}

// CategoryWeight assigns a percentage weight to one credential category.
type CategoryWeight struct {
	Category identity.CredentialType
	Weight   int
}

// WeightTable is the versioned category weighting used to compose a score.
// Effectively append-only configuration: a published version never changes.
type WeightTable struct {
	Version string
	Weights []CategoryWeight
}

// Validate checks the weights sum to exactly 100 percent.
func (t WeightTable) Validate() error {
	total := 0
	for _, w := range t.Weights {
		if w.Weight < 0 {
			return fmt.Errorf("weight table %s: negative weight for %s", t.Version, w.Category)
		}
		total += w.Weight
	}
	if total != 100 {
		return fmt.Errorf("weight table %s: weights sum to %d, want 100", t.Version, total)
	}
	return nil
}

// DefaultWeightTable is the v1 production weighting.
func DefaultWeightTable() WeightTable {
	return WeightTable{
		Version: "v1",
		Weights: []CategoryWeight{
			{Category: identity.CredPaymentDiscipline, Weight: 40},
			{Category: identity.CredIncomeStability, Weight: 30},
			{Category: identity.CredCreditHistory, Weight: 20},
			{Category: identity.CredAccountAge, Weight: 10},
		},
	}
}

// Contribution is one category's share of a composite score.
type Contribution struct {
	Category     identity.CredentialType `json:"category"`
	Weight       int                     `json:"weight"`
	Contribution int                     `json:"contribution"`
}

// ReputationScore is a derived snapshot, recomputed from the active credential
// set on every call. Callers needing stability across a session keep the
// snapshot together with its weight-table version.
type ReputationScore struct {
	HolderKey          string
	Scale              ScaleName
	Composite          int
	WeightTableVersion string
	Breakdown          []Contribution
	Insufficient       bool
	ComputedAt         time.Time
}

// CredentialSource yields the currently valid credential set for a holder.
type CredentialSource interface {
	ActiveCredentials(ctx context.Context, holderKey string) ([]identity.Credential, error)
}

// Engine deterministically composes valid credentials into a composite score.
type Engine struct {
	source CredentialSource
	table  WeightTable
}

// NewEngine builds a score engine over the given credential source and weight
// table. The table must be internally consistent.
func NewEngine(source CredentialSource, table WeightTable) (*Engine, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &Engine{source: source, table: table}, nil
}

// TableVersion exposes the active weight-table version for snapshotting.
func (e *Engine) TableVersion() string {
	return e.table.Version
}

// Compute derives the holder's score on the requested scale. A pure function
// of the active credential set and the weight-table version: same inputs,
// same output, no randomness. A holder with no valid credentials gets an
// Insufficient result, not an error.
func (e *Engine) Compute(ctx context.Context, holderKey string, scaleName ScaleName) (ReputationScore, error) {
	scale, err := ScaleByName(scaleName)
	if err != nil {
		return ReputationScore{}, err
	}

	creds, err := e.source.ActiveCredentials(ctx, holderKey)
	if err != nil {
		return ReputationScore{}, err
	}

	result := ReputationScore{
		HolderKey:          holderKey,
		Scale:              scaleName,
		WeightTableVersion: e.table.Version,
		ComputedAt:         time.Now().UTC(),
	}

	if len(creds) == 0 {
		result.Insufficient = true
		return result, nil
	}

	present := make(map[identity.CredentialType]bool, len(creds))
	for _, c := range creds {
		present[c.Type] = true
	}

	span := scale.Max - scale.Base
	composite := scale.Base
	for _, w := range e.table.Weights {
		contribution := 0
		if present[w.Category] {
			contribution = span * w.Weight / 100
		}
		composite += contribution
		result.Breakdown = append(result.Breakdown, Contribution{
			Category:     w.Category,
			Weight:       w.Weight,
			Contribution: contribution,
		})
	}

	if composite > scale.Max {
		composite = scale.Max
	}
	if composite < scale.Min {
		composite = scale.Min
	}
	result.Composite = composite
	return result, nil
}

// Rating maps a credit-scale composite onto the conventional band labels.
func Rating(composite int) string {
	switch {
	case composite >= 800:
		return "Excellent"
	case composite >= 740:
		return "Very Good"
	case composite >= 670:
		return "Good"
	case composite >= 580:
		return "Fair"
	default:
		return "Poor"
	}
}

// Tier buckets a composite into the risk-distribution ranges used by lender
// portfolio reporting.
func Tier(composite int) string {
	switch {
	case composite >= 750:
		return "750+"
	case composite >= 700:
		return "700-749"
	case composite >= 650:
		return "650-699"
	case composite >= 600:
		return "600-649"
	default:
		return "<600"
	}
}

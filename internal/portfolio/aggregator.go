package portfolio

import (
	"context"
	"log/slog"
	"time"

	"github.com/repslend/repslend/internal/application"
	"github.com/repslend/repslend/internal/loan"
	"github.com/repslend/repslend/internal/score"
)

// TierUnscored buckets holders without enough credentials for a composite.
const TierUnscored = "unscored"

// Snapshot is a point-in-time portfolio projection. It is derived entirely
// from stored applications and loans; computing it never writes.
type Snapshot struct {
	LenderID            string                    `json:"lender_id,omitempty"`
	GeneratedAt         time.Time                 `json:"generated_at"`
	ApplicationsByState map[application.State]int `json:"applications_by_state"`
	TierDistribution    map[string]int            `json:"tier_distribution"`
	TotalLoans          int                       `json:"total_loans"`
	ActiveLoans         int                       `json:"active_loans"`
	ClosedLoans         int                       `json:"closed_loans"`
	DefaultedLoans      int                       `json:"defaulted_loans"`
	TotalPrincipal      int64                     `json:"total_principal"`
	TotalOutstanding    int64                     `json:"total_outstanding"`
	TotalRepaid         int64                     `json:"total_repaid"`
	TotalInterest       int64                     `json:"total_interest"`
	DefaultRate         float64                   `json:"default_rate"`
}

// Aggregator projects portfolio risk figures from the application and loan
// stores. Recomputing over unchanged stores yields an identical snapshot.
type Aggregator struct {
	apps   application.Repository
	loans  loan.Repository
	engine *score.Engine
	logger *slog.Logger
	now    func() time.Time
}

// NewAggregator wires a read-only portfolio aggregator.
func NewAggregator(apps application.Repository, loans loan.Repository, engine *score.Engine, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		apps:   apps,
		loans:  loans,
		engine: engine,
		logger: logger,
		now:    time.Now,
	}
}

// Compute builds the portfolio snapshot for one lender, or for the whole
// book when lenderID is empty.
func (a *Aggregator) Compute(ctx context.Context, lenderID string) (Snapshot, error) {
	var (
		apps  []application.Application
		loans []loan.Loan
		err   error
	)
	if lenderID == "" {
		apps, err = a.apps.ListByState(ctx)
	} else {
		apps, err = a.apps.ListByLender(ctx, lenderID)
	}
	if err != nil {
		return Snapshot{}, err
	}
	if lenderID == "" {
		loans, err = a.loans.ListAll(ctx)
	} else {
		loans, err = a.loans.ListByLender(ctx, lenderID)
	}
	if err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{
		LenderID:            lenderID,
		GeneratedAt:         a.now().UTC(),
		ApplicationsByState: make(map[application.State]int),
		TierDistribution:    make(map[string]int),
	}
	for _, app := range apps {
		snapshot.ApplicationsByState[app.State]++
	}

	seen := make(map[string]bool)
	for _, l := range loans {
		snapshot.TotalLoans++
		snapshot.TotalPrincipal += l.Principal
		snapshot.TotalInterest += l.MonthlyPayment*int64(l.TermMonths) - l.Principal
		for _, payment := range l.Payments {
			snapshot.TotalRepaid += payment.Amount
		}
		switch l.Status {
		case loan.StatusActive:
			snapshot.ActiveLoans++
			snapshot.TotalOutstanding += l.Remaining
		case loan.StatusClosed:
			snapshot.ClosedLoans++
		case loan.StatusDefaulted:
			snapshot.DefaultedLoans++
		}

		if !seen[l.HolderKey] {
			seen[l.HolderKey] = true
			snapshot.TierDistribution[a.tier(ctx, l.HolderKey)]++
		}
	}
	if snapshot.TotalLoans > 0 {
		snapshot.DefaultRate = float64(snapshot.DefaultedLoans) / float64(snapshot.TotalLoans)
	}
	return snapshot, nil
}

// tier buckets a borrower on the credit scale at current credentials.
func (a *Aggregator) tier(ctx context.Context, holderKey string) string {
	result, err := a.engine.Compute(ctx, holderKey, score.ScaleCredit)
	if err != nil {
		a.logger.Warn("tier computation failed", "holder_key", holderKey, "error", err)
		return TierUnscored
	}
	if result.Insufficient {
		return TierUnscored
	}
	return score.Tier(result.Composite)
}

package catalog

import (
	"fmt"
	"time"

	"github.com/repslend/repslend/internal/score"
)

// ProductStatus controls discovery. Archived products stay resolvable for the
// applications that reference them.
type ProductStatus string

const (
	StatusActive   ProductStatus = "active"
	StatusArchived ProductStatus = "archived"
)

// LoanProduct is lender-owned configuration. A (ID, Version) pair is
// immutable once any application references it; edits create a new version.
type LoanProduct struct {
	ID            string
	Version       int
	LenderID      string
	Name          string
	MinAmount     int64
	MaxAmount     int64
	InterestRate  float64
	MinTermMonths int
	MaxTermMonths int

	// Scale declares which scoring scale MinScore and the predicate set are
	// interpreted on. Never converted.
	Scale    score.ScaleName
	MinScore int

	// Predicates holds the ordered assertion texts the borrower must prove.
	Predicates []string

	// AutoApprove enables full automation for amounts up to AutoApproveMax.
	AutoApprove    bool
	AutoApproveMax int64

	// ReviewSLA bounds how long a manual decision may stay pending before
	// the application is flagged for escalation.
	ReviewSLA time.Duration

	Status    ProductStatus
	CreatedAt time.Time
}

// Ref is the versioned product reference applications hold.
func (p LoanProduct) Ref() string {
	return fmt.Sprintf("%s@v%d", p.ID, p.Version)
}

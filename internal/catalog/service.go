package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/repslend/repslend/internal/predicate"
	"github.com/repslend/repslend/internal/score"
)

// ReferenceChecker reports whether any application references a product.
// Implemented by the application store; wired at startup.
type ReferenceChecker interface {
	ProductReferenced(ctx context.Context, productID string) (bool, error)
}

// Defaults supplies config-level fallbacks for per-product policy fields.
type Defaults struct {
	AutoApproveMax int64
	ReviewSLA      time.Duration
}

// Service owns loan product configuration. No approval logic lives here.
type Service struct {
	repo     Repository
	refs     ReferenceChecker
	defaults Defaults
}

// NewService builds the catalog service.
func NewService(repo Repository, refs ReferenceChecker, defaults Defaults) *Service {
	return &Service{repo: repo, refs: refs, defaults: defaults}
}

// ProductInput captures lender-supplied product configuration.
type ProductInput struct {
	LenderID       string
	Name           string
	MinAmount      int64
	MaxAmount      int64
	InterestRate   float64
	MinTermMonths  int
	MaxTermMonths  int
	Scale          score.ScaleName
	MinScore       int
	Predicates     []string
	AutoApprove    bool
	AutoApproveMax int64
	ReviewSLA      time.Duration
}

func (s *Service) validate(input ProductInput) error {
	if input.LenderID == "" {
		return fmt.Errorf("lender id is required")
	}
	if input.Name == "" {
		return fmt.Errorf("product name is required")
	}
	if input.MinAmount <= 0 || input.MaxAmount < input.MinAmount {
		return fmt.Errorf("invalid amount range [%d, %d]", input.MinAmount, input.MaxAmount)
	}
	if input.MinTermMonths <= 0 || input.MaxTermMonths < input.MinTermMonths {
		return fmt.Errorf("invalid term range [%d, %d]", input.MinTermMonths, input.MaxTermMonths)
	}
	if input.InterestRate <= 0 {
		return fmt.Errorf("interest rate must be positive")
	}
	scale, err := score.ScaleByName(input.Scale)
	if err != nil {
		return err
	}
	if input.MinScore < scale.Min || input.MinScore > scale.Max {
		return fmt.Errorf("min score %d outside %s scale [%d, %d]", input.MinScore, scale.Name, scale.Min, scale.Max)
	}
	if _, err := predicate.ParseAll(input.Predicates); err != nil {
		return err
	}
	return nil
}

func (s *Service) build(input ProductInput) LoanProduct {
	autoMax := input.AutoApproveMax
	if autoMax == 0 {
		autoMax = s.defaults.AutoApproveMax
	}
	sla := input.ReviewSLA
	if sla == 0 {
		sla = s.defaults.ReviewSLA
	}
	return LoanProduct{
		LenderID:       input.LenderID,
		Name:           input.Name,
		MinAmount:      input.MinAmount,
		MaxAmount:      input.MaxAmount,
		InterestRate:   input.InterestRate,
		MinTermMonths:  input.MinTermMonths,
		MaxTermMonths:  input.MaxTermMonths,
		Scale:          input.Scale,
		MinScore:       input.MinScore,
		Predicates:     input.Predicates,
		AutoApprove:    input.AutoApprove,
		AutoApproveMax: autoMax,
		ReviewSLA:      sla,
		Status:         StatusActive,
	}
}

// Create publishes a new product at version 1.
func (s *Service) Create(ctx context.Context, input ProductInput) (LoanProduct, error) {
	if err := s.validate(input); err != nil {
		return LoanProduct{}, err
	}
	product := s.build(input)
	product.ID = uuid.NewString()
	product.Version = 1
	product.CreatedAt = time.Now().UTC()

	if err := s.repo.Create(ctx, product); err != nil {
		return LoanProduct{}, err
	}
	return product, nil
}

// Update edits a product. If any application references it, the edit creates
// a new immutable version; otherwise the latest version is rewritten in place.
func (s *Service) Update(ctx context.Context, productID string, input ProductInput) (LoanProduct, error) {
	if err := s.validate(input); err != nil {
		return LoanProduct{}, err
	}
	latest, err := s.repo.Latest(ctx, productID)
	if err != nil {
		return LoanProduct{}, err
	}
	if latest.LenderID != input.LenderID {
		return LoanProduct{}, fmt.Errorf("product %s is not owned by lender %s", productID, input.LenderID)
	}

	referenced, err := s.refs.ProductReferenced(ctx, productID)
	if err != nil {
		return LoanProduct{}, err
	}

	product := s.build(input)
	product.ID = productID
	product.Status = latest.Status
	product.CreatedAt = latest.CreatedAt

	if referenced {
		product.Version = latest.Version + 1
		product.CreatedAt = time.Now().UTC()
		if err := s.repo.Create(ctx, product); err != nil {
			return LoanProduct{}, err
		}
		return product, nil
	}

	product.Version = latest.Version
	if err := s.repo.Update(ctx, product); err != nil {
		return LoanProduct{}, err
	}
	return product, nil
}

// Archive hides a product from discovery. Existing applications still resolve
// their referenced version.
func (s *Service) Archive(ctx context.Context, productID string) error {
	return s.repo.SetStatus(ctx, productID, StatusArchived)
}

// List returns discoverable products matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]LoanProduct, error) {
	return s.repo.List(ctx, filter)
}

// Latest resolves the newest version of a product for new applications.
func (s *Service) Latest(ctx context.Context, productID string) (LoanProduct, error) {
	return s.repo.Latest(ctx, productID)
}

// Resolve fetches the exact version an application references, archived or not.
func (s *Service) Resolve(ctx context.Context, productID string, version int) (LoanProduct, error) {
	product, err := s.repo.Get(ctx, productID, version)
	if err != nil {
		return LoanProduct{}, fmt.Errorf("%s@v%d: %w", productID, version, err)
	}
	return product, nil
}

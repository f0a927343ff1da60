package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/repslend/repslend/internal/score"
)

var (
	// ErrProductNotFound indicates no product matched the id (and version).
	ErrProductNotFound = errors.New("product not found")

	// ErrProductVersionMismatch indicates a stale product version reference.
	ErrProductVersionMismatch = errors.New("product version mismatch")
)

// Filter narrows product listings. Archived products are hidden unless
// explicitly requested.
type Filter struct {
	LenderID        string
	Scale           score.ScaleName
	IncludeArchived bool
}

// Repository persists versioned loan products.
type Repository interface {
	Create(ctx context.Context, product LoanProduct) error
	Update(ctx context.Context, product LoanProduct) error
	Get(ctx context.Context, id string, version int) (LoanProduct, error)
	Latest(ctx context.Context, id string) (LoanProduct, error)
	List(ctx context.Context, filter Filter) ([]LoanProduct, error)
	SetStatus(ctx context.Context, id string, status ProductStatus) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed product repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const productColumns = `id, version, lender_id, name, min_amount, max_amount, interest_rate,
        min_term_months, max_term_months, scale, min_score, predicates,
        auto_approve, auto_approve_max, review_sla_seconds, status, created_at`

// Create inserts a product row keyed by (id, version).
func (r *PostgresRepository) Create(ctx context.Context, product LoanProduct) error {
	predicates, err := json.Marshal(product.Predicates)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO loan_products (`+productColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		product.ID, product.Version, product.LenderID, product.Name,
		product.MinAmount, product.MaxAmount, product.InterestRate,
		product.MinTermMonths, product.MaxTermMonths, product.Scale, product.MinScore,
		predicates, product.AutoApprove, product.AutoApproveMax,
		int64(product.ReviewSLA.Seconds()), product.Status, product.CreatedAt.UTC())
	return err
}

// Update overwrites an existing (id, version) row. Used only for unreferenced
// products; referenced products get a new version through Create.
func (r *PostgresRepository) Update(ctx context.Context, product LoanProduct) error {
	predicates, err := json.Marshal(product.Predicates)
	if err != nil {
		return err
	}
	cmd, err := r.db.Exec(ctx, `UPDATE loan_products SET
        name = $3, min_amount = $4, max_amount = $5, interest_rate = $6,
        min_term_months = $7, max_term_months = $8, scale = $9, min_score = $10,
        predicates = $11, auto_approve = $12, auto_approve_max = $13,
        review_sla_seconds = $14, status = $15
        WHERE id = $1 AND version = $2`,
		product.ID, product.Version, product.Name,
		product.MinAmount, product.MaxAmount, product.InterestRate,
		product.MinTermMonths, product.MaxTermMonths, product.Scale, product.MinScore,
		predicates, product.AutoApprove, product.AutoApproveMax,
		int64(product.ReviewSLA.Seconds()), product.Status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// Get resolves an exact product version.
func (r *PostgresRepository) Get(ctx context.Context, id string, version int) (LoanProduct, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM loan_products
        WHERE id = $1 AND version = $2`, id, version)
	return scanProduct(row)
}

// Latest resolves the newest version of a product.
func (r *PostgresRepository) Latest(ctx context.Context, id string) (LoanProduct, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM loan_products
        WHERE id = $1 ORDER BY version DESC LIMIT 1`, id)
	return scanProduct(row)
}

// List returns the latest version of each product matching the filter.
func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]LoanProduct, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT ON (id) `+productColumns+`
        FROM loan_products ORDER BY id, version DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []LoanProduct
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		if matches(product, filter) {
			products = append(products, product)
		}
	}
	return products, rows.Err()
}

// SetStatus updates discovery status across every version of a product.
func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status ProductStatus) error {
	cmd, err := r.db.Exec(ctx, `UPDATE loan_products SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func matches(product LoanProduct, filter Filter) bool {
	if !filter.IncludeArchived && product.Status == StatusArchived {
		return false
	}
	if filter.LenderID != "" && product.LenderID != filter.LenderID {
		return false
	}
	if filter.Scale != "" && product.Scale != filter.Scale {
		return false
	}
	return true
}

func scanProduct(row pgx.Row) (LoanProduct, error) {
	var (
		product    LoanProduct
		predicates []byte
		slaSeconds int64
	)
	err := row.Scan(&product.ID, &product.Version, &product.LenderID, &product.Name,
		&product.MinAmount, &product.MaxAmount, &product.InterestRate,
		&product.MinTermMonths, &product.MaxTermMonths, &product.Scale, &product.MinScore,
		&predicates, &product.AutoApprove, &product.AutoApproveMax,
		&slaSeconds, &product.Status, &product.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LoanProduct{}, ErrProductNotFound
		}
		return LoanProduct{}, err
	}
	if err := json.Unmarshal(predicates, &product.Predicates); err != nil {
		return LoanProduct{}, err
	}
	product.ReviewSLA = time.Duration(slaSeconds) * time.Second
	return product, nil
}

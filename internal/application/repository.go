package application

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/repslend/repslend/internal/proof"
)

var (
	// ErrApplicationNotFound indicates no application matched the id.
	ErrApplicationNotFound = errors.New("application not found")

	// ErrConcurrentModification indicates a write lost an optimistic
	// concurrency race; the caller must reload and retry.
	ErrConcurrentModification = errors.New("application modified concurrently")
)

// Repository persists applications with optimistic versioning. Update only
// succeeds when expectedVersion matches the stored row; the stored version is
// then incremented.
type Repository interface {
	Create(ctx context.Context, a Application) error
	Get(ctx context.Context, id string) (Application, error)
	Update(ctx context.Context, a Application, expectedVersion int) (Application, error)
	ListByLender(ctx context.Context, lenderID string, states ...State) ([]Application, error)
	ListByHolder(ctx context.Context, holderKey string) ([]Application, error)
	ListByState(ctx context.Context, states ...State) ([]Application, error)
	ProductReferenced(ctx context.Context, productID string) (bool, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed application repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const applicationColumns = `id, holder_key, lender_id, product_id, product_version, amount,
        term_months, proof, state, version, history, review_deadline, created_at`

func (r *PostgresRepository) Create(ctx context.Context, a Application) error {
	proofJSON, history, err := marshalApplication(a)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO applications (`+applicationColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.HolderKey, a.LenderID, a.ProductID, a.ProductVersion, a.Amount,
		a.TermMonths, proofJSON, a.State, a.Version, history,
		a.ReviewDeadline.UTC(), a.CreatedAt.UTC())
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Application, error) {
	row := r.db.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	return scanApplication(row)
}

// Update is a compare-and-swap on the version column.
func (r *PostgresRepository) Update(ctx context.Context, a Application, expectedVersion int) (Application, error) {
	proofJSON, history, err := marshalApplication(a)
	if err != nil {
		return Application{}, err
	}
	cmd, err := r.db.Exec(ctx, `UPDATE applications SET
        proof = $3, state = $4, version = version + 1, history = $5, review_deadline = $6
        WHERE id = $1 AND version = $2`,
		a.ID, expectedVersion, proofJSON, a.State, history, a.ReviewDeadline.UTC())
	if err != nil {
		return Application{}, err
	}
	if cmd.RowsAffected() == 0 {
		if _, getErr := r.Get(ctx, a.ID); getErr != nil {
			return Application{}, getErr
		}
		return Application{}, ErrConcurrentModification
	}
	a.Version = expectedVersion + 1
	return a, nil
}

func (r *PostgresRepository) ListByLender(ctx context.Context, lenderID string, states ...State) ([]Application, error) {
	rows, err := r.db.Query(ctx, `SELECT `+applicationColumns+` FROM applications
        WHERE lender_id = $1 ORDER BY created_at`, lenderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectApplications(rows, states)
}

func (r *PostgresRepository) ListByHolder(ctx context.Context, holderKey string) ([]Application, error) {
	rows, err := r.db.Query(ctx, `SELECT `+applicationColumns+` FROM applications
        WHERE holder_key = $1 ORDER BY created_at`, holderKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectApplications(rows, nil)
}

func (r *PostgresRepository) ListByState(ctx context.Context, states ...State) ([]Application, error) {
	rows, err := r.db.Query(ctx, `SELECT `+applicationColumns+` FROM applications ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectApplications(rows, states)
}

// ProductReferenced satisfies the catalog's reference check: a product
// version becomes immutable once any application pins it.
func (r *PostgresRepository) ProductReferenced(ctx context.Context, productID string) (bool, error) {
	var referenced bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE product_id = $1)`,
		productID).Scan(&referenced)
	return referenced, err
}

func marshalApplication(a Application) (proofJSON, history []byte, err error) {
	if a.Proof != nil {
		if proofJSON, err = json.Marshal(a.Proof); err != nil {
			return nil, nil, err
		}
	}
	if history, err = json.Marshal(a.History); err != nil {
		return nil, nil, err
	}
	return proofJSON, history, nil
}

func collectApplications(rows pgx.Rows, states []State) ([]Application, error) {
	var apps []Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		if stateMatches(a.State, states) {
			apps = append(apps, a)
		}
	}
	return apps, rows.Err()
}

func stateMatches(state State, states []State) bool {
	if len(states) == 0 {
		return true
	}
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

func scanApplication(row pgx.Row) (Application, error) {
	var (
		a         Application
		proofJSON []byte
		history   []byte
	)
	err := row.Scan(&a.ID, &a.HolderKey, &a.LenderID, &a.ProductID, &a.ProductVersion,
		&a.Amount, &a.TermMonths, &proofJSON, &a.State, &a.Version, &history,
		&a.ReviewDeadline, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, ErrApplicationNotFound
		}
		return Application{}, err
	}
	if len(proofJSON) > 0 {
		a.Proof = new(proof.Proof)
		if err := json.Unmarshal(proofJSON, a.Proof); err != nil {
			return Application{}, err
		}
	}
	if err := json.Unmarshal(history, &a.History); err != nil {
		return Application{}, err
	}
	return a, nil
}

package identity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotRegistered indicates the holder has no DID record.
	ErrNotRegistered = errors.New("identity not registered")

	// ErrAlreadyRegistered indicates a second registration attempt for the same holder.
	ErrAlreadyRegistered = errors.New("identity already registered")

	// ErrCredentialNotFound indicates no credential matched the request.
	ErrCredentialNotFound = errors.New("credential not found")
)

// Repository persists DID records and their credential sets.
type Repository interface {
	Create(ctx context.Context, record DIDRecord) error
	Get(ctx context.Context, holderKey string) (DIDRecord, error)
	UpsertCredential(ctx context.Context, cred Credential) error
	Credentials(ctx context.Context, holderKey string) ([]Credential, error)
	RevokeByType(ctx context.Context, holderKey string, credType CredentialType, at time.Time) (int, error)
	Deregister(ctx context.Context, holderKey string, at time.Time) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed DID repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new DID record.
func (r *PostgresRepository) Create(ctx context.Context, record DIDRecord) error {
	_, err := r.db.Exec(ctx, `INSERT INTO did_records (holder_key, did, created_at)
        VALUES ($1, $2, $3)`, record.HolderKey, record.DID, record.CreatedAt.UTC())
	return err
}

// Get fetches a DID record by holder key.
func (r *PostgresRepository) Get(ctx context.Context, holderKey string) (DIDRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT holder_key, did, created_at, deregistered_at
        FROM did_records WHERE holder_key = $1`, holderKey)
	var record DIDRecord
	if err := row.Scan(&record.HolderKey, &record.DID, &record.CreatedAt, &record.DeregisteredAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DIDRecord{}, ErrNotRegistered
		}
		return DIDRecord{}, err
	}
	return record, nil
}

// UpsertCredential stores a credential keyed by holder, type and issuer so a
// resubmitted source verification updates rather than duplicates.
func (r *PostgresRepository) UpsertCredential(ctx context.Context, cred Credential) error {
	credID, err := uuid.Parse(cred.ID)
	if err != nil {
		return err
	}
	attrs, err := json.Marshal(cred.Attributes)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO credentials
        (id, holder_key, type, issuer, issued_at, expires_at, attributes, signature, status, revoked_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (holder_key, type, issuer) DO UPDATE SET
        issued_at = EXCLUDED.issued_at, expires_at = EXCLUDED.expires_at,
        attributes = EXCLUDED.attributes, signature = EXCLUDED.signature,
        status = EXCLUDED.status, revoked_at = EXCLUDED.revoked_at`,
		credID, cred.HolderKey, cred.Type, cred.Issuer, cred.IssuedAt.UTC(), cred.ExpiresAt.UTC(),
		attrs, cred.Signature, cred.Status, cred.RevokedAt)
	return err
}

// Credentials returns the holder's full credential history, including revoked
// and expired entries.
func (r *PostgresRepository) Credentials(ctx context.Context, holderKey string) ([]Credential, error) {
	rows, err := r.db.Query(ctx, `SELECT id, holder_key, type, issuer, issued_at, expires_at,
        attributes, signature, status, revoked_at
        FROM credentials WHERE holder_key = $1 ORDER BY issued_at`, holderKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		var (
			cred  Credential
			id    uuid.UUID
			attrs []byte
		)
		if err := rows.Scan(&id, &cred.HolderKey, &cred.Type, &cred.Issuer, &cred.IssuedAt,
			&cred.ExpiresAt, &attrs, &cred.Signature, &cred.Status, &cred.RevokedAt); err != nil {
			return nil, err
		}
		cred.ID = id.String()
		if err := json.Unmarshal(attrs, &cred.Attributes); err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// RevokeByType marks every credential of the given type as revoked and
// returns how many were affected.
func (r *PostgresRepository) RevokeByType(ctx context.Context, holderKey string, credType CredentialType, at time.Time) (int, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE credentials SET status = $1, revoked_at = $2
        WHERE holder_key = $3 AND type = $4 AND status = $5`,
		StatusRevoked, at.UTC(), holderKey, credType, StatusActive)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

// Deregister closes the DID record. Credentials remain for audit.
func (r *PostgresRepository) Deregister(ctx context.Context, holderKey string, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE did_records SET deregistered_at = $1
        WHERE holder_key = $2 AND deregistered_at IS NULL`, at.UTC(), holderKey)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotRegistered
	}
	return nil
}

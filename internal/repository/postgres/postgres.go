package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wasmgate/internal/domain"
	"wasmgate/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.CredentialRepository  = (*Repository)(nil)
	_ repository.TierRepository        = (*Repository)(nil)
	_ repository.UsageRepository       = (*Repository)(nil)
	_ repository.MaintenanceRepository = (*Repository)(nil)
)

// CreateCredential inserts an API key record.
func (r *Repository) CreateCredential(ctx context.Context, credential *domain.Credential) error {
	const query = `INSERT INTO api_keys (id, secret_hash, tier_id, is_active, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query, credential.ID, credential.SecretHash, credential.TierID,
		credential.Active, credential.ExpiresAt, credential.CreatedAt, credential.UpdatedAt)
	return err
}

// GetCredentialByHash fetches an API key record by secret digest.
func (r *Repository) GetCredentialByHash(ctx context.Context, secretHash string) (*domain.Credential, error) {
	const query = `SELECT id, secret_hash, tier_id, is_active, expires_at, last_used_at, created_at, updated_at
		FROM api_keys WHERE secret_hash = $1`
	row := r.pool.QueryRow(ctx, query, secretHash)
	var c domain.Credential
	if err := row.Scan(&c.ID, &c.SecretHash, &c.TierID, &c.Active, &c.ExpiresAt, &c.LastUsedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// TouchCredentialLastUsed updates the best-effort last-used timestamp.
func (r *Repository) TouchCredentialLastUsed(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// RevokeCredential marks an API key inactive and returns the updated record.
func (r *Repository) RevokeCredential(ctx context.Context, id uuid.UUID) (*domain.Credential, error) {
	const query = `UPDATE api_keys SET is_active = false, updated_at = NOW() WHERE id = $1
		RETURNING id, secret_hash, tier_id, is_active, expires_at, last_used_at, created_at, updated_at`
	row := r.pool.QueryRow(ctx, query, id)
	var c domain.Credential
	if err := row.Scan(&c.ID, &c.SecretHash, &c.TierID, &c.Active, &c.ExpiresAt, &c.LastUsedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListCredentials returns all API key records, newest first.
func (r *Repository) ListCredentials(ctx context.Context) ([]domain.Credential, error) {
	const query = `SELECT id, secret_hash, tier_id, is_active, expires_at, last_used_at, created_at, updated_at
		FROM api_keys ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	credentials := make([]domain.Credential, 0)
	for rows.Next() {
		var c domain.Credential
		if err := rows.Scan(&c.ID, &c.SecretHash, &c.TierID, &c.Active, &c.ExpiresAt, &c.LastUsedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		credentials = append(credentials, c)
	}
	return credentials, rows.Err()
}

// GetTierByID fetches a subscription tier.
func (r *Repository) GetTierByID(ctx context.Context, id uuid.UUID) (*domain.Tier, error) {
	const query = `SELECT id, name, requests_per_minute, requests_per_day, max_memory_mb, max_execution_seconds, created_at, updated_at
		FROM tiers WHERE id = $1`
	return r.scanTier(r.pool.QueryRow(ctx, query, id))
}

// GetTierByName fetches a subscription tier by its unique name.
func (r *Repository) GetTierByName(ctx context.Context, name string) (*domain.Tier, error) {
	const query = `SELECT id, name, requests_per_minute, requests_per_day, max_memory_mb, max_execution_seconds, created_at, updated_at
		FROM tiers WHERE name = $1`
	return r.scanTier(r.pool.QueryRow(ctx, query, name))
}

func (r *Repository) scanTier(row pgx.Row) (*domain.Tier, error) {
	var t domain.Tier
	if err := row.Scan(&t.ID, &t.Name, &t.Limits.RequestsPerMinute, &t.Limits.RequestsPerDay,
		&t.Limits.MaxMemoryMB, &t.Limits.MaxExecutionSeconds, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// InsertUsageRecords appends a batch of usage records in one round trip.
func (r *Repository) InsertUsageRecords(ctx context.Context, records []domain.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}
	const query = `INSERT INTO usage_logs (id, api_key_id, recorded_at, status, duration_ms, peak_memory_mb, error_message, module_size_bytes, input_size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	batch := &pgx.Batch{}
	for _, record := range records {
		batch.Queue(query, record.ID, record.TenantID, record.Timestamp, string(record.Status),
			record.DurationMS, record.PeakMemoryMB, record.ErrorMessage, record.ModuleBytes, record.InputBytes)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// DeleteUsageRecordsBefore purges usage log rows older than the cutoff.
func (r *Repository) DeleteUsageRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM usage_logs WHERE recorded_at < $1`
	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeactivateExpiredCredentials marks overdue API keys inactive.
func (r *Repository) DeactivateExpiredCredentials(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE api_keys SET is_active = false, updated_at = NOW()
		WHERE is_active AND expires_at IS NOT NULL AND expires_at < $1`
	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

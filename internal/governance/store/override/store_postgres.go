package override

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"teagate/internal/governance/models"
)

// PostgresStore persists per-identity overrides in PostgreSQL. Overrides
// are durable admin config and must survive counter store flushes.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Schema is the table this store requires. Applied by migrations in
// deployment; exposed so integration tests can create it directly.
const Schema = `
CREATE TABLE IF NOT EXISTS governance_overrides (
	identity            TEXT PRIMARY KEY,
	rate_limit_override INTEGER,
	quota_cap_override  INTEGER,
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewPostgres constructs a PostgreSQL-backed override store.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetOverrides(ctx context.Context, identity string) (*models.OverrideConfig, error) {
	const q = `
		SELECT identity, rate_limit_override, quota_cap_override
		FROM governance_overrides
		WHERE identity = $1`

	var o models.OverrideConfig
	err := s.pool.QueryRow(ctx, q, identity).Scan(&o.Identity, &o.RateLimitOverride, &o.QuotaCapOverride)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get overrides: %w", err)
	}
	return &o, nil
}

func (s *PostgresStore) SetRateLimitOverride(ctx context.Context, identity string, limit *int) error {
	return s.upsert(ctx, identity, "rate_limit_override", limit)
}

func (s *PostgresStore) SetHardCapOverride(ctx context.Context, identity string, cap *int) error {
	return s.upsert(ctx, identity, "quota_cap_override", cap)
}

// upsert writes one override column, then prunes the row if both
// columns ended up NULL so a cleared identity reads as "not configured".
func (s *PostgresStore) upsert(ctx context.Context, identity, column string, value *int) error {
	q := fmt.Sprintf(`
		INSERT INTO governance_overrides (identity, %[1]s, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (identity)
		DO UPDATE SET %[1]s = EXCLUDED.%[1]s, updated_at = now()`, column)

	if _, err := s.pool.Exec(ctx, q, identity, value); err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}

	const prune = `
		DELETE FROM governance_overrides
		WHERE identity = $1
		  AND rate_limit_override IS NULL
		  AND quota_cap_override IS NULL`
	if _, err := s.pool.Exec(ctx, prune, identity); err != nil {
		return fmt.Errorf("prune empty override row: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListOverrides(ctx context.Context) ([]*models.OverrideConfig, error) {
	const q = `
		SELECT identity, rate_limit_override, quota_cap_override
		FROM governance_overrides
		ORDER BY identity`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()

	var out []*models.OverrideConfig
	for rows.Next() {
		var o models.OverrideConfig
		if err := rows.Scan(&o.Identity, &o.RateLimitOverride, &o.QuotaCapOverride); err != nil {
			return nil, fmt.Errorf("scan override row: %w", err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

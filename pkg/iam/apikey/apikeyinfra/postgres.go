package apikeyinfra

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/iam/apikey"
	"github.com/gridworks/gridcore/pkg/kernel"
)

// PostgresKeyRepository is the PostgreSQL implementation of apikey.Repository.
type PostgresKeyRepository struct {
	db *sqlx.DB
}

func NewPostgresKeyRepository(db *sqlx.DB) apikey.Repository {
	return &PostgresKeyRepository{db: db}
}

type keyRow struct {
	ID            string         `db:"id"`
	OrgID         string         `db:"org_id"`
	Name          string         `db:"name"`
	SecretHash    string         `db:"secret_hash"`
	DisplayPrefix string         `db:"display_prefix"`
	Services      pq.StringArray `db:"services"`
	Environment   string         `db:"environment"`
	Active        bool           `db:"active"`
	UsageLimit    int64          `db:"usage_limit"`
	WindowResetAt time.Time      `db:"window_reset_at"`
	LastUsedAt    *time.Time     `db:"last_used_at"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func toKeyRow(k apikey.APIKey) keyRow {
	return keyRow{
		ID:            k.ID.String(),
		OrgID:         k.OrgID.String(),
		Name:          k.Name,
		SecretHash:    k.SecretHash,
		DisplayPrefix: k.DisplayPrefix,
		Services:      pq.StringArray(k.Services),
		Environment:   string(k.Environment),
		Active:        k.Active,
		UsageLimit:    k.UsageLimit,
		WindowResetAt: k.WindowResetAt,
		LastUsedAt:    k.LastUsedAt,
		CreatedAt:     k.CreatedAt,
		UpdatedAt:     k.UpdatedAt,
	}
}

func (r keyRow) toDomain() *apikey.APIKey {
	return &apikey.APIKey{
		ID:            kernel.NewKeyID(r.ID),
		OrgID:         kernel.NewOrgID(r.OrgID),
		Name:          r.Name,
		SecretHash:    r.SecretHash,
		DisplayPrefix: r.DisplayPrefix,
		Services:      []string(r.Services),
		Environment:   apikey.Environment(r.Environment),
		Active:        r.Active,
		UsageLimit:    r.UsageLimit,
		WindowResetAt: r.WindowResetAt,
		LastUsedAt:    r.LastUsedAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (r *PostgresKeyRepository) Save(ctx context.Context, key apikey.APIKey) error {
	query := `
		INSERT INTO api_keys (
			id, org_id, name, secret_hash, display_prefix, services,
			environment, active, usage_limit, window_reset_at, last_used_at,
			created_at, updated_at
		) VALUES (
			:id, :org_id, :name, :secret_hash, :display_prefix, :services,
			:environment, :active, :usage_limit, :window_reset_at, :last_used_at,
			:created_at, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			services = EXCLUDED.services,
			active = api_keys.active AND EXCLUDED.active,
			window_reset_at = EXCLUDED.window_reset_at,
			last_used_at = EXCLUDED.last_used_at,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.NamedExecContext(ctx, query, toKeyRow(key))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return errx.Conflict("API key hash already exists").
				WithDetail("key_id", key.ID.String())
		}
		return errx.Wrap(err, "failed to save API key", errx.TypeInternal).
			WithDetail("key_id", key.ID.String())
	}
	return nil
}

func (r *PostgresKeyRepository) FindByID(ctx context.Context, id kernel.KeyID, orgID kernel.OrgID) (*apikey.APIKey, error) {
	var row keyRow
	query := `SELECT * FROM api_keys WHERE id = $1 AND org_id = $2`

	err := r.db.GetContext(ctx, &row, query, id.String(), orgID.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apikey.ErrKeyNotFound()
		}
		return nil, errx.Wrap(err, "failed to find API key", errx.TypeInternal)
	}
	return row.toDomain(), nil
}

func (r *PostgresKeyRepository) FindByHash(ctx context.Context, secretHash string) (*apikey.APIKey, error) {
	var row keyRow
	query := `SELECT * FROM api_keys WHERE secret_hash = $1`

	err := r.db.GetContext(ctx, &row, query, secretHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apikey.ErrKeyNotFound()
		}
		return nil, errx.Wrap(err, "failed to find API key by hash", errx.TypeInternal)
	}
	return row.toDomain(), nil
}

func (r *PostgresKeyRepository) FindByOrg(ctx context.Context, orgID kernel.OrgID) ([]*apikey.APIKey, error) {
	var rows []keyRow
	query := `SELECT * FROM api_keys WHERE org_id = $1 ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &rows, query, orgID.String()); err != nil {
		return nil, errx.Wrap(err, "failed to list API keys", errx.TypeInternal)
	}

	keys := make([]*apikey.APIKey, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row.toDomain())
	}
	return keys, nil
}

func (r *PostgresKeyRepository) TouchLastUsed(ctx context.Context, id kernel.KeyID) error {
	query := `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id.String()); err != nil {
		return errx.Wrap(err, "failed to update last_used_at", errx.TypeInternal)
	}
	return nil
}

package orginfra

import (
	"context"
	"database/sql"

	"github.com/gridworks/gridcore/pkg/catalog"
	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/iam"
	"github.com/gridworks/gridcore/pkg/iam/org"
	"github.com/gridworks/gridcore/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresOrgRepository is the Postgres implementation of org.Repository.
type PostgresOrgRepository struct {
	db *sqlx.DB
}

// NewPostgresOrgRepository creates a new repository instance.
func NewPostgresOrgRepository(db *sqlx.DB) org.Repository {
	return &PostgresOrgRepository{db: db}
}

type orgRow struct {
	ID              string         `db:"id"`
	Name            string         `db:"name"`
	Domain          string         `db:"domain"`
	Plan            string         `db:"plan"`
	AuthProvider    string         `db:"auth_provider"`
	AuthEnabled     bool           `db:"auth_enabled"`
	IPAllowlist     pq.StringArray `db:"ip_allowlist"`
	MFARequired     bool           `db:"mfa_required"`
	KeyRotationDays int            `db:"key_rotation_days"`
	Active          bool           `db:"is_active"`
	SuspendReason   sql.NullString `db:"suspend_reason"`
	CreatedAt       sql.NullTime   `db:"created_at"`
	UpdatedAt       sql.NullTime   `db:"updated_at"`
}

func toRow(o org.Organization) orgRow {
	return orgRow{
		ID:              o.ID.String(),
		Name:            o.Name,
		Domain:          o.Domain,
		Plan:            string(o.Plan),
		AuthProvider:    string(o.AuthPolicy.Provider),
		AuthEnabled:     o.AuthPolicy.Enabled,
		IPAllowlist:     pq.StringArray(o.SecurityPolicy.IPAllowlist),
		MFARequired:     o.SecurityPolicy.MFARequired,
		KeyRotationDays: o.SecurityPolicy.KeyRotationDays,
		Active:          o.Active,
		SuspendReason:   sql.NullString{String: o.SuspendReason, Valid: o.SuspendReason != ""},
		CreatedAt:       sql.NullTime{Time: o.CreatedAt, Valid: !o.CreatedAt.IsZero()},
		UpdatedAt:       sql.NullTime{Time: o.UpdatedAt, Valid: !o.UpdatedAt.IsZero()},
	}
}

func (r orgRow) toDomain() org.Organization {
	return org.Organization{
		ID:     kernel.NewOrgID(r.ID),
		Name:   r.Name,
		Domain: r.Domain,
		Plan:   catalog.PlanTier(r.Plan),
		AuthPolicy: org.AuthPolicy{
			Provider: iam.Provider(r.AuthProvider),
			Enabled:  r.AuthEnabled,
		},
		SecurityPolicy: org.SecurityPolicy{
			IPAllowlist:     []string(r.IPAllowlist),
			MFARequired:     r.MFARequired,
			KeyRotationDays: r.KeyRotationDays,
		},
		Active:        r.Active,
		SuspendReason: r.SuspendReason.String,
		CreatedAt:     r.CreatedAt.Time,
		UpdatedAt:     r.UpdatedAt.Time,
	}
}

// Save inserts or updates an organization. The unique index on domain makes
// the one-domain-one-org invariant hold at the storage layer.
func (r *PostgresOrgRepository) Save(ctx context.Context, o org.Organization) error {
	query := `
		INSERT INTO organizations (
			id, name, domain, plan, auth_provider, auth_enabled,
			ip_allowlist, mfa_required, key_rotation_days,
			is_active, suspend_reason, created_at, updated_at
		) VALUES (
			:id, :name, :domain, :plan, :auth_provider, :auth_enabled,
			:ip_allowlist, :mfa_required, :key_rotation_days,
			:is_active, :suspend_reason, :created_at, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			domain = EXCLUDED.domain,
			plan = EXCLUDED.plan,
			auth_provider = EXCLUDED.auth_provider,
			auth_enabled = EXCLUDED.auth_enabled,
			ip_allowlist = EXCLUDED.ip_allowlist,
			mfa_required = EXCLUDED.mfa_required,
			key_rotation_days = EXCLUDED.key_rotation_days,
			is_active = EXCLUDED.is_active,
			suspend_reason = EXCLUDED.suspend_reason,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.NamedExecContext(ctx, query, toRow(o))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation on domain
			return org.ErrDomainTaken().WithDetail("domain", o.Domain)
		}
		return errx.Wrap(err, "failed to save organization", errx.TypeInternal).
			WithDetail("org_id", o.ID.String())
	}
	return nil
}

// FindByID looks up an organization by id.
func (r *PostgresOrgRepository) FindByID(ctx context.Context, id kernel.OrgID) (*org.Organization, error) {
	var row orgRow
	query := `SELECT * FROM organizations WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id.String()); err != nil {
		if err == sql.ErrNoRows {
			return nil, org.ErrOrgNotFound()
		}
		return nil, errx.Wrap(err, "failed to find organization by ID", errx.TypeInternal)
	}
	o := row.toDomain()
	return &o, nil
}

// FindByDomain looks up the single organization owning a lowercase domain.
func (r *PostgresOrgRepository) FindByDomain(ctx context.Context, domain string) (*org.Organization, error) {
	var row orgRow
	query := `SELECT * FROM organizations WHERE domain = $1`
	if err := r.db.GetContext(ctx, &row, query, domain); err != nil {
		if err == sql.ErrNoRows {
			return nil, org.ErrOrgNotFound().WithDetail("domain", domain)
		}
		return nil, errx.Wrap(err, "failed to find organization by domain", errx.TypeInternal)
	}
	o := row.toDomain()
	return &o, nil
}

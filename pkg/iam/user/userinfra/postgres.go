package userinfra

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/iam/user"
	"github.com/gridworks/gridcore/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresUserRepository is the Postgres implementation of user.Repository.
type PostgresUserRepository struct {
	db *sqlx.DB
}

// NewPostgresUserRepository creates a new repository instance.
func NewPostgresUserRepository(db *sqlx.DB) user.Repository {
	return &PostgresUserRepository{db: db}
}

// Save inserts or updates a user. Emails are stored lowercase.
func (r *PostgresUserRepository) Save(ctx context.Context, u user.User) error {
	u.Email = strings.ToLower(u.Email)

	query := `
		INSERT INTO users (id, org_id, email, name, role, is_active, last_login_at, created_at, updated_at)
		VALUES (:id, :org_id, :email, :name, :role, :is_active, :last_login_at, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			is_active = EXCLUDED.is_active,
			last_login_at = EXCLUDED.last_login_at,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.NamedExecContext(ctx, query, u)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation on email
			return errx.Conflict("email already registered").WithDetail("email", u.Email)
		}
		return errx.Wrap(err, "failed to save user", errx.TypeInternal).
			WithDetail("user_id", u.ID.String())
	}
	return nil
}

// FindByID looks up a user scoped to its organization.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id kernel.UserID, orgID kernel.OrgID) (*user.User, error) {
	var u user.User
	query := `SELECT * FROM users WHERE id = $1 AND org_id = $2`
	if err := r.db.GetContext(ctx, &u, query, id.String(), orgID.String()); err != nil {
		if err == sql.ErrNoRows {
			return nil, user.ErrUserNotFound()
		}
		return nil, errx.Wrap(err, "failed to find user by ID", errx.TypeInternal)
	}
	return &u, nil
}

// FindByEmail looks up a user by its lowercase email.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	var u user.User
	query := `SELECT * FROM users WHERE email = $1`
	if err := r.db.GetContext(ctx, &u, query, strings.ToLower(email)); err != nil {
		if err == sql.ErrNoRows {
			return nil, user.ErrUserNotFound()
		}
		return nil, errx.Wrap(err, "failed to find user by email", errx.TypeInternal)
	}
	return &u, nil
}

// FindByOrg lists the users of an organization.
func (r *PostgresUserRepository) FindByOrg(ctx context.Context, orgID kernel.OrgID) ([]*user.User, error) {
	var users []*user.User
	query := `SELECT * FROM users WHERE org_id = $1 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &users, query, orgID.String()); err != nil {
		return nil, errx.Wrap(err, "failed to list users", errx.TypeInternal)
	}
	return users, nil
}

// TouchLastLogin records a successful sign-in.
func (r *PostgresUserRepository) TouchLastLogin(ctx context.Context, id kernel.UserID) error {
	query := `UPDATE users SET last_login_at = $1, updated_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id.String()); err != nil {
		return errx.Wrap(err, "failed to update last login", errx.TypeInternal)
	}
	return nil
}

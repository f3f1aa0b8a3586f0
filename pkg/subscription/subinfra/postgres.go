package subinfra

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/gridworks/gridcore/pkg/catalog"
	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/kernel"
	"github.com/gridworks/gridcore/pkg/subscription"
)

// PostgresSubscriptionRepository is the PostgreSQL implementation of
// subscription.Repository.
type PostgresSubscriptionRepository struct {
	db *sqlx.DB
}

func NewPostgresSubscriptionRepository(db *sqlx.DB) subscription.Repository {
	return &PostgresSubscriptionRepository{db: db}
}

type subRow struct {
	ID                 string         `db:"id"`
	ProviderRef        string         `db:"provider_ref"`
	OrgID              string         `db:"org_id"`
	Status             string         `db:"status"`
	Plan               string         `db:"plan"`
	ServiceIDs         pq.StringArray `db:"service_ids"`
	CurrentPeriodStart time.Time      `db:"current_period_start"`
	CurrentPeriodEnd   time.Time      `db:"current_period_end"`
	CancelAtPeriodEnd  bool           `db:"cancel_at_period_end"`
	SyncDegraded       bool           `db:"sync_degraded"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func toSubRow(s subscription.Subscription) subRow {
	return subRow{
		ID:                 s.ID.String(),
		ProviderRef:        s.ProviderRef,
		OrgID:              s.OrgID.String(),
		Status:             string(s.Status),
		Plan:               string(s.Plan),
		ServiceIDs:         pq.StringArray(s.ServiceIDs),
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		SyncDegraded:       s.SyncDegraded,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func (r subRow) toDomain() *subscription.Subscription {
	return &subscription.Subscription{
		ID:                 kernel.NewSubscriptionID(r.ID),
		ProviderRef:        r.ProviderRef,
		OrgID:              kernel.NewOrgID(r.OrgID),
		Status:             subscription.Status(r.Status),
		Plan:               catalog.PlanTier(r.Plan),
		ServiceIDs:         []string(r.ServiceIDs),
		CurrentPeriodStart: r.CurrentPeriodStart,
		CurrentPeriodEnd:   r.CurrentPeriodEnd,
		CancelAtPeriodEnd:  r.CancelAtPeriodEnd,
		SyncDegraded:       r.SyncDegraded,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func (r *PostgresSubscriptionRepository) Save(ctx context.Context, sub subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id, provider_ref, org_id, status, plan, service_ids,
			current_period_start, current_period_end, cancel_at_period_end,
			sync_degraded, created_at, updated_at
		) VALUES (
			:id, :provider_ref, :org_id, :status, :plan, :service_ids,
			:current_period_start, :current_period_end, :cancel_at_period_end,
			:sync_degraded, :created_at, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			plan = EXCLUDED.plan,
			service_ids = EXCLUDED.service_ids,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			sync_degraded = EXCLUDED.sync_degraded,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.NamedExecContext(ctx, query, toSubRow(sub))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return subscription.ErrAlreadyExists().WithDetail("org_id", sub.OrgID.String())
		}
		return errx.Wrap(err, "failed to save subscription", errx.TypeInternal).
			WithDetail("subscription_id", sub.ID.String())
	}
	return nil
}

func (r *PostgresSubscriptionRepository) FindByID(ctx context.Context, id kernel.SubscriptionID) (*subscription.Subscription, error) {
	var row subRow
	query := `SELECT * FROM subscriptions WHERE id = $1`

	err := r.db.GetContext(ctx, &row, query, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, subscription.ErrSubscriptionNotFound()
		}
		return nil, errx.Wrap(err, "failed to find subscription", errx.TypeInternal)
	}
	return row.toDomain(), nil
}

func (r *PostgresSubscriptionRepository) FindByOrg(ctx context.Context, orgID kernel.OrgID) (*subscription.Subscription, error) {
	var row subRow
	query := `SELECT * FROM subscriptions WHERE org_id = $1 ORDER BY created_at DESC LIMIT 1`

	err := r.db.GetContext(ctx, &row, query, orgID.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, subscription.ErrSubscriptionNotFound()
		}
		return nil, errx.Wrap(err, "failed to find subscription by org", errx.TypeInternal)
	}
	return row.toDomain(), nil
}

func (r *PostgresSubscriptionRepository) FindByProviderRef(ctx context.Context, providerRef string) (*subscription.Subscription, error) {
	var row subRow
	query := `SELECT * FROM subscriptions WHERE provider_ref = $1`

	err := r.db.GetContext(ctx, &row, query, providerRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, subscription.ErrSubscriptionNotFound()
		}
		return nil, errx.Wrap(err, "failed to find subscription by provider ref", errx.TypeInternal)
	}
	return row.toDomain(), nil
}

// PostgresEventStore implements subscription.ProcessedEventStore on an
// insert-only webhook_events table with a primary key on the event ID.
type PostgresEventStore struct {
	db *sqlx.DB
}

func NewPostgresEventStore(db *sqlx.DB) subscription.ProcessedEventStore {
	return &PostgresEventStore{db: db}
}

func (s *PostgresEventStore) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	query := `INSERT INTO webhook_events (id, processed_at) VALUES ($1, NOW()) ON CONFLICT (id) DO NOTHING`

	result, err := s.db.ExecContext(ctx, query, eventID)
	if err != nil {
		return false, errx.Wrap(err, "failed to record webhook event", errx.TypeInternal)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errx.Wrap(err, "failed to read webhook event insert result", errx.TypeInternal)
	}
	return rows > 0, nil
}

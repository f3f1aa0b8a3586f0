package subscription

import (
	"context"
	"time"

	"github.com/gridworks/gridcore/pkg/catalog"
	"github.com/gridworks/gridcore/pkg/kernel"
)

// Repository persists local subscription state.
type Repository interface {
	Save(ctx context.Context, sub Subscription) error
	FindByID(ctx context.Context, id kernel.SubscriptionID) (*Subscription, error)
	FindByOrg(ctx context.Context, orgID kernel.OrgID) (*Subscription, error)
	FindByProviderRef(ctx context.Context, providerRef string) (*Subscription, error)
}

// ProcessedEventStore remembers which webhook events have been applied.
// MarkProcessed returns false when the event ID was already present, which
// makes replayed deliveries no-ops.
type ProcessedEventStore interface {
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
}

// ProviderLineItem is one priced component of a provider-side subscription.
type ProviderLineItem struct {
	PriceRef string `json:"price_ref"`
	Quantity int    `json:"quantity"`
}

// CreateRequest asks the provider to open a subscription.
type CreateRequest struct {
	OrgID     kernel.OrgID       `json:"org_id"`
	Plan      catalog.PlanTier   `json:"plan"`
	LineItems []ProviderLineItem `json:"line_items"`
}

// UpdateRequest changes a provider-side subscription's line items. Removed
// items are dropped, added items appended, and the provider prorates the
// difference.
type UpdateRequest struct {
	ProviderRef string             `json:"provider_ref"`
	AddItems    []ProviderLineItem `json:"add_items"`
	RemoveRefs  []string           `json:"remove_refs"`
	Prorate     bool               `json:"prorate"`
}

// ProviderSubscription is the provider's confirmed view after a call.
type ProviderSubscription struct {
	Ref         string    `json:"ref"`
	Status      Status    `json:"status"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// Provider is the external billing system. Every mutating call carries an
// idempotency key so a retried request is not applied twice.
type Provider interface {
	CreateSubscription(ctx context.Context, req CreateRequest, idempotencyKey string) (*ProviderSubscription, error)
	UpdateSubscription(ctx context.Context, req UpdateRequest, idempotencyKey string) (*ProviderSubscription, error)
	CancelSubscription(ctx context.Context, providerRef string, atPeriodEnd bool, idempotencyKey string) (*ProviderSubscription, error)
	GetSubscription(ctx context.Context, providerRef string) (*ProviderSubscription, error)
}

// ResyncEnqueuer schedules a degraded subscription for background
// reconciliation.
type ResyncEnqueuer interface {
	Enqueue(ctx context.Context, subID kernel.SubscriptionID, delay time.Duration) error
}

package subsrv

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/gridworks/gridcore/pkg/asyncx"
	"github.com/gridworks/gridcore/pkg/catalog"
	"github.com/gridworks/gridcore/pkg/config"
	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/iam/org"
	"github.com/gridworks/gridcore/pkg/kernel"
	"github.com/gridworks/gridcore/pkg/logx"
	"github.com/gridworks/gridcore/pkg/notify"
	"github.com/gridworks/gridcore/pkg/subscription"
)

// Synchronizer keeps local subscription state in lockstep with the billing
// provider. The provider's confirmation is the only thing that moves local
// state; a failed or unconfirmed call leaves the local record untouched.
type Synchronizer struct {
	repo        subscription.Repository
	provider    subscription.Provider
	catalogRepo catalog.Repository
	orgRepo     org.Repository
	events      subscription.ProcessedEventStore
	notifier    notify.Notifier
	billing     config.BillingConfig
	locks       *keyedMutex
	resync      subscription.ResyncEnqueuer
}

// SetResyncQueue attaches a background reconciliation queue. Degraded
// subscriptions get scheduled on it for a later Resync.
func (s *Synchronizer) SetResyncQueue(q subscription.ResyncEnqueuer) {
	s.resync = q
}

func NewSynchronizer(
	repo subscription.Repository,
	provider subscription.Provider,
	catalogRepo catalog.Repository,
	orgRepo org.Repository,
	events subscription.ProcessedEventStore,
	notifier notify.Notifier,
	billing config.BillingConfig,
) *Synchronizer {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Synchronizer{
		repo:        repo,
		provider:    provider,
		catalogRepo: catalogRepo,
		orgRepo:     orgRepo,
		events:      events,
		notifier:    notifier,
		billing:     billing,
		locks:       newKeyedMutex(),
	}
}

// Create opens a subscription for an organization. The provider call is
// retried under a bounded backoff with a single idempotency key, so a
// network flake cannot double-bill. Local state is written only after the
// provider confirms. Creation is serialized per organization: racing calls
// queue behind the org lock and the losers see the winner's subscription.
func (s *Synchronizer) Create(ctx context.Context, orgID kernel.OrgID, plan catalog.PlanTier, serviceIDs []string) (*subscription.Subscription, error) {
	unlock := s.locks.lock("org:" + orgID.String())
	defer unlock()

	o, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !o.IsActive() {
		return nil, org.ErrOrgSuspended()
	}

	if existing, err := s.repo.FindByOrg(ctx, orgID); err == nil && !existing.Status.IsTerminal() {
		return nil, subscription.ErrAlreadyExists().WithDetail("subscription_id", existing.ID.String())
	}

	if !plan.IsValid() {
		return nil, catalog.ErrUnknownPlan(string(plan))
	}

	lineItems, err := s.lineItemsFor(ctx, serviceIDs)
	if err != nil {
		return nil, err
	}

	idempotencyKey := uuid.NewString()
	confirmed, err := s.callProvider(ctx, func(callCtx context.Context) (*subscription.ProviderSubscription, error) {
		return s.provider.CreateSubscription(callCtx, subscription.CreateRequest{
			OrgID:     orgID,
			Plan:      plan,
			LineItems: lineItems,
		}, idempotencyKey)
	})
	if err != nil {
		return nil, subscription.ErrProviderSync(err)
	}

	now := time.Now().UTC()
	sub := subscription.Subscription{
		ID:                 kernel.NewSubscriptionID(uuid.NewString()),
		ProviderRef:        confirmed.Ref,
		OrgID:              orgID,
		Status:             confirmed.Status,
		Plan:               plan,
		ServiceIDs:         serviceIDs,
		CurrentPeriodStart: confirmed.PeriodStart,
		CurrentPeriodEnd:   confirmed.PeriodEnd,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Save(ctx, sub); err != nil {
		return nil, errx.Wrap(err, "provider confirmed but local save failed", errx.TypeInternal).
			WithDetail("provider_ref", confirmed.Ref)
	}

	logx.WithFields(logx.Fields{
		"subscription_id": sub.ID,
		"org_id":          orgID,
		"plan":            plan,
	}).Info("📦 Subscription created")

	return &sub, nil
}

// Update moves a subscription to a new plan and service set. The change is
// expressed to the provider as a line-item diff with proration; obsolete
// items are removed and new ones added in one call.
func (s *Synchronizer) Update(ctx context.Context, subID kernel.SubscriptionID, newPlan catalog.PlanTier, newServiceIDs []string) (*subscription.Subscription, error) {
	unlock := s.locks.lock(subID.String())
	defer unlock()

	sub, err := s.repo.FindByID(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.Status.IsTerminal() {
		return nil, subscription.ErrTerminal().WithDetail("status", string(sub.Status))
	}
	if !newPlan.IsValid() {
		return nil, catalog.ErrUnknownPlan(string(newPlan))
	}

	add, remove, err := s.diffLineItems(ctx, sub.ServiceIDs, newServiceIDs)
	if err != nil {
		return nil, err
	}

	idempotencyKey := uuid.NewString()
	confirmed, err := s.callProvider(ctx, func(callCtx context.Context) (*subscription.ProviderSubscription, error) {
		return s.provider.UpdateSubscription(callCtx, subscription.UpdateRequest{
			ProviderRef: sub.ProviderRef,
			AddItems:    add,
			RemoveRefs:  remove,
			Prorate:     true,
		}, idempotencyKey)
	})
	if err != nil {
		s.markDegraded(ctx, sub)
		return nil, subscription.ErrProviderSync(err)
	}

	if err := sub.TransitionTo(confirmed.Status); err != nil {
		return nil, err
	}
	sub.Plan = newPlan
	sub.ServiceIDs = newServiceIDs
	sub.CurrentPeriodStart = confirmed.PeriodStart
	sub.CurrentPeriodEnd = confirmed.PeriodEnd
	sub.SyncDegraded = false

	if err := s.repo.Save(ctx, *sub); err != nil {
		return nil, errx.Wrap(err, "provider confirmed but local save failed", errx.TypeInternal)
	}

	logx.WithFields(logx.Fields{
		"subscription_id": subID,
		"plan":            newPlan,
	}).Info("📦 Subscription updated")

	return sub, nil
}

// Cancel ends a subscription, either at the period boundary or immediately.
func (s *Synchronizer) Cancel(ctx context.Context, subID kernel.SubscriptionID, atPeriodEnd bool) (*subscription.Subscription, error) {
	unlock := s.locks.lock(subID.String())
	defer unlock()

	sub, err := s.repo.FindByID(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.Status.IsTerminal() {
		return nil, subscription.ErrTerminal().WithDetail("status", string(sub.Status))
	}

	idempotencyKey := uuid.NewString()
	confirmed, err := s.callProvider(ctx, func(callCtx context.Context) (*subscription.ProviderSubscription, error) {
		return s.provider.CancelSubscription(callCtx, sub.ProviderRef, atPeriodEnd, idempotencyKey)
	})
	if err != nil {
		s.markDegraded(ctx, sub)
		return nil, subscription.ErrProviderSync(err)
	}

	if err := sub.TransitionTo(confirmed.Status); err != nil {
		return nil, err
	}
	sub.CancelAtPeriodEnd = atPeriodEnd
	sub.SyncDegraded = false

	if err := s.repo.Save(ctx, *sub); err != nil {
		return nil, errx.Wrap(err, "provider confirmed but local save failed", errx.TypeInternal)
	}

	logx.WithFields(logx.Fields{
		"subscription_id": subID,
		"at_period_end":   atPeriodEnd,
	}).Info("📦 Subscription canceled")

	return sub, nil
}

// Get returns a subscription by ID.
func (s *Synchronizer) Get(ctx context.Context, subID kernel.SubscriptionID) (*subscription.Subscription, error) {
	return s.repo.FindByID(ctx, subID)
}

// GetByOrg returns the organization's subscription.
func (s *Synchronizer) GetByOrg(ctx context.Context, orgID kernel.OrgID) (*subscription.Subscription, error) {
	return s.repo.FindByOrg(ctx, orgID)
}

// HandleEvent applies a provider webhook. Replayed deliveries are no-ops,
// keyed by the event ID. Status moves follow the transition graph; a replay
// landing on the current status passes through as a self-transition.
func (s *Synchronizer) HandleEvent(ctx context.Context, event subscription.Event) error {
	first, err := s.events.MarkProcessed(ctx, event.ID)
	if err != nil {
		return errx.Wrap(err, "failed to record webhook event", errx.TypeInternal)
	}
	if !first {
		logx.WithField("event_id", event.ID).Debug("Webhook event replayed, skipping")
		return nil
	}

	sub, err := s.repo.FindByProviderRef(ctx, event.ProviderRef)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(sub.ID.String())
	defer unlock()

	// Re-read under the lock; a concurrent writer may have moved it.
	sub, err = s.repo.FindByID(ctx, sub.ID)
	if err != nil {
		return err
	}

	target, ok := event.ImpliedStatus()
	if !ok {
		logx.WithFields(logx.Fields{"event_id": event.ID, "type": event.Type}).Warn("Webhook event carries no status, ignoring")
		return nil
	}

	if err := sub.TransitionTo(target); err != nil {
		return err
	}
	if !event.PeriodStart.IsZero() {
		sub.CurrentPeriodStart = event.PeriodStart
		sub.CurrentPeriodEnd = event.PeriodEnd
	}

	if err := s.repo.Save(ctx, *sub); err != nil {
		return errx.Wrap(err, "failed to apply webhook event", errx.TypeInternal)
	}

	if target == subscription.StatusPastDue {
		s.sendAlert(ctx, notify.Alert{
			Kind:    notify.AlertSubscriptionPastDue,
			OrgID:   sub.OrgID,
			Subject: "Subscription payment past due",
			Details: map[string]any{"subscription_id": sub.ID.String()},
		})
	}

	logx.WithFields(logx.Fields{
		"event_id":        event.ID,
		"subscription_id": sub.ID,
		"status":          target,
	}).Info("📬 Webhook event applied")

	return nil
}

// callProvider runs one provider operation under the configured timeout with
// bounded exponential backoff. The same idempotency key rides every attempt.
func (s *Synchronizer) callProvider(ctx context.Context, op func(context.Context) (*subscription.ProviderSubscription, error)) (*subscription.ProviderSubscription, error) {
	budget := s.billing.RetryBudget
	if budget == 0 {
		budget = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	return backoff.Retry(ctx, func() (*subscription.ProviderSubscription, error) {
		callCtx, callCancel := context.WithTimeout(ctx, s.billing.Timeout)
		defer callCancel()

		confirmed, err := op(callCtx)
		if err != nil {
			if errx.IsType(err, errx.TypeValidation) || errx.IsType(err, errx.TypeConflict) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return confirmed, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(s.billing.MaxRetries)),
	)
}

// markDegraded flags a subscription whose last provider call exhausted its
// retries. Local fields stay as the provider last confirmed them.
func (s *Synchronizer) markDegraded(ctx context.Context, sub *subscription.Subscription) {
	sub.SyncDegraded = true
	if err := s.repo.Save(ctx, *sub); err != nil {
		logx.WithError(err).WithField("subscription_id", sub.ID).Error("Failed to persist sync_degraded flag")
		return
	}

	s.sendAlert(ctx, notify.Alert{
		Kind:    notify.AlertSyncDegraded,
		OrgID:   sub.OrgID,
		Subject: "Subscription out of sync with billing provider",
		Details: map[string]any{"subscription_id": sub.ID.String()},
	})

	if s.resync != nil {
		if err := s.resync.Enqueue(ctx, sub.ID, time.Minute); err != nil {
			logx.WithError(err).WithField("subscription_id", sub.ID).Warn("Failed to schedule resync")
		}
	}
}

// Resync reconciles a degraded subscription against the provider's current
// view. The provider's answer wins: status and period are overwritten and
// the degraded flag cleared.
func (s *Synchronizer) Resync(ctx context.Context, subID kernel.SubscriptionID) error {
	unlock := s.locks.lock(subID.String())
	defer unlock()

	sub, err := s.repo.FindByID(ctx, subID)
	if err != nil {
		return err
	}
	if !sub.SyncDegraded {
		return nil
	}

	confirmed, err := s.callProvider(ctx, func(callCtx context.Context) (*subscription.ProviderSubscription, error) {
		return s.provider.GetSubscription(callCtx, sub.ProviderRef)
	})
	if err != nil {
		return subscription.ErrProviderSync(err)
	}

	sub.Status = confirmed.Status
	sub.CurrentPeriodStart = confirmed.PeriodStart
	sub.CurrentPeriodEnd = confirmed.PeriodEnd
	sub.SyncDegraded = false
	sub.UpdatedAt = time.Now().UTC()

	if err := s.repo.Save(ctx, *sub); err != nil {
		return errx.Wrap(err, "failed to persist resynced subscription", errx.TypeInternal)
	}

	logx.WithField("subscription_id", subID).Info("🔄 Subscription resynced with provider")
	return nil
}

func (s *Synchronizer) lineItemsFor(ctx context.Context, serviceIDs []string) ([]subscription.ProviderLineItem, error) {
	items := make([]subscription.ProviderLineItem, 0, len(serviceIDs))
	for _, id := range serviceIDs {
		entry, err := s.catalogRepo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		items = append(items, subscription.ProviderLineItem{
			PriceRef: entry.ProviderRef,
			Quantity: 1,
		})
	}
	return items, nil
}

// diffLineItems computes the provider-side change set between the current
// and desired service sets.
func (s *Synchronizer) diffLineItems(ctx context.Context, current, desired []string) (add []subscription.ProviderLineItem, remove []string, err error) {
	currentSet := make(map[string]bool, len(current))
	for _, id := range current {
		currentSet[id] = true
	}
	desiredSet := make(map[string]bool, len(desired))
	for _, id := range desired {
		desiredSet[id] = true
	}

	for _, id := range desired {
		if currentSet[id] {
			continue
		}
		entry, err := s.catalogRepo.FindByID(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		add = append(add, subscription.ProviderLineItem{PriceRef: entry.ProviderRef, Quantity: 1})
	}

	for _, id := range current {
		if desiredSet[id] {
			continue
		}
		entry, err := s.catalogRepo.FindByID(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		remove = append(remove, entry.ProviderRef)
	}

	return add, remove, nil
}

// sendAlert delivers off the request path. A fresh context keeps delivery
// alive after the request that raised the alert completes.
func (s *Synchronizer) sendAlert(_ context.Context, alert notify.Alert) {
	asyncx.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.SendAlert(ctx, alert); err != nil {
			logx.WithError(err).WithField("kind", alert.Kind).Warn("Failed to deliver alert")
		}
	})
}

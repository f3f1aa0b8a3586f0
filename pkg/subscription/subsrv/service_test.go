package subsrv_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gridworks/gridcore/pkg/catalog"
	"github.com/gridworks/gridcore/pkg/catalog/cataloginfra"
	"github.com/gridworks/gridcore/pkg/config"
	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/iam/org/orginfra"
	"github.com/gridworks/gridcore/pkg/kernel"
	"github.com/gridworks/gridcore/pkg/subscription"
	"github.com/gridworks/gridcore/pkg/subscription/subinfra"
	"github.com/gridworks/gridcore/pkg/subscription/subsrv"
)

var testBilling = config.BillingConfig{
	Timeout:     time.Second,
	MaxRetries:  3,
	RetryBudget: 5 * time.Second,
}

var testOrgID = kernel.NewOrgID("org-hdfc")

type fixture struct {
	sync     *subsrv.Synchronizer
	repo     *subinfra.MemorySubscriptionRepository
	provider *subinfra.FakeProvider
}

func newFixture() *fixture {
	repo := subinfra.NewMemorySubscriptionRepository()
	provider := subinfra.NewFakeProvider()
	sync := subsrv.NewSynchronizer(
		repo,
		provider,
		cataloginfra.NewSeededCatalogRepository(),
		orginfra.NewSeededOrgRepository(),
		subinfra.NewMemoryEventStore(),
		nil,
		testBilling,
	)
	return &fixture{sync: sync, repo: repo, provider: provider}
}

// --- Create tests ---

func TestCreate(t *testing.T) {
	f := newFixture()

	sub, err := f.sync.Create(context.Background(), testOrgID, catalog.PlanEnterprise, []string{"trading", "banking"})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Status != subscription.StatusActive {
		t.Fatalf("status = %s, want active", sub.Status)
	}
	if sub.ProviderRef == "" {
		t.Fatal("subscription missing provider ref")
	}
	if sub.CurrentPeriodEnd.Before(sub.CurrentPeriodStart) {
		t.Fatalf("period inverted: %v .. %v", sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
	}
}

func TestCreate_RetriesTransientFailures(t *testing.T) {
	f := newFixture()
	f.provider.FailuresBeforeSuccess = 2

	sub, err := f.sync.Create(context.Background(), testOrgID, catalog.PlanEnterprise, []string{"trading"})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Status != subscription.StatusActive {
		t.Fatalf("status = %s after retries", sub.Status)
	}
	if got := f.provider.Calls(); got != 3 {
		t.Fatalf("provider attempts = %d, want 3", got)
	}
}

func TestCreate_NoLocalWriteWhenProviderFails(t *testing.T) {
	f := newFixture()
	f.provider.FailuresBeforeSuccess = 100 // exhausts the retry budget

	_, err := f.sync.Create(context.Background(), testOrgID, catalog.PlanEnterprise, []string{"trading"})
	if err == nil {
		t.Fatal("expected provider-sync error")
	}
	if _, err := f.sync.GetByOrg(context.Background(), testOrgID); err == nil {
		t.Fatal("unconfirmed subscription was persisted locally")
	}
}

func TestCreate_RejectsSecondActiveSubscription(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.sync.Create(ctx, testOrgID, catalog.PlanEnterprise, []string{"trading"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.sync.Create(ctx, testOrgID, catalog.PlanEnterprise, []string{"banking"}); err == nil {
		t.Fatal("expected already-exists error")
	}
}

func TestCreate_ConcurrentCallsOpenOneSubscription(t *testing.T) {
	f := newFixture()

	const callers = 8
	var wg sync.WaitGroup
	var successes atomic.Int64
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sync.Create(context.Background(), testOrgID, catalog.PlanEnterprise, []string{"trading"})
			if err == nil {
				successes.Add(1)
				return
			}
			if !errx.IsType(err, errx.TypeConflict) {
				t.Errorf("loser got %v, want conflict", err)
			}
		}()
	}
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Fatalf("%d Creates succeeded, want 1", got)
	}
	if got := f.provider.Calls(); got != 1 {
		t.Fatalf("provider called %d times, want 1", got)
	}
}

// --- Update tests ---

func TestUpdate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, err := f.sync.Create(ctx, testOrgID, catalog.PlanEnterprise, []string{"trading"})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := f.sync.Update(ctx, sub.ID, catalog.PlanUHNW, []string{"trading", "banking"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Plan != catalog.PlanUHNW {
		t.Fatalf("plan = %s after update", updated.Plan)
	}
	if !updated.HasService("banking") {
		t.Fatalf("service set not updated: %v", updated.ServiceIDs)
	}
	if updated.SyncDegraded {
		t.Fatal("confirmed update left subscription degraded")
	}
}

func TestUpdate_MarksDegradedOnProviderFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, err := f.sync.Create(ctx, testOrgID, catalog.PlanEnterprise, []string{"trading"})
	if err != nil {
		t.Fatal(err)
	}

	f.provider.FailuresBeforeSuccess = 100
	if _, err := f.sync.Update(ctx, sub.ID, catalog.PlanUHNW, []string{"banking"}); err == nil {
		t.Fatal("expected provider-sync error")
	}

	got, err := f.sync.Get(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.SyncDegraded {
		t.Fatal("failed update did not flag sync_degraded")
	}
	// Local fields keep the last confirmed values.
	if got.Plan != catalog.PlanEnterprise || got.HasService("banking") {
		t.Fatalf("failed update mutated local state: %+v", got)
	}
}

// --- Resync tests ---

func TestResync_ProviderViewWins(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, err := f.sync.Create(ctx, testOrgID, catalog.PlanEnterprise, []string{"trading"})
	if err != nil {
		t.Fatal(err)
	}

	f.provider.FailuresBeforeSuccess = 100
	f.sync.Update(ctx, sub.ID, catalog.PlanUHNW, []string{"banking"})
	f.provider.FailuresBeforeSuccess = 0

	if err := f.sync.Resync(ctx, sub.ID); err != nil {
		t.Fatal(err)
	}

	got, err := f.sync.Get(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SyncDegraded {
		t.Fatal("resync did not clear the degraded flag")
	}
	if got.Status != subscription.StatusActive {
		t.Fatalf("resync status = %s, want the provider's view", got.Status)
	}
}

func TestResync_NoopWhenHealthy(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, err := f.sync.Create(ctx, testOrgID, catalog.PlanEnterprise, []string{"trading"})
	if err != nil {
		t.Fatal(err)
	}

	before := f.provider.Calls()
	if err := f.sync.Resync(ctx, sub.ID); err != nil {
		t.Fatal(err)
	}
	if f.provider.Calls() != before {
		t.Fatal("healthy subscription should not hit the provider on resync")
	}
}

// --- Cancel tests ---

func TestCancel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, err := f.sync.Create(ctx, testOrgID, catalog.PlanEnterprise, []string{"trading"})
	if err != nil {
		t.Fatal(err)
	}

	// At period end: stays active with the flag set.
	got, err := f.sync.Cancel(ctx, sub.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !got.CancelAtPeriodEnd || got.Status != subscription.StatusActive {
		t.Fatalf("period-end cancel = %+v", got)
	}

	// Immediate: terminal.
	got, err = f.sync.Cancel(ctx, sub.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != subscription.StatusCanceled {
		t.Fatalf("immediate cancel status = %s", got.Status)
	}

	// Terminal subscriptions reject further changes.
	if _, err := f.sync.Update(ctx, sub.ID, catalog.PlanUHNW, []string{"banking"}); err == nil {
		t.Fatal("expected terminal-state error")
	}
}

// --- Webhook tests ---

func TestHandleEvent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, err := f.sync.Create(ctx, testOrgID, catalog.PlanEnterprise, []string{"trading"})
	if err != nil {
		t.Fatal(err)
	}

	err = f.sync.HandleEvent(ctx, subscription.Event{
		ID:          uuid.NewString(),
		Type:        subscription.EventPaymentFailed,
		ProviderRef: sub.ProviderRef,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, _ := f.sync.Get(ctx, sub.ID)
	if got.Status != subscription.StatusPastDue {
		t.Fatalf("status after payment.failed = %s", got.Status)
	}

	// Recovery.
	err = f.sync.HandleEvent(ctx, subscription.Event{
		ID:          uuid.NewString(),
		Type:        subscription.EventPaymentSucceeded,
		ProviderRef: sub.ProviderRef,
	})
	if err != nil {
		t.Fatal(err)
	}
	got, _ = f.sync.Get(ctx, sub.ID)
	if got.Status != subscription.StatusActive {
		t.Fatalf("status after payment.succeeded = %s", got.Status)
	}
}

func TestHandleEvent_ReplayIsNoop(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, err := f.sync.Create(ctx, testOrgID, catalog.PlanEnterprise, []string{"trading"})
	if err != nil {
		t.Fatal(err)
	}

	event := subscription.Event{
		ID:          uuid.NewString(),
		Type:        subscription.EventPaymentFailed,
		ProviderRef: sub.ProviderRef,
	}
	if err := f.sync.HandleEvent(ctx, event); err != nil {
		t.Fatal(err)
	}

	// Recover, then replay the original delivery. The replay must not
	// regress the status.
	recovery := subscription.Event{
		ID:          uuid.NewString(),
		Type:        subscription.EventPaymentSucceeded,
		ProviderRef: sub.ProviderRef,
	}
	if err := f.sync.HandleEvent(ctx, recovery); err != nil {
		t.Fatal(err)
	}
	if err := f.sync.HandleEvent(ctx, event); err != nil {
		t.Fatal(err)
	}

	got, _ := f.sync.Get(ctx, sub.ID)
	if got.Status != subscription.StatusActive {
		t.Fatalf("replayed event regressed status to %s", got.Status)
	}
}

func TestHandleEvent_PeriodRollover(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, err := f.sync.Create(ctx, testOrgID, catalog.PlanEnterprise, []string{"trading"})
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	err = f.sync.HandleEvent(ctx, subscription.Event{
		ID:          uuid.NewString(),
		Type:        subscription.EventSubscriptionUpdated,
		ProviderRef: sub.ProviderRef,
		Status:      subscription.StatusActive,
		PeriodStart: start,
		PeriodEnd:   end,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, _ := f.sync.Get(ctx, sub.ID)
	if !got.CurrentPeriodStart.Equal(start) || !got.CurrentPeriodEnd.Equal(end) {
		t.Fatalf("period not rolled over: %v .. %v", got.CurrentPeriodStart, got.CurrentPeriodEnd)
	}
}

package subinfra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/subscription"
)

// FakeProvider is an in-process subscription.Provider for fixture mode and
// tests. It honors idempotency keys the way a real billing provider does:
// a replayed key returns the original result without applying the change
// again. FailuresBeforeSuccess injects transient errors to exercise retry
// paths.
type FakeProvider struct {
	mu                    sync.Mutex
	subs                  map[string]*subscription.ProviderSubscription
	seenKeys              map[string]*subscription.ProviderSubscription
	counter               int
	calls                 int
	FailuresBeforeSuccess int
	InitialStatus         subscription.Status
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		subs:          make(map[string]*subscription.ProviderSubscription),
		seenKeys:      make(map[string]*subscription.ProviderSubscription),
		InitialStatus: subscription.StatusActive,
	}
}

// Calls reports how many provider operations were attempted, including ones
// that failed.
func (p *FakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *FakeProvider) maybeFail() error {
	p.calls++
	if p.FailuresBeforeSuccess > 0 {
		p.FailuresBeforeSuccess--
		return errx.External("billing provider temporarily unavailable")
	}
	return nil
}

func (p *FakeProvider) CreateSubscription(_ context.Context, req subscription.CreateRequest, idempotencyKey string) (*subscription.ProviderSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prior, ok := p.seenKeys[idempotencyKey]; ok {
		return prior, nil
	}
	if err := p.maybeFail(); err != nil {
		return nil, err
	}

	p.counter++
	now := time.Now().UTC()
	sub := &subscription.ProviderSubscription{
		Ref:         fmt.Sprintf("psub_%04d", p.counter),
		Status:      p.InitialStatus,
		PeriodStart: now,
		PeriodEnd:   now.AddDate(0, 1, 0),
	}

	p.subs[sub.Ref] = sub
	p.seenKeys[idempotencyKey] = sub
	return sub, nil
}

func (p *FakeProvider) GetSubscription(_ context.Context, providerRef string) (*subscription.ProviderSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub, ok := p.subs[providerRef]
	if !ok {
		return nil, errx.NotFound("provider subscription not found")
	}
	copied := *sub
	return &copied, nil
}

func (p *FakeProvider) UpdateSubscription(_ context.Context, req subscription.UpdateRequest, idempotencyKey string) (*subscription.ProviderSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prior, ok := p.seenKeys[idempotencyKey]; ok {
		return prior, nil
	}
	if err := p.maybeFail(); err != nil {
		return nil, err
	}

	sub, ok := p.subs[req.ProviderRef]
	if !ok {
		return nil, errx.NotFound("provider subscription not found")
	}

	p.seenKeys[idempotencyKey] = sub
	return sub, nil
}

func (p *FakeProvider) CancelSubscription(_ context.Context, providerRef string, atPeriodEnd bool, idempotencyKey string) (*subscription.ProviderSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prior, ok := p.seenKeys[idempotencyKey]; ok {
		return prior, nil
	}
	if err := p.maybeFail(); err != nil {
		return nil, err
	}

	sub, ok := p.subs[providerRef]
	if !ok {
		return nil, errx.NotFound("provider subscription not found")
	}

	if !atPeriodEnd {
		canceled := *sub
		canceled.Status = subscription.StatusCanceled
		p.subs[providerRef] = &canceled
		p.seenKeys[idempotencyKey] = &canceled
		return &canceled, nil
	}

	p.seenKeys[idempotencyKey] = sub
	return sub, nil
}

package subinfra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gridworks/gridcore/pkg/config"
	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/subscription"
)

// HTTPProvider talks to the billing provider's REST API. The idempotency
// key travels in the Idempotency-Key header, matching the provider's replay
// contract.
type HTTPProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func NewHTTPProvider(cfg config.BillingConfig) *HTTPProvider {
	return &HTTPProvider{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

func (p *HTTPProvider) CreateSubscription(ctx context.Context, req subscription.CreateRequest, idempotencyKey string) (*subscription.ProviderSubscription, error) {
	return p.do(ctx, http.MethodPost, "/v1/subscriptions", req, idempotencyKey)
}

func (p *HTTPProvider) UpdateSubscription(ctx context.Context, req subscription.UpdateRequest, idempotencyKey string) (*subscription.ProviderSubscription, error) {
	path := fmt.Sprintf("/v1/subscriptions/%s", req.ProviderRef)
	return p.do(ctx, http.MethodPatch, path, req, idempotencyKey)
}

func (p *HTTPProvider) CancelSubscription(ctx context.Context, providerRef string, atPeriodEnd bool, idempotencyKey string) (*subscription.ProviderSubscription, error) {
	path := fmt.Sprintf("/v1/subscriptions/%s/cancel", providerRef)
	body := map[string]any{"at_period_end": atPeriodEnd}
	return p.do(ctx, http.MethodPost, path, body, idempotencyKey)
}

func (p *HTTPProvider) GetSubscription(ctx context.Context, providerRef string) (*subscription.ProviderSubscription, error) {
	path := fmt.Sprintf("/v1/subscriptions/%s", providerRef)
	return p.do(ctx, http.MethodGet, path, nil, "")
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, body any, idempotencyKey string) (*subscription.ProviderSubscription, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errx.Wrap(err, "failed to encode provider request", errx.TypeInternal)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, errx.Wrap(err, "failed to build provider request", errx.TypeInternal)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errx.Wrap(err, "billing provider unreachable", errx.TypeExternal)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errx.Wrap(err, "failed to read provider response", errx.TypeExternal)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var sub subscription.ProviderSubscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, errx.Wrap(err, "failed to decode provider response", errx.TypeExternal)
		}
		return &sub, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, errx.NotFound("provider subscription not found")
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Client errors are not retryable; surface them as validation.
		return nil, errx.Validation(fmt.Sprintf("provider rejected request: %s", string(raw))).
			WithDetail("status", resp.StatusCode)
	default:
		return nil, errx.External(fmt.Sprintf("provider error: status %d", resp.StatusCode))
	}
}

package apikeysrv

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gridworks/gridcore/pkg/asyncx"
	"github.com/gridworks/gridcore/pkg/catalog"
	"github.com/gridworks/gridcore/pkg/config"
	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/iam/apikey"
	"github.com/gridworks/gridcore/pkg/iam/org"
	"github.com/gridworks/gridcore/pkg/kernel"
	"github.com/gridworks/gridcore/pkg/logx"
	"github.com/gridworks/gridcore/pkg/notify"
)

// APIKeyService issues, rotates, revokes, and validates API credentials, and
// enforces per-key usage quotas.
type APIKeyService struct {
	keyRepo     apikey.Repository
	usageStore  apikey.UsageStore
	cache       apikey.MetadataCache
	orgRepo     org.Repository
	catalogRepo catalog.Repository
	notifier    notify.Notifier
	quotas      config.QuotaConfig
}

func NewAPIKeyService(
	keyRepo apikey.Repository,
	usageStore apikey.UsageStore,
	cache apikey.MetadataCache,
	orgRepo org.Repository,
	catalogRepo catalog.Repository,
	notifier notify.Notifier,
	quotas config.QuotaConfig,
) *APIKeyService {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &APIKeyService{
		keyRepo:     keyRepo,
		usageStore:  usageStore,
		cache:       cache,
		orgRepo:     orgRepo,
		catalogRepo: catalogRepo,
		notifier:    notifier,
		quotas:      quotas,
	}
}

// IssueRequest describes a key to mint.
type IssueRequest struct {
	Name        string             `json:"name" validate:"required,min=1,max=100"`
	Services    []string           `json:"services" validate:"required,min=1"`
	Environment apikey.Environment `json:"environment" validate:"required"`
}

// IssueResponse carries the new key and the plaintext secret. The secret is
// never retrievable again.
type IssueResponse struct {
	Key     apikey.APIKey `json:"key"`
	Secret  string        `json:"secret"`
	Message string        `json:"message"`
}

// IssueKey mints a new credential for an organization. Service IDs must
// exist in the catalog, and suspended organizations cannot issue keys.
func (s *APIKeyService) IssueKey(ctx context.Context, orgID kernel.OrgID, req IssueRequest) (*IssueResponse, error) {
	o, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !o.IsActive() {
		return nil, org.ErrOrgSuspended().WithDetail("reason", o.SuspendReason)
	}

	if !req.Environment.IsValid() {
		return nil, apikey.ErrInvalidEnvironment(string(req.Environment))
	}

	for _, serviceID := range req.Services {
		if _, err := s.catalogRepo.FindByID(ctx, serviceID); err != nil {
			return nil, err
		}
	}

	generated, err := apikey.GenerateSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	key := apikey.APIKey{
		ID:            kernel.NewKeyID(uuid.NewString()),
		OrgID:         orgID,
		Name:          req.Name,
		SecretHash:    generated.Hash,
		DisplayPrefix: generated.DisplayPrefix,
		Services:      req.Services,
		Environment:   req.Environment,
		Active:        true,
		UsageLimit:    s.limitFor(req.Environment, o.Plan),
		WindowResetAt: now.Add(s.quotas.Window),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.keyRepo.Save(ctx, key); err != nil {
		return nil, errx.Wrap(err, "failed to save API key", errx.TypeInternal)
	}

	logx.WithFields(logx.Fields{
		"key_id": key.ID,
		"org_id": orgID,
		"env":    key.Environment,
	}).Info("🔑 API key issued")

	return &IssueResponse{
		Key:     key,
		Secret:  generated.Secret,
		Message: "⚠️ Save this key securely. It will not be shown again!",
	}, nil
}

// GetKey returns a key's metadata scoped to its organization.
func (s *APIKeyService) GetKey(ctx context.Context, keyID kernel.KeyID, orgID kernel.OrgID) (*apikey.APIKey, error) {
	return s.keyRepo.FindByID(ctx, keyID, orgID)
}

// ListKeys returns all keys for an organization, active and revoked.
func (s *APIKeyService) ListKeys(ctx context.Context, orgID kernel.OrgID) ([]*apikey.APIKey, error) {
	return s.keyRepo.FindByOrg(ctx, orgID)
}

// RevokeKey deactivates a key. Revocation is terminal and monotonic: a
// revoked key never validates again. The cache entry is dropped so remote
// checks converge within the cache TTL.
func (s *APIKeyService) RevokeKey(ctx context.Context, keyID kernel.KeyID, orgID kernel.OrgID) error {
	key, err := s.keyRepo.FindByID(ctx, keyID, orgID)
	if err != nil {
		return err
	}
	if !key.Active {
		return nil
	}

	key.Revoke()
	if err := s.keyRepo.Save(ctx, *key); err != nil {
		return errx.Wrap(err, "failed to revoke API key", errx.TypeInternal)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, key.SecretHash); err != nil {
			logx.WithError(err).WithField("key_id", keyID).Warn("Failed to invalidate key cache entry")
		}
	}

	logx.WithFields(logx.Fields{"key_id": keyID, "org_id": orgID}).Info("🔒 API key revoked")
	return nil
}

// Rotate issues a replacement key with the same name, services, and
// environment, then revokes the old one. The new key is persisted before the
// old one is touched, so a failure mid-rotation never leaves the caller
// without a working credential.
func (s *APIKeyService) Rotate(ctx context.Context, keyID kernel.KeyID, orgID kernel.OrgID) (*IssueResponse, error) {
	old, err := s.keyRepo.FindByID(ctx, keyID, orgID)
	if err != nil {
		return nil, err
	}
	if !old.Active {
		return nil, apikey.ErrKeyRevoked()
	}

	resp, err := s.IssueKey(ctx, orgID, IssueRequest{
		Name:        old.Name,
		Services:    old.Services,
		Environment: old.Environment,
	})
	if err != nil {
		return nil, err
	}

	if err := s.RevokeKey(ctx, old.ID, orgID); err != nil {
		return nil, errx.Wrap(err, "replacement key issued but old key not revoked", errx.TypeInternal).
			WithDetail("new_key_id", resp.Key.ID.String()).
			WithDetail("old_key_id", old.ID.String())
	}

	s.sendAlert(ctx, notify.Alert{
		Kind:    notify.AlertKeyRotated,
		OrgID:   orgID,
		Subject: "API key rotated",
		Details: map[string]any{
			"old_key_id": old.ID.String(),
			"new_key_id": resp.Key.ID.String(),
		},
	})

	return resp, nil
}

// RecordUsage counts n requests against a key's quota. The check and the
// increment are atomic in the usage store: concurrent calls never push the
// counter past the limit, and a rejected call leaves it unchanged.
func (s *APIKeyService) RecordUsage(ctx context.Context, keyID kernel.KeyID, orgID kernel.OrgID, n int64) (*apikey.Usage, error) {
	key, err := s.keyRepo.FindByID(ctx, keyID, orgID)
	if err != nil {
		return nil, err
	}
	if !key.Active {
		return nil, apikey.ErrKeyRevoked()
	}

	usage, err := s.usageStore.Increment(ctx, keyID, n, key.UsageLimit, s.quotas.Window)
	if err != nil {
		var appErr *errx.Error
		if errors.As(err, &appErr) && appErr.Code == apikey.ErrCodeQuotaExceeded.Code {
			s.sendAlert(ctx, notify.Alert{
				Kind:    notify.AlertQuotaExhausted,
				OrgID:   orgID,
				Subject: "API key quota exhausted",
				Details: map[string]any{
					"key_name":        key.Name,
					"key_id":          keyID.String(),
					"limit":           key.UsageLimit,
					"window_reset_at": key.WindowResetAt,
				},
			})
		}
		return nil, err
	}

	if err := s.keyRepo.TouchLastUsed(ctx, keyID); err != nil {
		logx.WithError(err).WithField("key_id", keyID).Debug("Failed to update last_used_at")
	}

	return usage, nil
}

// GetUsage reports a key's current consumption without counting a request.
func (s *APIKeyService) GetUsage(ctx context.Context, keyID kernel.KeyID, orgID kernel.OrgID) (*apikey.Usage, error) {
	key, err := s.keyRepo.FindByID(ctx, keyID, orgID)
	if err != nil {
		return nil, err
	}
	return s.usageStore.Get(ctx, keyID, key.UsageLimit, s.quotas.Window)
}

// ValidateKey authenticates a request by its plaintext secret. Lookups go
// through the metadata cache; a cached entry expires within the configured
// TTL, which bounds how long a freshly revoked key can still validate on
// another instance.
func (s *APIKeyService) ValidateKey(ctx context.Context, secret string) (*apikey.APIKey, error) {
	if len(secret) <= len(apikey.KeyPrefix) || secret[:len(apikey.KeyPrefix)] != apikey.KeyPrefix {
		return nil, apikey.ErrInvalidSecret()
	}

	hash := apikey.HashSecret(secret)

	if s.cache != nil {
		if key, ok, err := s.cache.Get(ctx, hash); err == nil && ok {
			if !key.Active {
				return nil, apikey.ErrKeyRevoked()
			}
			return key, nil
		}
	}

	key, err := s.keyRepo.FindByHash(ctx, hash)
	if err != nil {
		return nil, apikey.ErrInvalidSecret()
	}
	if !key.Active {
		return nil, apikey.ErrKeyRevoked()
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, hash, key); err != nil {
			logx.WithError(err).WithField("key_id", key.ID).Debug("Failed to cache key metadata")
		}
	}

	return key, nil
}

func (s *APIKeyService) limitFor(env apikey.Environment, plan catalog.PlanTier) int64 {
	return s.quotas.LimitFor(string(plan), env == apikey.EnvironmentProduction)
}

// sendAlert delivers off the request path. A fresh context keeps delivery
// alive after the request that raised the alert completes.
func (s *APIKeyService) sendAlert(_ context.Context, alert notify.Alert) {
	asyncx.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.SendAlert(ctx, alert); err != nil {
			logx.WithError(err).WithField("kind", alert.Kind).Warn("Failed to deliver alert")
		}
	})
}

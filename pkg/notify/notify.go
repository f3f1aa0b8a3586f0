package notify

import (
	"context"
	"time"

	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/kernel"
)

// AlertKind identifies the operational event an alert describes.
type AlertKind string

const (
	AlertQuotaExhausted      AlertKind = "quota_exhausted"
	AlertSubscriptionPastDue AlertKind = "subscription_past_due"
	AlertSyncDegraded        AlertKind = "sync_degraded"
	AlertKeyRotated          AlertKind = "key_rotated"
)

// Alert is an operational notification addressed to an organization's
// administrators.
type Alert struct {
	Kind       AlertKind      `json:"kind"`
	OrgID      kernel.OrgID   `json:"org_id"`
	Subject    string         `json:"subject"`
	Details    map[string]any `json:"details,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Notifier delivers alerts. Implementations must tolerate delivery failure
// without affecting the operation that raised the alert.
type Notifier interface {
	SendAlert(ctx context.Context, alert Alert) error
}

// NopNotifier discards alerts. Used when no notification channel is
// configured.
type NopNotifier struct{}

func (NopNotifier) SendAlert(context.Context, Alert) error { return nil }

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("NOTIFY")

var (
	ErrCodeSendFailed       = ErrRegistry.Register("SEND_FAILED", errx.TypeExternal, 500, "Failed to deliver alert")
	ErrCodeInvalidAlert     = ErrRegistry.Register("INVALID_ALERT", errx.TypeValidation, 400, "Alert is missing required fields")
	ErrCodeTemplateNotFound = ErrRegistry.Register("TEMPLATE_NOT_FOUND", errx.TypeNotFound, 404, "Alert template not found")
	ErrCodeTemplateParse    = ErrRegistry.Register("TEMPLATE_PARSE", errx.TypeValidation, 400, "Failed to parse alert template")
	ErrCodeTemplateRender   = ErrRegistry.Register("TEMPLATE_RENDER", errx.TypeInternal, 500, "Failed to render alert template")
)

package notify

import (
	"context"
	"time"

	"github.com/gridworks/gridcore/pkg/logx"
)

// EmailMessage is an email ready for a sender.
type EmailMessage struct {
	From     string   `json:"from"`
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	TextBody string   `json:"text_body,omitempty"`
	HTMLBody string   `json:"html_body,omitempty"`
}

// EmailSender delivers a single email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// RecipientResolver maps an organization to its alert recipients. Typically
// backed by the user repository, returning admin addresses.
type RecipientResolver func(ctx context.Context, alert Alert) ([]string, error)

// Default alert body templates, keyed by AlertKind.
var defaultTemplates = map[AlertKind]string{
	AlertQuotaExhausted: `<p>API key <b>{{.Details.key_name}}</b> has exhausted its usage quota
({{.Details.limit}} requests). Further requests will be rejected until
{{.Details.window_reset_at}}.</p>`,
	AlertSubscriptionPastDue: `<p>The subscription for your organization is past due. Update the payment
method to avoid interruption.</p>`,
	AlertSyncDegraded: `<p>Changes to subscription <b>{{.Details.subscription_id}}</b> could not be
confirmed with the billing provider. The system will keep retrying; no
action is needed yet.</p>`,
	AlertKeyRotated: `<p>API key <b>{{.Details.old_key_id}}</b> was rotated. The old credential is
revoked; switch integrations to the replacement key.</p>`,
}

// EmailNotifier renders alerts into templated emails and delivers them
// through an EmailSender.
type EmailNotifier struct {
	sender     EmailSender
	templates  *TemplateRegistry
	resolver   RecipientResolver
	fromAddr   string
}

func NewEmailNotifier(sender EmailSender, fromAddr string, resolver RecipientResolver) (*EmailNotifier, error) {
	registry := NewTemplateRegistry()
	for kind, tmpl := range defaultTemplates {
		if err := registry.Register(string(kind), tmpl); err != nil {
			return nil, err
		}
	}

	return &EmailNotifier{
		sender:    sender,
		templates: registry,
		resolver:  resolver,
		fromAddr:  fromAddr,
	}, nil
}

// RegisterTemplate overrides the body template for an alert kind.
func (n *EmailNotifier) RegisterTemplate(kind AlertKind, tmplString string) error {
	return n.templates.Register(string(kind), tmplString)
}

func (n *EmailNotifier) SendAlert(ctx context.Context, alert Alert) error {
	if alert.Kind == "" || alert.OrgID.IsEmpty() {
		return ErrRegistry.New(ErrCodeInvalidAlert)
	}
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = time.Now().UTC()
	}

	recipients, err := n.resolver(ctx, alert)
	if err != nil {
		return ErrRegistry.NewWithCause(ErrCodeSendFailed, err).WithDetail("org_id", alert.OrgID)
	}
	if len(recipients) == 0 {
		logx.WithField("org_id", alert.OrgID).Warn("Alert has no recipients, dropping")
		return nil
	}

	body, err := n.templates.Render(string(alert.Kind), alert)
	if err != nil {
		return err
	}

	return n.sender.SendEmail(ctx, EmailMessage{
		From:     n.fromAddr,
		To:       recipients,
		Subject:  alert.Subject,
		HTMLBody: body,
	})
}

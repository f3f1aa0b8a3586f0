package notifyconsole

import (
	"context"
	"strings"

	"github.com/gridworks/gridcore/pkg/logx"
	"github.com/gridworks/gridcore/pkg/notify"
)

// ConsoleSender prints alert emails to the terminal via logx. Intended for
// development and fixture mode.
type ConsoleSender struct{}

func NewConsoleSender() *ConsoleSender {
	return &ConsoleSender{}
}

func (s *ConsoleSender) SendEmail(_ context.Context, msg notify.EmailMessage) error {
	logx.WithFields(logx.Fields{
		"from":    msg.From,
		"to":      strings.Join(msg.To, ", "),
		"subject": msg.Subject,
	}).Info("notify/console: alert email sent (dev mode)")

	if msg.TextBody != "" {
		logx.Debugf("notify/console: text body:\n%s", msg.TextBody)
	}
	if msg.HTMLBody != "" {
		logx.Debugf("notify/console: html body:\n%s", msg.HTMLBody)
	}

	return nil
}

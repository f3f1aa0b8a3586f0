package notifyses

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/gridworks/gridcore/pkg/notify"
)

// SESSender delivers alert emails through AWS SES.
type SESSender struct {
	client      *ses.Client
	fromAddress string
}

// NewSESSender creates an SES-backed sender. fromAddress is used when the
// message carries no From of its own.
func NewSESSender(client *ses.Client, fromAddress string) *SESSender {
	return &SESSender{
		client:      client,
		fromAddress: fromAddress,
	}
}

func (s *SESSender) SendEmail(ctx context.Context, msg notify.EmailMessage) error {
	from := msg.From
	if from == "" {
		from = s.fromAddress
	}

	body := &types.Body{}
	if msg.TextBody != "" {
		body.Text = &types.Content{
			Data:    aws.String(msg.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.HTMLBody != "" {
		body.Html = &types.Content{
			Data:    aws.String(msg.HTMLBody),
			Charset: aws.String("UTF-8"),
		}
	}

	input := &ses.SendEmailInput{
		Source: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: msg.To,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: body,
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return notify.ErrRegistry.NewWithCause(notify.ErrCodeSendFailed, err).
			WithDetail("to", msg.To).
			WithDetail("subject", msg.Subject)
	}

	return nil
}

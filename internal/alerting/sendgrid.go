package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridSender emails alerts through the SendGrid v3 API.
type SendGridSender struct {
	client *sendgrid.Client
	from   *mail.Email
	to     *mail.Email
}

func NewSendGridSender(apiKey, from, to string) *SendGridSender {
	return &SendGridSender{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail("fxratemanager", from),
		to:     mail.NewEmail("", to),
	}
}

func (s *SendGridSender) Name() string { return "sendgrid" }

func (s *SendGridSender) message(alert Alert) *mail.SGMailV3 {
	subject := fmt.Sprintf("[fxratemanager] resource %s unavailable", alert.Resource)
	text := fmt.Sprintf("Resource %s failed %d time(s) in a row.\nLast error: %s\nAt: %s\n",
		alert.Resource, alert.Failures, alert.Error, alert.Timestamp.Format(time.RFC3339))
	html := fmt.Sprintf("<p>Resource <strong>%s</strong> failed %d time(s) in a row.</p><p>Last error: %s</p><p>At: %s</p>",
		alert.Resource, alert.Failures, alert.Error, alert.Timestamp.Format(time.RFC3339))
	return mail.NewSingleEmail(s.from, subject, s.to, text, html)
}

func (s *SendGridSender) Send(ctx context.Context, alert Alert) error {
	resp, err := s.client.SendWithContext(ctx, s.message(alert))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: %d %s", resp.StatusCode, resp.Body)
	}
	return nil
}

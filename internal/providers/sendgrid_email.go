package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridEmailProvider delivers email through the SendGrid v3 API.
type SendGridEmailProvider struct {
	cfg Config
}

// NewSendGridEmailProvider builds the adapter from a provider config.
func NewSendGridEmailProvider(cfg Config) (Adapter, error) {
	return &SendGridEmailProvider{cfg: cfg}, nil
}

// Name returns the registered class name.
func (p *SendGridEmailProvider) Name() string { return "SendGridEmailProvider" }

// ValidateConfig checks the API key and verified sender. from_name is
// optional.
func (p *SendGridEmailProvider) ValidateConfig() error {
	if missing := p.cfg.MissingKeys("api_key", "from_email"); len(missing) > 0 {
		return fmt.Errorf("missing config keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Send submits one mail with a single personalization covering recipients,
// cc and bcc.
func (p *SendGridEmailProvider) Send(ctx context.Context, recipients []string, msg *Message) (*SendResult, error) {
	fromEmail := msg.From
	if fromEmail == "" {
		fromEmail = p.cfg.String("from_email")
	}

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(p.cfg.String("from_name"), fromEmail))
	m.Subject = msg.Subject

	personalization := mail.NewPersonalization()
	for _, recipient := range recipients {
		personalization.AddTos(mail.NewEmail("", recipient))
	}
	for _, cc := range msg.CC {
		personalization.AddCCs(mail.NewEmail("", cc))
	}
	for _, bcc := range msg.BCC {
		personalization.AddBCCs(mail.NewEmail("", bcc))
	}
	m.AddPersonalizations(personalization)

	contentType := "text/plain"
	if htmlTagPattern.MatchString(msg.Body) {
		contentType = "text/html"
	}
	m.AddContent(mail.NewContent(contentType, msg.Body))

	if msg.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}

	client := sendgrid.NewSendClient(p.cfg.String("api_key"))
	resp, err := client.SendWithContext(ctx, m)
	if err != nil {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}

	result := &SendResult{Status: OutcomeSent}
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		result.ProviderID = ids[0]
	}
	return result, nil
}

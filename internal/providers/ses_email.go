package providers

import (
	"context"
	"fmt"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESEmailProvider delivers email through Amazon SES.
type SESEmailProvider struct {
	cfg Config
}

// NewSESEmailProvider builds the adapter from a provider config.
func NewSESEmailProvider(cfg Config) (Adapter, error) {
	return &SESEmailProvider{cfg: cfg}, nil
}

// Name returns the registered class name.
func (p *SESEmailProvider) Name() string { return "SESEmailProvider" }

// ValidateConfig checks the region and verified sender. Static credentials
// are optional; without them the default AWS chain is used.
func (p *SESEmailProvider) ValidateConfig() error {
	if missing := p.cfg.MissingKeys("region", "from_email"); len(missing) > 0 {
		return fmt.Errorf("missing config keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Send submits one SES SendEmail call covering recipients, cc and bcc.
func (p *SESEmailProvider) Send(ctx context.Context, recipients []string, msg *Message) (*SendResult, error) {
	awsCfg, err := loadAWSConfig(ctx, p.cfg)
	if err != nil {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("load aws config: %w", err)
	}
	client := ses.NewFromConfig(awsCfg)

	source := msg.From
	if source == "" {
		source = p.cfg.String("from_email")
	}

	body := &types.Body{}
	content := &types.Content{Data: awssdk.String(msg.Body), Charset: awssdk.String("UTF-8")}
	if htmlTagPattern.MatchString(msg.Body) {
		body.Html = content
	} else {
		body.Text = content
	}

	input := &ses.SendEmailInput{
		Source: awssdk.String(source),
		Destination: &types.Destination{
			ToAddresses:  recipients,
			CcAddresses:  msg.CC,
			BccAddresses: msg.BCC,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: awssdk.String(msg.Subject), Charset: awssdk.String("UTF-8")},
			Body:    body,
		},
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}

	out, err := client.SendEmail(ctx, input)
	if err != nil {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("ses send: %w", err)
	}
	return &SendResult{Status: OutcomeSent, ProviderID: awssdk.ToString(out.MessageId)}, nil
}

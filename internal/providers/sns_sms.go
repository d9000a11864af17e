package providers

import (
	"context"
	"fmt"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSSMSProvider delivers SMS through Amazon SNS direct publish. SNS takes
// one phone number per call, so recipients are published individually and
// the attempt counts as sent when at least one publish succeeds.
type SNSSMSProvider struct {
	cfg Config
}

// NewSNSSMSProvider builds the adapter from a provider config.
func NewSNSSMSProvider(cfg Config) (Adapter, error) {
	return &SNSSMSProvider{cfg: cfg}, nil
}

// Name returns the registered class name.
func (p *SNSSMSProvider) Name() string { return "SNSSMSProvider" }

// ValidateConfig checks the region. Credentials and sender_id are optional.
func (p *SNSSMSProvider) ValidateConfig() error {
	if missing := p.cfg.MissingKeys("region"); len(missing) > 0 {
		return fmt.Errorf("missing config keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Send publishes the message to each recipient number.
func (p *SNSSMSProvider) Send(ctx context.Context, recipients []string, msg *Message) (*SendResult, error) {
	awsCfg, err := loadAWSConfig(ctx, p.cfg)
	if err != nil {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("load aws config: %w", err)
	}
	client := sns.NewFromConfig(awsCfg)

	attributes := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    awssdk.String("String"),
			StringValue: awssdk.String("Transactional"),
		},
	}
	senderID := p.cfg.String("sender_id")
	if senderID == "" {
		senderID = msg.SenderID
	}
	if senderID != "" {
		attributes["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    awssdk.String("String"),
			StringValue: awssdk.String(senderID),
		}
	}

	sent := 0
	var lastErr error
	for _, recipient := range recipients {
		number := recipient
		if !strings.HasPrefix(number, "+") {
			number = "+" + number
		}
		_, err := client.Publish(ctx, &sns.PublishInput{
			Message:           awssdk.String(msg.Body),
			PhoneNumber:       awssdk.String(number),
			MessageAttributes: attributes,
		})
		if err != nil {
			lastErr = err
			continue
		}
		sent++
	}

	if sent == 0 {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("sns publish failed for all %d recipients: %w", len(recipients), lastErr)
	}
	return &SendResult{
		Status: OutcomeSent,
		Detail: map[string]interface{}{"published": sent, "failed": len(recipients) - sent},
	}, nil
}

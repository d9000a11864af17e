package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultAfricasTalkingURL = "https://api.africastalking.com/version1/messaging"

// AfricasTalkingSMSProvider delivers SMS through the Africa's Talking bulk
// messaging API.
type AfricasTalkingSMSProvider struct {
	cfg    Config
	client *http.Client
}

// NewAfricasTalkingSMSProvider builds the adapter from a provider config.
func NewAfricasTalkingSMSProvider(cfg Config) (Adapter, error) {
	return &AfricasTalkingSMSProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Name returns the registered class name.
func (p *AfricasTalkingSMSProvider) Name() string { return "AfricasTalkingSMSProvider" }

// ValidateConfig checks the API credentials. sender_id and api_url are
// optional; the sandbox needs no sender id.
func (p *AfricasTalkingSMSProvider) ValidateConfig() error {
	if missing := p.cfg.MissingKeys("username", "api_key"); len(missing) > 0 {
		return fmt.Errorf("missing config keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Send posts one bulk message for all recipients. The API wants E.164
// numbers with a leading plus, which the ledger stores without.
func (p *AfricasTalkingSMSProvider) Send(ctx context.Context, recipients []string, msg *Message) (*SendResult, error) {
	numbers := make([]string, 0, len(recipients))
	for _, recipient := range recipients {
		if !strings.HasPrefix(recipient, "+") {
			recipient = "+" + recipient
		}
		numbers = append(numbers, recipient)
	}

	form := url.Values{}
	form.Set("username", p.cfg.String("username"))
	form.Set("to", strings.Join(numbers, ","))
	form.Set("message", msg.Body)
	if senderID := p.cfg.String("sender_id"); senderID != "" {
		form.Set("from", senderID)
	}

	endpoint := p.cfg.String("api_url")
	if endpoint == "" {
		endpoint = defaultAfricasTalkingURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", p.cfg.String("api_key"))

	resp, err := p.client.Do(req)
	if err != nil {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("africastalking status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return &SendResult{Status: OutcomeSent}, nil
}

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// BelioSMSProvider delivers SMS through the Belio gateway. Belio only
// acknowledges acceptance synchronously; the final delivery state arrives
// later as a delivery report on the inbound callback endpoint, so a
// successful send resolves to ConfirmationPending rather than Sent.
type BelioSMSProvider struct {
	cfg    Config
	client *http.Client
}

// belioRequest is the gateway's submit payload.
type belioRequest struct {
	SMSServiceID          string             `json:"smsServiceId"`
	Message               string             `json:"message"`
	Addresses             []string           `json:"addresses"`
	DeliveryReportRequest belioReportRequest `json:"deliveryReportRequest"`
}

type belioReportRequest struct {
	Correlator  string `json:"correlator"`
	CallbackURL string `json:"callbackUrl"`
}

// NewBelioSMSProvider builds the adapter from a provider config.
func NewBelioSMSProvider(cfg Config) (Adapter, error) {
	return &BelioSMSProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Name returns the registered class name.
func (p *BelioSMSProvider) Name() string { return "BelioSMSProvider" }

// ValidateConfig checks the gateway credentials and the callback URL the
// delivery reports are posted to.
func (p *BelioSMSProvider) ValidateConfig() error {
	required := []string{"api_key", "cookie", "url", "default_sms_service_id", "callback_url"}
	if missing := p.cfg.MissingKeys(required...); len(missing) > 0 {
		return fmt.Errorf("missing config keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Send submits the message and requests a delivery report keyed by the
// message correlator.
func (p *BelioSMSProvider) Send(ctx context.Context, recipients []string, msg *Message) (*SendResult, error) {
	serviceID := msg.SMSServiceID
	if serviceID == "" {
		serviceID = p.cfg.String("default_sms_service_id")
	}

	payload := belioRequest{
		SMSServiceID: serviceID,
		Message:      msg.Body,
		Addresses:    recipients,
		DeliveryReportRequest: belioReportRequest{
			Correlator:  msg.Correlator,
			CallbackURL: p.cfg.String("callback_url"),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.String("url"), bytes.NewReader(body))
	if err != nil {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// The gateway wants the key verbatim, not a Bearer scheme.
	req.Header.Set("Authorization", p.cfg.String("api_key"))
	req.Header.Set("Cookie", p.cfg.String("cookie"))

	resp, err := p.client.Do(req)
	if err != nil {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("belio status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return &SendResult{
		Status: OutcomeConfirmationPending,
		Detail: map[string]interface{}{"correlator": msg.Correlator},
	}, nil
}

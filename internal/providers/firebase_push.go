package providers

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// firebaseCredentialKeys are the service account fields every Firebase
// provider config must carry. The config map is the service account JSON.
var firebaseCredentialKeys = []string{
	"type",
	"project_id",
	"private_key_id",
	"private_key",
	"client_email",
	"client_id",
	"auth_uri",
	"token_uri",
	"auth_provider_x509_cert_url",
	"client_x509_cert_url",
}

// Messaging clients are cached per credential set so a long-lived worker
// does not rebuild the Firebase app on every dispatch.
var (
	fcmMu      sync.Mutex
	fcmClients = map[string]*messaging.Client{}
)

// FirebasePushProvider delivers push notifications through Firebase Cloud
// Messaging using a tenant-supplied service account.
type FirebasePushProvider struct {
	cfg Config
}

// NewFirebasePushProvider builds the adapter from a provider config.
func NewFirebasePushProvider(cfg Config) (Adapter, error) {
	return &FirebasePushProvider{cfg: cfg}, nil
}

// Name returns the registered class name.
func (p *FirebasePushProvider) Name() string { return "FirebasePushProvider" }

// ValidateConfig checks the service account fields are all present.
func (p *FirebasePushProvider) ValidateConfig() error {
	if missing := p.cfg.MissingKeys(firebaseCredentialKeys...); len(missing) > 0 {
		return fmt.Errorf("missing config keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Send multicasts to the recipient device tokens. The attempt counts as
// sent when at least one token was accepted.
func (p *FirebasePushProvider) Send(ctx context.Context, recipients []string, msg *Message) (*SendResult, error) {
	client, err := p.client(ctx)
	if err != nil {
		return &SendResult{Status: OutcomeFailed}, err
	}

	multicast := &messaging.MulticastMessage{
		Tokens: recipients,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	}

	resp, err := client.SendEachForMulticast(ctx, multicast)
	if err != nil {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("fcm multicast: %w", err)
	}
	if resp.SuccessCount == 0 {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("fcm rejected all %d tokens", len(recipients))
	}
	return &SendResult{
		Status: OutcomeSent,
		Detail: map[string]interface{}{
			"success_count": resp.SuccessCount,
			"failure_count": resp.FailureCount,
		},
	}, nil
}

func (p *FirebasePushProvider) client(ctx context.Context) (*messaging.Client, error) {
	creds, err := json.Marshal(p.cfg)
	if err != nil {
		return nil, fmt.Errorf("encode service account: %w", err)
	}
	key := fmt.Sprintf("%x", sha256.Sum256(creds))

	fcmMu.Lock()
	defer fcmMu.Unlock()
	if client, ok := fcmClients[key]; ok {
		return client, nil
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: p.cfg.String("project_id")}, option.WithCredentialsJSON(creds))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init fcm client: %w", err)
	}
	fcmClients[key] = client
	return client, nil
}

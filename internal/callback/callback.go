// Package callback delivers outcome notifications to the originating
// tenant over its configured channel: an HTTP webhook or a tenant queue.
// Delivery is best-effort; a lost callback never changes a notification's
// ledger state.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/signalhouse/notify/internal/models"
	"github.com/signalhouse/notify/internal/queue"
)

// Payload is the tenant-facing outcome message. UniqueIdentifier is always
// present, even when empty, so tenant consumers can key on it blindly.
type Payload struct {
	NotificationID   string `json:"notification_id,omitempty"`
	UniqueIdentifier string `json:"unique_identifier"`
	Status           string `json:"status"`
	Message          string `json:"message,omitempty"`
	SentTime         string `json:"sent_time,omitempty"`
}

// TaskName returns the task a queue-mode tenant handles: the payload is
// delivered as <system>.handle_notification_response.
func TaskName(systemName string) string {
	return systemName + ".handle_notification_response"
}

// TaskPublisher publishes task envelopes to tenant callback queues.
type TaskPublisher interface {
	PublishTenantCallback(ctx context.Context, queueName, routingKey string, env *queue.Envelope) error
}

// Emitter fans a payload out to a tenant. Failures are logged and
// swallowed.
type Emitter struct {
	http      *http.Client
	publisher TaskPublisher
	logger    *logrus.Logger
}

// NewEmitter builds an emitter. webhookTimeout bounds each webhook POST;
// zero or negative means the 5 second default.
func NewEmitter(publisher TaskPublisher, webhookTimeout time.Duration, logger *logrus.Logger) *Emitter {
	if webhookTimeout <= 0 {
		webhookTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Emitter{
		http:      &http.Client{Timeout: webhookTimeout},
		publisher: publisher,
		logger:    logger,
	}
}

// Emit delivers payload to system over its configured callback channel.
func (e *Emitter) Emit(ctx context.Context, system *models.System, payload *Payload) {
	if system == nil || payload == nil {
		return
	}
	log := e.logger.WithFields(logrus.Fields{
		"system":          system.Name,
		"notification_id": payload.NotificationID,
		"status":          payload.Status,
	})

	switch system.CallbackType {
	case models.CallbackWebhook:
		e.emitWebhook(ctx, system, payload, log)
	case models.CallbackQueue:
		e.emitQueue(ctx, system, payload, log)
	default:
		log.WithField("callback_type", system.CallbackType).Warn("unknown callback type, dropping callback")
	}
}

func (e *Emitter) emitWebhook(ctx context.Context, system *models.System, payload *Payload, log *logrus.Entry) {
	if system.WebhookURL == "" {
		log.Warn("webhook callback without a webhook_url, dropping callback")
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Error("encode callback payload")
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, system.WebhookURL, bytes.NewReader(body))
	if err != nil {
		log.WithError(err).Error("build callback request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if system.WebhookAuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+system.WebhookAuthToken)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		log.WithError(err).Warn("webhook callback failed")
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.WithField("status_code", resp.StatusCode).Warn("webhook callback rejected")
		return
	}
	log.Debug("webhook callback delivered")
}

func (e *Emitter) emitQueue(ctx context.Context, system *models.System, payload *Payload, log *logrus.Entry) {
	if e.publisher == nil {
		log.Warn("queue callback without a broker connection, dropping callback")
		return
	}
	env, err := queue.NewEnvelope(TaskName(system.Name), payload)
	if err != nil {
		log.WithError(err).Error("encode callback task")
		return
	}
	if err := e.publisher.PublishTenantCallback(ctx, system.CallbackQueueName(), TaskName(system.Name), env); err != nil {
		log.WithError(err).Warn("queue callback failed")
		return
	}
	log.Debug("queue callback published")
}

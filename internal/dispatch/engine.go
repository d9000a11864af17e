package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/signalhouse/notify/internal/callback"
	"github.com/signalhouse/notify/internal/models"
	"github.com/signalhouse/notify/internal/providers"
	"github.com/signalhouse/notify/internal/repository"
)

// AdapterFactory resolves a provider class name into a configured adapter.
// The default is the static registry in the providers package.
type AdapterFactory func(className string, cfg providers.Config) (providers.Adapter, error)

// CallbackEmitter notifies the originating tenant of an outcome. Delivery
// is best-effort; implementations log failures instead of returning them.
type CallbackEmitter interface {
	Emit(ctx context.Context, system *models.System, payload *callback.Payload)
}

// Engine runs the dispatch pipeline. A business outcome, good or bad, is
// absorbed: the ledger is updated, the tenant is told, and the job is done.
// Only infrastructure trouble escapes as a retryable error.
type Engine struct {
	store    *repository.Store
	adapters AdapterFactory
	emitter  CallbackEmitter
	logger   *logrus.Logger
}

// NewEngine builds an engine. A nil factory falls back to the provider
// registry.
func NewEngine(store *repository.Store, adapters AdapterFactory, emitter CallbackEmitter, logger *logrus.Logger) *Engine {
	if adapters == nil {
		adapters = func(className string, cfg providers.Config) (providers.Adapter, error) {
			return providers.New(className, cfg)
		}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{store: store, adapters: adapters, emitter: emitter, logger: logger}
}

// Dispatch runs the full pipeline for one queued admission payload.
func (e *Engine) Dispatch(ctx context.Context, req *Request) error {
	notification, err := e.SaveNotification(ctx, req)
	if err != nil {
		return err
	}
	return e.SendNotification(ctx, notification)
}

// SaveNotification validates the request against the tenant catalog and
// persists a Pending ledger entry.
//
// A request from an unknown system is dropped without a ledger row or a
// callback; there is no tenant to tell. Every validation failure after the
// system resolves emits a Failed callback so the tenant learns the fate of
// its request even though no row is written.
func (e *Engine) SaveNotification(ctx context.Context, req *Request) (*models.Notification, error) {
	req.Normalize()

	if req.System == "" {
		e.logger.WithField("fault", CodeBadRequest).Warn("notification without a system")
		return nil, BadRequest("system is required")
	}
	system, err := e.store.Systems.GetByName(ctx, req.System)
	if err != nil {
		return nil, Transient(err, "resolve system %s", req.System)
	}
	if system == nil {
		e.logger.WithFields(logrus.Fields{"system": req.System, "fault": CodeUnknownReference}).
			Warn("dropping notification for unknown system")
		return nil, UnknownReference("unknown system %q", req.System)
	}

	reject := func(fault *Fault) (*models.Notification, error) {
		e.logger.WithFields(logrus.Fields{"system": system.Name, "fault": fault.Code}).Warn(fault.Message)
		e.emitter.Emit(ctx, system, &callback.Payload{
			UniqueIdentifier: req.UniqueIdentifier,
			Status:           models.StateFailed,
			Message:          fault.Message,
		})
		return nil, fault
	}

	if req.NotificationType == "" {
		return reject(BadRequest("notification_type is required"))
	}
	notificationType, err := e.store.Types.GetByName(ctx, req.NotificationType)
	if err != nil {
		return nil, Transient(err, "resolve notification type %s", req.NotificationType)
	}
	if notificationType == nil {
		return reject(UnknownReference("unknown notification type %q", req.NotificationType))
	}
	if len(req.Recipients) == 0 {
		return reject(BadRequest("recipients must not be empty"))
	}
	if req.Context == nil {
		return reject(BadRequest("context is required"))
	}

	var organisation *models.Organisation
	if req.Organisation != "" {
		organisation, err = e.store.Organisations.GetByName(ctx, system.ID, req.Organisation)
		if err != nil {
			return nil, Transient(err, "resolve organisation %s", req.Organisation)
		}
		if organisation == nil {
			return reject(UnknownReference("unknown organisation %q", req.Organisation))
		}
	}

	var template *models.Template
	if req.Template != "" {
		template, err = e.store.Templates.GetByName(ctx, req.Template)
		if err != nil {
			return nil, Transient(err, "resolve template %s", req.Template)
		}
		if template == nil || !template.IsActive {
			return reject(UnknownReference("unknown template %q", req.Template))
		}
		if template.NotificationTypeID != notificationType.ID {
			return reject(BadRequest("template %q cannot be used for %s notifications", req.Template, notificationType.Name))
		}
	}

	pending, err := e.state(ctx, models.StatePending)
	if err != nil {
		return nil, err
	}

	notification := &models.Notification{
		SystemID:           system.ID,
		UniqueIdentifier:   req.UniqueIdentifier,
		NotificationTypeID: notificationType.ID,
		StatusID:           pending.ID,
	}
	if organisation != nil {
		notification.OrganisationID = &organisation.ID
	}
	if template != nil {
		notification.TemplateID = &template.ID
	}
	if err := notification.SetRecipients(req.Recipients); err != nil {
		return reject(BadRequest("invalid recipients: %v", err))
	}
	if err := notification.SetContext(req.Context); err != nil {
		return reject(BadRequest("invalid context: %v", err))
	}

	if err := e.store.Notifications.Create(ctx, notification); err != nil {
		return nil, Transient(err, "persist notification")
	}

	// Attach what the send path needs so it does not re-read the row.
	notification.System = system
	notification.NotificationType = notificationType
	notification.Organisation = organisation
	notification.Template = template
	notification.Status = pending

	e.logger.WithFields(logrus.Fields{
		"notification_id": notification.ID,
		"system":          system.Name,
		"type":            notificationType.Name,
		"recipients":      len(req.Recipients),
	}).Info("notification accepted")
	return notification, nil
}

// SendNotification renders the content and walks the active providers for
// the notification's type in priority order until one accepts the message.
// Providers that cannot be instantiated or are misconfigured are skipped;
// transport failures move on to the next provider. Exhausting the chain
// marks the notification Failed.
func (e *Engine) SendNotification(ctx context.Context, n *models.Notification) error {
	log := e.logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"type":            n.TypeName(),
	})

	handler, err := HandlerFor(n.TypeName())
	if err != nil {
		log.WithField("fault", CodeBadRequest).Warn(err.Error())
		return e.markFailed(ctx, n, err.Error())
	}
	if err := handler.Validate(n); err != nil {
		log.WithField("fault", CodeBadRequest).Warn(err.Error())
		return e.markFailed(ctx, n, err.Error())
	}
	message, err := handler.PrepareContent(n)
	if err != nil {
		log.WithField("fault", CodeBadRequest).Warn(err.Error())
		return e.markFailed(ctx, n, err.Error())
	}

	active, err := e.store.Providers.ListActiveByType(ctx, n.NotificationTypeID)
	if err != nil {
		return Transient(err, "list providers for %s", n.TypeName())
	}
	if len(active) == 0 {
		log.WithField("fault", CodeNoActiveProviders).Warn("no active providers found")
		return e.markFailed(ctx, n, "No active providers found")
	}

	recipients := n.RecipientList()
	for i := range active {
		provider := &active[i]
		plog := log.WithField("provider", provider.Name)

		cfg, err := provider.ConfigMap()
		if err != nil {
			plog.WithField("fault", CodeProviderMisconfiguration).Warn(err.Error())
			continue
		}
		adapter, err := e.adapters(provider.ClassName, providers.Config(cfg))
		if err != nil {
			plog.WithField("fault", CodeProviderMisconfiguration).Warnf("adapter unavailable: %v", err)
			continue
		}
		if err := adapter.ValidateConfig(); err != nil {
			plog.WithField("fault", CodeProviderMisconfiguration).Warnf("invalid configuration: %v", err)
			continue
		}

		result, err := adapter.Send(ctx, recipients, message)
		if err != nil || result == nil || result.Status == providers.OutcomeFailed {
			plog.WithField("fault", CodeProviderTransport).Warnf("send failed: %v", err)
			continue
		}

		var sentTime *time.Time
		if result.Status == providers.OutcomeSent {
			now := time.Now().UTC()
			sentTime = &now
		}
		state, err := e.state(ctx, string(result.Status))
		if err != nil {
			return err
		}
		if err := e.store.Notifications.UpdateStatus(ctx, n.ID, state.ID, &provider.ID, sentTime); err != nil {
			return Transient(err, "record %s outcome", result.Status)
		}
		n.StatusID = state.ID
		n.Status = state
		n.ProviderID = &provider.ID
		n.SentTime = sentTime

		entry := plog.WithField("status", state.Name)
		if result.ProviderID != "" {
			entry = entry.WithField("provider_message_id", result.ProviderID)
		}
		if len(result.Detail) > 0 {
			entry = entry.WithField("detail", result.Detail)
		}
		entry.Info("notification dispatched")

		e.emit(ctx, n, state.Name, "", sentTime)
		return nil
	}

	log.Warn("all providers exhausted")
	return e.markFailed(ctx, n, "Notification not sent")
}

// DeliveryReport is an asynchronous provider delivery report arriving on
// the inbound callback endpoint.
type DeliveryReport struct {
	DeliveryStatus string `json:"deliveryStatus"`
	Correlator     string `json:"correlator"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// DeliveredToTerminal is the gateway delivery status that resolves a
// ConfirmationPending notification to Sent. Anything else resolves it to
// Failed.
const DeliveredToTerminal = "DeliveredToTerminal"

// ReconcileDeliveryReport resolves the notification matching the report's
// correlator and records the final delivery state. The correlator is the
// tenant's unique identifier, or the notification id when the tenant did
// not supply one.
func (e *Engine) ReconcileDeliveryReport(ctx context.Context, report *DeliveryReport) (*models.Notification, error) {
	if report == nil || report.Correlator == "" {
		return nil, BadRequest("delivery report requires a correlator")
	}

	notification, err := e.findByCorrelator(ctx, report.Correlator)
	if err != nil {
		return nil, Transient(err, "resolve correlator %s", report.Correlator)
	}
	if notification == nil {
		return nil, UnknownReference("no notification matches correlator %q", report.Correlator)
	}

	statusName := models.StateFailed
	var sentTime *time.Time
	if report.DeliveryStatus == DeliveredToTerminal {
		statusName = models.StateSent
		ts := time.Now().UTC()
		if parsed, perr := time.Parse(time.RFC3339, report.Timestamp); perr == nil {
			ts = parsed.UTC()
		}
		sentTime = &ts
	}

	state, err := e.state(ctx, statusName)
	if err != nil {
		return nil, err
	}
	if err := e.store.Notifications.UpdateStatus(ctx, notification.ID, state.ID, nil, sentTime); err != nil {
		return nil, Transient(err, "record delivery report")
	}
	notification.StatusID = state.ID
	notification.Status = state
	if sentTime != nil {
		notification.SentTime = sentTime
	}

	e.logger.WithFields(logrus.Fields{
		"notification_id": notification.ID,
		"delivery_status": report.DeliveryStatus,
		"status":          statusName,
	}).Info("delivery report reconciled")

	e.emit(ctx, notification, statusName, "", sentTime)
	return notification, nil
}

// findByCorrelator tries the correlator first as a notification id and
// then as a tenant unique identifier.
func (e *Engine) findByCorrelator(ctx context.Context, correlator string) (*models.Notification, error) {
	if id, err := uuid.Parse(correlator); err == nil {
		notification, err := e.store.Notifications.GetByID(ctx, id)
		if err != nil || notification != nil {
			return notification, err
		}
	}
	return e.store.Notifications.GetByUniqueIdentifier(ctx, correlator)
}

// markFailed records a Failed outcome and tells the tenant why. The
// failure is a business outcome, not an error, so the return value is nil
// unless the ledger write itself breaks.
func (e *Engine) markFailed(ctx context.Context, n *models.Notification, message string) error {
	state, err := e.state(ctx, models.StateFailed)
	if err != nil {
		return err
	}
	if err := e.store.Notifications.UpdateStatus(ctx, n.ID, state.ID, nil, nil); err != nil {
		return Transient(err, "record failure")
	}
	n.StatusID = state.ID
	n.Status = state
	e.emit(ctx, n, models.StateFailed, message, nil)
	return nil
}

func (e *Engine) state(ctx context.Context, name string) (*models.State, error) {
	state, err := e.store.States.GetByName(ctx, name)
	if err != nil {
		return nil, Transient(err, "load state %s", name)
	}
	if state == nil {
		return nil, Transient(nil, "state %s is not seeded", name)
	}
	return state, nil
}

func (e *Engine) emit(ctx context.Context, n *models.Notification, status, message string, sentTime *time.Time) {
	if n.System == nil {
		system, err := e.store.Systems.GetByID(ctx, n.SystemID)
		if err != nil || system == nil {
			e.logger.WithField("notification_id", n.ID).Warn("cannot emit callback, system not loaded")
			return
		}
		n.System = system
	}
	payload := &callback.Payload{
		NotificationID:   n.ID.String(),
		UniqueIdentifier: n.UniqueIdentifier,
		Status:           status,
		Message:          message,
	}
	if sentTime != nil {
		payload.SentTime = sentTime.UTC().Format(time.RFC3339)
	}
	e.emitter.Emit(ctx, n.System, payload)
}

package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/signalhouse/notify/internal/dispatch"
	"github.com/signalhouse/notify/internal/models"
	"github.com/signalhouse/notify/internal/queue"
)

// Response codes returned by the admission endpoint. Tenants branch on the
// code, not the HTTP status, which is 200 either way.
const (
	CodeAccepted = "100.000.000"
	CodeRejected = "999.999.999"
)

// TaskPublisher enqueues dispatch jobs onto the broker.
type TaskPublisher interface {
	PublishTask(ctx context.Context, queueName string, env *queue.Envelope, headers amqp.Table) error
}

// Reconciler applies asynchronous provider delivery reports to the ledger.
type Reconciler interface {
	ReconcileDeliveryReport(ctx context.Context, report *dispatch.DeliveryReport) (*models.Notification, error)
}

// NotificationHandler serves the admission endpoint and the inbound
// provider delivery report endpoint.
type NotificationHandler struct {
	publisher  TaskPublisher
	reconciler Reconciler
	logger     *logrus.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(publisher TaskPublisher, reconciler Reconciler, logger *logrus.Logger) *NotificationHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &NotificationHandler{publisher: publisher, reconciler: reconciler, logger: logger}
}

// Send accepts a notification request and queues it for dispatch.
// Acceptance is synchronous only up to the enqueue; everything downstream
// reports back through the tenant's callback channel.
func (h *NotificationHandler) Send(c *gin.Context) {
	var req dispatch.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.reject(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := req.CheckRequired(); err != nil {
		h.reject(c, err.Error())
		return
	}

	env, err := queue.NewEnvelope(queue.TaskSendNotification, &req)
	if err != nil {
		h.logger.WithError(err).Error("encode notification task")
		h.reject(c, "Could not encode notification request")
		return
	}
	if err := h.publisher.PublishTask(c.Request.Context(), queue.DispatchQueue, env, nil); err != nil {
		h.logger.WithError(err).Error("enqueue notification failed")
		h.reject(c, "Could not queue notification")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"task_id":           env.ID,
		"system":            req.System,
		"notification_type": req.NotificationType,
	}).Info("notification queued")

	c.JSON(http.StatusOK, gin.H{
		"code":    CodeAccepted,
		"message": "Notification queued successfully",
	})
}

func (h *NotificationHandler) reject(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{
		"code":    CodeRejected,
		"message": message,
	})
}

// BelioDeliveryReport ingests a Belio delivery report and reconciles the
// matching ledger entry. Belio only checks the status code, so the body
// stays minimal.
func (h *NotificationHandler) BelioDeliveryReport(c *gin.Context) {
	var report dispatch.DeliveryReport
	if err := c.ShouldBindJSON(&report); err != nil {
		h.logger.WithError(err).Warn("malformed delivery report")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	if _, err := h.reconciler.ReconcileDeliveryReport(c.Request.Context(), &report); err != nil {
		h.logger.WithError(err).WithField("correlator", report.Correlator).Error("delivery report reconciliation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Success"})
}

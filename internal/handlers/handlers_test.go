package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalhouse/notify/internal/dispatch"
	"github.com/signalhouse/notify/internal/models"
	"github.com/signalhouse/notify/internal/queue"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type spyTaskPublisher struct {
	queueName string
	env       *queue.Envelope
	err       error
	calls     int
}

func (s *spyTaskPublisher) PublishTask(_ context.Context, queueName string, env *queue.Envelope, _ amqp.Table) error {
	s.calls++
	s.queueName = queueName
	s.env = env
	return s.err
}

type stubReconciler struct {
	got *dispatch.DeliveryReport
	err error
}

func (s *stubReconciler) ReconcileDeliveryReport(_ context.Context, report *dispatch.DeliveryReport) (*models.Notification, error) {
	s.got = report
	if s.err != nil {
		return nil, s.err
	}
	return &models.Notification{}, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func setupTestRouter(publisher TaskPublisher, reconciler Reconciler) *gin.Engine {
	handler := NewNotificationHandler(publisher, reconciler, quietLogger())
	router := gin.New()
	router.POST("/send-notification/", handler.Send)
	router.POST("/belio-sms-callback/", handler.BelioDeliveryReport)
	return router
}

func postJSON(t *testing.T, router *gin.Engine, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	return w, decoded
}

func TestSendQueuesNotification(t *testing.T) {
	publisher := &spyTaskPublisher{}
	router := setupTestRouter(publisher, &stubReconciler{})

	body := `{
		"system": "orders",
		"notification_type": "sms",
		"recipients": ["+254712345678"],
		"template": "otp",
		"unique_identifier": "order-42",
		"context": {"code": "9182"}
	}`
	w, resp := postJSON(t, router, "/send-notification/", body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, CodeAccepted, resp["code"])
	assert.Equal(t, "Notification queued successfully", resp["message"])

	require.Equal(t, 1, publisher.calls)
	assert.Equal(t, queue.DispatchQueue, publisher.queueName)
	require.NotNil(t, publisher.env)
	assert.Equal(t, queue.TaskSendNotification, publisher.env.Task)

	var queued dispatch.Request
	require.NoError(t, publisher.env.Arg(0, &queued))
	assert.Equal(t, "orders", queued.System)
	assert.Equal(t, dispatch.RecipientList{"+254712345678"}, queued.Recipients)
	assert.Equal(t, "order-42", queued.UniqueIdentifier)
}

func TestSendAcceptsCommaSeparatedRecipients(t *testing.T) {
	publisher := &spyTaskPublisher{}
	router := setupTestRouter(publisher, &stubReconciler{})

	body := `{
		"system": "orders",
		"notification_type": "email",
		"recipients": "a@example.com, b@example.com",
		"template": "welcome",
		"context": {}
	}`
	w, resp := postJSON(t, router, "/send-notification/", body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, CodeAccepted, resp["code"])

	var queued dispatch.Request
	require.NoError(t, publisher.env.Arg(0, &queued))
	assert.Equal(t, dispatch.RecipientList{"a@example.com", "b@example.com"}, queued.Recipients)
}

func TestSendRejectsMalformedBody(t *testing.T) {
	publisher := &spyTaskPublisher{}
	router := setupTestRouter(publisher, &stubReconciler{})

	w, resp := postJSON(t, router, "/send-notification/", `{"system": `)

	assert.Equal(t, http.StatusOK, w.Code, "rejections ride on 200 with an error code")
	assert.Equal(t, CodeRejected, resp["code"])
	assert.Contains(t, resp["message"], "Invalid request body")
	assert.Zero(t, publisher.calls)
}

func TestSendRejectsIncompleteRequests(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantMessage string
	}{
		{
			name:        "missing system",
			body:        `{"notification_type": "sms", "recipients": ["254712345678"], "context": {}}`,
			wantMessage: "system is required",
		},
		{
			name:        "missing notification type",
			body:        `{"system": "orders", "recipients": ["254712345678"], "context": {}}`,
			wantMessage: "notification_type is required",
		},
		{
			name:        "empty recipients",
			body:        `{"system": "orders", "notification_type": "sms", "recipients": [], "context": {}}`,
			wantMessage: "recipients must not be empty",
		},
		{
			name:        "missing context",
			body:        `{"system": "orders", "notification_type": "sms", "recipients": ["254712345678"]}`,
			wantMessage: "context is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &spyTaskPublisher{}
			router := setupTestRouter(publisher, &stubReconciler{})

			w, resp := postJSON(t, router, "/send-notification/", tt.body)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, CodeRejected, resp["code"])
			assert.Equal(t, tt.wantMessage, resp["message"])
			assert.Zero(t, publisher.calls)
		})
	}
}

func TestSendReportsQueueFailure(t *testing.T) {
	publisher := &spyTaskPublisher{err: assert.AnError}
	router := setupTestRouter(publisher, &stubReconciler{})

	body := `{"system": "orders", "notification_type": "sms", "recipients": ["254712345678"], "context": {}}`
	w, resp := postJSON(t, router, "/send-notification/", body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, CodeRejected, resp["code"])
	assert.Equal(t, "Could not queue notification", resp["message"])
}

func TestBelioDeliveryReportSuccess(t *testing.T) {
	reconciler := &stubReconciler{}
	router := setupTestRouter(&spyTaskPublisher{}, reconciler)

	body := `{"deliveryStatus": "DeliveredToTerminal", "correlator": "order-42", "timestamp": "2026-02-11T10:30:00Z"}`
	w, resp := postJSON(t, router, "/belio-sms-callback/", body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Success", resp["message"])
	require.NotNil(t, reconciler.got)
	assert.Equal(t, "order-42", reconciler.got.Correlator)
	assert.Equal(t, "DeliveredToTerminal", reconciler.got.DeliveryStatus)
}

func TestBelioDeliveryReportFailure(t *testing.T) {
	reconciler := &stubReconciler{err: dispatch.UnknownReference("no notification matches correlator %q", "ghost")}
	router := setupTestRouter(&spyTaskPublisher{}, reconciler)

	body := `{"deliveryStatus": "DeliveredToTerminal", "correlator": "ghost"}`
	w, resp := postJSON(t, router, "/belio-sms-callback/", body)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", resp["message"])
}

func TestBelioDeliveryReportMalformedBody(t *testing.T) {
	router := setupTestRouter(&spyTaskPublisher{}, &stubReconciler{})

	w, resp := postJSON(t, router, "/belio-sms-callback/", `[1, 2]`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", resp["message"])
}

func TestHealthEndpoints(t *testing.T) {
	handler := NewHealthHandler(nil, nil)
	router := gin.New()
	router.GET("/health", handler.Health)
	router.GET("/livez", handler.Livez)

	for _, path := range []string{"/health", "/livez"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

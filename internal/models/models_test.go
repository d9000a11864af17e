package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestSystemCallbackQueueName(t *testing.T) {
	s := System{Name: "billing"}
	assert.Equal(t, "billing_queue", s.CallbackQueueName())

	s.QueueName = "billing-events"
	assert.Equal(t, "billing-events", s.CallbackQueueName())
}

func TestProviderConfigMap(t *testing.T) {
	p := Provider{Name: "belio-primary", Config: datatypes.JSON(`{"api_url":"https://sms.belio.example","timeout":30}`)}

	cfg, err := p.ConfigMap()
	require.NoError(t, err)
	assert.Equal(t, "https://sms.belio.example", cfg["api_url"])
	// JSON numbers decode as float64.
	assert.Equal(t, float64(30), cfg["timeout"])
}

func TestProviderConfigMapEmpty(t *testing.T) {
	p := Provider{Name: "bare"}
	cfg, err := p.ConfigMap()
	require.NoError(t, err)
	assert.Empty(t, cfg)
}

func TestProviderConfigMapMalformed(t *testing.T) {
	p := Provider{Name: "broken", Config: datatypes.JSON(`{"api_url":`)}
	_, err := p.ConfigMap()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestNotificationRecipientsRoundtrip(t *testing.T) {
	var n Notification
	require.NoError(t, n.SetRecipients([]string{"a@example.com", "b@example.com"}))
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, n.RecipientList())
}

func TestNotificationRecipientListEmpty(t *testing.T) {
	var n Notification
	assert.Nil(t, n.RecipientList())
}

func TestNotificationContextRoundtrip(t *testing.T) {
	var n Notification
	require.NoError(t, n.SetContext(map[string]interface{}{"code": "9134"}))
	assert.Equal(t, map[string]interface{}{"code": "9134"}, n.ContextMap())
}

func TestNotificationSetContextNil(t *testing.T) {
	var n Notification
	require.NoError(t, n.SetContext(nil))
	assert.Equal(t, datatypes.JSON(`{}`), n.Context)
	assert.Empty(t, n.ContextMap())
}

func TestNotificationNamesNilSafe(t *testing.T) {
	var n Notification
	assert.Equal(t, "", n.StatusName())
	assert.Equal(t, "", n.TypeName())

	n.Status = &State{Name: StateSent}
	n.NotificationType = &NotificationType{Name: TypeSMS}
	assert.Equal(t, "Sent", n.StatusName())
	assert.Equal(t, "sms", n.TypeName())
}

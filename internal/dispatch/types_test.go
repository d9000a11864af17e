package dispatch

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalhouse/notify/internal/models"
)

func notificationWith(typeName string, recipients []string, template *models.Template, context map[string]interface{}) *models.Notification {
	n := &models.Notification{
		Base:             models.Base{ID: uuid.New()},
		Template:         template,
		System:           &models.System{Name: "orders", DefaultFromEmail: "noreply@orders.example"},
		NotificationType: &models.NotificationType{Name: typeName},
	}
	if err := n.SetRecipients(recipients); err != nil {
		panic(err)
	}
	if err := n.SetContext(context); err != nil {
		panic(err)
	}
	return n
}

func TestHandlerForUnsupportedType(t *testing.T) {
	handler, err := HandlerFor("fax")
	assert.Nil(t, handler)
	require.Error(t, err)
}

func TestEmailValidate(t *testing.T) {
	template := &models.Template{Subject: "Hello", Body: "Hi"}

	tests := []struct {
		name       string
		recipients []string
		template   *models.Template
		wantErr    string
	}{
		{name: "valid address", recipients: []string{"a@b.co"}, template: template},
		{name: "missing domain dot", recipients: []string{"a@b"}, template: template, wantErr: "invalid email address"},
		{name: "missing local part", recipients: []string{"@b.co"}, template: template, wantErr: "invalid email address"},
		{name: "embedded space", recipients: []string{"a b@c.co"}, template: template, wantErr: "invalid email address"},
		{name: "no template", recipients: []string{"a@b.co"}, wantErr: "require a template"},
		{
			name:       "template without subject",
			recipients: []string{"a@b.co"},
			template:   &models.Template{Body: "Hi"},
			wantErr:    "requires a subject",
		},
	}

	handler := emailHandler{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := notificationWith(models.TypeEmail, tt.recipients, tt.template, map[string]interface{}{})
			err := handler.Validate(n)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEmailPrepareContent(t *testing.T) {
	template := &models.Template{
		Subject: "Order {{order_id}} shipped",
		Body:    "<p>Hi {{name}}, your order is on the way.</p>",
	}
	context := map[string]interface{}{
		"order_id":    "42",
		"name":        "Amina",
		"reply_to":    "support@orders.example",
		"cc":          []interface{}{"audit@orders.example"},
		"bcc":         "archive@orders.example",
		"attachments": []interface{}{"/var/spool/invoices/42.pdf"},
	}
	n := notificationWith(models.TypeEmail, []string{"amina@example.com"}, template, context)

	msg, err := emailHandler{}.PrepareContent(n)
	require.NoError(t, err)

	assert.Equal(t, "Order 42 shipped", msg.Subject)
	assert.Contains(t, msg.Body, "Hi Amina")
	assert.Equal(t, "noreply@orders.example", msg.From)
	assert.Equal(t, "support@orders.example", msg.ReplyTo)
	assert.Equal(t, []string{"audit@orders.example"}, msg.CC)
	assert.Equal(t, []string{"archive@orders.example"}, msg.BCC)
	assert.Equal(t, []string{"/var/spool/invoices/42.pdf"}, msg.Attachments)
}

func TestSMSValidate(t *testing.T) {
	template := &models.Template{Body: "code {{code}}"}

	tests := []struct {
		name       string
		recipients []string
		template   *models.Template
		wantErr    string
	}{
		{name: "national digits", recipients: []string{"254712345678"}, template: template},
		{name: "with plus", recipients: []string{"+254712345678"}, template: template},
		{name: "leading zero", recipients: []string{"+0123"}, template: template, wantErr: "invalid phone number"},
		{name: "letters", recipients: []string{"abc"}, template: template, wantErr: "invalid phone number"},
		{name: "too long", recipients: []string{"1234567890123456"}, template: template, wantErr: "invalid phone number"},
		{name: "no template", recipients: []string{"254712345678"}, wantErr: "require a template"},
		{
			name:       "blank template body",
			recipients: []string{"254712345678"},
			template:   &models.Template{Body: "  "},
			wantErr:    "requires content",
		},
	}

	handler := smsHandler{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := notificationWith(models.TypeSMS, tt.recipients, tt.template, map[string]interface{}{})
			err := handler.Validate(n)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSMSPrepareContentLengthLimit(t *testing.T) {
	handler := smsHandler{}

	exact := notificationWith(models.TypeSMS, []string{"254712345678"},
		&models.Template{Body: strings.Repeat("a", 160)}, map[string]interface{}{})
	msg, err := handler.PrepareContent(exact)
	require.NoError(t, err)
	assert.Len(t, msg.Body, 160)

	over := notificationWith(models.TypeSMS, []string{"254712345678"},
		&models.Template{Body: strings.Repeat("a", 161)}, map[string]interface{}{})
	_, err = handler.PrepareContent(over)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 160 characters")
}

func TestSMSPrepareContentCountsRunes(t *testing.T) {
	// 160 multi-byte runes are within the limit even though the byte count
	// is far larger.
	body := strings.Repeat("ç", 160)
	n := notificationWith(models.TypeSMS, []string{"254712345678"},
		&models.Template{Body: body}, map[string]interface{}{})

	msg, err := smsHandler{}.PrepareContent(n)
	require.NoError(t, err)
	assert.Equal(t, body, msg.Body)
}

func TestSMSPrepareContentCorrelator(t *testing.T) {
	n := notificationWith(models.TypeSMS, []string{"254712345678"},
		&models.Template{Body: "hi"}, map[string]interface{}{"sms_service_id": "svc-9"})
	n.UniqueIdentifier = "order-42"

	msg, err := smsHandler{}.PrepareContent(n)
	require.NoError(t, err)
	assert.Equal(t, "order-42", msg.Correlator)
	assert.Equal(t, "orders", msg.SenderID)
	assert.Equal(t, "svc-9", msg.SMSServiceID)

	n.UniqueIdentifier = ""
	msg, err = smsHandler{}.PrepareContent(n)
	require.NoError(t, err)
	assert.Equal(t, n.ID.String(), msg.Correlator, "notification id stands in when no unique identifier was given")
}

func TestPushValidate(t *testing.T) {
	handler := pushHandler{}

	withToken := notificationWith(models.TypePush, []string{"device-token-1"}, nil, map[string]interface{}{})
	assert.NoError(t, handler.Validate(withToken))

	empty := notificationWith(models.TypePush, []string{}, nil, map[string]interface{}{})
	err := handler.Validate(empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device token")
}

func TestPushPrepareContent(t *testing.T) {
	tests := []struct {
		name      string
		template  *models.Template
		context   map[string]interface{}
		wantTitle string
		wantBody  string
		wantData  map[string]string
	}{
		{
			name:      "template body wins",
			template:  &models.Template{Body: "Hi {{name}}"},
			context:   map[string]interface{}{"name": "Amina", "title": "Order update"},
			wantTitle: "Order update",
			wantBody:  "Hi Amina",
		},
		{
			name:      "context body without template",
			context:   map[string]interface{}{"body": "plain body"},
			wantTitle: "Notification",
			wantBody:  "plain body",
		},
		{
			name:      "data map flattened",
			context:   map[string]interface{}{"data": map[string]interface{}{"order_id": float64(42), "deep": map[string]interface{}{"k": "v"}}},
			wantTitle: "Notification",
			wantData:  map[string]string{"order_id": "42", "deep": `{"k":"v"}`},
		},
	}

	handler := pushHandler{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := notificationWith(models.TypePush, []string{"device-token-1"}, tt.template, tt.context)
			msg, err := handler.PrepareContent(n)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTitle, msg.Title)
			assert.Equal(t, tt.wantBody, msg.Body)
			if tt.wantData != nil {
				assert.Equal(t, tt.wantData, msg.Data)
			}
		})
	}
}

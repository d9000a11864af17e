package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/signalhouse/notify/internal/models"
	"github.com/signalhouse/notify/internal/providers"
	"github.com/signalhouse/notify/internal/render"
)

// maxSMSLength is the single-segment GSM limit enforced on rendered bodies,
// counted in runes so multi-byte content is not over-charged.
const maxSMSLength = 160

var (
	emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9][0-9]{1,14}$`)
)

// TypeHandler is the per-channel capability set: recipient and template
// validation plus rendering the provider payload.
type TypeHandler interface {
	// Validate rejects notifications that can never be delivered on this
	// channel, before any provider is contacted.
	Validate(n *models.Notification) error
	// PrepareContent renders templates against the request context and
	// assembles the provider message.
	PrepareContent(n *models.Notification) (*providers.Message, error)
}

// HandlerFor selects the handler for a notification type name.
func HandlerFor(typeName string) (TypeHandler, error) {
	switch typeName {
	case models.TypeEmail:
		return emailHandler{}, nil
	case models.TypeSMS:
		return smsHandler{}, nil
	case models.TypePush:
		return pushHandler{}, nil
	default:
		return nil, fmt.Errorf("unsupported notification type %q", typeName)
	}
}

type emailHandler struct{}

func (emailHandler) Validate(n *models.Notification) error {
	for _, recipient := range n.RecipientList() {
		if !emailPattern.MatchString(recipient) {
			return fmt.Errorf("invalid email address %q", recipient)
		}
	}
	if n.Template == nil {
		return errors.New("email notifications require a template")
	}
	if strings.TrimSpace(n.Template.Subject) == "" {
		return errors.New("email template requires a subject")
	}
	return nil
}

func (emailHandler) PrepareContent(n *models.Notification) (*providers.Message, error) {
	context := n.ContextMap()

	subject, err := render.Render(n.Template.Subject, context)
	if err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	body, err := render.Render(n.Template.Body, context)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}

	var from string
	if n.System != nil {
		from = n.System.DefaultFromEmail
	}

	return &providers.Message{
		Subject:     subject,
		Body:        body,
		From:        from,
		ReplyTo:     contextString(context, "reply_to"),
		CC:          contextStrings(context["cc"]),
		BCC:         contextStrings(context["bcc"]),
		Attachments: contextStrings(context["attachments"]),
	}, nil
}

type smsHandler struct{}

func (smsHandler) Validate(n *models.Notification) error {
	for _, recipient := range n.RecipientList() {
		if !phonePattern.MatchString(recipient) {
			return fmt.Errorf("invalid phone number %q", recipient)
		}
	}
	if n.Template == nil {
		return errors.New("sms notifications require a template")
	}
	if strings.TrimSpace(n.Template.Body) == "" {
		return errors.New("sms template requires content")
	}
	return nil
}

func (smsHandler) PrepareContent(n *models.Notification) (*providers.Message, error) {
	context := n.ContextMap()

	body, err := render.Render(n.Template.Body, context)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}
	if utf8.RuneCountInString(body) > maxSMSLength {
		return nil, fmt.Errorf("SMS content exceeds %d characters", maxSMSLength)
	}

	var senderID string
	if n.System != nil {
		senderID = n.System.Name
	}
	correlator := n.UniqueIdentifier
	if correlator == "" {
		correlator = n.ID.String()
	}

	return &providers.Message{
		Body:         body,
		SenderID:     senderID,
		Correlator:   correlator,
		SMSServiceID: contextString(context, "sms_service_id"),
	}, nil
}

type pushHandler struct{}

func (pushHandler) Validate(n *models.Notification) error {
	if len(n.RecipientList()) == 0 {
		return errors.New("push notifications require at least one device token")
	}
	return nil
}

func (pushHandler) PrepareContent(n *models.Notification) (*providers.Message, error) {
	context := n.ContextMap()

	title := contextString(context, "title")
	if title == "" {
		title = "Notification"
	}

	var body string
	if n.Template != nil {
		rendered, err := render.Render(n.Template.Body, context)
		if err != nil {
			return nil, fmt.Errorf("render body: %w", err)
		}
		body = rendered
	} else {
		body = contextString(context, "body")
	}

	return &providers.Message{
		Title: title,
		Body:  body,
		Data:  contextStringMap(context["data"]),
	}, nil
}

// contextString reads a string value from the request context, tolerating
// absent or differently-typed entries.
func contextString(context map[string]interface{}, key string) string {
	if v, ok := context[key].(string); ok {
		return v
	}
	return ""
}

// contextStrings coerces a context value into a string list. Accepts a
// JSON array of strings or a comma-separated string.
func contextStrings(v interface{}) []string {
	switch vv := v.(type) {
	case nil:
		return nil
	case []string:
		return vv
	case string:
		parts := strings.Split(vv, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// contextStringMap flattens a context value into the string-to-string map
// push backends accept. Scalars are formatted, anything structured is
// re-encoded as JSON.
func contextStringMap(v interface{}) map[string]string {
	switch vv := v.(type) {
	case map[string]string:
		return vv
	case map[string]interface{}:
		out := make(map[string]string, len(vv))
		for key, value := range vv {
			switch tv := value.(type) {
			case string:
				out[key] = tv
			case float64, int, int64, bool:
				out[key] = fmt.Sprintf("%v", tv)
			default:
				if encoded, err := json.Marshal(tv); err == nil {
					out[key] = string(encoded)
				}
			}
		}
		return out
	default:
		return nil
	}
}

package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Reserved lifecycle states. Seeded at startup and only ever referenced
// by name; the engine never creates states at runtime.
const (
	StatePending             = "Pending"
	StateSent                = "Sent"
	StateFailed              = "Failed"
	StateConfirmationPending = "ConfirmationPending"
)

// Notification type names. Seeded at startup.
const (
	TypeEmail = "email"
	TypeSMS   = "sms"
	TypePush  = "push"
)

// Callback delivery modes for a System.
const (
	CallbackWebhook = "webhook"
	CallbackQueue   = "queue"
)

// Base carries the identity and audit columns shared by every table.
type Base struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	DateCreated  time.Time `gorm:"column:date_created;autoCreateTime" json:"date_created"`
	DateModified time.Time `gorm:"column:date_modified;autoUpdateTime" json:"date_modified"`
}

// BeforeCreate assigns the id client-side so rows built outside Postgres
// (tests, fixtures) still get one.
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// State is a notification lifecycle state.
type State struct {
	Base
	Name        string `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description string `gorm:"size:255" json:"description,omitempty"`
}

// TableName returns the table name
func (State) TableName() string {
	return "states"
}

// NotificationType is a supported delivery channel (email, sms, push).
type NotificationType struct {
	Base
	Name        string `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description string `gorm:"size:255" json:"description,omitempty"`
}

// TableName returns the table name
func (NotificationType) TableName() string {
	return "notification_types"
}

// System is a tenant allowed to push notifications through the bus.
// Names are stored lowercase and matched case-insensitively at admission.
type System struct {
	Base
	Name             string `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description      string `gorm:"size:255" json:"description,omitempty"`
	EmailSignature   string `gorm:"type:text" json:"email_signature,omitempty"`
	SMSSignature     string `gorm:"size:160" json:"sms_signature,omitempty"`
	DefaultFromEmail string `gorm:"size:255" json:"default_from_email,omitempty"`
	CallbackType     string `gorm:"size:20;default:webhook" json:"callback_type"`
	WebhookURL       string `gorm:"size:512" json:"webhook_url,omitempty"`
	WebhookAuthToken string `gorm:"size:255" json:"-"`
	QueueName        string `gorm:"size:100" json:"queue_name,omitempty"`
}

// TableName returns the table name
func (System) TableName() string {
	return "systems"
}

// CallbackQueueName returns the tenant's callback queue, defaulting to
// <name>_queue when none is configured.
func (s *System) CallbackQueueName() string {
	if s.QueueName != "" {
		return s.QueueName
	}
	return s.Name + "_queue"
}

// Organisation is an optional sub-tenant scoping a notification.
type Organisation struct {
	Base
	Name        string    `gorm:"size:100;not null;uniqueIndex:idx_organisations_system_name" json:"name"`
	Description string    `gorm:"size:255" json:"description,omitempty"`
	SystemID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_organisations_system_name" json:"system_id"`
	System      *System   `gorm:"foreignKey:SystemID" json:"system,omitempty"`
}

// TableName returns the table name
func (Organisation) TableName() string {
	return "organisations"
}

// Template is reusable notification content with mustache-style
// placeholders rendered against the notification context.
type Template struct {
	Base
	Name               string            `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description        string            `gorm:"size:255" json:"description,omitempty"`
	NotificationTypeID uuid.UUID         `gorm:"type:uuid;not null;index" json:"notification_type_id"`
	NotificationType   *NotificationType `gorm:"foreignKey:NotificationTypeID" json:"notification_type,omitempty"`
	Subject            string            `gorm:"size:255" json:"subject,omitempty"`
	Body               string            `gorm:"type:text;not null" json:"body"`
	IsActive           bool              `gorm:"default:true;index" json:"is_active"`
}

// TableName returns the table name
func (Template) TableName() string {
	return "templates"
}

// Provider is a configured delivery backend. ClassName keys into the
// adapter registry; Config is the adapter's JSON configuration.
type Provider struct {
	Base
	Name               string            `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description        string            `gorm:"size:255" json:"description,omitempty"`
	NotificationTypeID uuid.UUID         `gorm:"type:uuid;not null;index" json:"notification_type_id"`
	NotificationType   *NotificationType `gorm:"foreignKey:NotificationTypeID" json:"notification_type,omitempty"`
	Config             datatypes.JSON    `gorm:"type:jsonb" json:"config,omitempty"`
	Priority           *int              `gorm:"index" json:"priority,omitempty"`
	IsActive           bool              `gorm:"default:true;index" json:"is_active"`
	ClassName          string            `gorm:"size:100;not null" json:"class_name"`
}

// TableName returns the table name
func (Provider) TableName() string {
	return "providers"
}

// ConfigMap decodes the provider's JSON config.
func (p *Provider) ConfigMap() (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if len(p.Config) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(p.Config, &out); err != nil {
		return nil, fmt.Errorf("provider %s: decode config: %w", p.Name, err)
	}
	return out, nil
}

// Notification is the dispatch ledger: one row per accepted admission,
// carrying what was requested, who won the fan-out and where it ended up.
type Notification struct {
	Base
	SystemID           uuid.UUID         `gorm:"type:uuid;not null;index" json:"system_id"`
	System             *System           `gorm:"foreignKey:SystemID" json:"system,omitempty"`
	OrganisationID     *uuid.UUID        `gorm:"type:uuid;index" json:"organisation_id,omitempty"`
	Organisation       *Organisation     `gorm:"foreignKey:OrganisationID" json:"organisation,omitempty"`
	UniqueIdentifier   string            `gorm:"size:255;index" json:"unique_identifier,omitempty"`
	NotificationTypeID uuid.UUID         `gorm:"type:uuid;not null;index" json:"notification_type_id"`
	NotificationType   *NotificationType `gorm:"foreignKey:NotificationTypeID" json:"notification_type,omitempty"`
	Recipients         datatypes.JSON    `gorm:"type:jsonb;not null" json:"recipients"`
	TemplateID         *uuid.UUID        `gorm:"type:uuid" json:"template_id,omitempty"`
	Template           *Template         `gorm:"foreignKey:TemplateID" json:"template,omitempty"`
	Context            datatypes.JSON    `gorm:"type:jsonb" json:"context,omitempty"`
	ProviderID         *uuid.UUID        `gorm:"type:uuid" json:"provider_id,omitempty"`
	Provider           *Provider         `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
	SentTime           *time.Time        `gorm:"column:sent_time" json:"sent_time,omitempty"`
	StatusID           uuid.UUID         `gorm:"type:uuid;not null;index" json:"status_id"`
	Status             *State            `gorm:"foreignKey:StatusID" json:"status,omitempty"`
}

// TableName returns the table name
func (Notification) TableName() string {
	return "notifications"
}

// SetRecipients stores the recipient list as a JSON array.
func (n *Notification) SetRecipients(recipients []string) error {
	raw, err := json.Marshal(recipients)
	if err != nil {
		return fmt.Errorf("encode recipients: %w", err)
	}
	n.Recipients = datatypes.JSON(raw)
	return nil
}

// RecipientList decodes the stored recipient array.
func (n *Notification) RecipientList() []string {
	var out []string
	if len(n.Recipients) == 0 {
		return out
	}
	_ = json.Unmarshal(n.Recipients, &out)
	return out
}

// SetContext stores the rendering context as a JSON object.
func (n *Notification) SetContext(context map[string]interface{}) error {
	if context == nil {
		context = map[string]interface{}{}
	}
	raw, err := json.Marshal(context)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	n.Context = datatypes.JSON(raw)
	return nil
}

// ContextMap decodes the stored rendering context.
func (n *Notification) ContextMap() map[string]interface{} {
	out := map[string]interface{}{}
	if len(n.Context) == 0 {
		return out
	}
	_ = json.Unmarshal(n.Context, &out)
	return out
}

// StatusName returns the loaded status name, or "" when not preloaded.
func (n *Notification) StatusName() string {
	if n.Status == nil {
		return ""
	}
	return n.Status.Name
}

// TypeName returns the loaded notification type name, or "" when not
// preloaded.
func (n *Notification) TypeName() string {
	if n.NotificationType == nil {
		return ""
	}
	return n.NotificationType.Name
}

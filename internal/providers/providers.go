// Package providers contains the delivery backend adapters and the static
// registry that maps provider class names to adapter constructors. Adapters
// are stateless between calls and never touch the notification ledger;
// recording outcomes is the dispatch engine's job.
package providers

import (
	"context"
	"strconv"
	"strings"
)

// Outcome is the terminal state of a single delivery attempt. The names
// match the reserved ledger states so the engine can persist them directly.
type Outcome string

const (
	// OutcomeSent means the backend acknowledged delivery synchronously.
	OutcomeSent Outcome = "Sent"
	// OutcomeFailed means the backend rejected the request or errored.
	OutcomeFailed Outcome = "Failed"
	// OutcomeConfirmationPending means the backend accepted the request and
	// will post the final delivery state to the inbound callback endpoint.
	OutcomeConfirmationPending Outcome = "ConfirmationPending"
)

// Message is the prepared content handed to an adapter. Which fields are
// populated depends on the notification type that produced it.
type Message struct {
	// Email fields.
	Subject     string
	From        string
	ReplyTo     string
	CC          []string
	BCC         []string
	Attachments []string // file paths

	// SMS fields.
	SenderID     string
	Correlator   string
	SMSServiceID string

	// Push fields.
	Title string
	Data  map[string]string

	// Body is shared by all types.
	Body string
}

// SendResult reports one delivery attempt.
type SendResult struct {
	Status     Outcome
	ProviderID string                 // backend-side message id when available
	Detail     map[string]interface{} // backend-specific extras for logging
}

// Adapter is a configured delivery backend driver.
type Adapter interface {
	Name() string
	// ValidateConfig verifies the documented config keys are present and
	// returns an error naming the missing ones.
	ValidateConfig() error
	// Send delivers the message to the recipients. A non-nil error always
	// accompanies a Failed (or nil) result.
	Send(ctx context.Context, recipients []string, msg *Message) (*SendResult, error)
}

// Config is a provider row's JSON configuration decoded into a map.
type Config map[string]interface{}

// String returns the value under key coerced to a string.
func (c Config) String(key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Int returns the value under key coerced to an int, or 0.
func (c Config) Int(key string) int {
	switch v := c[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return 0
}

// Has reports whether key is present, regardless of its value type.
func (c Config) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// MissingKeys returns the required keys absent from the config, in the
// order they were asked for.
func (c Config) MissingKeys(required ...string) []string {
	var missing []string
	for _, key := range required {
		if !c.Has(key) {
			missing = append(missing, key)
		}
	}
	return missing
}

package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/signalhouse/notify/internal/models"
)

// Request is the admission payload accepted on the send endpoint and
// carried through the dispatch queue.
type Request struct {
	System           string                 `json:"system"`
	Organisation     string                 `json:"organisation,omitempty"`
	UniqueIdentifier string                 `json:"unique_identifier,omitempty"`
	NotificationType string                 `json:"notification_type"`
	Recipients       RecipientList          `json:"recipients"`
	Template         string                 `json:"template,omitempty"`
	Context          map[string]interface{} `json:"context"`
}

// RecipientList decodes from either a JSON array of strings or a single
// comma-separated string, so callers can post "a@x.co,b@x.co" as well as
// ["a@x.co", "b@x.co"].
type RecipientList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *RecipientList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return errors.New("recipients must be a string list or a comma-separated string")
	}
	parts := strings.Split(joined, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*l = out
	return nil
}

// CheckRequired verifies the fields the admission contract marks required.
// It runs before any reference resolution, so it only looks at shape.
func (r *Request) CheckRequired() error {
	if strings.TrimSpace(r.System) == "" {
		return errors.New("system is required")
	}
	if strings.TrimSpace(r.NotificationType) == "" {
		return errors.New("notification_type is required")
	}
	if len(r.Recipients) == 0 {
		return errors.New("recipients must not be empty")
	}
	if r.Context == nil {
		return errors.New("context is required")
	}
	return nil
}

// Normalize folds reference names to lower case, trims whitespace and
// cleans the recipient list. Safe to call more than once.
func (r *Request) Normalize() {
	r.System = strings.ToLower(strings.TrimSpace(r.System))
	r.Organisation = strings.ToLower(strings.TrimSpace(r.Organisation))
	r.NotificationType = strings.ToLower(strings.TrimSpace(r.NotificationType))
	r.Template = strings.ToLower(strings.TrimSpace(r.Template))
	r.UniqueIdentifier = strings.TrimSpace(r.UniqueIdentifier)
	r.Recipients = normalizeRecipients(r.Recipients, r.NotificationType == models.TypeSMS)
}

// normalizeRecipients trims entries, drops empties, strips the leading
// plus from sms destinations and deduplicates preserving first occurrence.
func normalizeRecipients(in RecipientList, sms bool) RecipientList {
	out := make(RecipientList, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, recipient := range in {
		recipient = strings.TrimSpace(recipient)
		if sms {
			recipient = strings.TrimPrefix(recipient, "+")
		}
		if recipient == "" {
			continue
		}
		if _, dup := seen[recipient]; dup {
			continue
		}
		seen[recipient] = struct{}{}
		out = append(out, recipient)
	}
	return out
}

// String renders a compact description for logging.
func (r *Request) String() string {
	return fmt.Sprintf("%s/%s to %d recipient(s)", r.System, r.NotificationType, len(r.Recipients))
}

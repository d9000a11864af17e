// Package render resolves mustache-style placeholders in notification
// templates: {{name}} and dotted paths looked up in the notification
// context. Undefined variables render as empty strings. Values are
// substituted verbatim, without HTML escaping, since template bodies are
// routinely authored as HTML already.
package render

import (
	"fmt"

	"github.com/cbroglie/mustache"
)

// Render substitutes context values into template.
func Render(template string, context map[string]interface{}) (string, error) {
	if template == "" {
		return "", nil
	}
	out, err := mustache.RenderRaw(template, true, context)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

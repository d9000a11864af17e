package providers

import (
	"fmt"
	"sort"
)

// Factory builds an adapter from a provider row's decoded configuration.
type Factory func(cfg Config) (Adapter, error)

// registry maps the class_name stored on provider rows to adapter
// constructors. Populated here and immutable afterwards; a class name
// without an entry is a tenant configuration fault, not a bug.
var registry = map[string]Factory{
	"GmailSMTPServer":           NewGmailSMTPServer,
	"FirebasePushProvider":      NewFirebasePushProvider,
	"AfricasTalkingSMSProvider": NewAfricasTalkingSMSProvider,
	"BelioSMSProvider":          NewBelioSMSProvider,
	"SendGridEmailProvider":     NewSendGridEmailProvider,
	"SESEmailProvider":          NewSESEmailProvider,
	"SNSSMSProvider":            NewSNSSMSProvider,
}

// New instantiates the adapter registered under className.
func New(className string, cfg Config) (Adapter, error) {
	factory, ok := registry[className]
	if !ok {
		return nil, fmt.Errorf("unknown provider class %q", className)
	}
	return factory(cfg)
}

// ClassNames lists the registered provider class names, sorted.
func ClassNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

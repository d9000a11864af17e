// Package dispatch is the notification pipeline: admission of requests into
// the ledger, provider fan-out in priority order, outcome recording and
// reconciliation of asynchronous delivery reports.
package dispatch

import (
	"errors"
	"fmt"
)

// Code classifies a dispatch failure so the worker can decide whether a
// retry can help.
type Code string

const (
	// CodeBadRequest marks a malformed or self-contradictory request.
	CodeBadRequest Code = "bad_request"
	// CodeUnknownReference marks a request naming a system, organisation,
	// type or template that does not exist.
	CodeUnknownReference Code = "unknown_reference"
	// CodeNoActiveProviders marks a dispatch with no configured backend.
	CodeNoActiveProviders Code = "no_active_providers"
	// CodeProviderMisconfiguration marks a provider row that cannot be
	// turned into a working adapter.
	CodeProviderMisconfiguration Code = "provider_misconfiguration"
	// CodeProviderTransport marks a backend call that errored or was
	// rejected.
	CodeProviderTransport Code = "provider_transport"
	// CodeTransient marks infrastructure trouble worth retrying.
	CodeTransient Code = "transient"
)

// Retryable reports whether re-running the job can change the outcome.
// Only transient infrastructure faults qualify; everything else would fail
// identically on replay.
func (c Code) Retryable() bool {
	return c == CodeTransient
}

// Fault is the dispatch error type. It carries a classification code and
// optionally wraps an underlying cause.
type Fault struct {
	Code    Code
	Message string
	Err     error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Err)
	}
	return f.Message
}

func (f *Fault) Unwrap() error { return f.Err }

func newFault(code Code, format string, args ...interface{}) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...)}
}

// BadRequest builds a bad_request fault.
func BadRequest(format string, args ...interface{}) *Fault {
	return newFault(CodeBadRequest, format, args...)
}

// UnknownReference builds an unknown_reference fault.
func UnknownReference(format string, args ...interface{}) *Fault {
	return newFault(CodeUnknownReference, format, args...)
}

// Transient wraps an infrastructure error as a retryable fault.
func Transient(err error, format string, args ...interface{}) *Fault {
	f := newFault(CodeTransient, format, args...)
	f.Err = err
	return f
}

// IsRetryable reports whether err should be requeued by the task worker.
// Unclassified errors count as transient so infrastructure surprises get
// the benefit of the doubt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var f *Fault
	if errors.As(err, &f) {
		return f.Code.Retryable()
	}
	return true
}

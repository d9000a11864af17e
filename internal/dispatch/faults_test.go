package dispatch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "bad request", err: BadRequest("system is required"), want: false},
		{name: "unknown reference", err: UnknownReference("unknown system %q", "ghost"), want: false},
		{name: "transient", err: Transient(errors.New("connection refused"), "persist notification"), want: true},
		{name: "wrapped transient", err: fmt.Errorf("dispatch: %w", Transient(nil, "state missing")), want: true},
		{name: "wrapped bad request", err: fmt.Errorf("dispatch: %w", BadRequest("nope")), want: false},
		{name: "unclassified error", err: errors.New("surprise"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestFaultError(t *testing.T) {
	plain := BadRequest("context is required")
	assert.Equal(t, "context is required", plain.Error())

	cause := errors.New("dial tcp: refused")
	wrapped := Transient(cause, "resolve system %s", "orders")
	assert.Contains(t, wrapped.Error(), "resolve system orders")
	assert.Contains(t, wrapped.Error(), "refused")
	assert.ErrorIs(t, wrapped, cause)
}

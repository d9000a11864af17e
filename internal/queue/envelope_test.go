package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelopeEncodesArgs(t *testing.T) {
	type payload struct {
		System string `json:"system"`
	}

	env, err := NewEnvelope(TaskSendNotification, payload{System: "orders"})
	require.NoError(t, err)
	require.NotEmpty(t, env.ID)
	assert.Equal(t, TaskSendNotification, env.Task)
	require.Len(t, env.Args, 1)

	var got payload
	require.NoError(t, env.Arg(0, &got))
	assert.Equal(t, "orders", got.System)
}

func TestEnvelopeWireFormat(t *testing.T) {
	env, err := NewEnvelope("orders.handle_notification_response", map[string]string{"status": "Sent"})
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var wire map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Contains(t, wire, "id")
	assert.Contains(t, wire, "task")
	assert.Contains(t, wire, "args")
}

func TestEnvelopeArgOutOfRange(t *testing.T) {
	env, err := NewEnvelope(TaskSendNotification)
	require.NoError(t, err)

	var v map[string]interface{}
	err = env.Arg(0, &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no argument 0")
}

func TestEnvelopeArgTypeMismatch(t *testing.T) {
	env, err := NewEnvelope(TaskSendNotification, "not an object")
	require.NoError(t, err)

	var v map[string]interface{}
	err = env.Arg(0, &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode argument 0")
}

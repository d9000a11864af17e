// Package queue is the AMQP transport layer: task envelopes, broker
// topology and publish/consume plumbing shared by the API and the worker.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Task and queue names shared by both binaries.
const (
	// TaskSendNotification runs the full dispatch pipeline for one request.
	TaskSendNotification = "notify.send_notification"

	// DispatchQueue feeds the dispatch workers.
	DispatchQueue = "notification_queue"
	// RetryQueue parks retryable jobs; expired messages dead-letter back
	// onto the dispatch queue.
	RetryQueue = "notification_queue.retry"
	// DeadQueue collects jobs that exhausted their retries or could not be
	// decoded, for manual inspection.
	DeadQueue = "notification_queue.dead"

	// CallbackExchange carries tenant callback tasks; each tenant queue is
	// bound to it with the tenant's own routing key.
	CallbackExchange = "notify.callbacks"
)

// AttemptsHeader counts dispatch attempts across retry hops.
const AttemptsHeader = "x-attempts"

// Envelope is the wire format of a task message. Args are positional and
// kept raw so each task decodes its own argument types.
type Envelope struct {
	ID   string            `json:"id"`
	Task string            `json:"task"`
	Args []json.RawMessage `json:"args"`
}

// NewEnvelope builds an envelope for task with positional args.
func NewEnvelope(task string, args ...interface{}) (*Envelope, error) {
	env := &Envelope{ID: uuid.NewString(), Task: task}
	for _, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("encode argument for task %s: %w", task, err)
		}
		env.Args = append(env.Args, raw)
	}
	return env, nil
}

// Arg decodes positional argument i into v.
func (e *Envelope) Arg(i int, v interface{}) error {
	if i < 0 || i >= len(e.Args) {
		return fmt.Errorf("task %s has no argument %d", e.Task, i)
	}
	if err := json.Unmarshal(e.Args[i], v); err != nil {
		return fmt.Errorf("decode argument %d of task %s: %w", i, e.Task, err)
	}
	return nil
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalhouse/notify/internal/config"
	"github.com/signalhouse/notify/internal/dispatch"
	"github.com/signalhouse/notify/internal/queue"
)

type fakeAcknowledger struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacks++
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

type fakeBroker struct {
	mu         sync.Mutex
	deliveries chan amqp.Delivery
	published  []publishedTask
	publishErr error
}

type publishedTask struct {
	queueName string
	env       *queue.Envelope
	headers   amqp.Table
}

func (f *fakeBroker) Consume(queueName string, prefetch int) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeBroker) StopConsuming() {
	close(f.deliveries)
}

func (f *fakeBroker) PublishTask(_ context.Context, queueName string, env *queue.Envelope, headers amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishedTask{queueName: queueName, env: env, headers: headers})
	return nil
}

func (f *fakeBroker) lastPublished(t *testing.T) publishedTask {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.published)
	return f.published[len(f.published)-1]
}

type stubDispatcher struct {
	mu    sync.Mutex
	err   error
	calls int
	reqs  []*dispatch.Request
}

func (s *stubDispatcher) Dispatch(_ context.Context, req *dispatch.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.reqs = append(s.reqs, req)
	return s.err
}

func (s *stubDispatcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testWorker(dispatcher Dispatcher, broker Broker) *Worker {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := config.WorkerConfig{Concurrency: 1, MaxRetries: 3, Prefetch: 1, RetryDelay: time.Second}
	return New(dispatcher, broker, cfg, logger)
}

func deliveryFor(t *testing.T, ack amqp.Acknowledger, headers amqp.Table, task string, args ...interface{}) amqp.Delivery {
	t.Helper()
	env, err := queue.NewEnvelope(task, args...)
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body, Headers: headers}
}

func TestHandleDeliveryAcksSuccess(t *testing.T) {
	ack := &fakeAcknowledger{}
	broker := &fakeBroker{}
	dispatcher := &stubDispatcher{}
	w := testWorker(dispatcher, broker)

	req := dispatch.Request{System: "orders", NotificationType: "sms", Recipients: dispatch.RecipientList{"254712345678"}, Context: map[string]interface{}{}}
	w.handleDelivery(context.Background(), deliveryFor(t, ack, nil, queue.TaskSendNotification, req))

	assert.Equal(t, 1, dispatcher.calls)
	require.Len(t, dispatcher.reqs, 1)
	assert.Equal(t, "orders", dispatcher.reqs[0].System)
	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)
	assert.Empty(t, broker.published)
}

func TestHandleDeliveryAcksNonRetryableFault(t *testing.T) {
	ack := &fakeAcknowledger{}
	broker := &fakeBroker{}
	dispatcher := &stubDispatcher{err: dispatch.UnknownReference("unknown system %q", "ghost")}
	w := testWorker(dispatcher, broker)

	req := dispatch.Request{System: "ghost"}
	w.handleDelivery(context.Background(), deliveryFor(t, ack, nil, queue.TaskSendNotification, req))

	assert.Equal(t, 1, ack.acks, "replaying a broken request cannot help")
	assert.Zero(t, ack.nacks)
	assert.Empty(t, broker.published)
}

func TestHandleDeliverySchedulesRetry(t *testing.T) {
	ack := &fakeAcknowledger{}
	broker := &fakeBroker{}
	dispatcher := &stubDispatcher{err: dispatch.Transient(errors.New("db down"), "persist notification")}
	w := testWorker(dispatcher, broker)

	req := dispatch.Request{System: "orders"}
	w.handleDelivery(context.Background(), deliveryFor(t, ack, nil, queue.TaskSendNotification, req))

	published := broker.lastPublished(t)
	assert.Equal(t, queue.RetryQueue, published.queueName)
	assert.Equal(t, queue.TaskSendNotification, published.env.Task)
	assert.EqualValues(t, 1, published.headers[queue.AttemptsHeader])
	assert.Equal(t, 1, ack.acks, "original delivery acked once the retry copy is parked")
}

func TestHandleDeliveryIncrementsAttempts(t *testing.T) {
	ack := &fakeAcknowledger{}
	broker := &fakeBroker{}
	dispatcher := &stubDispatcher{err: dispatch.Transient(errors.New("db down"), "persist notification")}
	w := testWorker(dispatcher, broker)

	headers := amqp.Table{queue.AttemptsHeader: int32(1)}
	w.handleDelivery(context.Background(), deliveryFor(t, ack, headers, queue.TaskSendNotification, dispatch.Request{}))

	published := broker.lastPublished(t)
	assert.EqualValues(t, 2, published.headers[queue.AttemptsHeader])
}

func TestHandleDeliveryDeadLettersAfterMaxRetries(t *testing.T) {
	ack := &fakeAcknowledger{}
	broker := &fakeBroker{}
	dispatcher := &stubDispatcher{err: dispatch.Transient(errors.New("db down"), "persist notification")}
	w := testWorker(dispatcher, broker)

	headers := amqp.Table{queue.AttemptsHeader: int64(3)}
	w.handleDelivery(context.Background(), deliveryFor(t, ack, headers, queue.TaskSendNotification, dispatch.Request{}))

	assert.Zero(t, ack.acks)
	assert.Equal(t, 1, ack.nacks)
	assert.False(t, ack.requeue, "reject without requeue routes to the dead queue")
	assert.Empty(t, broker.published)
}

func TestHandleDeliveryDeadLettersMalformedBody(t *testing.T) {
	ack := &fakeAcknowledger{}
	broker := &fakeBroker{}
	dispatcher := &stubDispatcher{}
	w := testWorker(dispatcher, broker)

	w.handleDelivery(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("not json")})

	assert.Zero(t, dispatcher.calls)
	assert.Equal(t, 1, ack.nacks)
	assert.False(t, ack.requeue)
}

func TestHandleDeliveryDeadLettersUnknownTask(t *testing.T) {
	ack := &fakeAcknowledger{}
	broker := &fakeBroker{}
	dispatcher := &stubDispatcher{}
	w := testWorker(dispatcher, broker)

	w.handleDelivery(context.Background(), deliveryFor(t, ack, nil, "notify.unknown_task"))

	assert.Zero(t, dispatcher.calls)
	assert.Equal(t, 1, ack.nacks)
	assert.False(t, ack.requeue)
}

func TestHandleDeliveryRequeuesWhenRetryPublishFails(t *testing.T) {
	ack := &fakeAcknowledger{}
	broker := &fakeBroker{publishErr: errors.New("channel closed")}
	dispatcher := &stubDispatcher{err: dispatch.Transient(errors.New("db down"), "persist notification")}
	w := testWorker(dispatcher, broker)

	w.handleDelivery(context.Background(), deliveryFor(t, ack, nil, queue.TaskSendNotification, dispatch.Request{}))

	assert.Equal(t, 1, ack.nacks)
	assert.True(t, ack.requeue, "broker keeps the message when the retry hop is unavailable")
}

func TestStartStopsOnContextCancel(t *testing.T) {
	ack := &fakeAcknowledger{}
	broker := &fakeBroker{deliveries: make(chan amqp.Delivery, 1)}
	dispatcher := &stubDispatcher{}
	w := testWorker(dispatcher, broker)

	req := dispatch.Request{System: "orders"}
	env, err := queue.NewEnvelope(queue.TaskSendNotification, req)
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)
	broker.deliveries <- amqp.Delivery{Acknowledger: ack, Body: body}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return dispatcher.callCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
	assert.Equal(t, 1, ack.acks)
}

func TestStartReportsBrokenStream(t *testing.T) {
	broker := &fakeBroker{deliveries: make(chan amqp.Delivery)}
	w := testWorker(&stubDispatcher{}, broker)

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	// Simulate the broker connection dying under the consumer.
	broker.StopConsuming()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "delivery stream closed")
	case <-time.After(time.Second):
		t.Fatal("worker did not notice the closed stream")
	}
}

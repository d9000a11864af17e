// Package worker consumes dispatch jobs from the broker and funnels them
// through the dispatch engine with bounded retry.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/signalhouse/notify/internal/config"
	"github.com/signalhouse/notify/internal/dispatch"
	"github.com/signalhouse/notify/internal/queue"
)

// Dispatcher runs one queued admission payload end to end.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *dispatch.Request) error
}

// Broker is the slice of the queue client the worker needs: a consumer for
// the dispatch queue and a publisher for the retry hop.
type Broker interface {
	Consume(queueName string, prefetch int) (<-chan amqp.Delivery, error)
	StopConsuming()
	PublishTask(ctx context.Context, queueName string, env *queue.Envelope, headers amqp.Table) error
}

// Worker is the dispatch worker pool. Deliveries are acked once their
// outcome is settled; retryable faults hop through the retry queue until
// the attempt budget runs out, then dead-letter.
type Worker struct {
	dispatcher Dispatcher
	broker     Broker
	cfg        config.WorkerConfig
	logger     *logrus.Logger
	wg         sync.WaitGroup
}

// New builds a worker pool.
func New(dispatcher Dispatcher, broker Broker, cfg config.WorkerConfig, logger *logrus.Logger) *Worker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Worker{dispatcher: dispatcher, broker: broker, cfg: cfg, logger: logger}
}

// Start consumes the dispatch queue until ctx is cancelled. It blocks, and
// returns an error only when the delivery stream breaks underneath it.
func (w *Worker) Start(ctx context.Context) error {
	deliveries, err := w.broker.Consume(queue.DispatchQueue, w.cfg.Prefetch)
	if err != nil {
		return err
	}
	w.logger.WithFields(logrus.Fields{
		"queue":       queue.DispatchQueue,
		"concurrency": w.cfg.Concurrency,
		"max_retries": w.cfg.MaxRetries,
	}).Info("dispatch worker started")

	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for delivery := range deliveries {
				w.handleDelivery(ctx, delivery)
			}
		}()
	}

	drained := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(drained)
	}()

	select {
	case <-ctx.Done():
		w.broker.StopConsuming()
		<-drained
		w.logger.Info("dispatch worker stopped")
		return nil
	case <-drained:
		return errors.New("delivery stream closed")
	}
}

// handleDelivery settles exactly one delivery: ack, retry hop or
// dead-letter. Rejecting without requeue routes the message to the dead
// queue through the dispatch queue's dead-letter binding.
func (w *Worker) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	var env queue.Envelope
	if err := json.Unmarshal(delivery.Body, &env); err != nil {
		w.logger.WithError(err).Error("malformed task message, dead-lettering")
		w.reject(delivery, false)
		return
	}
	log := w.logger.WithFields(logrus.Fields{"task": env.Task, "task_id": env.ID})

	switch env.Task {
	case queue.TaskSendNotification:
		var req dispatch.Request
		if err := env.Arg(0, &req); err != nil {
			log.WithError(err).Error("malformed task arguments, dead-lettering")
			w.reject(delivery, false)
			return
		}
		w.runDispatch(ctx, delivery, &env, &req, log)
	default:
		log.Error("unknown task, dead-lettering")
		w.reject(delivery, false)
	}
}

func (w *Worker) runDispatch(ctx context.Context, delivery amqp.Delivery, env *queue.Envelope, req *dispatch.Request, log *logrus.Entry) {
	err := w.dispatcher.Dispatch(ctx, req)
	if err == nil {
		w.ack(delivery)
		return
	}
	if !dispatch.IsRetryable(err) {
		// The request itself is broken; replaying it cannot help.
		log.WithError(err).Warn("dispatch rejected")
		w.ack(delivery)
		return
	}

	attempts := attemptCount(delivery.Headers)
	if attempts >= w.cfg.MaxRetries {
		log.WithError(err).WithField("attempts", attempts).Error("retries exhausted, dead-lettering")
		w.reject(delivery, false)
		return
	}

	headers := amqp.Table{queue.AttemptsHeader: int64(attempts + 1)}
	if publishErr := w.broker.PublishTask(ctx, queue.RetryQueue, env, headers); publishErr != nil {
		log.WithError(publishErr).Error("retry publish failed, requeueing delivery")
		w.reject(delivery, true)
		return
	}
	log.WithError(err).WithField("attempts", attempts+1).Warn("dispatch failed, retry scheduled")
	w.ack(delivery)
}

func (w *Worker) ack(delivery amqp.Delivery) {
	if err := delivery.Ack(false); err != nil {
		w.logger.WithError(err).Error("ack failed")
	}
}

func (w *Worker) reject(delivery amqp.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		w.logger.WithError(err).Error("nack failed")
	}
}

// attemptCount reads the retry counter header, tolerating the integer
// widths different broker versions hand back.
func attemptCount(headers amqp.Table) int {
	if headers == nil {
		return 0
	}
	switch v := headers[queue.AttemptsHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

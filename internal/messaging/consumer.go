package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"

	"github.com/asyncworks/task-manager/internal/config"
)

// Per-message retry policy, independent of the processor's internal retries.
const (
	handleMaxAttempts = 3
	handleBackoffBase = 1 * time.Second
	handleBackoffCap  = 10 * time.Second

	reconnectDelay = 5 * time.Second
)

// TaskProcessor executes the task state machine for a delivered task id.
type TaskProcessor interface {
	Process(ctx context.Context, taskID int64) error
}

// Consumer runs the long-lived subscription loop: it bounds in-flight
// deliveries with the broker prefetch window, dispatches each message to the
// processor, and resolves every delivery to exactly one of acknowledge or
// reject-without-requeue.
type Consumer struct {
	broker    config.BrokerConfig
	worker    config.WorkerConfig
	processor TaskProcessor
	logger    *slog.Logger

	dial       func() (*amqp.Connection, error)
	newBackoff func() retry.Backoff
}

// NewConsumer creates a Consumer for the configured broker and queue.
func NewConsumer(
	broker config.BrokerConfig,
	worker config.WorkerConfig,
	processor TaskProcessor,
	log *slog.Logger,
) *Consumer {
	return &Consumer{
		broker:     broker,
		worker:     worker,
		processor:  processor,
		logger:     log.With("component", "consumer"),
		dial:       func() (*amqp.Connection, error) { return amqp.Dial(broker.URL()) },
		newBackoff: handleBackoff,
	}
}

// handleBackoff is the per-message retry policy: exponential from 1s capped
// at 10s with jitter, three attempts in total.
func handleBackoff() retry.Backoff {
	b := retry.NewExponential(handleBackoffBase)
	b = retry.WithCappedDuration(handleBackoffCap, b)
	b = retry.WithJitterPercent(20, b)
	return retry.WithMaxRetries(handleMaxAttempts-1, b)
}

// Run consumes the task queue until ctx is cancelled or the subscription
// fails in a way reconnecting cannot fix. Transient connection loss is
// handled by redialling; anything else is logged and returned to the caller,
// whose supervisor owns the restart decision.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			c.logger.Info("consumer stopped")
			return ctx.Err()
		}
		if err != nil && !errors.Is(err, ErrBrokerConnection) {
			c.logger.Error("consumer crashed", "error", err)
			return err
		}

		c.logger.Warn("broker connection lost, reconnecting",
			"delay", reconnectDelay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// consume owns one connection's lifetime: subscribe, dispatch deliveries
// until the channel dies or ctx is cancelled, then drain.
func (c *Consumer) consume(ctx context.Context) error {
	conn, err := c.dial()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBrokerConnection, err)
	}
	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Debug("failed to close broker connection", "error", err)
		}
	}()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBrokerConnection, err)
	}

	// Prefetch caps how many unacknowledged messages the broker hands us;
	// together with the semaphore below it bounds in-flight processing.
	if err := ch.Qos(c.worker.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	queue, err := declareTaskQueue(ch, c.broker.TaskQueue)
	if err != nil {
		return fmt.Errorf("failed to declare task queue: %w", err)
	}

	deliveries, err := ch.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("consumer started",
		"queue", queue.Name,
		"prefetch", c.worker.PrefetchCount,
		"max_concurrent", c.worker.MaxConcurrentTasks)

	// In-flight handlers outlive a cancelled consume loop for up to the
	// drain timeout, so they run on a context detached from ctx.
	handlerCtx, cancelHandlers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelHandlers()

	sem := semaphore.NewWeighted(int64(c.worker.MaxConcurrentTasks))
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			c.drain(&wg, cancelHandlers)
			return nil

		case d, ok := <-deliveries:
			if !ok {
				// Channel died mid-subscription. Unacked messages are
				// requeued by the broker; let in-flight handlers finish
				// so their status writes land.
				wg.Wait()
				return fmt.Errorf("%w: delivery channel closed", ErrBrokerConnection)
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				// Shutting down; hand the message back to the broker.
				if nackErr := d.Nack(false, true); nackErr != nil {
					c.logger.Error("failed to requeue message during shutdown", "error", nackErr)
				}
				c.drain(&wg, cancelHandlers)
				return nil
			}

			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer sem.Release(1)
				c.handleDelivery(handlerCtx, d)
			}(d)
		}
	}
}

// drain stops accepting deliveries and gives in-flight handlers until the
// drain timeout to finish before cancelling them. Cancelled handlers drive
// their tasks to the error status through the processor's cancellation path.
func (c *Consumer) drain(wg *sync.WaitGroup, cancelHandlers context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(c.worker.DrainTimeout):
		c.logger.Warn("drain timeout reached, cancelling in-flight tasks")
		cancelHandlers()
		<-done
	}
}

// handleDelivery processes one delivery under the per-message retry budget.
// Exactly one of ack / reject-without-requeue is issued per delivery,
// whichever comes first; later outcomes are no-ops.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	log := c.logger.With("delivery_tag", d.DeliveryTag, "message_id", d.MessageId)

	var once sync.Once
	finalize := func(outcome string, fn func() error) {
		once.Do(func() {
			if err := fn(); err != nil {
				log.Error("message finalization failed", "outcome", outcome, "error", err)
			}
		})
	}
	ack := func() { finalize("ack", func() error { return d.Ack(false) }) }
	reject := func() { finalize("reject", func() error { return d.Nack(false, false) }) }

	err := retry.Do(ctx, c.newBackoff(), func(ctx context.Context) error {
		return c.handleMessage(ctx, d, ack, reject, log)
	})
	if err != nil {
		log.Error("message handling failed after retries", "error", err)
		// The failing attempt already rejected the message; this covers
		// attempts cut short before reaching a terminal outcome.
		reject()
	}
}

// handleMessage is a single handling attempt. Undecodable messages are
// consumed without retry since they can never succeed; processor failures
// dead-letter the message and surface as retryable so the whole
// receive-and-handle cycle re-runs within its budget.
func (c *Consumer) handleMessage(
	ctx context.Context,
	d amqp.Delivery,
	ack, reject func(),
	log *slog.Logger,
) error {
	msg, err := DecodeTaskMessage(d.Body)
	switch {
	case errors.Is(err, ErrMissingTaskID):
		log.Warn("invalid message format: missing task_id")
		ack()
		return nil
	case err != nil:
		log.Error("message decode failed", "error", err)
		ack()
		return nil
	}

	log.Info("processing task message",
		"task_id", msg.TaskID,
		"retry_count", d.Headers["retry_count"])

	if err := c.processor.Process(ctx, msg.TaskID); err != nil {
		log.Error("task processing failed", "task_id", msg.TaskID, "error", err)
		reject()
		return retry.RetryableError(err)
	}

	ack()
	return nil
}

package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"

	"github.com/asyncworks/task-manager/internal/config"
)

// Publish retry policy: connection failures only.
const (
	publishMaxAttempts = 3
	publishBackoffBase = 1 * time.Second
	publishBackoffCap  = 10 * time.Second
)

var (
	// ErrBrokerConnection wraps failures to reach the broker. Publish
	// retries only this class; everything else propagates immediately.
	ErrBrokerConnection = errors.New("broker connection failed")

	// ErrUnroutable is returned when the broker cannot route a mandatory
	// publish to any queue.
	ErrUnroutable = errors.New("message could not be routed to any queue")
)

// Producer publishes task messages to the task queue. Each publish opens a
// fresh connection and channel and closes them before returning; there is no
// pooling, so a Producer is safe for concurrent use.
type Producer struct {
	cfg    config.BrokerConfig
	logger *slog.Logger

	dial       func() (*amqp.Connection, error)
	newBackoff func() retry.Backoff
}

// NewProducer creates a Producer for the configured broker and queue.
func NewProducer(cfg config.BrokerConfig, log *slog.Logger) *Producer {
	return &Producer{
		cfg:        cfg,
		logger:     log.With("component", "producer"),
		dial:       func() (*amqp.Connection, error) { return amqp.Dial(cfg.URL()) },
		newBackoff: publishBackoff,
	}
}

// publishBackoff is the connection-retry policy: exponential from 1s capped
// at 10s with jitter, three attempts in total.
func publishBackoff() retry.Backoff {
	b := retry.NewExponential(publishBackoffBase)
	b = retry.WithCappedDuration(publishBackoffCap, b)
	b = retry.WithJitterPercent(10, b)
	return retry.WithMaxRetries(publishMaxAttempts-1, b)
}

// Publish sends the task id to the task queue as a persistent, mandatory
// message. Connection failures are retried per publishBackoff; routing
// failures and broker rejections are not retried.
func (p *Producer) Publish(ctx context.Context, taskID int64) error {
	err := retry.Do(ctx, p.newBackoff(), func(ctx context.Context) error {
		if err := p.publishOnce(ctx, taskID); err != nil {
			if errors.Is(err, ErrBrokerConnection) {
				p.logger.Warn("publish attempt failed, broker unreachable",
					"task_id", taskID, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		p.logger.Error("task publish failed", "task_id", taskID, "error", err)
		return err
	}

	p.logger.Info("task published", "task_id", taskID, "queue", p.cfg.TaskQueue)
	return nil
}

func (p *Producer) publishOnce(ctx context.Context, taskID int64) error {
	conn, err := p.dial()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBrokerConnection, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			p.logger.Debug("failed to close broker connection", "error", err)
		}
	}()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBrokerConnection, err)
	}

	if _, err := declareTaskQueue(ch, p.cfg.TaskQueue); err != nil {
		return fmt.Errorf("failed to declare task queue: %w", err)
	}

	// Publisher confirms tell us whether the broker accepted the message;
	// mandatory delivery reports back when no queue can route it.
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	returns := ch.NotifyReturn(make(chan amqp.Return, 1))

	body, err := TaskMessage{TaskID: taskID}.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode task message: %w", err)
	}

	conf, err := ch.PublishWithDeferredConfirmWithContext(ctx,
		"",              // default exchange
		p.cfg.TaskQueue, // routing key
		true,            // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:  contentTypeJSON,
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			Headers:      messageHeaders(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ret := <-returns:
		return fmt.Errorf("%w: %s (code %d)", ErrUnroutable, ret.ReplyText, ret.ReplyCode)
	case <-conf.Done():
	}

	// A returned mandatory message is still confirmed; the return frame
	// travels on the same channel just ahead of the ack.
	select {
	case ret := <-returns:
		return fmt.Errorf("%w: %s (code %d)", ErrUnroutable, ret.ReplyText, ret.ReplyCode)
	default:
	}

	if !conf.Acked() {
		return fmt.Errorf("broker rejected publish for task %d", taskID)
	}

	return nil
}

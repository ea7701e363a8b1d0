// Package messaging implements the task pipeline's broker integration:
// publishing task messages and consuming them with acknowledgement and
// dead-letter semantics.
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Message metadata stamped on every published task message.
const (
	ServiceName    = "task-manager"
	ServiceVersion = "1.0"

	// DeadLetterExchange receives messages rejected without requeue.
	DeadLetterExchange = "dead_letter_exchange"

	contentTypeJSON = "application/json"
)

// Decode errors. Both classes are permanent: a message that cannot be parsed
// now will never parse, so the consumer drops it instead of retrying.
var (
	ErrMalformedMessage = errors.New("malformed message body")
	ErrMissingTaskID    = errors.New("message missing task_id")
)

// TaskMessage is the queue envelope for a single task. The broker owns it
// between publish and ack/reject; the task row in the store is the source of
// truth for everything else.
type TaskMessage struct {
	TaskID int64 `json:"task_id"`
}

// Encode serializes the message body as JSON.
func (m TaskMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeTaskMessage parses a message body. Invalid JSON yields
// ErrMalformedMessage; a missing or zero task_id yields ErrMissingTaskID.
func DecodeTaskMessage(body []byte) (TaskMessage, error) {
	var raw struct {
		TaskID *int64 `json:"task_id"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return TaskMessage{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if raw.TaskID == nil || *raw.TaskID == 0 {
		return TaskMessage{}, ErrMissingTaskID
	}
	return TaskMessage{TaskID: *raw.TaskID}, nil
}

// messageHeaders returns the standard headers for a freshly published task
// message. retry_count is informational; this service never increments it.
func messageHeaders() amqp.Table {
	return amqp.Table{
		"retry_count": int32(0),
		"service":     ServiceName,
		"version":     ServiceVersion,
	}
}

// declareTaskQueue declares the durable quorum task queue with its
// dead-letter exchange attached. Producer and Consumer must declare with
// identical arguments; the broker rejects a declaration that conflicts with
// an existing queue.
func declareTaskQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		amqp.Table{
			"x-queue-type":           "quorum",
			"x-dead-letter-exchange": DeadLetterExchange,
		},
	)
}

// Package amqp carries grade jobs between the API server and the workers
// over RabbitMQ.
package amqp

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	amqplib "github.com/rabbitmq/amqp091-go"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
)

const (
	exchangeName = "sentinel.direct"
	exchangeType = "direct"
	routingKey   = "grade"
	queueName    = "grading_jobs"

	deadLetterExchange = "sentinel.dlx"
	deadLetterQueue    = "dead_letter_queue"

	baseReconnectDelay = 1 * time.Second
	maxReconnectDelay  = 30 * time.Second
)

// declareTopology declares the exchanges and queues used by both sides.
// Publisher and consumer must agree on the queue arguments, otherwise the
// second declaration fails with PRECONDITION_FAILED.
func declareTopology(ch *amqplib.Channel) error {
	if err := ch.ExchangeDeclare(exchangeName, exchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(deadLetterExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(deadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(deadLetterQueue, "", deadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}

	args := amqplib.Table{
		"x-dead-letter-exchange": deadLetterExchange,
		"x-queue-type":           "quorum",
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queueName, routingKey, exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// reconnectDelay is the exponential backoff for the given attempt, capped at maxReconnectDelay.
func reconnectDelay(attempt int) time.Duration {
	return time.Duration(math.Min(
		float64(baseReconnectDelay)*math.Pow(2, float64(attempt)),
		float64(maxReconnectDelay),
	))
}

func encodeJob(job *domain.GradeJob) ([]byte, error) {
	return json.Marshal(job)
}

// decodeJob parses a delivery body. Jobs without a submission id are rejected.
func decodeJob(body []byte) (*domain.GradeJob, error) {
	var job domain.GradeJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	if job.SubmissionID == uuid.Nil {
		return nil, fmt.Errorf("job has no submission id")
	}
	return &job, nil
}

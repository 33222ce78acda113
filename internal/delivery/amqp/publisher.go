package amqp

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqplib "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/repository"
)

const publishTimeout = 5 * time.Second

var _ repository.JobPublisher = (*Publisher)(nil)

// Publisher sends grade jobs with publisher confirms and reconnects in the
// background when the broker connection drops.
type Publisher struct {
	url     string
	conn    *amqplib.Connection
	channel *amqplib.Channel
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPublisher dials RabbitMQ and declares the grading topology.
func NewPublisher(url string, logger *zap.Logger) (*Publisher, error) {
	p := &Publisher{
		url:    url,
		logger: logger,
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	go p.watchConnection()

	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqplib.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("rabbitmq: channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq: enable confirms: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.channel = ch
	p.mu.Unlock()

	p.logger.Info("RabbitMQ publisher initialized",
		zap.String("exchange", exchangeName),
		zap.String("queue", queueName),
	)
	return nil
}

// watchConnection blocks on the connection's close notification and
// redials with backoff until it succeeds or the publisher is closed.
func (p *Publisher) watchConnection() {
	for {
		p.mu.RLock()
		if p.closed {
			p.mu.RUnlock()
			return
		}
		conn := p.conn
		p.mu.RUnlock()

		reason, ok := <-conn.NotifyClose(make(chan *amqplib.Error, 1))
		if !ok {
			return
		}

		p.logger.Warn("RabbitMQ connection lost, reconnecting...",
			zap.String("reason", reason.Error()),
		)

		for attempt := 0; ; attempt++ {
			if p.isClosed() {
				return
			}
			delay := reconnectDelay(attempt)
			time.Sleep(delay)

			if err := p.connect(); err != nil {
				p.logger.Warn("RabbitMQ reconnect failed", zap.Error(err), zap.Duration("retry_in", delay))
				continue
			}
			p.logger.Info("RabbitMQ reconnected successfully")
			break
		}
	}
}

func (p *Publisher) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Ping reports whether the publisher currently holds an open channel.
func (p *Publisher) Ping(_ context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.channel == nil || p.channel.IsClosed() {
		return fmt.Errorf("rabbitmq: channel not available")
	}
	return nil
}

// Publish sends one job and waits for the broker to confirm it.
func (p *Publisher) Publish(ctx context.Context, job *domain.GradeJob) error {
	body, err := encodeJob(job)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal job: %w", err)
	}

	p.mu.RLock()
	ch := p.channel
	p.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return fmt.Errorf("rabbitmq: channel not available (reconnecting)")
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	confirm, err := ch.PublishWithDeferredConfirmWithContext(publishCtx,
		exchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqplib.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqplib.Persistent,
			MessageId:    job.SubmissionID.String(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}

	acked, err := confirm.WaitContext(publishCtx)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish confirmation (submission_id=%s): %w", job.SubmissionID, err)
	}
	if !acked {
		return fmt.Errorf("rabbitmq: broker nacked message (submission_id=%s)", job.SubmissionID)
	}

	p.logger.Debug("Published grade job",
		zap.String("submission_id", job.SubmissionID.String()),
		zap.Int("body_size", len(body)),
	)
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

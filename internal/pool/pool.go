// Package pool runs queued grade jobs on a fixed number of goroutines.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/metrics"
)

// JobProcessor grades one queued job. skipped reports a job that needed no
// work, such as a duplicate delivery.
type JobProcessor interface {
	ProcessJob(ctx context.Context, job *domain.GradeJob) (skipped bool, err error)
}

// WorkerPool manages a fixed-size pool of goroutines that process jobs.
type WorkerPool struct {
	size      int
	jobs      <-chan *domain.JobMessage
	processor JobProcessor
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewWorkerPool creates a new fixed-size worker pool.
func NewWorkerPool(size int, jobs <-chan *domain.JobMessage, processor JobProcessor, logger *zap.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size:      size,
		jobs:      jobs,
		processor: processor,
		logger:    logger,
	}
}

// Start launches all worker goroutines. Call Stop to wait for them to finish.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info("Starting worker pool", zap.Int("pool_size", p.size))

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop waits for all workers to finish their current jobs and exit.
func (p *WorkerPool) Stop() {
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("Worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Worker shutting down", zap.Int("worker_id", id))
			return
		case msg, ok := <-p.jobs:
			if !ok {
				p.logger.Debug("Job channel closed", zap.Int("worker_id", id))
				return
			}
			p.handle(ctx, id, msg)
		}
	}
}

// handle processes one message and settles it with exactly one Ack or Nack.
// A panic in the processor is treated as a failure so the worker survives.
func (p *WorkerPool) handle(ctx context.Context, id int, msg *domain.JobMessage) {
	job := msg.Job
	log := p.logger.With(
		zap.Int("worker_id", id),
		zap.String("submission_id", job.SubmissionID.String()),
	)

	log.Info("Worker processing job", zap.String("language", string(job.Language)))

	metrics.WorkersActive.Inc()
	skipped, err := p.process(ctx, job)
	metrics.WorkersActive.Dec()

	switch {
	case errors.Is(err, domain.ErrGradingCanceled):
		// The partial verdict is already stored; a redelivery would only be skipped.
		log.Warn("Job canceled during shutdown", zap.Error(err))
		metrics.QueueJobs.WithLabelValues("graded").Inc()
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error("Failed to ACK canceled message", zap.Error(ackErr))
		}
	case err != nil:
		log.Error("Job processing failed", zap.Error(err))
		metrics.QueueJobs.WithLabelValues("failed").Inc()

		// Deterministic failures would loop forever if requeued; they go to the DLQ.
		if nackErr := msg.Nack(false); nackErr != nil {
			log.Error("Failed to NACK message", zap.Error(nackErr))
		}
	case skipped:
		log.Debug("Job skipped")
		metrics.QueueJobs.WithLabelValues("skipped").Inc()
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error("Failed to ACK skipped message", zap.Error(ackErr))
		}
	default:
		metrics.QueueJobs.WithLabelValues("graded").Inc()
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error("Failed to ACK message after grading", zap.Error(ackErr))
		}
	}
}

func (p *WorkerPool) process(ctx context.Context, job *domain.GradeJob) (skipped bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.processor.ProcessJob(ctx, job)
}

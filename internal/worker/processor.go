// Package worker implements the task state machine that turns delivered
// task ids into terminal task states.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/asyncworks/task-manager/internal/config"
	"github.com/asyncworks/task-manager/internal/domain"
	"github.com/asyncworks/task-manager/internal/store"
)

// statusWriteTimeout bounds the status writes that must land even though the
// invocation's own context is already cancelled or poisoned.
const statusWriteTimeout = 5 * time.Second

// Processor drives a task through new/error -> processing -> terminal.
// It owns the simulated work and the success/failure draw; all persistence
// goes through the task store.
type Processor struct {
	store  store.TaskStore
	cfg    config.WorkerConfig
	logger *slog.Logger

	randFloat func() float64
}

// NewProcessor creates a Processor with the given store and settings.
func NewProcessor(taskStore store.TaskStore, cfg config.WorkerConfig, log *slog.Logger) *Processor {
	return &Processor{
		store:     taskStore,
		cfg:       cfg,
		logger:    log.With("component", "processor"),
		randFloat: rand.Float64,
	}
}

// Process runs the state machine for one task. Transient failures are
// retried up to the configured budget; after that the failure is recorded on
// the task itself and swallowed. The only errors Process returns are
// cancellation (always propagated, never absorbed) and a failure to persist
// the task's own error state, which the caller dead-letters on.
func (p *Processor) Process(ctx context.Context, taskID int64) error {
	log := p.logger.With("task_id", taskID)

	var loaded *domain.Task
	attempt := 0

	b := retry.WithMaxRetries(uint64(p.cfg.MaxRetries-1), retry.NewExponential(p.cfg.RetryDelay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := p.processOnce(ctx, taskID, log, &loaded)
		if err == nil {
			return nil
		}
		if isCancellation(err) {
			return err
		}
		if attempt < p.cfg.MaxRetries {
			log.Warn("retrying task processing", "attempt", attempt, "error", err)
		}
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}
	if isCancellation(err) {
		return err
	}

	return p.recordFailure(taskID, loaded, err, log)
}

// processOnce is a single pass through the state machine.
func (p *Processor) processOnce(
	ctx context.Context,
	taskID int64,
	log *slog.Logger,
	loaded **domain.Task,
) error {
	task, err := p.store.GetByID(ctx, taskID)
	if err != nil {
		if store.IsNotFoundError(err) {
			// Nothing to process and nothing to retry.
			log.Error("task not found, skipping")
			return nil
		}
		return err
	}
	*loaded = task

	if !task.Status.Processable() {
		log.Warn("task in non-processable status", "status", task.Status)
		return nil
	}

	if err := p.store.MarkProcessing(ctx, taskID); err != nil {
		if errors.Is(err, store.ErrTaskNotProcessable) {
			// Lost the guard to a concurrent delivery.
			log.Warn("task in non-processable status", "status", domain.StatusProcessing)
			return nil
		}
		return err
	}
	log.Info("processing started", "status", domain.StatusProcessing)

	duration := p.processingDuration()
	log.Info("task processing simulation", "processing_time", fmt.Sprintf("%.2fs", duration.Seconds()))

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		p.recordCancellation(taskID, log)
		return ctx.Err()
	case <-timer.C:
	}

	if p.shouldFail() {
		errMsg := fmt.Sprintf("Processing failed after %.2fs", duration.Seconds())
		log.Warn("task processing failed", "error", errMsg, "processing_time", duration.Seconds())
		if _, err := p.store.UpdateStatus(ctx, taskID, domain.StatusError, "", errMsg); err != nil {
			return err
		}
		return nil
	}

	result := fmt.Sprintf("Processed in %.2fs", duration.Seconds())
	log.Info("task completed successfully", "result", result, "processing_time", duration.Seconds())
	if _, err := p.store.UpdateStatus(ctx, taskID, domain.StatusCompleted, result, ""); err != nil {
		return err
	}
	return nil
}

// processingDuration draws the simulated work time uniformly from the
// configured range.
func (p *Processor) processingDuration() time.Duration {
	spread := p.cfg.MaxProcessTime - p.cfg.MinProcessTime
	return p.cfg.MinProcessTime + time.Duration(p.randFloat()*float64(spread))
}

// shouldFail draws the task outcome against the configured failure probability.
func (p *Processor) shouldFail() bool {
	return p.randFloat() < p.cfg.ErrorProbability
}

// recordCancellation forces the task to the error status before the
// cancellation propagates. A task must never stay stuck in processing.
func (p *Processor) recordCancellation(taskID int64, log *slog.Logger) {
	log.Warn("processing cancelled")

	ctx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
	defer cancel()
	if _, err := p.store.UpdateStatus(ctx, taskID, domain.StatusError, "", "Processing cancelled"); err != nil {
		log.Error("failed to record cancellation", "error", err)
	}
}

// recordFailure handles an unexpected error that survived the retry budget:
// log it and, when the task was ever loaded, persist it as the task's error
// state. Without a task there is nothing to update and the error ends here.
func (p *Processor) recordFailure(
	taskID int64,
	task *domain.Task,
	procErr error,
	log *slog.Logger,
) error {
	errMsg := fmt.Sprintf("Critical error: %v", procErr)
	log.Error("task processing failure", "error", errMsg)

	if task == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
	defer cancel()
	if _, err := p.store.UpdateStatus(ctx, taskID, domain.StatusError, "", errMsg); err != nil {
		log.Error("failed to record processing failure", "error", err)
		return procErr
	}
	return nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

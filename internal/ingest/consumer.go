package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"corpora/internal/middleware"
)

// FailedJobArchiver keeps the payload of a job that exhausted its attempt
// budget, so an operator can inspect and explicitly re-trigger it later.
type FailedJobArchiver interface {
	Archive(ctx context.Context, documentID string, payload []byte, attempts int, cause string) error
}

// TaskObserver receives the outcome of every handled attempt
// (indexed, failed, requeued or dropped) and how long it took.
type TaskObserver interface {
	TaskCompleted(outcome string, d time.Duration)
}

type ConsumerConfig struct {
	MaxAttempts   int
	RetryBase     time.Duration
	SoftTimeLimit time.Duration
	HardTimeLimit time.Duration
	Metrics       TaskObserver
}

// Consumer adapts the orchestrator to NSQ's at-least-once delivery. It owns
// the retry policy: retryable faults are requeued with exponential backoff
// until the attempt ceiling, then the document is marked failed and the job
// archived. Fatal faults skip straight to the ceiling behavior once their
// attempts run out; they are still retried below it because the queue cannot
// distinguish a truly fatal extraction from a transiently corrupt fetch.
type Consumer struct {
	orchestrator *Orchestrator
	status       StatusUpdater
	archive      FailedJobArchiver
	cfg          ConsumerConfig
}

func NewConsumer(o *Orchestrator, status StatusUpdater, archive FailedJobArchiver, cfg ConsumerConfig) *Consumer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 60 * time.Second
	}
	return &Consumer{orchestrator: o, status: status, archive: archive, cfg: cfg}
}

func (c *Consumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}
	m.DisableAutoResponse()

	var task Task
	if err := json.Unmarshal(m.Body, &task); err != nil {
		// Poison pill: invalid JSON will never parse on a retry.
		slog.Error("poison pill: invalid task payload", "error", err)
		m.Finish()
		return nil
	}
	if task.DocumentID == "" || task.CollectionID == "" || task.ObjectKey == "" {
		slog.Error("dropping task with missing fields", "document_id", task.DocumentID, "collection_id", task.CollectionID)
		m.Finish()
		return nil
	}

	ctx := context.Background()
	if task.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, task.CorrelationID)
	}

	attempt := int(m.Attempts)
	slog.InfoContext(ctx, "ingestion attempt", "document_id", task.DocumentID, "attempt", attempt, "max_attempts", c.cfg.MaxAttempts)

	if err := c.status.UpdateStatus(ctx, task.DocumentID, StatusProcessing); err != nil {
		slog.WarnContext(ctx, "failed to mark document processing", "error", err, "document_id", task.DocumentID)
	}

	started := time.Now()
	err := c.runAttempt(ctx, task)
	if err == nil {
		c.observe("indexed", started)
		m.Finish()
		return nil
	}

	fault := Classify(err)
	slog.ErrorContext(ctx, "ingestion attempt failed", "error", err, "document_id", task.DocumentID, "attempt", attempt, "retryable", fault == FaultRetryable)

	if attempt >= c.cfg.MaxAttempts {
		c.fail(ctx, task, m.Body, attempt, err)
		c.observe("failed", started)
		m.Finish()
		return nil
	}

	delay := Backoff(c.cfg.RetryBase, attempt)
	slog.InfoContext(ctx, "requeueing ingestion task", "document_id", task.DocumentID, "attempt", attempt, "delay", delay)
	c.observe("requeued", started)
	m.Requeue(delay)
	return nil
}

func (c *Consumer) observe(outcome string, started time.Time) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.TaskCompleted(outcome, time.Since(started))
	}
}

// runAttempt enforces the task time limits. The soft limit only logs; the
// hard limit cancels the pipeline context, and the resulting failure counts
// toward the attempt ceiling like any other error.
func (c *Consumer) runAttempt(ctx context.Context, task Task) error {
	if c.cfg.HardTimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.HardTimeLimit)
		defer cancel()
	}

	if c.cfg.SoftTimeLimit > 0 {
		soft := time.AfterFunc(c.cfg.SoftTimeLimit, func() {
			slog.WarnContext(ctx, "ingestion exceeded soft time limit", "document_id", task.DocumentID, "soft_limit", c.cfg.SoftTimeLimit)
		})
		defer soft.Stop()
	}

	return c.orchestrator.Run(ctx, task)
}

func (c *Consumer) fail(ctx context.Context, task Task, payload []byte, attempts int, cause error) {
	slog.ErrorContext(ctx, "ingestion exhausted retries, marking failed", "document_id", task.DocumentID, "attempts", attempts, "error", cause)

	if err := c.status.UpdateStatus(ctx, task.DocumentID, StatusFailed); err != nil {
		slog.ErrorContext(ctx, "failed to mark document failed", "error", err, "document_id", task.DocumentID)
	}
	if c.archive == nil {
		return
	}
	if err := c.archive.Archive(ctx, task.DocumentID, payload, attempts, cause.Error()); err != nil {
		slog.ErrorContext(ctx, "failed to archive exhausted job", "error", err, "document_id", task.DocumentID)
	}
}

package certificate

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"lms/internal/config"
	"lms/internal/model"
	"lms/internal/pgmq"
	"lms/internal/service"

	"github.com/rs/zerolog"
)

// Queue is the subset of the pgmq client the worker uses.
type Queue interface {
	ReadWithPoll(ctx context.Context, queue string, visibilitySec, timeoutSec, maxMessages int) ([]*pgmq.Message, error)
	Send(ctx context.Context, queue string, payload []byte) error
	Delete(ctx context.Context, queue string, msgIDs []int64) error
}

// Issuer issues a certificate once a student has met every requirement.
type Issuer interface {
	Issue(ctx context.Context, userID, courseID string) (*model.Certificate, bool, error)
}

// Worker drains the certificate queue.
type Worker struct {
	queue  Queue
	issuer Issuer
	cfg    *config.Config
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) bool
}

func NewWorker(queue Queue, issuer Issuer, cfg *config.Config, logger zerolog.Logger) *Worker {
	return &Worker{
		queue:  queue,
		issuer: issuer,
		cfg:    cfg,
		logger: logger.With().Str("orchestrator", "certificate").Logger(),
		sleep:  sleepCtx,
	}
}

// Run starts the certificate orchestrator.
func Run(ctx context.Context, logger zerolog.Logger, queue Queue, issuer Issuer, cfg *config.Config) error {
	return NewWorker(queue, issuer, cfg, logger).Run(ctx)
}

func (w *Worker) Run(ctx context.Context) error {
	queue := w.cfg.CertificateQueueName
	w.logger.Info().Str("queue", queue).Msg("Starting certificate orchestrator")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Shutting down certificate orchestrator")
			return nil
		default:
		}

		msgs, err := w.queue.ReadWithPoll(ctx, queue, w.cfg.CertificateVisibilitySec, w.cfg.CertificatePollTimeoutSec, w.cfg.CertificatePollMaxMsg)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error().Err(err).Msg("Error reading certificate queue")
			w.sleep(ctx, time.Second)
			continue
		}
		for _, msg := range msgs {
			w.Process(ctx, msg)
		}
	}
}

// Process handles one queue message. The message is always acknowledged
// unless the context is cancelled mid-way; jobs that keep failing go to the
// dead-letter queue.
func (w *Worker) Process(ctx context.Context, msg *pgmq.Message) {
	log := w.logger.With().Int64("msg_id", msg.ID).Int("read_count", msg.ReadCount).Logger()

	var job service.CertificateJob
	if err := json.Unmarshal(msg.Data, &job); err != nil || job.UserID == "" || job.CourseID == "" {
		log.Error().Err(err).Str("payload", string(msg.Data)).Msg("Malformed certificate job; deleting message")
		w.ack(ctx, log, msg.ID)
		return
	}
	log = log.With().Str("user_id", job.UserID).Str("course_id", job.CourseID).Logger()

	// A job redelivered past the retry budget crashed a previous worker.
	if msg.ReadCount > w.cfg.CertificateMaxRetries {
		w.deadLetter(ctx, log, msg, errors.New("read count exceeded"))
		return
	}

	backoff := time.Duration(w.cfg.CertificateBackoffInitialSec) * time.Second
	maxBackoff := time.Duration(w.cfg.CertificateBackoffMaxSec) * time.Second
	var lastErr error
	for attempt := 1; attempt <= w.cfg.CertificateMaxRetries; attempt++ {
		start := time.Now()
		cert, created, err := w.issuer.Issue(ctx, job.UserID, job.CourseID)
		if err == nil {
			if created {
				log.Info().Str("serial", cert.Serial).Str("duration", time.Since(start).String()).Msg("Certificate issued")
			} else {
				log.Debug().Msg("Certificate already issued")
			}
			w.ack(ctx, log, msg.ID)
			return
		}
		if permanent(err) {
			log.Info().Err(err).Msg("Certificate job no longer applies; deleting message")
			w.ack(ctx, log, msg.ID)
			return
		}
		lastErr = err
		log.Error().Err(err).Int("attempt", attempt).Msg("Certificate issuance failed, retrying")
		if !w.sleep(ctx, backoff) {
			return
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	w.deadLetter(ctx, log, msg, lastErr)
}

// permanent reports errors that retrying cannot fix.
func permanent(err error) bool {
	return errors.Is(err, service.ErrNotEligible) ||
		errors.Is(err, service.ErrNotEnrolled) ||
		errors.Is(err, service.ErrCourseNotFound)
}

func (w *Worker) deadLetter(ctx context.Context, log zerolog.Logger, msg *pgmq.Message, cause error) {
	dlq := w.cfg.CertificateDeadLetterQueueName
	if err := w.queue.Send(ctx, dlq, msg.Data); err != nil {
		log.Error().Err(err).Str("dlq", dlq).Msg("Failed to send message to dead-letter queue")
		return
	}
	log.Warn().
		Int("attempts", w.cfg.CertificateMaxRetries).
		Err(cause).
		Msg("Exhausted all certificate retries; moving job to DLQ")
	w.ack(ctx, log, msg.ID)
}

func (w *Worker) ack(ctx context.Context, log zerolog.Logger, id int64) {
	if err := w.queue.Delete(ctx, w.cfg.CertificateQueueName, []int64{id}); err != nil {
		log.Error().Err(err).Msg("Error deleting certificate message")
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

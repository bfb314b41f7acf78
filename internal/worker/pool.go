// Package worker runs the terminal's local receipt pipeline: Redis-list job
// queues consumed by a small BRPOP pool. Receipt rendering and email delivery
// happen off the interaction path — a submitted sale never waits on them.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueReceipt = "jobs:receipt"
	QueueEmail   = "jobs:email"
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Dispatcher enqueues jobs into Redis lists. Enqueue failures are the
// caller's to swallow — receipts are best-effort.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueReceipt pushes a receipt-rendering job.
func (d *Dispatcher) EnqueueReceipt(ctx context.Context, payload interface{}) error {
	return d.enqueue(ctx, QueueReceipt, "receipt", payload)
}

// EnqueueEmail pushes a receipt-email job.
func (d *Dispatcher) EnqueueEmail(ctx context.Context, payload interface{}) error {
	return d.enqueue(ctx, QueueEmail, "email", payload)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(Job{Type: jobType, Payload: data})
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

// Handlers hold the per-queue processors wired in the composition root.
type Handlers struct {
	Receipt *ReceiptWorker
	Email   *EmailWorker
}

// StartPool launches numWorkers goroutines consuming both queues.
// Each blocks on BRPOP — zero CPU when idle.
func StartPool(ctx context.Context, rdb *redis.Client, h *Handlers, numWorkers int) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	for i := 0; i < numWorkers; i++ {
		go runWorker(ctx, rdb, h, i)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func runWorker(ctx context.Context, rdb *redis.Client, h *Handlers, id int) {
	queues := []string{QueueReceipt, QueueEmail}
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop — waits up to 5s then loops to check ctx
			result, err := rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				continue // timeout or context cancelled
			}
			if len(result) < 2 {
				continue
			}
			processJob(ctx, rdb, h, result[0], result[1])
		}
	}
}

const maxAttempts = 3

func processJob(ctx context.Context, rdb *redis.Client, h *Handlers, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		return
	}

	var process func(context.Context, json.RawMessage) error
	switch queue {
	case QueueReceipt:
		if h.Receipt != nil {
			process = h.Receipt.Process
		}
	case QueueEmail:
		if h.Email != nil {
			process = h.Email.Process
		}
	}
	if process == nil {
		log.Warn().Str("queue", queue).Msg("no handler for queue — dropping job")
		return
	}

	err := withRetry(ctx, maxAttempts, func(attempt int) error {
		if err := process(ctx, job.Payload); err != nil {
			log.Warn().Err(err).Int("attempt", attempt+1).Str("queue", queue).Msg("job attempt failed")
			return err
		}
		return nil
	})
	if err != nil {
		SendToDLQ(ctx, rdb, queue, job.Type, job.Payload, err.Error(), maxAttempts)
	}
}

// withRetry calls fn up to maxAttempts times with exponential backoff
// (immediate, 1s, 2s). Returns nil on the first success.
func withRetry(ctx context.Context, maxAttempts int, fn func(attempt int) error) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			wait := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := fn(i); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

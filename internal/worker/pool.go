package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/dto"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueStockAlert = "jobs:stock_alert"

	JobStockAlert = "stock_alert"

	// maxAttempts before a job is moved to the dead letter queue.
	maxAttempts = 5
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// JobHandler processes one decoded payload. A returned error schedules a
// retry until maxAttempts is reached.
type JobHandler interface {
	Process(ctx context.Context, payload json.RawMessage) error
}

// WorkerHandlers maps job types to their processors.
type WorkerHandlers struct {
	StockAlert JobHandler
}

func (h *WorkerHandlers) forType(jobType string) JobHandler {
	switch jobType {
	case JobStockAlert:
		return h.StockAlert
	}
	return nil
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueStockAlert pushes a low-stock notification job to Redis.
func (d *Dispatcher) EnqueueStockAlert(ctx context.Context, job dto.StockAlertJob) error {
	return d.enqueue(ctx, QueueStockAlert, JobStockAlert, job)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	encoded, err := encodeJob(jobType, payload)
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

func encodeJob(jobType string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", jobType, err)
	}
	return json.Marshal(Job{Type: jobType, Payload: data})
}

// StartWorkerPool launches numWorkers goroutines consuming the job queues.
// Each goroutine blocks on BRPOP, so idle workers cost nothing.
func StartWorkerPool(ctx context.Context, rdb *redis.Client, handlers *WorkerHandlers, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		go runWorker(ctx, rdb, handlers, i)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func runWorker(ctx context.Context, rdb *redis.Client, handlers *WorkerHandlers, id int) {
	queues := []string{QueueStockAlert}
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop: waits up to 5s then loops to check ctx
			result, err := rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				continue // timeout or context cancelled
			}
			if len(result) < 2 {
				continue
			}
			queue, raw := result[0], result[1]

			var job Job
			if err := json.Unmarshal([]byte(raw), &job); err != nil {
				log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
				SendToDLQ(ctx, rdb, queue, "unknown", json.RawMessage(raw), err.Error(), 0)
				continue
			}
			switch out, err := processJob(ctx, handlers, &job); out {
			case outcomeRetry:
				requeue(ctx, rdb, queue, &job)
			case outcomeDead:
				SendToDLQ(ctx, rdb, queue, job.Type, job.Payload, err.Error(), job.Attempts)
			}
		}
	}
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetry
	outcomeDead
)

var errNoHandler = errors.New("no handler registered for job type")

// processJob runs the handler for job and increments its attempt count.
// It decides whether a failed job is retried or dead-lettered.
func processJob(ctx context.Context, handlers *WorkerHandlers, job *Job) (outcome, error) {
	h := handlers.forType(job.Type)
	if h == nil {
		return outcomeDead, fmt.Errorf("%w: %q", errNoHandler, job.Type)
	}

	job.Attempts++
	err := h.Process(ctx, job.Payload)
	if err == nil {
		return outcomeDone, nil
	}
	log.Warn().
		Err(err).
		Str("type", job.Type).
		Int("attempt", job.Attempts).
		Msg("job failed")
	if job.Attempts >= maxAttempts {
		return outcomeDead, err
	}
	return outcomeRetry, err
}

func requeue(ctx context.Context, rdb *redis.Client, queue string, job *Job) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("failed to re-encode job")
		return
	}
	if err := rdb.LPush(ctx, queue, data).Err(); err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("failed to requeue job")
	}
}

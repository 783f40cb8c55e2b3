package queue

import (
	"context"
	"sync"
	"time"

	"github.com/cyberinferno/camingest/logger"
	"github.com/google/uuid"
)

// warnRatio is the fill level of the memory tier above which the size
// reporter logs a warning.
const warnRatio = 0.8

// DurableQueue is a two-tier FIFO. Push lands in a bounded channel and
// overflows to the Store; Pop drains memory first, then the oldest stored
// row. Ordering is FIFO within each tier only: an overflowed job may be
// served after jobs pushed later that fit in memory.
type DurableQueue struct {
	mem      chan Job
	store    *Store
	logger   logger.Logger
	capacity int
	now      func() time.Time

	// spill holds jobs the store refused. It is only used when the disk tier
	// is failing.
	spillMu sync.Mutex
	spill   []Job
}

// New creates a queue whose memory tier holds capacity jobs.
//
// Parameters:
//   - capacity: Memory tier size; must be positive
//   - store: Overflow tier
//   - log: Logger for overflow and store errors
//
// Returns:
//   - The queue
func New(capacity int, store *Store, log logger.Logger) *DurableQueue {
	if capacity <= 0 {
		capacity = 1
	}

	return &DurableQueue{
		mem:      make(chan Job, capacity),
		store:    store,
		logger:   log,
		capacity: capacity,
		now:      time.Now,
	}
}

// Capacity returns the memory tier size.
func (q *DurableQueue) Capacity() int {
	return q.capacity
}

// Push enqueues job without blocking. It never reports failure: a full
// memory tier routes the job to the store, and a failing store keeps it in
// memory beyond capacity.
func (q *DurableQueue) Push(ctx context.Context, job Job) {
	if job.TraceID == "" {
		job.TraceID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = q.now()
	}

	select {
	case q.mem <- job:
		return
	default:
	}

	if err := q.store.Put(ctx, job); err != nil {
		q.logger.Error("queue store write failed, keeping job in memory",
			logger.Field{Key: "path", Value: job.Path},
			logger.Field{Key: "trace_id", Value: job.TraceID},
			logger.Field{Key: "error", Value: err})

		q.spillMu.Lock()
		q.spill = append(q.spill, job)
		q.spillMu.Unlock()
		return
	}

	q.logger.Debug("memory queue full, job persisted to disk",
		logger.Field{Key: "path", Value: job.Path},
		logger.Field{Key: "trace_id", Value: job.TraceID})
}

// Pop returns the next job, or false when both tiers are empty. Store errors
// are logged and reported as empty.
func (q *DurableQueue) Pop(ctx context.Context) (Job, bool) {
	select {
	case job := <-q.mem:
		return job, true
	default:
	}

	q.spillMu.Lock()
	if len(q.spill) > 0 {
		job := q.spill[0]
		q.spill = q.spill[1:]
		q.spillMu.Unlock()
		return job, true
	}
	q.spillMu.Unlock()

	job, ok, err := q.store.PopOldest(ctx)
	if err != nil {
		q.logger.Error("queue store read failed", logger.Field{Key: "error", Value: err})
		return Job{}, false
	}

	return job, ok
}

// Size returns the outstanding job count across both tiers. It is meant for
// observability only.
func (q *DurableQueue) Size(ctx context.Context) int {
	q.spillMu.Lock()
	n := len(q.mem) + len(q.spill)
	q.spillMu.Unlock()

	stored, err := q.store.Count(ctx)
	if err != nil {
		q.logger.Warn("queue store count failed", logger.Field{Key: "error", Value: err})
		return n
	}

	return n + stored
}

// RunSizeReporter logs the queue size every interval until ctx is done and
// warns when it exceeds 80% of the memory capacity.
func (q *DurableQueue) RunSizeReporter(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.reportSize(ctx)
		}
	}
}

func (q *DurableQueue) reportSize(ctx context.Context) {
	size := q.Size(ctx)
	fields := []logger.Field{
		{Key: "size", Value: size},
		{Key: "capacity", Value: q.capacity},
	}

	if float64(size) > float64(q.capacity)*warnRatio {
		q.logger.Warn("queue is filling up", fields...)
		return
	}

	q.logger.Info("queue size", fields...)
}

// Package worker drains the work queue with a fixed-size pool of goroutines
// and a supervisor that replaces workers that died.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/camingest/logger"
	"github.com/cyberinferno/camingest/queue"
)

// Source is the queue side consumed by workers.
type Source interface {
	Pop(ctx context.Context) (queue.Job, bool)
}

// ProcessFunc handles one job. A returned error is logged and the worker
// moves on to the next job.
type ProcessFunc func(ctx context.Context, job queue.Job) error

// Options sizes the pool.
type Options struct {
	// Size is the number of concurrent workers.
	Size int
	// SupervisorInterval is how often dead workers are replaced.
	SupervisorInterval time.Duration
	// IdleWait is how long a worker sleeps when the queue is empty.
	IdleWait time.Duration
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Size      int    `json:"size"`
	Alive     int    `json:"alive"`
	Restarts  uint64 `json:"restarts"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}

type slot struct {
	id    int
	alive atomic.Bool
}

// Pool runs Options.Size workers against a Source.
type Pool struct {
	src     Source
	process ProcessFunc
	logger  logger.Logger
	opts    Options

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	slots   []*slot
	started bool
	wg      sync.WaitGroup

	restarts  atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
}

// NewPool creates a stopped pool.
//
// Parameters:
//   - src: Queue to drain
//   - process: Processing entry point invoked once per job
//   - opts: Pool size and timings
//   - log: Logger; each worker derives a scoped logger from it
//
// Returns:
//   - The pool; call Start to run it
func NewPool(src Source, process ProcessFunc, opts Options, log logger.Logger) *Pool {
	if opts.Size <= 0 {
		opts.Size = 1
	}
	if opts.SupervisorInterval <= 0 {
		opts.SupervisorInterval = 10 * time.Second
	}
	if opts.IdleWait <= 0 {
		opts.IdleWait = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		src:     src,
		process: process,
		logger:  log,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers and the supervisor. Calling Start twice is a
// no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.opts.Size; i++ {
		s := &slot{id: i + 1}
		p.slots = append(p.slots, s)
		p.spawn(s)
	}

	p.wg.Add(1)
	go p.supervise()

	p.logger.Info("worker pool started", logger.Field{Key: "workers", Value: p.opts.Size})
}

// Stop signals every worker to exit after its current job and waits up to
// grace for them. Jobs still queued are left in place.
//
// Returns:
//   - true if every worker exited within grace
func (p *Pool) Stop(grace time.Duration) bool {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
		return true
	case <-time.After(grace):
		p.logger.Warn("worker pool did not stop within grace period", logger.Field{Key: "grace", Value: grace.String()})
		return false
	}
}

// Stats returns the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	alive := 0
	for _, s := range p.slots {
		if s.alive.Load() {
			alive++
		}
	}
	p.mu.Unlock()

	return Stats{
		Size:      p.opts.Size,
		Alive:     alive,
		Restarts:  p.restarts.Load(),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}

// spawn starts a worker goroutine for s. Caller holds p.mu.
func (p *Pool) spawn(s *slot) {
	s.alive.Store(true)
	p.wg.Add(1)
	go p.run(s)
}

func (p *Pool) supervise() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.SupervisorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.replaceDead()
		}
	}
}

func (p *Pool) replaceDead() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		return
	}

	for _, s := range p.slots {
		if s.alive.Load() {
			continue
		}

		p.restarts.Add(1)
		p.logger.Warn("restarting dead worker", logger.Field{Key: "worker_id", Value: s.id})
		p.spawn(s)
	}
}

func (p *Pool) run(s *slot) {
	log := p.logger.With(logger.Field{Key: "worker_id", Value: s.id})
	defer p.wg.Done()
	defer func() {
		s.alive.Store(false)
		if r := recover(); r != nil {
			log.Error("worker died", logger.Field{Key: "panic", Value: fmt.Sprint(r)})
		}
	}()

	// Jobs run to completion even after Stop.
	jobCtx := context.WithoutCancel(p.ctx)

	for p.ctx.Err() == nil {
		job, ok := p.src.Pop(p.ctx)
		if !ok {
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(p.opts.IdleWait):
			}
			continue
		}

		p.handle(jobCtx, log, job)
	}
}

func (p *Pool) handle(ctx context.Context, log logger.Logger, job queue.Job) {
	start := time.Now()
	err := p.process(ctx, job)
	fields := []logger.Field{
		{Key: "path", Value: job.Path},
		{Key: "tenant", Value: job.Tenant.ID},
		{Key: "trace_id", Value: job.TraceID},
		{Key: "duration", Value: time.Since(start).String()},
	}

	if err != nil {
		p.failed.Add(1)
		log.Error("job failed", append(fields, logger.Field{Key: "error", Value: err})...)
		return
	}

	p.processed.Add(1)
	log.Debug("job processed", fields...)
}

// Package worker runs fire-and-forget side effects (stats counters, TTL
// refreshes, notifications) off the request path. Tasks go into a bounded
// queue drained by a fixed set of goroutines; when the queue is full the task
// is dropped and counted rather than blocking the caller. Failures are logged
// and never retried.
//
// Design notes:
//   - Submit never blocks the request path. A full queue or a pool that is
//     shutting down drops the task and reports false.
//   - Each task runs under its own timeout, derived from the context passed
//     to Start rather than from the request that queued it.
//   - A panicking task is recovered, logged and counted; the worker keeps
//     draining.
//   - Workers: 0 runs tasks inline inside Submit.
//   - Shutdown closes the queue and waits for queued tasks until its context
//     expires.
//
// Metrics: background_tasks_total{task,result} and background_queue_depth
// are registered with the default Prometheus registry.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Task results reported on background_tasks_total.
const (
	resultOK      = "ok"
	resultError   = "error"
	resultDropped = "dropped"
	resultPanic   = "panic"
)

var (
	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_tasks_total",
			Help: "Background side-effect tasks by name and result.",
		},
		[]string{"task", "result"},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "background_queue_depth",
			Help: "Tasks waiting in the background queue.",
		},
	)
)

func init() {
	prometheus.MustRegister(tasksTotal, queueDepth)
}

// ErrClosed is returned by Shutdown when called twice.
var ErrClosed = errors.New("worker pool closed")

// Func is the unit of work. The context carries the per-task timeout.
type Func func(ctx context.Context) error

type task struct {
	name string
	fn   Func
}

// Options tunes a Pool.
type Options struct {
	// Workers is the number of draining goroutines. Zero runs every task
	// synchronously inside Submit.
	Workers int
	// Queue is the buffer size; defaults to Workers*8.
	Queue int
	// TaskTimeout bounds each task; defaults to 5s.
	TaskTimeout time.Duration
	// MonitorInterval controls the periodic status log; 0 disables it.
	MonitorInterval time.Duration
	Logger          zerolog.Logger
}

// Pool is a bounded background task queue.
type Pool struct {
	opts  Options
	queue chan task
	log   zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	stop   chan struct{}

	submitted atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// New builds a Pool. Call Start before submitting to an asynchronous pool.
func New(opts Options) *Pool {
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 5 * time.Second
	}
	p := &Pool{opts: opts, log: opts.Logger.With().Str("component", "worker").Logger(), stop: make(chan struct{})}
	if opts.Workers > 0 {
		if opts.Queue <= 0 {
			opts.Queue = opts.Workers * 8
		}
		p.opts.Queue = opts.Queue
		p.queue = make(chan task, opts.Queue)
	}
	return p
}

// Start launches the workers and the optional monitor. ctx is the parent of
// every task context; cancelling it aborts in-flight tasks.
func (p *Pool) Start(ctx context.Context) {
	if p.queue == nil {
		return
	}
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	if p.opts.MonitorInterval > 0 {
		go p.monitor(ctx)
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for t := range p.queue {
		queueDepth.Dec()
		p.run(ctx, t)
	}
}

func (p *Pool) run(ctx context.Context, t task) {
	tctx, cancel := context.WithTimeout(ctx, p.opts.TaskTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			tasksTotal.WithLabelValues(t.name, resultPanic).Inc()
			p.log.Error().Str("task", t.name).Interface("panic", r).Msg("background task panicked")
		}
	}()
	if err := t.fn(tctx); err != nil {
		p.failed.Add(1)
		tasksTotal.WithLabelValues(t.name, resultError).Inc()
		p.log.Warn().Err(err).Str("task", t.name).Msg("background task failed")
		return
	}
	tasksTotal.WithLabelValues(t.name, resultOK).Inc()
}

// Submit enqueues fn under name and reports whether it was accepted. It never
// blocks: a full queue or a closed pool drops the task.
func (p *Pool) Submit(name string, fn Func) bool {
	p.submitted.Add(1)
	if p.queue == nil {
		p.run(context.Background(), task{name: name, fn: fn})
		return true
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.drop(name, "pool closed")
		return false
	}
	select {
	case p.queue <- task{name: name, fn: fn}:
		queueDepth.Inc()
		return true
	default:
		p.drop(name, "queue full")
		return false
	}
}

func (p *Pool) drop(name, reason string) {
	n := p.dropped.Add(1)
	tasksTotal.WithLabelValues(name, resultDropped).Inc()
	p.log.Warn().Str("task", name).Str("reason", reason).
		Int("queue_cap", p.opts.Queue).Int64("total_dropped", n).
		Msg("background task dropped")
}

// Shutdown stops accepting tasks and waits for queued ones to finish or for
// ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	close(p.stop)
	if p.queue != nil {
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats is a point-in-time view of the pool counters.
type Stats struct {
	QueueLen  int
	QueueCap  int
	Submitted int64
	Dropped   int64
	Failed    int64
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	s := Stats{
		QueueCap:  p.opts.Queue,
		Submitted: p.submitted.Load(),
		Dropped:   p.dropped.Load(),
		Failed:    p.failed.Load(),
	}
	if p.queue != nil {
		s.QueueLen = len(p.queue)
	}
	return s
}

func (p *Pool) monitor(ctx context.Context) {
	ticker := time.NewTicker(p.opts.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			s := p.Stats()
			if s.Submitted == 0 {
				continue
			}
			p.log.Info().
				Int("queue_len", s.QueueLen).
				Int("queue_cap", s.QueueCap).
				Int64("submitted", s.Submitted).
				Int64("dropped", s.Dropped).
				Int64("failed", s.Failed).
				Msg("worker pool status")
		}
	}
}

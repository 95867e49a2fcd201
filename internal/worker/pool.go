// Package worker runs jobs on a fixed set of lanes keyed by a string, so that
// jobs sharing a key execute one at a time and in submission order.
package worker

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/haulbot/dispatcher/internal/metrics"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker: pool closed")

// Job is a unit of work. The context is the pool's run context.
type Job func(ctx context.Context)

type lane struct {
	id   int
	jobs chan Job
	busy atomic.Bool
}

// Pool owns one goroutine per lane.
type Pool struct {
	lanes []*lane

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
	senders sync.WaitGroup // Submit calls past the closed check
	wg      sync.WaitGroup
	active  atomic.Int32
}

// NewPool creates a pool of n lanes, each buffering up to queue pending jobs.
func NewPool(n, queue int) *Pool {
	if n < 1 {
		n = 1
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{lanes: make([]*lane, n), done: make(chan struct{})}
	for i := range p.lanes {
		p.lanes[i] = &lane{id: i, jobs: make(chan Job, queue)}
	}
	return p
}

// Start launches the lane goroutines. Jobs run with ctx until Close drains
// the queues.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	for _, l := range p.lanes {
		p.wg.Add(1)
		go p.run(ctx, l)
	}
	slog.Info("worker pool started", "lanes", len(p.lanes))
}

func (p *Pool) run(ctx context.Context, l *lane) {
	defer p.wg.Done()
	for job := range l.jobs {
		p.exec(ctx, l, job)
	}
}

func (p *Pool) exec(ctx context.Context, l *lane, job Job) {
	l.busy.Store(true)
	p.active.Add(1)
	metrics.LanesBusy.Inc()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker: job panicked", "lane", l.id, "panic", r)
		}
		metrics.LanesBusy.Dec()
		p.active.Add(-1)
		l.busy.Store(false)
	}()
	job(ctx)
}

// LaneFor returns the lane index for key. The mapping is stable for the life
// of the pool.
func (p *Pool) LaneFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.lanes)))
}

// Submit queues job on the lane for key. It blocks while the lane queue is
// full, until ctx is done or the pool is closed.
func (p *Pool) Submit(ctx context.Context, key string, job Job) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	p.senders.Add(1)
	p.mu.RUnlock()
	defer p.senders.Done()

	l := p.lanes[p.LaneFor(key)]
	select {
	case l.jobs <- job:
		return nil
	case <-p.done:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lanes returns the number of lanes.
func (p *Pool) Lanes() int {
	return len(p.lanes)
}

// Running reports whether the lanes are started and not yet closed.
func (p *Pool) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started && !p.closed
}

// Active returns the number of jobs currently executing.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Close stops accepting jobs, lets queued jobs finish and waits for the lane
// goroutines to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	// Lane channels close only once no Submit can still send on them.
	p.senders.Wait()
	for _, l := range p.lanes {
		close(l.jobs)
	}
	p.wg.Wait()
}

// Package jobqueue runs pipeline jobs with a fixed concurrency limit. Jobs
// start in submission order and can be cancelled while pending or running.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/forPelevin/subtle/internal/platform/logger"
	"github.com/forPelevin/subtle/internal/ports"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

var (
	ErrDuplicate = errors.New("job is already active")
	ErrClosed    = errors.New("queue is closed")
)

// Func is the work of one job. It must return when ctx is cancelled.
type Func func(ctx context.Context) error

// Snapshot is a copy of a job's state.
type Snapshot struct {
	ID         string    `json:"id"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	StartedAt  time.Time `json:"startedAt,omitzero"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
}

type job struct {
	Snapshot
	fn     Func
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type Queue struct {
	sem *semaphore.Weighted
	log *logger.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	order   []string
	pending []*job
	closed  bool

	wake    chan struct{}
	stop    context.CancelFunc
	stopCtx context.Context
	running sync.WaitGroup
	loop    sync.WaitGroup
	now     func() time.Time
}

// New starts a queue that runs at most limit jobs at once.
func New(limit int, log *logger.Logger) *Queue {
	if limit <= 0 {
		limit = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		sem:     semaphore.NewWeighted(int64(limit)),
		log:     log,
		jobs:    make(map[string]*job),
		wake:    make(chan struct{}, 1),
		stop:    cancel,
		stopCtx: ctx,
		now:     time.Now,
	}
	q.loop.Add(1)
	go q.dispatch()
	return q
}

// Submit enqueues fn under id. The job's context is derived from parent, so
// cancelling parent cancels the job. A finished job with the same id is
// replaced; an active one makes Submit fail with ErrDuplicate.
func (q *Queue) Submit(parent context.Context, id string, fn Func) (Snapshot, error) {
	if fn == nil {
		return Snapshot{}, fmt.Errorf("submit %s: nil func", id)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return Snapshot{}, ErrClosed
	}
	if prev, ok := q.jobs[id]; ok {
		if !prev.Status.Terminal() {
			return Snapshot{}, fmt.Errorf("submit %s: %w", id, ErrDuplicate)
		}
		q.forgetLocked(id)
	}
	ctx, cancel := context.WithCancel(parent)
	j := &job{
		Snapshot: Snapshot{ID: id, Status: StatusPending, CreatedAt: q.now()},
		fn:       fn,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	q.jobs[id] = j
	q.order = append(q.order, id)
	q.pending = append(q.pending, j)
	q.running.Add(1)

	// A parent cancelled while the job is still pending finishes it here.
	context.AfterFunc(ctx, func() { q.cancelPending(j) })

	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.log.Debug("job queued", "job", id, "pending", len(q.pending))
	return j.Snapshot, nil
}

func (q *Queue) dispatch() {
	defer q.loop.Done()
	for {
		j := q.next()
		if j == nil {
			select {
			case <-q.wake:
				continue
			case <-q.stopCtx.Done():
				return
			}
		}
		if err := q.sem.Acquire(q.stopCtx, 1); err != nil {
			q.finish(j, StatusCancelled, nil)
			return
		}
		go q.run(j)
	}
}

// next pops the oldest job that is still pending.
func (q *Queue) next() *job {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) > 0 {
		j := q.pending[0]
		q.pending = q.pending[1:]
		if j.Status == StatusPending {
			return j
		}
	}
	return nil
}

func (q *Queue) run(j *job) {
	defer q.sem.Release(1)

	q.mu.Lock()
	if j.Status != StatusPending || j.ctx.Err() != nil {
		q.mu.Unlock()
		q.finish(j, StatusCancelled, nil)
		return
	}
	j.Status = StatusProcessing
	j.StartedAt = q.now()
	q.mu.Unlock()

	q.log.Info("job started", "job", j.ID)
	err := j.fn(j.ctx)

	switch {
	case err == nil:
		q.finish(j, StatusCompleted, nil)
	case errors.Is(err, ports.ErrCancelled) || errors.Is(err, context.Canceled) || j.ctx.Err() != nil:
		q.finish(j, StatusCancelled, nil)
	default:
		q.finish(j, StatusError, err)
	}
}

// finish moves j to a terminal status once; later calls are ignored.
func (q *Queue) finish(j *job, status Status, err error) {
	q.mu.Lock()
	if j.Status.Terminal() {
		q.mu.Unlock()
		return
	}
	j.Status = status
	j.FinishedAt = q.now()
	if err != nil {
		j.Error = ports.Message(err)
	}
	q.mu.Unlock()

	j.cancel()
	close(j.done)
	q.running.Done()

	switch status {
	case StatusError:
		q.log.Warn("job failed", "job", j.ID, "error", err)
	default:
		q.log.Info("job finished", "job", j.ID, "status", string(status))
	}
}

func (q *Queue) cancelPending(j *job) {
	q.mu.Lock()
	pending := j.Status == StatusPending
	q.mu.Unlock()
	if pending {
		q.finish(j, StatusCancelled, nil)
	}
}

func (q *Queue) forgetLocked(id string) {
	delete(q.jobs, id)
	kept := q.order[:0]
	for _, o := range q.order {
		if o != id {
			kept = append(kept, o)
		}
	}
	q.order = kept
}

// Cancel stops a pending or running job. It reports false when the job is
// unknown or already finished.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	j, ok := q.jobs[id]
	if !ok || j.Status.Terminal() {
		q.mu.Unlock()
		return false
	}
	q.mu.Unlock()
	j.cancel()
	q.cancelPending(j)
	return true
}

func (q *Queue) Get(id string) (Snapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return Snapshot{}, false
	}
	return j.Snapshot, true
}

// Done returns a channel closed when the job reaches a terminal status, or
// nil for an unknown job.
func (q *Queue) Done(id string) <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j, ok := q.jobs[id]; ok {
		return j.done
	}
	return nil
}

// List returns every known job in submission order.
func (q *Queue) List() []Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Snapshot, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.jobs[id].Snapshot)
	}
	return out
}

// Wait blocks until every submitted job has finished or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Prune forgets finished jobs that ended before cutoff and returns how many
// were dropped.
func (q *Queue) Prune(cutoff time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.order[:0]
	removed := 0
	for _, id := range q.order {
		j := q.jobs[id]
		if j.Status.Terminal() && j.FinishedAt.Before(cutoff) {
			delete(q.jobs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
	return removed
}

// Close cancels every job, waits for them to return and stops the dispatcher.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	jobs := make([]*job, 0, len(q.jobs))
	for _, j := range q.jobs {
		jobs = append(jobs, j)
	}
	q.mu.Unlock()

	for _, j := range jobs {
		j.cancel()
	}
	q.running.Wait()
	q.stop()
	q.loop.Wait()
}

package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"xconfess-notify/pkg/xerrors"

	"github.com/oklog/ulid/v2"
)

// MemoryQueue implements Queue in process memory. It carries the same
// retry/dead-letter semantics as the Redis queue and backs unit tests and
// single-node deployments without a broker.
type MemoryQueue struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	ready     []string
	scheduled []string
	completed []string
	failed    []string
	signal    chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		jobs:   make(map[string]*Job),
		signal: make(chan struct{}, 1),
	}
}

func newJob(p Payload) *Job {
	now := time.Now()
	return &Job{
		ID:          ulid.Make().String(),
		Name:        JobName,
		Payload:     p,
		State:       StatePending,
		MaxAttempts: MaxAttempts,
		Channel:     ChannelEmail,
		NotBefore:   now,
		CreatedAt:   now,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, p Payload) (*Job, error) {
	job := newJob(p)

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.ready = append(q.ready, job.ID)
	q.mu.Unlock()

	q.wake()
	out := *job
	return &out, nil
}

func (q *MemoryQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// promoteDue moves scheduled jobs whose delay elapsed onto the ready list.
// Caller holds q.mu.
func (q *MemoryQueue) promoteDue(now time.Time) {
	var still []string
	for _, id := range q.scheduled {
		job := q.jobs[id]
		if job != nil && !job.NotBefore.After(now) {
			q.ready = append(q.ready, id)
			continue
		}
		still = append(still, id)
	}
	q.scheduled = still
}

func (q *MemoryQueue) Lease(ctx context.Context) (*Job, error) {
	for {
		q.mu.Lock()
		q.promoteDue(time.Now())
		if len(q.ready) > 0 {
			id := q.ready[0]
			q.ready = q.ready[1:]
			job := q.jobs[id]
			job.State = StateActive
			job.AttemptsMade++
			out := *job
			q.mu.Unlock()
			return &out, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.signal:
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (q *MemoryQueue) Ack(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, ok := q.jobs[job.ID]
	if !ok {
		return xerrors.ErrJobNotFound
	}
	stored.State = StateCompleted
	stored.Recipient = job.Recipient
	q.completed = append(q.completed, job.ID)
	if len(q.completed) > CompletedRetention {
		drop := q.completed[0 : len(q.completed)-CompletedRetention]
		for _, id := range drop {
			delete(q.jobs, id)
		}
		q.completed = q.completed[len(drop):]
	}
	return nil
}

func (q *MemoryQueue) RetryWithDelay(ctx context.Context, job *Job, delay time.Duration, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, ok := q.jobs[job.ID]
	if !ok {
		return xerrors.ErrJobNotFound
	}
	stored.State = StatePending
	stored.AttemptsMade = job.AttemptsMade
	stored.Recipient = job.Recipient
	stored.LastError = reason
	stored.NotBefore = time.Now().Add(delay)
	q.scheduled = append(q.scheduled, job.ID)
	return nil
}

func (q *MemoryQueue) DeadLetter(ctx context.Context, job *Job, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, ok := q.jobs[job.ID]
	if !ok {
		return xerrors.ErrJobNotFound
	}
	now := time.Now()
	stored.State = StateDeadLettered
	stored.AttemptsMade = job.AttemptsMade
	stored.Recipient = job.Recipient
	stored.LastError = reason
	stored.FailedReason = reason
	stored.FailedAt = &now
	q.failed = append(q.failed, job.ID)
	return nil
}

func (q *MemoryQueue) ListFailed(ctx context.Context, f FailedFilter, page, limit int) ([]*Job, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	q.mu.Lock()
	var all []*Job
	for _, id := range q.failed {
		if job, ok := q.jobs[id]; ok && matches(job, f) {
			out := *job
			all = append(all, &out)
		}
	}
	q.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].FailedAt.After(*all[j].FailedAt)
	})

	total := len(all)
	start := (page - 1) * limit
	if start >= total {
		return []*Job{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (q *MemoryQueue) GetFailed(ctx context.Context, id string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.State != StateDeadLettered {
		return nil, xerrors.ErrJobNotFound
	}
	out := *job
	return &out, nil
}

func (q *MemoryQueue) Replay(ctx context.Context, id string) (*Job, error) {
	q.mu.Lock()
	original, ok := q.jobs[id]
	if !ok || original.State != StateDeadLettered {
		q.mu.Unlock()
		return nil, xerrors.ErrJobNotFound
	}
	payload := original.Payload
	q.mu.Unlock()

	return q.Enqueue(ctx, payload)
}

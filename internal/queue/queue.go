package queue

import (
	"context"
	"time"
)

type State string

const (
	StatePending      State = "pending"
	StateActive       State = "active"
	StateCompleted    State = "completed"
	StateDeadLettered State = "dead_lettered"
)

const (
	// JobName identifies the only job kind this queue carries.
	JobName = "send-email"

	// MaxAttempts is the per-job attempt budget.
	MaxAttempts = 5

	// BaseDelay seeds the exponential backoff schedule.
	BaseDelay = 2 * time.Second

	// CompletedRetention bounds how many finished jobs are kept around
	// for observability.
	CompletedRetention = 500

	ChannelEmail = "email"
)

// Payload references the notification to deliver; the job never owns it.
type Payload struct {
	NotificationID string `json:"notificationId"`
	UserID         string `json:"userId"`
}

type Job struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Payload      Payload    `json:"payload"`
	State        State      `json:"state"`
	AttemptsMade int        `json:"attemptsMade"`
	MaxAttempts  int        `json:"maxAttempts"`
	Channel      string     `json:"channel"`
	Recipient    string     `json:"recipient,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
	FailedReason string     `json:"failedReason,omitempty"`
	FailedAt     *time.Time `json:"failedAt,omitempty"`
	NotBefore    time.Time  `json:"notBefore"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Backoff returns the delay scheduled before the given attempt number.
// Attempt 1 runs immediately; attempt k (k>=2) waits 2^(k-2) * BaseDelay,
// giving the 0s/2s/4s/8s/16s ladder for a budget of five.
func Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return BaseDelay << (attempt - 2)
}

// FailedFilter narrows the dead-letter listing.
type FailedFilter struct {
	FailedAfter  *time.Time
	FailedBefore *time.Time
	MinAttempts  int
}

// Queue is the durable work queue contract. Attempts on one job are
// strictly sequential: a leased job is invisible until acked, retried,
// or dead-lettered.
type Queue interface {
	// Enqueue adds a fresh pending job for the payload.
	Enqueue(ctx context.Context, p Payload) (*Job, error)
	// Lease blocks until a job is ready (or ctx is done) and marks the
	// attempt as underway; AttemptsMade on the returned job counts the
	// attempt now running.
	Lease(ctx context.Context) (*Job, error)
	// Ack completes a leased job.
	Ack(ctx context.Context, job *Job) error
	// RetryWithDelay reschedules a leased job after the given delay.
	RetryWithDelay(ctx context.Context, job *Job, delay time.Duration, reason string) error
	// DeadLetter parks a leased job permanently; nothing consumes it
	// automatically.
	DeadLetter(ctx context.Context, job *Job, reason string) error
	// ListFailed pages through dead-lettered jobs, newest failure first.
	ListFailed(ctx context.Context, f FailedFilter, page, limit int) ([]*Job, int, error)
	// GetFailed returns one dead-lettered job by id.
	GetFailed(ctx context.Context, id string) (*Job, error)
	// Replay re-enqueues a dead-lettered job's payload as a brand-new job
	// with a fresh attempt counter. The original record is not mutated.
	Replay(ctx context.Context, id string) (*Job, error)
}

func matches(j *Job, f FailedFilter) bool {
	if j.FailedAt == nil {
		return false
	}
	if f.FailedAfter != nil && !j.FailedAt.After(*f.FailedAfter) {
		return false
	}
	if f.FailedBefore != nil && !j.FailedAt.Before(*f.FailedBefore) {
		return false
	}
	if f.MinAttempts > 0 && j.AttemptsMade < f.MinAttempts {
		return false
	}
	return true
}

package queue

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"xconfess-notify/pkg/xerrors"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is the durable Queue implementation. Topology mirrors the
// classic Redis job-queue layout: a ready list, a scheduled sorted set
// keyed by ready-at, a jobs hash holding the serialized job, a capped
// completed list, and a failed list that is never pruned.
type RedisQueue struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisQueue(rdb *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "notify:email"
	}
	return &RedisQueue{rdb: rdb, prefix: prefix}
}

func (q *RedisQueue) keyReady() string     { return q.prefix + ":ready" }
func (q *RedisQueue) keyScheduled() string { return q.prefix + ":scheduled" }
func (q *RedisQueue) keyJobs() string      { return q.prefix + ":jobs" }
func (q *RedisQueue) keyCompleted() string { return q.prefix + ":completed" }
func (q *RedisQueue) keyFailed() string    { return q.prefix + ":failed" }

func (q *RedisQueue) store(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.HSet(ctx, q.keyJobs(), job.ID, data).Err()
}

func (q *RedisQueue) load(ctx context.Context, id string) (*Job, error) {
	data, err := q.rdb.HGet(ctx, q.keyJobs(), id).Bytes()
	if err == redis.Nil {
		return nil, xerrors.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, p Payload) (*Job, error) {
	job := newJob(p)
	if err := q.store(ctx, job); err != nil {
		return nil, err
	}
	if err := q.rdb.RPush(ctx, q.keyReady(), job.ID).Err(); err != nil {
		return nil, err
	}
	out := *job
	return &out, nil
}

// promoteDue moves scheduled jobs whose backoff elapsed onto the ready list.
func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := q.rdb.ZRangeByScore(ctx, q.keyScheduled(), &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 32,
	}).Result()
	if err != nil || len(ids) == 0 {
		return err
	}
	pipe := q.rdb.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.keyScheduled(), id)
		pipe.RPush(ctx, q.keyReady(), id)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) Lease(ctx context.Context) (*Job, error) {
	for {
		if err := q.promoteDue(ctx); err != nil {
			return nil, err
		}
		id, err := q.rdb.LPop(ctx, q.keyReady()).Result()
		if err == nil {
			job, err := q.load(ctx, id)
			if err == xerrors.ErrJobNotFound {
				continue // orphaned id, skip
			}
			if err != nil {
				return nil, err
			}
			job.State = StateActive
			job.AttemptsMade++
			if err := q.store(ctx, job); err != nil {
				return nil, err
			}
			return job, nil
		}
		if err != redis.Nil {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	job.State = StateCompleted
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	pipe := q.rdb.TxPipeline()
	pipe.HDel(ctx, q.keyJobs(), job.ID)
	pipe.LPush(ctx, q.keyCompleted(), data)
	pipe.LTrim(ctx, q.keyCompleted(), 0, CompletedRetention-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) RetryWithDelay(ctx context.Context, job *Job, delay time.Duration, reason string) error {
	job.State = StatePending
	job.LastError = reason
	job.NotBefore = time.Now().Add(delay)
	if err := q.store(ctx, job); err != nil {
		return err
	}
	return q.rdb.ZAdd(ctx, q.keyScheduled(), redis.Z{
		Score:  float64(job.NotBefore.UnixMilli()),
		Member: job.ID,
	}).Err()
}

func (q *RedisQueue) DeadLetter(ctx context.Context, job *Job, reason string) error {
	now := time.Now()
	job.State = StateDeadLettered
	job.LastError = reason
	job.FailedReason = reason
	job.FailedAt = &now
	if err := q.store(ctx, job); err != nil {
		return err
	}
	return q.rdb.RPush(ctx, q.keyFailed(), job.ID).Err()
}

func (q *RedisQueue) ListFailed(ctx context.Context, f FailedFilter, page, limit int) ([]*Job, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	ids, err := q.rdb.LRange(ctx, q.keyFailed(), 0, -1).Result()
	if err != nil {
		return nil, 0, err
	}

	var all []*Job
	for _, id := range ids {
		job, err := q.load(ctx, id)
		if err == xerrors.ErrJobNotFound {
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		if matches(job, f) {
			all = append(all, job)
		}
	}

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

func (q *RedisQueue) GetFailed(ctx context.Context, id string) (*Job, error) {
	job, err := q.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.State != StateDeadLettered {
		return nil, xerrors.ErrJobNotFound
	}
	return job, nil
}

func (q *RedisQueue) Replay(ctx context.Context, id string) (*Job, error) {
	original, err := q.GetFailed(ctx, id)
	if err != nil {
		return nil, err
	}
	return q.Enqueue(ctx, original.Payload)
}

package repository

import (
	"context"

	"EMSpark/internal/domain/models"
)

// ReportJobType tags report requests on the Redis work queue.
const ReportJobType = "report"

type workQueue interface {
	Enqueue(ctx context.Context, msgType, id string, payload any) error
}

// RedisJobQueue hands report requests to the Redis-backed workers when no
// broker is configured.
type RedisJobQueue struct {
	q workQueue
}

func NewRedisJobQueue(q workQueue) *RedisJobQueue {
	return &RedisJobQueue{q: q}
}

func (r *RedisJobQueue) Enqueue(ctx context.Context, req models.ReportRequest) error {
	return r.q.Enqueue(ctx, ReportJobType, req.ID, req)
}

package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/adisetya/go-shop-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// RedisRecorder keeps the last N finished jobs in capped redis lists with a
// bounded TTL, so operators can inspect recent deliveries and failures.
type RedisRecorder struct {
	rdb *redis.Client
}

func NewRedisRecorder(rdb *redis.Client) *RedisRecorder { return &RedisRecorder{rdb: rdb} }

type jobRecord struct {
	Job        Job       `json:"job"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

func (r *RedisRecorder) Completed(ctx context.Context, job Job) {
	r.push(ctx, redisx.KeyNotifyCompleted, redisx.TTLNotifyDone, jobRecord{
		Job:        job,
		FinishedAt: time.Now().UTC(),
	})
}

func (r *RedisRecorder) Failed(ctx context.Context, job Job, jobErr error) {
	rec := jobRecord{Job: job, FinishedAt: time.Now().UTC()}
	if jobErr != nil {
		rec.Error = jobErr.Error()
	}
	r.push(ctx, redisx.KeyNotifyFailed, redisx.TTLNotifyFailed, rec)
}

func (r *RedisRecorder) push(ctx context.Context, key string, ttl time.Duration, rec jobRecord) {
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	pipe := r.rdb.Pipeline()
	pipe.LPush(ctx, key, b)
	pipe.LTrim(ctx, key, 0, redisx.NotifyListMaxLen-1)
	pipe.Expire(ctx, key, ttl)
	_, _ = pipe.Exec(ctx)
}

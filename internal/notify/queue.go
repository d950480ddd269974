package notify

import (
	"context"
	"encoding/json"
	"time"

	kafkax "github.com/adisetya/go-shop-orders/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

type publisher interface {
	publish(ctx context.Context, job Job) error
}

// Queue publishes notification jobs onto the notification topic. Enqueue is
// fire-and-forget from the caller's perspective; the producer flushes
// asynchronously.
type Queue struct {
	p *kafkax.Producer
}

func NewQueue(p *kafkax.Producer) *Queue { return &Queue{p: p} }

func (q *Queue) Enqueue(ctx context.Context, jobType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return q.publish(ctx, Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Attempt:    0,
		EnqueuedAt: time.Now().UTC(),
		Payload:    body,
	})
}

func (q *Queue) publish(_ context.Context, job Job) error {
	q.p.Publish([]byte(job.ID), kafkax.MustMarshal(job),
		kafkago.Header{Key: "x-job-type", Value: []byte(job.Type)},
	)
	return nil
}

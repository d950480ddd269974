package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Recorder keeps finished jobs around for inspection.
type Recorder interface {
	Completed(ctx context.Context, job Job)
	Failed(ctx context.Context, job Job, jobErr error)
}

// OrderEvents is the slice of the order store the worker needs.
type OrderEvents interface {
	AppendEvent(ctx context.Context, orderID, eventType string, payload any, success bool, errMsg string) error
}

type Worker struct {
	pub     publisher
	rec     Recorder
	orders  OrderEvents
	log     *zap.Logger
	backoff func(attempt int) time.Duration
}

func NewWorker(q *Queue, rec Recorder, orders OrderEvents, log *zap.Logger) *Worker {
	return &Worker{pub: q, rec: rec, orders: orders, log: log, backoff: defaultBackoff}
}

// 2s, 4s, 8s
func defaultBackoff(attempt int) time.Duration {
	return (1 << attempt) * 2 * time.Second
}

// Handle is mounted as the consumer handler. It always returns nil so the
// offset commits; redelivery is driven by re-publishing with a bumped attempt
// counter, and exhausted jobs land in the failed list instead of blocking the
// partition.
func (w *Worker) Handle(ctx context.Context, m kafkago.Message) error {
	var job Job
	if err := json.Unmarshal(m.Value, &job); err != nil {
		w.log.Error("undecodable notification job", zap.Error(err), zap.ByteString("key", m.Key))
		return nil
	}

	err := w.process(ctx, job)
	if err == nil {
		w.rec.Completed(ctx, job)
		return nil
	}

	w.log.Error("notification job failed",
		zap.Error(err),
		zap.String("job_id", job.ID),
		zap.String("job_type", job.Type),
		zap.Int("attempt", job.Attempt))

	if job.Attempt+1 >= MaxAttempts {
		w.rec.Failed(ctx, job, err)
		return nil
	}

	// delay before redelivery
	select {
	case <-time.After(w.backoff(job.Attempt)):
	case <-ctx.Done():
		w.rec.Failed(ctx, job, err)
		return nil
	}
	job.Attempt++
	if perr := w.pub.publish(ctx, job); perr != nil {
		w.rec.Failed(ctx, job, perr)
	}
	return nil
}

func (w *Worker) process(ctx context.Context, job Job) error {
	switch job.Type {
	case JobOrderConfirmation:
		var p OrderConfirmationPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return w.sendConfirmation(ctx, p)
	case JobStatusUpdate:
		var p StatusUpdatePayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		w.log.Info("notify: order status updated",
			zap.String("order_id", p.OrderID), zap.String("new_status", p.NewStatus))
		return nil
	case JobTrackingUpdate:
		var p TrackingUpdatePayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		w.log.Info("notify: order shipped",
			zap.String("order_id", p.OrderID),
			zap.String("tracking_number", p.TrackingNumber),
			zap.String("carrier", p.Carrier))
		return nil
	default:
		w.log.Warn("unknown notification job type", zap.String("job_type", job.Type))
		return nil
	}
}

func (w *Worker) sendConfirmation(ctx context.Context, p OrderConfirmationPayload) error {
	// composing the message stands in for a real mail provider
	w.log.Info("notify: order confirmed",
		zap.String("order_id", p.OrderID),
		zap.String("user_id", p.UserID),
		zap.Int64("total_cents", p.TotalCents))

	return w.orders.AppendEvent(ctx, p.OrderID, "confirmation_email_sent", map[string]any{
		"user_id": p.UserID,
	}, true, "")
}

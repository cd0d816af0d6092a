package notification

import (
	"context"

	"jobboard-realtime/internal/common/logger"
	"jobboard-realtime/internal/common/metrics"
	"jobboard-realtime/internal/models"
	"jobboard-realtime/internal/notification/queue"
)

// EnqueueReport counts the outcome of a batch.
type EnqueueReport struct {
	Accepted int `json:"accepted"`
	Failed   int `json:"failed"`
}

// Enqueuer hands payloads to a delivery queue, one at a time.
type Enqueuer struct {
	queue  queue.Queue
	logger logger.Logger
}

func NewEnqueuer(q queue.Queue, log logger.Logger) *Enqueuer {
	return &Enqueuer{
		queue:  q,
		logger: log.WithFields(map[string]interface{}{"component": "enqueuer", "backend": q.Name()}),
	}
}

// Enqueue waits for the backend to accept or reject payload and reports
// which. Rejections are logged, not returned.
func (e *Enqueuer) Enqueue(ctx context.Context, payload models.DeliveryPayload) bool {
	if err := e.queue.Enqueue(ctx, payload); err != nil {
		metrics.NotificationsEnqueued.WithLabelValues(e.queue.Name(), "failed").Inc()
		e.logger.Error("enqueue failed", map[string]interface{}{
			"toUserId":  payload.ToUserID,
			"broadcast": payload.Broadcast,
			"error":     err,
		})
		return false
	}
	metrics.NotificationsEnqueued.WithLabelValues(e.queue.Name(), "accepted").Inc()
	return true
}

// EnqueueAll enqueues payloads in order. Each call completes before the next
// starts and a failure does not stop the batch. A cancelled ctx counts the
// remaining payloads as failed.
func (e *Enqueuer) EnqueueAll(ctx context.Context, payloads []models.DeliveryPayload) EnqueueReport {
	var report EnqueueReport
	for i, p := range payloads {
		if ctx.Err() != nil {
			report.Failed += len(payloads) - i
			e.logger.Warn("batch cancelled", map[string]interface{}{
				"remaining": len(payloads) - i,
				"error":     ctx.Err(),
			})
			break
		}
		if e.Enqueue(ctx, p) {
			report.Accepted++
		} else {
			report.Failed++
		}
	}
	return report
}

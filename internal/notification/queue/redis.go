package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "jobboard-realtime/internal/common/errors"
	"jobboard-realtime/internal/common/logger"
	"jobboard-realtime/internal/common/metrics"
	"jobboard-realtime/internal/models"

	"github.com/redis/go-redis/v9"
)

const BackendRedis = "redis"

// RedisQueue is a FIFO list: producers RPUSH, the drain loop BLPOPs.
type RedisQueue struct {
	client      redis.Cmdable
	key         string
	logger      logger.Logger
	pollTimeout time.Duration
	retryDelay  time.Duration
}

func NewRedisQueue(client redis.Cmdable, key string, log logger.Logger) *RedisQueue {
	return &RedisQueue{
		client:      client,
		key:         key,
		logger:      log.WithFields(map[string]interface{}{"component": "redis-queue", "key": key}),
		pollTimeout: time.Second,
		retryDelay:  time.Second,
	}
}

func (q *RedisQueue) Name() string { return BackendRedis }

func (q *RedisQueue) Enqueue(ctx context.Context, payload models.DeliveryPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return apperrors.NewEnqueueFailedError(BackendRedis, fmt.Errorf("encode payload: %w", err))
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return apperrors.NewEnqueueFailedError(BackendRedis, err)
	}
	return nil
}

// Len reports the number of payloads waiting.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Consume drains the list until ctx is cancelled, calling handle for every
// payload in push order. A payload that fails to decode or to deliver is
// logged and dropped.
func (q *RedisQueue) Consume(ctx context.Context, handle DeliveryHandler) error {
	q.logger.Info("queue consumer started", nil)
	defer q.logger.Info("queue consumer stopped", nil)

	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := q.client.BLPop(ctx, q.pollTimeout, q.key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			q.logger.Warn("queue pop failed", map[string]interface{}{"error": err})
			select {
			case <-time.After(q.retryDelay):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		// BLPOP replies [key, value]
		if len(res) != 2 {
			continue
		}
		q.dispatch(ctx, res[1], handle)
	}
}

func (q *RedisQueue) dispatch(ctx context.Context, raw string, handle DeliveryHandler) {
	var payload models.DeliveryPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		metrics.NotificationsDelivered.WithLabelValues(BackendRedis, "malformed").Inc()
		q.logger.Error("dropping malformed payload", map[string]interface{}{"error": err})
		return
	}

	if err := handle(ctx, payload); err != nil {
		metrics.NotificationsDelivered.WithLabelValues(BackendRedis, "failed").Inc()
		q.logger.Warn("delivery failed", map[string]interface{}{
			"toUserId": payload.ToUserID,
			"error":    err,
		})
		return
	}
	metrics.NotificationsDelivered.WithLabelValues(BackendRedis, "success").Inc()
}

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "jobboard-realtime/internal/common/errors"
	"jobboard-realtime/internal/common/logger"
	"jobboard-realtime/internal/common/metrics"

	"github.com/redis/go-redis/v9"
)

// Transport is the slice of the Redis client the publisher needs.
type Transport interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// PublishResult is the outcome of one best-effort publish. Receivers is the
// number of subscribers the transport handed the event to; zero means the
// event was dropped.
type PublishResult struct {
	Channel   Channel `json:"channel"`
	Receivers int64   `json:"receivers"`
	Err       error   `json:"-"`
}

// Delivered reports whether at least one subscriber got the event.
func (r PublishResult) Delivered() bool {
	return r.Err == nil && r.Receivers > 0
}

// Publisher sends events to a channel without blocking the caller.
type Publisher struct {
	transport Transport
	logger    logger.Logger
	timeout   time.Duration
}

func NewPublisher(transport Transport, log logger.Logger, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{
		transport: transport,
		logger:    log.WithFields(map[string]interface{}{"component": "publisher"}),
		timeout:   timeout,
	}
}

// Publish serializes payload and sends it on ch in the background. The
// returned channel always receives exactly one result and is buffered, so
// callers may drop it. Failures are logged and counted, never returned to
// the caller's goroutine. Payloads that are already encoded ([]byte,
// json.RawMessage, string) are sent as-is.
func (p *Publisher) Publish(ch Channel, payload interface{}) <-chan PublishResult {
	out := make(chan PublishResult, 1)

	go func() {
		res := PublishResult{Channel: ch}
		defer func() {
			if r := recover(); r != nil {
				res = PublishResult{Channel: ch, Err: fmt.Errorf("publish panicked: %v", r)}
			}
			p.record(res)
			out <- res
		}()
		res = p.publish(ch, payload)
	}()

	return out
}

func (p *Publisher) publish(ch Channel, payload interface{}) PublishResult {
	if !ch.Valid() {
		return PublishResult{Channel: ch, Err: apperrors.NewUnknownChannelError(string(ch))}
	}

	data, err := encode(payload)
	if err != nil {
		return PublishResult{Channel: ch, Err: apperrors.NewPublishFailedError(string(ch), err)}
	}

	// detached from any request so a returning handler cannot cancel it
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	n, err := p.transport.Publish(ctx, string(ch), data).Result()
	if err != nil {
		return PublishResult{Channel: ch, Err: apperrors.NewPublishFailedError(string(ch), err)}
	}
	return PublishResult{Channel: ch, Receivers: n}
}

func (p *Publisher) record(res PublishResult) {
	status := "delivered"
	switch {
	case res.Err != nil:
		status = "failed"
		p.logger.Warn("publish failed", map[string]interface{}{
			"channel": string(res.Channel),
			"error":   res.Err,
		})
	case res.Receivers == 0:
		status = "dropped"
		p.logger.Debug("publish had no subscribers", map[string]interface{}{
			"channel": string(res.Channel),
		})
	default:
		metrics.EventReceivers.WithLabelValues(string(res.Channel)).Observe(float64(res.Receivers))
	}
	metrics.EventsPublished.WithLabelValues(string(res.Channel), status).Inc()
}

func encode(payload interface{}) ([]byte, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}

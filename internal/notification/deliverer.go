package notification

import (
	"context"

	apperrors "jobboard-realtime/internal/common/errors"
	"jobboard-realtime/internal/common/logger"
	"jobboard-realtime/internal/models"
	"jobboard-realtime/internal/realtime"
)

// EventPublisher is satisfied by *realtime.Publisher.
type EventPublisher interface {
	Publish(ch realtime.Channel, payload interface{}) <-chan realtime.PublishResult
}

// Deliverer is the consumer side of the delivery queue: it puts a payload on
// the notifications channel.
type Deliverer struct {
	publisher EventPublisher
	logger    logger.Logger
}

func NewDeliverer(publisher EventPublisher, log logger.Logger) *Deliverer {
	return &Deliverer{
		publisher: publisher,
		logger:    log.WithFields(map[string]interface{}{"component": "deliverer"}),
	}
}

// Deliver publishes payload and waits for the outcome. No subscribers is
// not an error; a transport failure is.
func (d *Deliverer) Deliver(ctx context.Context, payload models.DeliveryPayload) (realtime.PublishResult, error) {
	select {
	case res := <-d.publisher.Publish(realtime.ChannelNotifications, payload):
		if res.Err != nil {
			return res, apperrors.NewDeliveryFailedError(res.Err)
		}
		d.logger.Debug("notification delivered", map[string]interface{}{
			"toUserId":  payload.ToUserID,
			"receivers": res.Receivers,
		})
		return res, nil
	case <-ctx.Done():
		return realtime.PublishResult{Channel: realtime.ChannelNotifications, Err: ctx.Err()},
			apperrors.NewDeliveryFailedError(ctx.Err())
	}
}

// Handle adapts Deliver to queue.DeliveryHandler.
func (d *Deliverer) Handle(ctx context.Context, payload models.DeliveryPayload) error {
	_, err := d.Deliver(ctx, payload)
	return err
}

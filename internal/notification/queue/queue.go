// Package queue holds the delivery queue backends the notification enqueuer
// hands payloads to.
package queue

import (
	"context"

	"jobboard-realtime/internal/models"
)

// Queue accepts one delivery payload. Enqueue returns once the backend has
// accepted or rejected it.
type Queue interface {
	Name() string
	Enqueue(ctx context.Context, payload models.DeliveryPayload) error
}

// DeliveryHandler processes one drained payload.
type DeliveryHandler func(ctx context.Context, payload models.DeliveryPayload) error

// internal/workers/notification/deliver-notification/models.go
package delivernotification

import "jobboard-realtime/internal/models"

type Input struct {
	Notification *models.DeliveryPayload `json:"notification"`
}

type Output struct {
	Channel     string `json:"deliveryChannel"`
	Receivers   int64  `json:"deliveryReceivers"`
	Status      string `json:"deliveryStatus"` // "delivered" or "dropped"
	DeliveredAt string `json:"deliveredAt"`    // ISO 8601
}

const (
	StatusDelivered = "delivered"
	StatusDropped   = "dropped"
)

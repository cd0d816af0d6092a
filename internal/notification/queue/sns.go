package queue

import (
	"context"
	"encoding/json"
	"fmt"

	awsclient "jobboard-realtime/internal/common/aws"
	apperrors "jobboard-realtime/internal/common/errors"
	"jobboard-realtime/internal/common/logger"
	"jobboard-realtime/internal/models"

	"github.com/aws/aws-sdk-go-v2/service/sns"
)

const BackendSNS = "sns"

// SNSService is the part of the SNS client the queue needs.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSQueue publishes each payload to a topic; subscribers of the topic own
// delivery from there.
type SNSQueue struct {
	client   SNSService
	topicARN string
	logger   logger.Logger
}

func NewSNSQueue(client SNSService, topicARN string, log logger.Logger) *SNSQueue {
	return &SNSQueue{
		client:   client,
		topicARN: topicARN,
		logger:   log.WithFields(map[string]interface{}{"component": "sns-queue"}),
	}
}

func (q *SNSQueue) Name() string { return BackendSNS }

func (q *SNSQueue) Enqueue(ctx context.Context, payload models.DeliveryPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return apperrors.NewEnqueueFailedError(BackendSNS, fmt.Errorf("encode payload: %w", err))
	}

	input := awsclient.NewJSONPublishInput(q.topicARN, data, map[string]string{
		"type":     string(payload.Kind),
		"toUserId": payload.ToUserID,
	})

	out, err := q.client.Publish(ctx, input)
	if err != nil {
		return apperrors.NewEnqueueFailedError(BackendSNS, err)
	}

	if out != nil && out.MessageId != nil {
		q.logger.Debug("notification published to topic", map[string]interface{}{
			"messageId": *out.MessageId,
			"toUserId":  payload.ToUserID,
		})
	}
	return nil
}

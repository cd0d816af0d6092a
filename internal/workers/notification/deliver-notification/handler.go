// internal/workers/notification/deliver-notification/handler.go
package delivernotification

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
	"jobboard-realtime/internal/realtime"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "deliver-notification"
)

var (
	ErrMissingNotification = errors.New("MISSING_NOTIFICATION")
)

// Deliverer is satisfied by *notification.Deliverer.
type Deliverer interface {
	Deliver(ctx context.Context, payload models.DeliveryPayload) (realtime.PublishResult, error)
}

type Handler struct {
	config     *Config
	deliverer  Deliverer
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, deliverer Deliverer, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		deliverer:  deliverer,
		errHandler: apperrors.NewErrorHandler(l),
		logger:     l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		err = apperrors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err))
		h.errHandler.HandleJobError(ctx, client, job, err)
		return err
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		metrics.NotificationsDelivered.WithLabelValues(TaskType, "failed").Inc()
		h.errHandler.HandleJobError(ctx, client, job, err)
		return err
	}

	metrics.NotificationsDelivered.WithLabelValues(TaskType, output.Status).Inc()
	return h.completeJob(ctx, client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.Notification == nil {
		return nil, apperrors.NewInvalidRequestError(ErrMissingNotification.Error())
	}

	res, err := h.deliverer.Deliver(ctx, *input.Notification)
	if err != nil {
		return nil, err
	}

	status := StatusDelivered
	if res.Receivers == 0 {
		status = StatusDropped
	}

	return &Output{
		Channel:     res.Channel.String(),
		Receivers:   res.Receivers,
		Status:      status,
		DeliveredAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return err
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return err
	}
	return nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

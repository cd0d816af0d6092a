package queue

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "jobboard-realtime/internal/common/errors"
	"jobboard-realtime/internal/common/logger"
	"jobboard-realtime/internal/models"
)

const BackendZeebe = "zeebe"

// ProcessStarter creates workflow instances. *camunda.Client satisfies it.
type ProcessStarter interface {
	StartProcess(ctx context.Context, processID string, variables interface{}) (int64, error)
}

// ZeebeQueue starts one delivery process instance per payload. The
// deliver-notification job worker drains it.
type ZeebeQueue struct {
	starter   ProcessStarter
	processID string
	logger    logger.Logger
}

func NewZeebeQueue(starter ProcessStarter, processID string, log logger.Logger) *ZeebeQueue {
	return &ZeebeQueue{
		starter:   starter,
		processID: processID,
		logger:    log.WithFields(map[string]interface{}{"component": "zeebe-queue", "processId": processID}),
	}
}

func (q *ZeebeQueue) Name() string { return BackendZeebe }

func (q *ZeebeQueue) Enqueue(ctx context.Context, payload models.DeliveryPayload) error {
	vars, err := ProcessVariables(payload)
	if err != nil {
		return apperrors.NewEnqueueFailedError(BackendZeebe, err)
	}

	key, err := q.starter.StartProcess(ctx, q.processID, vars)
	if err != nil {
		if _, ok := apperrors.As(err); ok {
			return err
		}
		return apperrors.NewEnqueueFailedError(BackendZeebe, err)
	}

	q.logger.Debug("delivery process started", map[string]interface{}{
		"processInstanceKey": key,
		"toUserId":           payload.ToUserID,
	})
	return nil
}

// ProcessVariables nests the payload under "notification" so job workers
// can read it back with PayloadFromVariables.
func ProcessVariables(payload models.DeliveryPayload) (map[string]interface{}, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return map[string]interface{}{
		"notification": json.RawMessage(data),
		"toUserId":     payload.ToUserID,
	}, nil
}

// PayloadFromVariables is the inverse of ProcessVariables.
func PayloadFromVariables(vars map[string]interface{}) (models.DeliveryPayload, error) {
	var payload models.DeliveryPayload
	raw, ok := vars["notification"]
	if !ok || raw == nil {
		return payload, fmt.Errorf("missing notification variable")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return payload, fmt.Errorf("encode notification variable: %w", err)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("decode notification variable: %w", err)
	}
	return payload, nil
}

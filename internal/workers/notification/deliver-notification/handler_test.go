package delivernotification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	apperrors "jobboard-realtime/internal/common/errors"
	"jobboard-realtime/internal/common/logger"
	"jobboard-realtime/internal/models"
	"jobboard-realtime/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockDeliverer struct {
	DeliverFunc func(ctx context.Context, payload models.DeliveryPayload) (realtime.PublishResult, error)
}

func (m *MockDeliverer) Deliver(ctx context.Context, payload models.DeliveryPayload) (realtime.PublishResult, error) {
	return m.DeliverFunc(ctx, payload)
}

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second}
}

func createTestInput(userID string) *Input {
	req := models.NotificationRequest{
		Kind:    models.KindApplicationUpdate,
		Title:   "Application viewed",
		Message: "A recruiter opened your application",
	}
	payload := req.ForRecipient(userID, []string{"3c2b1a09-8f7e-4d6c-b5a4-938271605f4e"})
	return &Input{Notification: &payload}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute(t *testing.T) {
	tests := []struct {
		name           string
		input          *Input
		deliver        func(ctx context.Context, payload models.DeliveryPayload) (realtime.PublishResult, error)
		wantErrCode    apperrors.ErrorCode
		validateOutput func(t *testing.T, output *Output)
	}{
		{
			name:  "delivered to connected streams",
			input: createTestInput("user-001"),
			deliver: func(ctx context.Context, payload models.DeliveryPayload) (realtime.PublishResult, error) {
				assert.Equal(t, "user-001", payload.ToUserID)
				return realtime.PublishResult{Channel: realtime.ChannelNotifications, Receivers: 2}, nil
			},
			validateOutput: func(t *testing.T, output *Output) {
				assert.Equal(t, StatusDelivered, output.Status)
				assert.Equal(t, int64(2), output.Receivers)
				assert.Equal(t, "realtime:notifications", output.Channel)
				_, err := time.Parse(time.RFC3339, output.DeliveredAt)
				assert.NoError(t, err)
			},
		},
		{
			name:  "no connected streams",
			input: createTestInput("user-002"),
			deliver: func(ctx context.Context, payload models.DeliveryPayload) (realtime.PublishResult, error) {
				return realtime.PublishResult{Channel: realtime.ChannelNotifications}, nil
			},
			validateOutput: func(t *testing.T, output *Output) {
				assert.Equal(t, StatusDropped, output.Status)
				assert.Equal(t, int64(0), output.Receivers)
			},
		},
		{
			name:  "transport failure",
			input: createTestInput("user-003"),
			deliver: func(ctx context.Context, payload models.DeliveryPayload) (realtime.PublishResult, error) {
				return realtime.PublishResult{}, apperrors.NewDeliveryFailedError(errors.New("redis down"))
			},
			wantErrCode: apperrors.ErrCodeDeliveryFailed,
		},
		{
			name:        "missing notification variable",
			input:       &Input{},
			wantErrCode: apperrors.ErrCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deliverer := &MockDeliverer{DeliverFunc: tt.deliver}
			if tt.deliver == nil {
				deliverer.DeliverFunc = func(ctx context.Context, payload models.DeliveryPayload) (realtime.PublishResult, error) {
					t.Fatal("deliverer must not be called")
					return realtime.PublishResult{}, nil
				}
			}
			h := NewHandler(createTestConfig(), deliverer, logger.NewTestLogger(t))

			output, err := h.Execute(context.Background(), tt.input)

			if tt.wantErrCode != "" {
				stdErr, ok := apperrors.As(err)
				require.True(t, ok)
				assert.Equal(t, tt.wantErrCode, stdErr.Code)
				assert.Nil(t, output)
				return
			}
			require.NoError(t, err)
			tt.validateOutput(t, output)
		})
	}
}

func TestInput_DecodesJobVariables(t *testing.T) {
	vars := `{"notification":{"type":"job_alert","toUserId":"u1","jobIds":["a"],"jobId":"a","campaign":"weekly"},"toUserId":"u1"}`

	var input Input
	require.NoError(t, json.Unmarshal([]byte(vars), &input))
	require.NotNil(t, input.Notification)

	assert.Equal(t, models.KindJobAlert, input.Notification.Kind)
	assert.Equal(t, "u1", input.Notification.ToUserID)
	assert.JSONEq(t, `"weekly"`, string(input.Notification.Extra["campaign"]))
}

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardError_UnwrapAndAs(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := fmt.Errorf("visitor analytics: %w", NewAggregationFailedError("countPageViews", cause))

	stdErr, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeAggregationFailed, stdErr.Code)
	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, stdErr.Error(), "connection reset")
}

func TestNormalize(t *testing.T) {
	plain := stderrors.New("boom")
	stdErr := Normalize(plain)
	assert.Equal(t, ErrCodeInternal, stdErr.Code)
	assert.False(t, stdErr.Retryable)

	existing := NewPublishFailedError("realtime:users", plain)
	assert.Same(t, existing, Normalize(existing))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeInvalidRequest, http.StatusBadRequest},
		{ErrCodeUnknownChannel, http.StatusNotFound},
		{ErrCodeSubscribeFailed, http.StatusServiceUnavailable},
		{ErrCodeHubClosed, http.StatusServiceUnavailable},
		{ErrCodeQueryTimeout, http.StatusGatewayTimeout},
		{ErrCodeAggregationFailed, http.StatusInternalServerError},
		{ErrCodeRecipientLookupFailed, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.code))
		})
	}
}

func TestConvertToBPMNError(t *testing.T) {
	retryable := ConvertToBPMNError(NewDeliveryFailedError(stderrors.New("redis down")))
	assert.Equal(t, "DELIVERY_FAILED", retryable.Code)
	assert.Equal(t, 3, retryable.Retries)
	assert.Equal(t, "DELIVERY_FAILED", retryable.ToErrorVariables()["originalErrorCode"])

	business := ConvertToBPMNError(NewInvalidRequestError("missing type"))
	assert.Equal(t, 0, business.Retries)
	assert.Equal(t, false, business.ToErrorVariables()["retryable"])
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeInvalidRequest))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeUnknownChannel))
	assert.Equal(t, "NOTIFICATION", GetErrorCategory(ErrCodeEnqueueFailed))
	assert.Equal(t, "REALTIME", GetErrorCategory(ErrCodeSubscribeFailed))
	assert.Equal(t, "ANALYTICS", GetErrorCategory(ErrCodeAggregationFailed))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeQueryExecutionFailed))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}

func TestWithMetadata(t *testing.T) {
	err := NewInvalidRequestError("bad").WithMetadata("field", "type")
	assert.Equal(t, "type", err.Metadata["field"])
}

// Package errors provides standardized error handling for the HTTP surface
// and for workflow-engine jobs.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrCodeUnknownChannel ErrorCode = "UNKNOWN_CHANNEL"

	ErrCodeRecipientLookupFailed ErrorCode = "RECIPIENT_LOOKUP_FAILED"
	ErrCodeEnqueueFailed         ErrorCode = "ENQUEUE_FAILED"
	ErrCodeDeliveryFailed        ErrorCode = "DELIVERY_FAILED"

	ErrCodePublishFailed   ErrorCode = "PUBLISH_FAILED"
	ErrCodeSubscribeFailed ErrorCode = "SUBSCRIBE_FAILED"
	ErrCodeHubClosed       ErrorCode = "HUB_CLOSED"

	ErrCodeAggregationFailed    ErrorCode = "AGGREGATION_FAILED"
	ErrCodeQueryExecutionFailed ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeSearchQueryFailed    ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeQueryTimeout         ErrorCode = "QUERY_TIMEOUT"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("StandardError[%s]: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Cause
}

// WithMetadata returns e after attaching key/value.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// As extracts a *StandardError from anywhere in err's chain.
func As(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		Cause:     cause,
	}
}

// NewInvalidRequestError creates a non-retryable validation error.
func NewInvalidRequestError(details string) *StandardError {
	return newError(ErrCodeInvalidRequest, "Invalid request", details, false, nil)
}

// NewUnknownChannelError creates a non-retryable error for a channel name
// outside the fixed set.
func NewUnknownChannelError(name string) *StandardError {
	return newError(ErrCodeUnknownChannel, "Unknown channel", fmt.Sprintf("channel: %s", name), false, nil)
}

// NewRecipientLookupFailedError creates a retryable application store error.
func NewRecipientLookupFailedError(err error) *StandardError {
	return newError(ErrCodeRecipientLookupFailed, "Failed to resolve notification recipients", err.Error(), true, err)
}

// NewEnqueueFailedError creates a retryable delivery queue error.
func NewEnqueueFailedError(backend string, err error) *StandardError {
	return newError(ErrCodeEnqueueFailed, "Failed to enqueue notification",
		fmt.Sprintf("backend: %s, error: %s", backend, err.Error()), true, err)
}

// NewDeliveryFailedError creates a retryable error for a payload that could
// not be handed to the publisher.
func NewDeliveryFailedError(err error) *StandardError {
	return newError(ErrCodeDeliveryFailed, "Notification delivery failed", err.Error(), true, err)
}

// NewPublishFailedError creates a retryable transport publish error.
func NewPublishFailedError(channel string, err error) *StandardError {
	return newError(ErrCodePublishFailed, "Failed to publish event",
		fmt.Sprintf("channel: %s, error: %s", channel, err.Error()), true, err)
}

// NewSubscribeFailedError creates a retryable transport subscribe error.
func NewSubscribeFailedError(err error) *StandardError {
	return newError(ErrCodeSubscribeFailed, "Failed to subscribe to realtime channels", err.Error(), true, err)
}

// NewHubClosedError is returned for subscriptions attempted during shutdown.
func NewHubClosedError() *StandardError {
	return newError(ErrCodeHubClosed, "Realtime hub is shutting down", "", false, nil)
}

// NewAggregationFailedError wraps the first failing query of an aggregation.
func NewAggregationFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeAggregationFailed, "Failed to compute analytics",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true, err)
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, "Database query execution error",
		fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()), true, err)
}

// NewSearchQueryFailedError creates a retryable search query error.
func NewSearchQueryFailedError(queryType string, err error) *StandardError {
	return newError(ErrCodeSearchQueryFailed, "Elasticsearch query error",
		fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()), true, err)
}

// NewQueryTimeoutError creates a retryable query timeout error.
func NewQueryTimeoutError(queryType string) *StandardError {
	return newError(ErrCodeQueryTimeout, "Query timeout", fmt.Sprintf("queryType: %s", queryType), true, nil)
}

// NewInternalError wraps an unexpected error.
func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// ==========================
// 4. Error Conversion
// ==========================

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeRecipientLookupFailed,
		ErrCodeEnqueueFailed,
		ErrCodeDeliveryFailed,
		ErrCodePublishFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeSearchQueryFailed:
		return 3

	case ErrCodeQueryTimeout, ErrCodeSubscribeFailed:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// HTTPStatus maps an error code onto a response status.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrCodeUnknownChannel:
		return http.StatusNotFound
	case ErrCodeSubscribeFailed, ErrCodeHubClosed:
		return http.StatusServiceUnavailable
	case ErrCodeQueryTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "UNKNOWN"):
		return "VALIDATION"
	case strings.Contains(codeStr, "RECIPIENT") || strings.Contains(codeStr, "ENQUEUE") || strings.Contains(codeStr, "DELIVERY"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "PUBLISH") || strings.Contains(codeStr, "SUBSCRIBE") || strings.Contains(codeStr, "HUB"):
		return "REALTIME"
	case strings.Contains(codeStr, "AGGREGATION") || strings.Contains(codeStr, "SESSION"):
		return "ANALYTICS"
	case strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	default:
		return "OTHER"
	}
}

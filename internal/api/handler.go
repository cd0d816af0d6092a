// Package api exposes notifications, event streams and analytics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"jobboard-realtime/internal/analytics"
	apperrors "jobboard-realtime/internal/common/errors"
	"jobboard-realtime/internal/common/logger"
	"jobboard-realtime/internal/common/validation"
	"jobboard-realtime/internal/models"
	"jobboard-realtime/internal/notification"
	"jobboard-realtime/internal/realtime"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

type NotificationSender interface {
	Send(ctx context.Context, req models.NotificationRequest) (*notification.SendResult, error)
}

type AnalyticsReader interface {
	VisitorAnalytics(ctx context.Context, token string) (*analytics.VisitorAnalytics, error)
	RealtimeVisitors(ctx context.Context) (*analytics.RealtimeVisitors, error)
	PageAnalytics(ctx context.Context, page, token string) (*analytics.PageAnalytics, error)
}

type ClickTracker interface {
	Track(ctx context.Context, ev analytics.ClickEvent) (*analytics.TrackResult, error)
}

type EventPublisher interface {
	Publish(ch realtime.Channel, payload interface{}) <-chan realtime.PublishResult
}

// ReadinessCheck reports whether one backing service is reachable.
type ReadinessCheck func(ctx context.Context) error

// Deps are the collaborators a Handler serves. Stream is mounted as-is.
type Deps struct {
	Notifications NotificationSender
	Analytics     AnalyticsReader
	Tracker       ClickTracker
	Publisher     EventPublisher
	Stream        http.Handler
	Checks        map[string]ReadinessCheck
	Logger        logger.Logger

	ServiceName string
	Version     string
}

type Handler struct {
	notifications NotificationSender
	analytics     AnalyticsReader
	tracker       ClickTracker
	publisher     EventPublisher
	stream        http.Handler
	checks        map[string]ReadinessCheck
	validator     *validation.Validator
	logger        logger.Logger

	serviceName string
	version     string
}

func NewHandler(d Deps) (*Handler, error) {
	v, err := validation.Default()
	if err != nil {
		return nil, fmt.Errorf("load request schemas: %w", err)
	}
	return &Handler{
		notifications: d.Notifications,
		analytics:     d.Analytics,
		tracker:       d.Tracker,
		publisher:     d.Publisher,
		stream:        d.Stream,
		checks:        d.Checks,
		validator:     v,
		logger:        d.Logger.WithFields(map[string]interface{}{"component": "api"}),
		serviceName:   d.ServiceName,
		version:       d.Version,
	}, nil
}

// decode reads the body, validates it against schema and unmarshals it into
// out. It writes the error response itself and reports whether to continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, schema string, out interface{}) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, apperrors.NewInvalidRequestError(fmt.Sprintf("read body: %v", err)))
		return nil, false
	}

	result, err := h.validator.Validate(schema, body)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if !result.Valid {
		writeValidationError(w, result)
		return nil, false
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			writeError(w, apperrors.NewInvalidRequestError(err.Error()))
			return nil, false
		}
	}
	return body, true
}

// ----------------------
// Notifications
// ----------------------

func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req models.NotificationRequest
	if _, ok := h.decode(w, r, validation.SchemaNotificationRequest, &req); !ok {
		return
	}

	result, err := h.notifications.Send(r.Context(), req)
	if err != nil {
		h.logger.Error("send notification failed", map[string]interface{}{"error": err})
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) StreamNotifications(w http.ResponseWriter, r *http.Request) {
	h.stream.ServeHTTP(w, r)
}

// ----------------------
// Publish Hook
// ----------------------

type publishResponse struct {
	Channel   realtime.Channel `json:"channel"`
	Receivers int64            `json:"receivers"`
	Error     string           `json:"error,omitempty"`
}

// PublishEvent relays the request body onto the channel named in the path.
// Publish failures are reported in the body, not the status.
func (h *Handler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "channel")
	ch, ok := realtime.ParseChannel(name)
	if !ok {
		writeError(w, apperrors.NewUnknownChannelError(name))
		return
	}

	body, ok := h.decode(w, r, validation.SchemaEvent, nil)
	if !ok {
		return
	}

	select {
	case res := <-h.publisher.Publish(ch, json.RawMessage(body)):
		out := publishResponse{Channel: res.Channel, Receivers: res.Receivers}
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
		writeJSON(w, http.StatusAccepted, out)
	case <-r.Context().Done():
	}
}

// ----------------------
// Analytics
// ----------------------

func (h *Handler) VisitorAnalytics(w http.ResponseWriter, r *http.Request) {
	out, err := h.analytics.VisitorAnalytics(r.Context(), r.URL.Query().Get("timeRange"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) RealtimeVisitors(w http.ResponseWriter, r *http.Request) {
	out, err := h.analytics.RealtimeVisitors(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) PageAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.analytics.PageAnalytics(r.Context(), q.Get("page"), q.Get("timeRange"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) TrackEvent(w http.ResponseWriter, r *http.Request) {
	var ev analytics.ClickEvent
	if _, ok := h.decode(w, r, validation.SchemaTrackEvent, &ev); !ok {
		return
	}

	out, err := h.tracker.Track(r.Context(), ev)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

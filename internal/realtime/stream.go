package realtime

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	apperrors "jobboard-realtime/internal/common/errors"
	"jobboard-realtime/internal/common/logger"
	"jobboard-realtime/internal/common/metrics"
)

// StreamState is the lifecycle of one client stream.
type StreamState string

const (
	StateConnecting StreamState = "CONNECTING"
	StateStreaming  StreamState = "STREAMING"
	StateClosed     StreamState = "CLOSED"
)

// StreamHandler serves the server-sent events endpoint. Each request holds
// one hub subscription for as long as the client stays connected.
type StreamHandler struct {
	hub       *Hub
	logger    logger.Logger
	heartbeat time.Duration
}

func NewStreamHandler(hub *Hub, log logger.Logger, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &StreamHandler{
		hub:       hub,
		logger:    log.WithFields(map[string]interface{}{"component": "stream"}),
		heartbeat: heartbeat,
	}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	log := h.logger.WithFields(map[string]interface{}{"remoteAddr": r.RemoteAddr})
	log.Debug("stream state", map[string]interface{}{"state": StateConnecting})

	sub, err := h.hub.Subscribe(r.Context())
	if err != nil {
		stdErr := apperrors.Normalize(err)
		log.Warn("stream subscribe failed", map[string]interface{}{"error": err})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(apperrors.HTTPStatus(stdErr.Code))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": stdErr.Message,
			"code":  stdErr.Code,
		})
		return
	}

	metrics.StreamsActive.Inc()
	reason := "client disconnected"
	defer func() {
		h.hub.Unsubscribe(sub)
		metrics.StreamsActive.Dec()
		log.Debug("stream state", map[string]interface{}{
			"state":          StateClosed,
			"subscriptionId": sub.ID,
			"reason":         reason,
		})
	}()

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log.Debug("stream state", map[string]interface{}{"state": StateStreaming, "subscriptionId": sub.ID})

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case msg, ok := <-sub.Messages():
			if !ok {
				reason = "subscription ended"
				return
			}
			if _, err := w.Write(formatEvent(msg.Payload)); err != nil {
				reason = "write failed"
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				reason = "write failed"
				return
			}
			flusher.Flush()
		}
	}
}

// formatEvent frames payload as one SSE event. Single-line JSON becomes
// "data: <json>\n\n"; embedded newlines become continuation data lines.
func formatEvent(payload string) []byte {
	var b strings.Builder
	for _, line := range strings.Split(payload, "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimSuffix(line, "\r"))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return []byte(b.String())
}

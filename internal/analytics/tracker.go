package analytics

import (
	"context"
	"strings"
	"time"

	apperrors "jobboard-realtime/internal/common/errors"
	"jobboard-realtime/internal/common/logger"
	"jobboard-realtime/internal/realtime"
)

// EventPublisher is satisfied by *realtime.Publisher.
type EventPublisher interface {
	Publish(ch realtime.Channel, payload interface{}) <-chan realtime.PublishResult
}

// Tracker records client click events against their session.
type Tracker struct {
	visitors  VisitorStore
	publisher EventPublisher
	logger    logger.Logger
	now       func() time.Time
}

func NewTracker(visitors VisitorStore, publisher EventPublisher, log logger.Logger) *Tracker {
	return &Tracker{
		visitors:  visitors,
		publisher: publisher,
		logger:    log.WithFields(map[string]interface{}{"component": "tracker"}),
		now:       time.Now,
	}
}

// Track bumps the session's click counter and announces the click on the
// users channel. An unknown session is not an error; the result carries a
// nil visitor.
func (t *Tracker) Track(ctx context.Context, ev ClickEvent) (*TrackResult, error) {
	ev.SessionID = strings.TrimSpace(ev.SessionID)
	if ev.SessionID == "" {
		return nil, apperrors.NewInvalidRequestError("sessionId is required")
	}

	visitor, err := t.visitors.IncrementClicks(ctx, ev.SessionID)
	if err != nil {
		return nil, apperrors.NewAggregationFailedError("track_event", err)
	}

	if visitor == nil {
		t.logger.Debug("click for unknown session", map[string]interface{}{"sessionId": ev.SessionID})
	} else if t.publisher != nil {
		// fire and forget; the result channel is buffered
		t.publisher.Publish(realtime.ChannelUsers, map[string]interface{}{
			"type":       "click",
			"sessionId":  ev.SessionID,
			"page":       ev.Page,
			"eventType":  ev.EventType,
			"eventData":  ev.EventData,
			"clickCount": visitor.ClickCount,
			"timestamp":  t.now().UTC(),
		})
	}

	return &TrackResult{Success: true, Visitor: visitor}, nil
}

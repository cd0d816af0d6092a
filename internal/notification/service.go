package notification

import (
	"context"

	"jobboard-realtime/internal/common/logger"
	"jobboard-realtime/internal/models"
)

const noRecipientsMessage = "No applicants found for the referenced job(s)"

// SendResult is the response body of a send. Job-referencing requests fill
// Queued and Recipients; direct and broadcast requests fill Enqueued.
type SendResult struct {
	OK            bool     `json:"ok"`
	Queued        *bool    `json:"queued,omitempty"`
	Recipients    *int     `json:"recipients,omitempty"`
	Failed        int      `json:"failed,omitempty"`
	Message       string   `json:"message,omitempty"`
	Enqueued      *bool    `json:"enqueued,omitempty"`
	InvalidJobIDs []string `json:"invalidJobIds,omitempty"`
}

// Service resolves and enqueues notification requests.
type Service struct {
	resolver *Resolver
	enqueuer *Enqueuer
	logger   logger.Logger
}

func NewService(resolver *Resolver, enqueuer *Enqueuer, log logger.Logger) *Service {
	return &Service{
		resolver: resolver,
		enqueuer: enqueuer,
		logger:   log.WithFields(map[string]interface{}{"component": "notification-service"}),
	}
}

// Send resolves req and enqueues every payload. Only a failed recipient
// lookup is returned as an error.
func (s *Service) Send(ctx context.Context, req models.NotificationRequest) (*SendResult, error) {
	res, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	if !res.Expanded {
		enqueued := s.enqueuer.Enqueue(ctx, res.Payloads[0])
		return &SendResult{OK: true, Enqueued: &enqueued}, nil
	}

	if res.Recipients == 0 {
		queued := false
		recipients := 0
		return &SendResult{
			OK:            true,
			Queued:        &queued,
			Recipients:    &recipients,
			Message:       noRecipientsMessage,
			InvalidJobIDs: res.InvalidJobIDs,
		}, nil
	}

	report := s.enqueuer.EnqueueAll(ctx, res.Payloads)
	queued := report.Accepted > 0
	recipients := res.Recipients

	s.logger.Info("notification fanned out", map[string]interface{}{
		"kind":       string(req.Kind),
		"jobIds":     res.JobIDs,
		"recipients": recipients,
		"accepted":   report.Accepted,
		"failed":     report.Failed,
	})

	return &SendResult{
		OK:            true,
		Queued:        &queued,
		Recipients:    &recipients,
		Failed:        report.Failed,
		InvalidJobIDs: res.InvalidJobIDs,
	}, nil
}

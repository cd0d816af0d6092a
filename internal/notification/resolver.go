// Package notification turns notification requests into per-recipient
// delivery payloads and hands them to the delivery queue.
package notification

import (
	"context"

	apperrors "jobboard-realtime/internal/common/errors"
	"jobboard-realtime/internal/common/logger"
	"jobboard-realtime/internal/models"

	"github.com/google/uuid"
)

// ApplicationLookup is the read-only view of the application store.
type ApplicationLookup interface {
	FindByJobIDs(ctx context.Context, jobIDs []string) ([]models.ApplicationRef, error)
}

// Resolution is the outcome of expanding one request.
type Resolution struct {
	Payloads      []models.DeliveryPayload
	Recipients    int
	JobIDs        []string
	InvalidJobIDs []string
	// Expanded is true when the request referenced jobs and recipients came
	// from the application store.
	Expanded bool
}

type Resolver struct {
	lookup ApplicationLookup
	logger logger.Logger
}

func NewResolver(lookup ApplicationLookup, log logger.Logger) *Resolver {
	return &Resolver{
		lookup: lookup,
		logger: log.WithFields(map[string]interface{}{"component": "resolver"}),
	}
}

// Resolve expands req. Requests without a job reference resolve to the
// request itself. Requests with job references resolve to one payload per
// distinct applicant, possibly none. Only well-formed job ids are looked up,
// but every payload carries the request's full job list. req is never
// modified.
func (r *Resolver) Resolve(ctx context.Context, req models.NotificationRequest) (*Resolution, error) {
	refs := req.JobReferences()
	if len(refs) == 0 {
		return &Resolution{
			Payloads:   []models.DeliveryPayload{{NotificationRequest: req.Clone()}},
			Recipients: 1,
		}, nil
	}

	res := &Resolution{Expanded: true}
	for _, id := range refs {
		if _, err := uuid.Parse(id); err != nil {
			res.InvalidJobIDs = append(res.InvalidJobIDs, id)
			continue
		}
		res.JobIDs = append(res.JobIDs, id)
	}

	if len(res.InvalidJobIDs) > 0 {
		r.logger.Warn("ignoring malformed job ids", map[string]interface{}{
			"invalidJobIds": res.InvalidJobIDs,
		})
	}
	if len(res.JobIDs) == 0 {
		return res, nil
	}

	apps, err := r.lookup.FindByJobIDs(ctx, res.JobIDs)
	if err != nil {
		return nil, apperrors.NewRecipientLookupFailedError(err)
	}

	for _, userID := range distinctUsers(apps) {
		res.Payloads = append(res.Payloads, req.ForRecipient(userID, refs))
	}
	res.Recipients = len(res.Payloads)

	r.logger.Debug("recipients resolved", map[string]interface{}{
		"jobIds":       res.JobIDs,
		"applications": len(apps),
		"recipients":   res.Recipients,
	})
	return res, nil
}

// distinctUsers returns the non-empty user ids of apps in first-seen order.
func distinctUsers(apps []models.ApplicationRef) []string {
	seen := make(map[string]struct{}, len(apps))
	users := make([]string, 0, len(apps))
	for _, app := range apps {
		if app.UserID == "" {
			continue
		}
		if _, dup := seen[app.UserID]; dup {
			continue
		}
		seen[app.UserID] = struct{}{}
		users = append(users, app.UserID)
	}
	return users
}

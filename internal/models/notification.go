// internal/models/notification.go
package models

import (
	"encoding/json"
	"strings"
)

// NotificationKind tags a NotificationRequest. Unknown kinds are carried
// through untouched.
type NotificationKind string

const (
	KindInfo              NotificationKind = "info"
	KindJobPosted         NotificationKind = "job_posted"
	KindApplicationUpdate NotificationKind = "application_update"
	KindJobAlert          NotificationKind = "job_alert"
	KindSystem            NotificationKind = "system"
)

// NotificationRequest is the input to recipient resolution. The targeting
// fields (ToUserID, Broadcast, JobID, JobIDs) are interpreted; everything
// else is passed through to subscribers. Top-level fields this type does not
// declare land in Extra and are written back verbatim.
type NotificationRequest struct {
	Kind      NotificationKind       `json:"type,omitempty"`
	Title     string                 `json:"title,omitempty"`
	Message   string                 `json:"message,omitempty"`
	ToUserID  string                 `json:"toUserId,omitempty"`
	Broadcast bool                   `json:"broadcast,omitempty"`
	JobID     string                 `json:"jobId,omitempty"`
	JobIDs    []string               `json:"jobIds,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var notificationFields = map[string]struct{}{
	"type": {}, "title": {}, "message": {}, "toUserId": {}, "broadcast": {},
	"jobId": {}, "jobIds": {}, "metadata": {},
}

type notificationAlias NotificationRequest

func (n *NotificationRequest) UnmarshalJSON(data []byte) error {
	var alias notificationAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, value := range raw {
		if _, known := notificationFields[key]; known {
			continue
		}
		if alias.Extra == nil {
			alias.Extra = make(map[string]json.RawMessage)
		}
		alias.Extra[key] = value
	}

	*n = NotificationRequest(alias)
	return nil
}

func (n NotificationRequest) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(notificationAlias(n))
	if err != nil || len(n.Extra) == 0 {
		return data, err
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, value := range n.Extra {
		if _, known := notificationFields[key]; known {
			continue
		}
		merged[key] = value
	}
	return json.Marshal(merged)
}

// JobReferences returns JobID followed by JobIDs with blanks and repeats
// removed, in first-seen order.
func (n NotificationRequest) JobReferences() []string {
	seen := make(map[string]struct{}, len(n.JobIDs)+1)
	refs := make([]string, 0, len(n.JobIDs)+1)

	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		refs = append(refs, id)
	}

	add(n.JobID)
	for _, id := range n.JobIDs {
		add(id)
	}
	return refs
}

// Clone returns a deep copy; the copy shares no maps or slices with n.
func (n NotificationRequest) Clone() NotificationRequest {
	out := n
	if n.JobIDs != nil {
		out.JobIDs = append([]string(nil), n.JobIDs...)
	}
	if n.Metadata != nil {
		out.Metadata = cloneMap(n.Metadata)
	}
	if n.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(n.Extra))
		for k, v := range n.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// ForRecipient builds the delivery payload for one resolved applicant: a
// copy of n addressed to userID, carrying the full job list and the singular
// job id only when the list has exactly one entry.
func (n NotificationRequest) ForRecipient(userID string, jobIDs []string) DeliveryPayload {
	p := n.Clone()
	p.ToUserID = userID
	p.JobIDs = append([]string(nil), jobIDs...)
	p.JobID = ""
	if len(jobIDs) == 1 {
		p.JobID = jobIDs[0]
	}
	return DeliveryPayload{NotificationRequest: p}
}

// DeliveryPayload is one unit of work for the delivery queue.
type DeliveryPayload struct {
	NotificationRequest
}

func cloneMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

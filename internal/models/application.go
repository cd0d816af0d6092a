// internal/models/application.go
package models

// ApplicationRef is the slice of an application record recipient
// resolution needs: who applied to which job posting.
type ApplicationRef struct {
	UserID string `json:"userId" db:"user_id"`
	JobID  string `json:"jobId" db:"job_id"`
}

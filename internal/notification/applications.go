package notification

import (
	"context"
	"database/sql"
	"time"

	"jobboard-realtime/internal/common/metrics"
	"jobboard-realtime/internal/models"

	"github.com/lib/pq"
)

const findApplicationsByJobIDs = `
	SELECT user_id, job_id
	FROM applications
	WHERE job_id = ANY($1)
	ORDER BY created_at ASC`

// PostgresApplicationLookup reads application records from Postgres.
type PostgresApplicationLookup struct {
	db *sql.DB
}

func NewPostgresApplicationLookup(db *sql.DB) *PostgresApplicationLookup {
	return &PostgresApplicationLookup{db: db}
}

func (l *PostgresApplicationLookup) FindByJobIDs(ctx context.Context, jobIDs []string) ([]models.ApplicationRef, error) {
	start := time.Now()
	defer func() {
		metrics.StoreQueryDuration.WithLabelValues("applications_by_job", "postgres").Observe(time.Since(start).Seconds())
	}()

	rows, err := l.db.QueryContext(ctx, findApplicationsByJobIDs, pq.Array(jobIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []models.ApplicationRef
	for rows.Next() {
		var app models.ApplicationRef
		var userID sql.NullString
		if err := rows.Scan(&userID, &app.JobID); err != nil {
			return nil, err
		}
		app.UserID = userID.String
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

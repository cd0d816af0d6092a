// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"
)

// JobHandler completes or fails the job itself; a returned error is only logged.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job) error
}

// WorkerConfig configures one job worker.
type WorkerConfig struct {
	JobType       string
	MaxJobsActive int
	Timeout       time.Duration
}

type CamundaWorker struct {
	worker  worker.JobWorker
	logger  *zap.Logger
	jobType string
}

// NewWorker opens a job worker for cfg.JobType on client. The client stays
// owned by the caller.
func NewWorker(client zbc.Client, cfg WorkerConfig, handler JobHandler, logger *zap.Logger) *CamundaWorker {
	if cfg.MaxJobsActive <= 0 {
		cfg.MaxJobsActive = 32
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	jobWorker := client.NewJobWorker().
		JobType(cfg.JobType).
		Handler(func(client worker.JobClient, job entities.Job) {
			if err := handler.Handle(client, job); err != nil {
				logger.Error("handler returned error",
					zap.Error(err),
					zap.Int64("jobKey", job.Key),
					zap.String("jobType", cfg.JobType))
			}
		}).
		MaxJobsActive(cfg.MaxJobsActive).
		Timeout(cfg.Timeout).
		Open()

	logger.Info("worker started",
		zap.String("jobType", cfg.JobType),
		zap.Int("maxJobsActive", cfg.MaxJobsActive))

	return &CamundaWorker{worker: jobWorker, logger: logger, jobType: cfg.JobType}
}

// Stop closes the worker and waits for in-flight jobs.
func (w *CamundaWorker) Stop() {
	w.logger.Info("stopping worker", zap.String("jobType", w.jobType))
	w.worker.Close()
	w.worker.AwaitClose()
}

// cmd/realtime-server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"jobboard-realtime/internal/analytics"
	"jobboard-realtime/internal/analytics/esstore"
	"jobboard-realtime/internal/analytics/pgstore"
	"jobboard-realtime/internal/api"
	"jobboard-realtime/internal/common/aws"
	"jobboard-realtime/internal/common/camunda"
	"jobboard-realtime/internal/common/config"
	"jobboard-realtime/internal/common/database"
	"jobboard-realtime/internal/common/logger"
	"jobboard-realtime/internal/common/observability"
	"jobboard-realtime/internal/notification"
	"jobboard-realtime/internal/notification/queue"
	"jobboard-realtime/internal/realtime"

	dn "jobboard-realtime/internal/workers/notification/deliver-notification"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// delivery is the selected queue backend plus whatever drains it in-process.
type delivery struct {
	queue queue.Queue
	stop  func()
	// check is nil when the backend has no readiness probe of its own.
	check api.ReadinessCheck
}

func main() {
	bootLog := logger.New("info", "console", "stdout")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting realtime server...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
		zap.String("deliveryBackend", cfg.Delivery.Backend),
		zap.String("pageViewBackend", cfg.Analytics.PageViewBackend),
	)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("observability disabled", zap.Error(err))
	}
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	checks := map[string]api.ReadinessCheck{
		"postgres": pg.Ping,
		"redis":    rdb.Ping,
	}

	// --- Analytics stores ---
	sessions := pgstore.New(pg.DB)
	var pageViews analytics.PageViewStore = sessions

	if cfg.Analytics.PageViewBackend == config.BackendElasticsearch {
		var es *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")

		pageViews = esstore.New(es.Client, cfg.Database.Elasticsearch.PageViewIndex)
		checks["elasticsearch"] = es.Ping
	}

	// --- Realtime ---
	publisher := realtime.NewPublisher(rdb.Client, log, config.GetDuration(cfg.Delivery.PublishTimeout))
	hub := realtime.NewHub(rdb.Client, log)
	deliverer := notification.NewDeliverer(publisher, log)

	// --- Notification delivery backend ---
	dlv, err := setupDelivery(ctx, cfg, rdb, deliverer, log, zapLog)
	if err != nil {
		zapLog.Fatal("delivery backend failed", zap.Error(err))
	}
	if dlv.check != nil {
		checks[cfg.Delivery.Backend] = dlv.check
	}

	service := notification.NewService(
		notification.NewResolver(notification.NewPostgresApplicationLookup(pg.DB), log),
		notification.NewEnqueuer(dlv.queue, log),
		log,
	)
	aggregator := analytics.NewAggregator(pageViews, sessions, log,
		analytics.WithQueryTimeout(config.GetDuration(cfg.Analytics.QueryTimeout)))
	tracker := analytics.NewTracker(sessions, publisher, log)

	handler, err := api.NewHandler(api.Deps{
		Notifications: service,
		Analytics:     aggregator,
		Tracker:       tracker,
		Publisher:     publisher,
		Stream:        realtime.NewStreamHandler(hub, log, config.GetDuration(cfg.Server.StreamHeartbeat)),
		Checks:        checks,
		Logger:        log,
		ServiceName:   cfg.App.Name,
		Version:       cfg.App.Version,
	})
	if err != nil {
		zapLog.Fatal("api setup failed", zap.Error(err))
	}

	// WriteTimeout stays zero; streams are long-lived.
	srv := &http.Server{
		Addr: cfg.Server.Address,
		Handler: api.NewRouter(handler, api.RouterOptions{
			AllowedOrigins: cfg.Server.CORSAllowedOrigins,
			Observability:  obs,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, closing streams...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	// closing the hub ends every open stream so Shutdown does not wait on them
	hub.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	dlv.stop()

	zapLog.Info("Realtime server stopped gracefully")
}

func setupDelivery(ctx context.Context, cfg *config.Config, rdb *database.RedisClient, deliverer *notification.Deliverer, log logger.Logger, zapLog *zap.Logger) (*delivery, error) {
	switch cfg.Delivery.Backend {
	case config.DeliveryZeebe:
		var zc *camunda.Client
		err := retryWithBackoff(func() error {
			var err error
			zc, err = camunda.NewClient(cfg.Camunda.BrokerAddress)
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			return nil, err
		}
		zapLog.Info("Zeebe client connected successfully")

		jobType := cfg.Camunda.JobType
		if jobType == "" {
			jobType = dn.TaskType
		}
		w := camunda.NewWorker(zc.GetClient(), camunda.WorkerConfig{
			JobType:       jobType,
			MaxJobsActive: cfg.Camunda.MaxJobsActive,
			Timeout:       config.GetDuration(cfg.Camunda.Timeout),
		}, dn.NewHandler(dn.LoadConfig(), deliverer, log), zapLog)

		return &delivery{
			queue: queue.NewZeebeQueue(zc, cfg.Camunda.ProcessID, log),
			stop: func() {
				w.Stop()
				if err := zc.Close(); err != nil {
					zapLog.Error("Error closing Zeebe client", zap.Error(err))
				}
			},
			check: zc.HealthCheck,
		}, nil

	case config.DeliverySNS:
		client, err := aws.NewSNSClient(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		// SNS subscribers drain the topic; nothing runs in-process
		return &delivery{
			queue: queue.NewSNSQueue(client, cfg.AWS.SNSTopicARN, log),
			stop:  func() {},
		}, nil

	default:
		rq := queue.NewRedisQueue(rdb.Client, cfg.Delivery.RedisKey, log)
		consumeCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := rq.Consume(consumeCtx, deliverer.Handle); err != nil {
				zapLog.Error("delivery consumer stopped", zap.Error(err))
			}
		}()
		return &delivery{
			queue: rq,
			stop: func() {
				cancel()
				<-done
			},
		}, nil
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"multiphase-telemetry-dashboard/api/internal/alarmflow"
	"multiphase-telemetry-dashboard/api/internal/models"
	"multiphase-telemetry-dashboard/api/internal/repos"
	"multiphase-telemetry-dashboard/shared/cachex"
	"multiphase-telemetry-dashboard/shared/clients/notify"
	"multiphase-telemetry-dashboard/shared/config"
	"multiphase-telemetry-dashboard/shared/dbx"
	"multiphase-telemetry-dashboard/shared/events"
	"multiphase-telemetry-dashboard/shared/lockx"
	"multiphase-telemetry-dashboard/shared/logx"
	"multiphase-telemetry-dashboard/shared/metricsx"
	"multiphase-telemetry-dashboard/shared/mqx"
	"multiphase-telemetry-dashboard/shared/observability"
)

const (
	taskOfflineScan  = "offline.scan"
	offlineAlarmType = "Device Offline"
	offlineLockKey   = "alarm-worker:offline-scan"
)

func main() {
	cfg, problems := config.Load("alarm-worker", 8083)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		problems = append(problems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if cfg.AsynqRedisAddr == "" {
		problems = append(problems, config.Problem{Field: "ASYNQ_REDIS_ADDR", Message: "ASYNQ_REDIS_ADDR is required"})
	}
	if len(problems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	if cfg.OtelEnabled {
		if shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Version:     version,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		}); err == nil {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	dbPool, err := dbx.NewPool(cfg)
	if err != nil {
		logger.Error(context.Background(), "db_init_failed", "db init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer dbPool.Close()

	readingsRepo := repos.NewReadingsRepo(dbPool)
	alarmsRepo := repos.NewAlarmsRepo(dbPool)

	var producer *mqx.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = mqx.NewProducer(cfg)
		if err != nil {
			logger.Warn(context.Background(), "kafka_init_failed", "alarm events disabled",
				slog.String("error", err.Error()),
			)
			producer = nil
		} else {
			defer producer.Close()
		}
	}

	var notifier *notify.Client
	if cfg.AlarmWebhookURL != "" {
		notifier, err = notify.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "notify_init_failed", "webhook notifications disabled",
				slog.String("error", err.Error()),
			)
			notifier = nil
		}
	}

	cache, err := cachex.New(cfg)
	if err != nil {
		logger.Error(context.Background(), "redis_init_failed", "redis init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer cache.Close()

	scanner := &offlineScanner{
		cfg:      cfg,
		logger:   logger,
		readings: readingsRepo,
		alarms:   alarmsRepo,
		producer: producer,
		notifier: notifier,
		cache:    cache,
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.AsynqRedisAddr,
		Password: cfg.AsynqRedisPass,
		DB:       cfg.AsynqRedisDB,
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
		Queues: map[string]int{
			cfg.AsynqQueue: 1,
		},
	})
	defer server.Shutdown()

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskOfflineScan, scanner.scan)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
	})
	defer scheduler.Shutdown()
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	if _, err := scheduler.Register("@every "+strconv.Itoa(cfg.OfflineScanSec)+"s", asynq.NewTask(taskOfflineScan, nil, asynq.Queue(cfg.AsynqQueue))); err != nil {
		logger.Error(context.Background(), "scheduler_init_failed", "scheduler init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		logger.Error(context.Background(), "scheduler_start_failed", "scheduler start failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			info, err := inspector.GetQueueInfo(cfg.AsynqQueue)
			if err != nil {
				continue
			}
			metricsx.SetAsynqQueueDepth(cfg.AsynqQueue, info.Size)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "worker_start", "alarm worker started",
			slog.String("queue", cfg.AsynqQueue),
			slog.Int("scan_interval_sec", cfg.OfflineScanSec),
			slog.Int("offline_after_sec", cfg.OfflineAfterSec),
		)
		errCh <- server.Run(mux)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, asynq.ErrServerClosed) {
			logger.Error(context.Background(), "worker_failed", "worker failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	logger.Info(context.Background(), "worker_stop", "alarm worker stopped")
}

type offlineScanner struct {
	cfg      config.Config
	logger   logx.Logger
	readings *repos.ReadingsRepo
	alarms   *repos.AlarmsRepo
	producer *mqx.Producer
	notifier *notify.Client
	cache    *cachex.Client
}

// scan raises one offline alarm per silent device. A redis lock keeps
// concurrent worker replicas from double-raising.
func (s *offlineScanner) scan(ctx context.Context, _ *asynq.Task) error {
	ctx, span := otel.Tracer("asynq").Start(ctx, "offline.scan")
	span.SetAttributes(attribute.String("queue", s.cfg.AsynqQueue))
	defer span.End()

	lockTTL := time.Duration(s.cfg.OfflineScanSec) * time.Second
	lock, acquired, err := lockx.Acquire(ctx, s.cache.Client(), offlineLockKey, lockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer func() { _ = lockx.Release(ctx, s.cache.Client(), lock) }()

	cutoff := time.Now().UTC().Add(-time.Duration(s.cfg.OfflineAfterSec) * time.Second)
	stale, err := s.readings.StaleSerials(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	alarmType, alarmStatus, err := s.alarms.TypeAndStatusByName(ctx, offlineAlarmType, alarmflow.StatusActive)
	if err != nil {
		return err
	}

	raised := 0
	for _, device := range stale {
		open, err := s.alarms.HasOpenAlarm(ctx, device.SerialNumber, alarmType.TypeID)
		if err != nil {
			return err
		}
		if open {
			continue
		}
		if _, err := lockx.Extend(ctx, s.cache.Client(), lock); err != nil {
			s.logger.Warn(ctx, "lock_extend_failed", "offline scan lock extend failed",
				slog.String("error", err.Error()),
			)
		}

		message := "no readings since " + device.LastSeenAt.UTC().Format(time.RFC3339)
		alarmID, err := s.alarms.CreateAlarm(ctx, device.SerialNumber, alarmType.TypeID, alarmStatus.StatusID, &message, nil)
		if err != nil {
			return err
		}
		raised++
		metricsx.IncAlarmRaised(alarmType.Severity)
		s.publishOfflineEvent(ctx, device.TenantID, alarmID, device.SerialNumber, alarmType, alarmStatus, message)
		s.sendWebhook(ctx, device.TenantID, alarmID, device.SerialNumber, alarmType, alarmStatus, message)
	}

	s.logger.Info(ctx, "offline_scan_done", "offline scan finished",
		slog.Int("stale_devices", len(stale)),
		slog.Int("alarms_raised", raised),
	)
	return nil
}

func (s *offlineScanner) publishOfflineEvent(ctx context.Context, tenantID uuid.UUID, alarmID int64, serial string, alarmType models.AlarmType, alarmStatus models.AlarmStatus, message string) {
	if s.producer == nil {
		return
	}
	payload, err := json.Marshal(events.AlarmEventPayload{
		AlarmID:      alarmID,
		SerialNumber: serial,
		TypeName:     alarmType.Name,
		Severity:     alarmType.Severity,
		StatusName:   alarmStatus.Name,
		Message:      message,
	})
	if err != nil {
		return
	}
	env := events.Envelope{
		EventID:       uuid.New(),
		TenantID:      tenantID,
		OccurredAt:    time.Now().UTC(),
		AggregateType: "alarm",
		AggregateID:   strconv.FormatInt(alarmID, 10),
		EventType:     events.EventDeviceOffline,
		Payload:       payload,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := s.producer.Publish(ctx, events.TopicDeviceStatus, []byte(serial), raw, nil); err != nil {
		s.logger.Warn(ctx, "device_status_publish_failed", "device offline event publish failed",
			slog.Int64("alarm_id", alarmID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *offlineScanner) sendWebhook(ctx context.Context, tenantID uuid.UUID, alarmID int64, serial string, alarmType models.AlarmType, alarmStatus models.AlarmStatus, message string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.SendAlarm(ctx, notify.AlarmNotification{
		TenantID:     tenantID.String(),
		AlarmID:      alarmID,
		SerialNumber: serial,
		TypeName:     alarmType.Name,
		Severity:     alarmType.Severity,
		StatusName:   alarmStatus.Name,
		Message:      message,
		RaisedAt:     time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn(ctx, "alarm_webhook_failed", "offline alarm webhook failed",
			slog.Int64("alarm_id", alarmID),
			slog.String("error", err.Error()),
		)
	}
}

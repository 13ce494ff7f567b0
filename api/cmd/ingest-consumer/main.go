package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"multiphase-telemetry-dashboard/api/internal/models"
	"multiphase-telemetry-dashboard/api/internal/repos"
	"multiphase-telemetry-dashboard/shared/config"
	"multiphase-telemetry-dashboard/shared/dbx"
	"multiphase-telemetry-dashboard/shared/events"
	"multiphase-telemetry-dashboard/shared/influxx"
	"multiphase-telemetry-dashboard/shared/logx"
	"multiphase-telemetry-dashboard/shared/metricsx"
	"multiphase-telemetry-dashboard/shared/mqx"
	"multiphase-telemetry-dashboard/shared/observability"
)

func main() {
	cfg, problems := config.Load("ingest-consumer", 8082)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		problems = append(problems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if len(cfg.KafkaBrokers) == 0 {
		problems = append(problems, config.Problem{Field: "KAFKA_BROKERS", Message: "KAFKA_BROKERS is required"})
	}
	if cfg.KafkaGroupID == "" {
		problems = append(problems, config.Problem{Field: "KAFKA_CONSUMER_GROUP", Message: "KAFKA_CONSUMER_GROUP is required"})
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

	// The Influx mirror is optional: without it readings still land in
	// Postgres and charts keep working.
	var influx *influxx.Client
	if cfg.InfluxURL != "" {
		influx, err = influxx.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "influx_init_failed", "influx mirror disabled",
				slog.String("error", err.Error()),
			)
			influx = nil
		} else {
			defer influx.Close()
		}
	}

	reader, err := mqx.NewConsumer(cfg, events.TopicTelemetryReadings, cfg.KafkaGroupID)
	if err != nil {
		logger.Error(context.Background(), "kafka_init_failed", "kafka reader init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer reader.Close()

	readingsRepo := repos.NewReadingsRepo(dbPool)
	devicesRepo := repos.NewDevicesRepo(dbPool)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	logger = logger.With(
		slog.String("topic", events.TopicTelemetryReadings),
		slog.String("group", cfg.KafkaGroupID),
	)
	logger.Info(ctx, "consumer_start", "telemetry consumer started")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error(ctx, "kafka_fetch_failed", "failed to fetch message",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		spanCtx, span := otel.Tracer("mqx").Start(ctx, "kafka.consume")
		span.SetAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", events.TopicTelemetryReadings),
		)
		if err := handleReading(spanCtx, logger, readingsRepo, devicesRepo, influx, msg.Value); err != nil {
			span.End()
			metricsx.IncReadingRejected()
			logger.Error(ctx, "reading_handle_failed", "failed to handle reading",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			continue
		}
		span.End()
		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Error(ctx, "kafka_commit_failed", "failed to commit message",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
		}
		stats := reader.Stats()
		metricsx.SetKafkaLag(stats.Topic, cfg.KafkaGroupID, stats.Lag)
	}

	logger.Info(context.Background(), "consumer_stop", "telemetry consumer stopped")
}

func handleReading(ctx context.Context, logger logx.Logger, readings *repos.ReadingsRepo, devices *repos.DevicesRepo, influx *influxx.Client, payload []byte) error {
	var envelope events.Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return err
	}
	if envelope.EventID == uuid.Nil || envelope.EventType != events.EventReadingReceived {
		return errors.New("unexpected event envelope")
	}
	var reading events.ReadingPayload
	if err := json.Unmarshal(envelope.Payload, &reading); err != nil {
		return err
	}
	if reading.SerialNumber == "" || reading.RecordedAt.IsZero() || len(reading.Values) == 0 {
		return errors.New("missing serial_number/recorded_at/values")
	}

	// Readings for serials with no registered device are dropped.
	device, err := devices.GetDeviceBySerial(ctx, reading.SerialNumber)
	if err != nil {
		return err
	}

	if _, err := readings.InsertReading(ctx, models.DeviceReading{
		SerialNumber: reading.SerialNumber,
		RecordedAt:   reading.RecordedAt,
		Values:       reading.Values,
		Longitude:    reading.Longitude,
		Latitude:     reading.Latitude,
	}); err != nil {
		return err
	}
	if err := readings.UpsertLatest(ctx, reading.SerialNumber, reading.RecordedAt, reading.Values); err != nil {
		return err
	}
	metricsx.IncReadingIngested()

	if influx != nil {
		fields := make(map[string]any, len(reading.Values))
		for tag, v := range reading.Values {
			fields[tag] = v
		}
		err := influx.WritePoint(ctx, "device_readings", map[string]string{
			"serial_number": reading.SerialNumber,
			"tenant_id":     device.TenantID.String(),
			"type":          device.TypeName,
		}, fields, reading.RecordedAt)
		if err != nil {
			metricsx.IncInfluxWriteFailure()
			logger.Warn(ctx, "influx_write_failed", "influx mirror write failed",
				slog.String("serial_number", reading.SerialNumber),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

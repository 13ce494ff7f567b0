package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"multiphase-telemetry-dashboard/gateway/internal/routing"
	"multiphase-telemetry-dashboard/shared/config"
	"multiphase-telemetry-dashboard/shared/events"
	"multiphase-telemetry-dashboard/shared/httpx"
	"multiphase-telemetry-dashboard/shared/logx"
	"multiphase-telemetry-dashboard/shared/metricsx"
	"multiphase-telemetry-dashboard/shared/mqx"
	"multiphase-telemetry-dashboard/shared/observability"
)

const maxBodyBytes = 2 << 20

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
	Version string `json:"version,omitempty"`
}

type ingestRequest struct {
	TenantID     string             `json:"tenant_id"`
	Region       string             `json:"region"`
	SerialNumber string             `json:"serial_number"`
	RecordedAt   *time.Time         `json:"recorded_at,omitempty"`
	Values       map[string]float64 `json:"values"`
	Longitude    *float64           `json:"longitude,omitempty"`
	Latitude     *float64           `json:"latitude,omitempty"`
}

type ingestResponse struct {
	EventID      string `json:"event_id"`
	Cluster      string `json:"cluster"`
	Topic        string `json:"topic"`
	SerialNumber string `json:"serial_number"`
	RecordedAt   string `json:"recorded_at"`
}

func main() {
	cfg, readyProblems := config.Load("ingest-gateway", 8090)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)
	metricsx.Register()

	var shutdownTracer func(context.Context) error
	if cfg.OtelEnabled {
		var err error
		shutdownTracer, err = observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Version:     version,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		})
		if err != nil {
			logger.Error(context.Background(), "otel_init_failed", "otel init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}

	routesPath := strings.TrimSpace(os.Getenv("GATEWAY_ROUTES_PATH"))
	if routesPath == "" {
		if p, err := routing.DefaultRoutesPath(cfg.Env); err == nil {
			routesPath = p
		} else {
			readyProblems = append(readyProblems, config.Problem{Field: "GATEWAY_ROUTES_PATH", Message: "failed to resolve default routes path"})
		}
	}

	var resolver routing.Resolver
	if routesPath != "" {
		var err error
		resolver, err = routing.Load(routesPath)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "GATEWAY_ROUTES_PATH", Message: err.Error()})
		}
	} else {
		readyProblems = append(readyProblems, config.Problem{Field: "GATEWAY_ROUTES_PATH", Message: "routes config path is required"})
	}

	producers := map[string]*mqx.Producer{}
	if len(resolver.Config.Clusters) > 0 {
		for name, cluster := range resolver.Config.Clusters {
			clone := cfg
			clone.KafkaBrokers = cluster.Brokers
			if strings.TrimSpace(cluster.ClientID) != "" {
				clone.KafkaClientID = cluster.ClientID
			} else if strings.TrimSpace(cfg.ServiceName) != "" {
				clone.KafkaClientID = cfg.ServiceName + "-" + name
			}
			producer, err := mqx.NewProducer(clone)
			if err != nil {
				readyProblems = append(readyProblems, config.Problem{Field: "KAFKA_BROKERS", Message: fmt.Sprintf("cluster %s: %v", name, err)})
				continue
			}
			producers[name] = producer
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ok",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if len(readyProblems) > 0 {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: invalid configuration",
				map[string]any{"problems": readyProblems},
			)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ready",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.Handle("GET /metrics", metricsx.Handler())

	mux.HandleFunc("POST /v1/readings", func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeIngestRequest(r)
		if err != nil {
			metricsx.IncReadingRejected()
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
			return
		}
		clusterName, ok := resolver.ResolveCluster(req.TenantID, req.Region)
		if !ok {
			metricsx.IncReadingRejected()
			httpx.WriteError(w, r, http.StatusBadRequest, "FAILED_PRECONDITION", "no matching route for tenant/region", nil)
			return
		}
		producer, ok := producers[clusterName]
		if !ok || producer == nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "cluster producer unavailable", map[string]any{"cluster": clusterName})
			return
		}
		topic := resolver.ResolveTopic(events.EventReadingReceived)
		if topic == "" {
			topic = events.TopicTelemetryReadings
		}

		envelope, err := buildEnvelope(req)
		if err != nil {
			metricsx.IncReadingRejected()
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
			return
		}
		data, err := json.Marshal(envelope)
		if err != nil {
			httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to encode event", nil)
			return
		}

		headers := map[string]string{
			"tenant_id":     req.TenantID,
			"region":        req.Region,
			"serial_number": req.SerialNumber,
			"cluster":       clusterName,
			"request_id":    httpx.RequestIDFromContext(r.Context()),
		}

		// The serial number keys the partition so one device's readings
		// stay ordered.
		if err := producer.Publish(r.Context(), topic, []byte(req.SerialNumber), data, headers); err != nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "failed to publish reading", nil)
			return
		}

		httpx.WriteJSON(w, http.StatusAccepted, ingestResponse{
			EventID:      envelope.EventID.String(),
			Cluster:      clusterName,
			Topic:        topic,
			SerialNumber: req.SerialNumber,
			RecordedAt:   envelope.OccurredAt.UTC().Format(time.RFC3339),
		})
	})

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})

	handler := httpx.WrapServeMux(mux, notFound)
	handler = httpx.WithTimeout(cfg.RequestTimeout, handler)
	handler = httpx.WithRequestID(handler)
	handler = httpx.WithRecover(logger, handler)
	handler = metricsx.Instrument(handler)
	handler = httpx.WithRequestLog(logger, httpx.RequestLogOptions{SkipPaths: map[string]bool{"/healthz": true, "/metrics": true}}, handler)
	handler = otelhttp.NewHandler(handler, "http")

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "service_start", "starting service",
			slog.String("addr", server.Addr),
			slog.Int("http_port", cfg.HTTPPort),
			slog.String("log_level", cfg.LogLevel),
			slog.Int("request_timeout_ms", cfg.RequestTimeoutMS),
			slog.String("routes_path", routesPath),
		)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "server_failed", "server failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "shutdown_failed", "shutdown failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
	}
	for _, producer := range producers {
		if producer != nil {
			_ = producer.Close()
		}
	}
	if shutdownTracer != nil {
		_ = shutdownTracer(context.Background())
	}
	logger.Info(context.Background(), "service_stop", "service stopped")
}

func decodeIngestRequest(r *http.Request) (ingestRequest, error) {
	var req ingestRequest
	if err := httpx.DecodeJSON(r, maxBodyBytes, &req); err != nil {
		return ingestRequest{}, err
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.Region = strings.TrimSpace(req.Region)
	req.SerialNumber = strings.TrimSpace(req.SerialNumber)

	if req.TenantID == "" {
		return ingestRequest{}, errors.New("tenant_id is required")
	}
	if req.Region == "" {
		return ingestRequest{}, errors.New("region is required")
	}
	if req.SerialNumber == "" {
		return ingestRequest{}, errors.New("serial_number is required")
	}
	if len(req.Values) == 0 {
		return ingestRequest{}, errors.New("values are required")
	}
	for tag, v := range req.Values {
		if strings.TrimSpace(tag) == "" {
			return ingestRequest{}, errors.New("value tags must be non-empty")
		}
		if v != v {
			return ingestRequest{}, errors.New("values must be finite numbers")
		}
	}
	return req, nil
}

func buildEnvelope(req ingestRequest) (events.Envelope, error) {
	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		return events.Envelope{}, errors.New("tenant_id must be a UUID")
	}
	recordedAt := time.Now().UTC()
	if req.RecordedAt != nil {
		recordedAt = req.RecordedAt.UTC()
	}
	payload, err := json.Marshal(events.ReadingPayload{
		SerialNumber: req.SerialNumber,
		RecordedAt:   recordedAt,
		Values:       req.Values,
		Longitude:    req.Longitude,
		Latitude:     req.Latitude,
	})
	if err != nil {
		return events.Envelope{}, err
	}
	return events.Envelope{
		EventID:       uuid.New(),
		TenantID:      tenantID,
		OccurredAt:    recordedAt,
		AggregateType: "device",
		AggregateID:   req.SerialNumber,
		EventType:     events.EventReadingReceived,
		Payload:       payload,
	}, nil
}

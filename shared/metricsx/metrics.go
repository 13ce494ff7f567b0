package metricsx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	kafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag by topic.",
		},
		[]string{"topic", "group"},
	)
	influxWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "influx_write_failures_total",
			Help: "Total InfluxDB write failures.",
		},
	)
	readingsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "readings_ingested_total",
			Help: "Total raw readings persisted from the stream.",
		},
	)
	readingsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "readings_rejected_total",
			Help: "Total readings rejected by validation.",
		},
	)
	chartFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chart_synthetic_fallback_total",
			Help: "Chart responses served from the synthetic fallback series.",
		},
		[]string{"scope"},
	)
	chartCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chart_cache_requests_total",
			Help: "Chart cache lookups by outcome.",
		},
		[]string{"outcome"},
	)
	alarmsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alarms_raised_total",
			Help: "Alarms created, labeled by severity.",
		},
		[]string{"severity"},
	)
	asynqQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asynq_queue_depth",
			Help: "Asynq queue depth by queue.",
		},
		[]string{"queue"},
	)
)

func Register() {
	prometheus.MustRegister(
		httpRequests, httpLatency, kafkaConsumerLag, influxWriteFailures,
		readingsIngested, readingsRejected, chartFallbacks, chartCacheHits,
		alarmsRaised, asynqQueueDepth,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		status := strconv.Itoa(lrw.statusCode)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpLatency.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

func SetKafkaLag(topic string, group string, lag int64) {
	kafkaConsumerLag.WithLabelValues(topic, group).Set(float64(lag))
}

func IncInfluxWriteFailure() {
	influxWriteFailures.Inc()
}

func IncReadingIngested() {
	readingsIngested.Inc()
}

func IncReadingRejected() {
	readingsRejected.Inc()
}

func IncChartFallback(scope string) {
	chartFallbacks.WithLabelValues(scope).Inc()
}

func IncChartCacheHit() {
	chartCacheHits.WithLabelValues("hit").Inc()
}

func IncChartCacheMiss() {
	chartCacheHits.WithLabelValues("miss").Inc()
}

func IncAlarmRaised(severity string) {
	alarmsRaised.WithLabelValues(severity).Inc()
}

func SetAsynqQueueDepth(queue string, depth int) {
	asynqQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

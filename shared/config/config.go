package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Config struct {
	Env              string
	ServiceName      string
	HTTPPort         int
	LogLevel         string
	ConfigPath       string
	RequestTimeoutMS int
	RequestTimeout   time.Duration
	OIDCIssuer       string
	OIDCAudience     string
	OIDCJWKSURL      string
	JWKSTTLSeconds   int
	JWTClockSkewSec  int
	DatabaseURL      string
	DBMaxConns       int
	DBMinConns       int
	DBConnMaxIdleSec int
	DBConnMaxLifeSec int
	AuditEnabled     bool
	KafkaBrokers     []string
	KafkaClientID    string
	KafkaGroupID     string
	KafkaRetryMax    int
	KafkaWriteMS     int
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	AsynqRedisAddr   string
	AsynqRedisPass   string
	AsynqRedisDB     int
	AsynqQueue       string
	AsynqConcurrency int
	InfluxURL        string
	InfluxToken      string
	InfluxOrg        string
	InfluxBucket     string
	InfluxTimeoutMS  int
	ChartCacheTTLSec int
	OfflineScanSec   int
	OfflineAfterSec  int
	AlarmWebhookURL  string
	AlarmWebhookMS   int
	AlarmWebhookTry  int
	RateLimitRPS     float64
	RateLimitBurst   int
	OtelEnabled      bool
	OtelEndpoint     string
	OtelInsecure     bool
	OtelSampleRatio  float64
}

func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	envRaw := strings.TrimSpace(os.Getenv("ENV"))
	cfg := Config{
		Env:              envRaw,
		ServiceName:      serviceNameDefault,
		HTTPPort:         httpPortDefault,
		LogLevel:         "info",
		ConfigPath:       strings.TrimSpace(os.Getenv("CONFIG_PATH")),
		RequestTimeoutMS: 30000,
		OIDCIssuer:       strings.TrimSpace(os.Getenv("OIDC_ISSUER")),
		OIDCAudience:     strings.TrimSpace(os.Getenv("OIDC_AUDIENCE")),
		OIDCJWKSURL:      strings.TrimSpace(os.Getenv("OIDC_JWKS_URL")),
		JWKSTTLSeconds:   300,
		JWTClockSkewSec:  60,
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:       10,
		DBMinConns:       1,
		DBConnMaxIdleSec: 300,
		DBConnMaxLifeSec: 1800,
		AuditEnabled:     false,
		KafkaRetryMax:    5,
		KafkaWriteMS:     5000,
		AsynqQueue:       "default",
		AsynqConcurrency: 10,
		InfluxTimeoutMS:  5000,
		ChartCacheTTLSec: 30,
		OfflineScanSec:   60,
		OfflineAfterSec:  300,
		AlarmWebhookMS:   3000,
		AlarmWebhookTry:  2,
		RateLimitRPS:     20,
		RateLimitBurst:   40,
		OtelInsecure:     true,
		OtelSampleRatio:  1.0,
	}

	problems := make([]Problem, 0, 4)
	envProvided := envRaw != ""

	if repoRoot, ok := findRepoRoot(); ok && cfg.Env != "" && cfg.ConfigPath == "" {
		cfg.ConfigPath = filepath.Join(repoRoot, "configs", cfg.Env+".json")
	}

	if fileData, fileProblems, ok := loadConfigFile(cfg.ConfigPath, strings.TrimSpace(os.Getenv("CONFIG_PATH")) != ""); ok {
		problems = append(problems, fileProblems...)
		if fileEnv, ok := readStringKey(fileData, "ENV"); ok && strings.TrimSpace(fileEnv) != "" {
			envProvided = true
		}
		applyConfigMap(&cfg, fileData, &problems)
	} else {
		problems = append(problems, fileProblems...)
	}

	applyEnv(&cfg, &problems)

	// If issuer is set and no explicit JWKS URL is provided, default to issuer/.well-known/jwks.json.
	if cfg.OIDCIssuer != "" && strings.TrimSpace(cfg.OIDCJWKSURL) == "" {
		cfg.OIDCJWKSURL = strings.TrimRight(cfg.OIDCIssuer, "/") + "/.well-known/jwks.json"
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if !envProvided {
		problems = append(problems, Problem{Field: "ENV", Message: "ENV is required"})
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		problems = append(problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		cfg.HTTPPort = httpPortDefault
	}
	if cfg.RequestTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "REQUEST_TIMEOUT_MS", Message: "REQUEST_TIMEOUT_MS must be > 0"})
		cfg.RequestTimeoutMS = 30000
	}
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	if cfg.JWKSTTLSeconds <= 0 {
		problems = append(problems, Problem{Field: "JWKS_CACHE_TTL_SECONDS", Message: "JWKS_CACHE_TTL_SECONDS must be > 0"})
		cfg.JWKSTTLSeconds = 300
	}
	if cfg.JWTClockSkewSec < 0 {
		problems = append(problems, Problem{Field: "JWT_CLOCK_SKEW_SECONDS", Message: "JWT_CLOCK_SKEW_SECONDS must be >= 0"})
		cfg.JWTClockSkewSec = 60
	}
	if cfg.DBMaxConns <= 0 {
		problems = append(problems, Problem{Field: "DB_MAX_CONNS", Message: "DB_MAX_CONNS must be > 0"})
		cfg.DBMaxConns = 10
	}
	if cfg.DBMinConns < 0 {
		problems = append(problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be >= 0"})
		cfg.DBMinConns = 1
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		problems = append(problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be <= DB_MAX_CONNS"})
		cfg.DBMinConns = cfg.DBMaxConns
	}
	if cfg.DBConnMaxIdleSec <= 0 {
		problems = append(problems, Problem{Field: "DB_CONN_MAX_IDLE_SECONDS", Message: "DB_CONN_MAX_IDLE_SECONDS must be > 0"})
		cfg.DBConnMaxIdleSec = 300
	}
	if cfg.DBConnMaxLifeSec <= 0 {
		problems = append(problems, Problem{Field: "DB_CONN_MAX_LIFETIME_SECONDS", Message: "DB_CONN_MAX_LIFETIME_SECONDS must be > 0"})
		cfg.DBConnMaxLifeSec = 1800
	}
	if cfg.KafkaRetryMax < 0 {
		problems = append(problems, Problem{Field: "KAFKA_RETRY_MAX", Message: "KAFKA_RETRY_MAX must be >= 0"})
		cfg.KafkaRetryMax = 5
	}
	if cfg.KafkaWriteMS <= 0 {
		problems = append(problems, Problem{Field: "KAFKA_WRITE_TIMEOUT_MS", Message: "KAFKA_WRITE_TIMEOUT_MS must be > 0"})
		cfg.KafkaWriteMS = 5000
	}
	if cfg.RedisDB < 0 {
		problems = append(problems, Problem{Field: "REDIS_DB", Message: "REDIS_DB must be >= 0"})
		cfg.RedisDB = 0
	}
	if cfg.AsynqRedisDB < 0 {
		problems = append(problems, Problem{Field: "ASYNQ_REDIS_DB", Message: "ASYNQ_REDIS_DB must be >= 0"})
		cfg.AsynqRedisDB = 0
	}
	if cfg.AsynqConcurrency <= 0 {
		problems = append(problems, Problem{Field: "ASYNQ_CONCURRENCY", Message: "ASYNQ_CONCURRENCY must be > 0"})
		cfg.AsynqConcurrency = 10
	}
	if cfg.InfluxTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "INFLUX_TIMEOUT_MS", Message: "INFLUX_TIMEOUT_MS must be > 0"})
		cfg.InfluxTimeoutMS = 5000
	}
	if cfg.ChartCacheTTLSec < 0 {
		problems = append(problems, Problem{Field: "CHART_CACHE_TTL_SECONDS", Message: "CHART_CACHE_TTL_SECONDS must be >= 0"})
		cfg.ChartCacheTTLSec = 30
	}
	if cfg.OfflineScanSec <= 0 {
		problems = append(problems, Problem{Field: "OFFLINE_SCAN_INTERVAL_SECONDS", Message: "OFFLINE_SCAN_INTERVAL_SECONDS must be > 0"})
		cfg.OfflineScanSec = 60
	}
	if cfg.OfflineAfterSec <= 0 {
		problems = append(problems, Problem{Field: "OFFLINE_AFTER_SECONDS", Message: "OFFLINE_AFTER_SECONDS must be > 0"})
		cfg.OfflineAfterSec = 300
	}
	if cfg.AlarmWebhookMS <= 0 {
		problems = append(problems, Problem{Field: "ALARM_WEBHOOK_TIMEOUT_MS", Message: "ALARM_WEBHOOK_TIMEOUT_MS must be > 0"})
		cfg.AlarmWebhookMS = 3000
	}
	if cfg.AlarmWebhookTry < 0 {
		problems = append(problems, Problem{Field: "ALARM_WEBHOOK_RETRY_MAX", Message: "ALARM_WEBHOOK_RETRY_MAX must be >= 0"})
		cfg.AlarmWebhookTry = 2
	}
	if cfg.RateLimitRPS <= 0 {
		problems = append(problems, Problem{Field: "RATE_LIMIT_RPS", Message: "RATE_LIMIT_RPS must be > 0"})
		cfg.RateLimitRPS = 20
	}
	if cfg.RateLimitBurst <= 0 {
		problems = append(problems, Problem{Field: "RATE_LIMIT_BURST", Message: "RATE_LIMIT_BURST must be > 0"})
		cfg.RateLimitBurst = 40
	}
	if cfg.OtelSampleRatio < 0 || cfg.OtelSampleRatio > 1 {
		problems = append(problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be 0-1"})
		cfg.OtelSampleRatio = 1.0
	}

	return cfg, problems
}

func findRepoRoot() (string, bool) {
	start, err := os.Getwd()
	if err != nil {
		return "", false
	}
	dir := start
	for i := 0; i < 8; i++ {
		candidate := filepath.Join(dir, "configs")
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func loadConfigFile(path string, explicit bool) (map[string]any, []Problem, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, false
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if explicit && !errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("failed to read config file: %v", err)}}, false
		}
		if explicit && errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: "config file not found"}}, false
		}
		return nil, nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("invalid json: %v", err)}}, false
	}
	return raw, nil, true
}

func applyEnv(cfg *Config, problems *[]Problem) {
	if v := strings.TrimSpace(os.Getenv("SERVICE_NAME")); v != "" {
		cfg.ServiceName = v
	}

	portRaw := strings.TrimSpace(os.Getenv("HTTP_PORT"))
	if portRaw == "" {
		portRaw = strings.TrimSpace(os.Getenv("PORT"))
	}
	if portRaw != "" {
		if p, err := strconv.Atoi(portRaw); err != nil || p <= 0 || p > 65535 {
			*problems = append(*problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		} else {
			cfg.HTTPPort = p
		}
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}

	applyIntEnv(problems, "REQUEST_TIMEOUT_MS", &cfg.RequestTimeoutMS)

	if v := strings.TrimSpace(os.Getenv("OIDC_ISSUER")); v != "" {
		cfg.OIDCIssuer = v
	}
	if v := strings.TrimSpace(os.Getenv("OIDC_AUDIENCE")); v != "" {
		cfg.OIDCAudience = v
	}
	if v := strings.TrimSpace(os.Getenv("OIDC_JWKS_URL")); v != "" {
		cfg.OIDCJWKSURL = v
	}
	applyIntEnv(problems, "JWKS_CACHE_TTL_SECONDS", &cfg.JWKSTTLSeconds)
	applyIntEnv(problems, "JWT_CLOCK_SKEW_SECONDS", &cfg.JWTClockSkewSec)
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	applyIntEnv(problems, "DB_MAX_CONNS", &cfg.DBMaxConns)
	applyIntEnv(problems, "DB_MIN_CONNS", &cfg.DBMinConns)
	applyIntEnv(problems, "DB_CONN_MAX_IDLE_SECONDS", &cfg.DBConnMaxIdleSec)
	applyIntEnv(problems, "DB_CONN_MAX_LIFETIME_SECONDS", &cfg.DBConnMaxLifeSec)
	applyBoolEnv(problems, "AUDIT_ENABLED", &cfg.AuditEnabled)
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.KafkaBrokers = parseCSV(v)
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_CLIENT_ID")); v != "" {
		cfg.KafkaClientID = v
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_CONSUMER_GROUP")); v != "" {
		cfg.KafkaGroupID = v
	}
	applyIntEnv(problems, "KAFKA_RETRY_MAX", &cfg.KafkaRetryMax)
	applyIntEnv(problems, "KAFKA_WRITE_TIMEOUT_MS", &cfg.KafkaWriteMS)
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_PASSWORD")); v != "" {
		cfg.RedisPassword = v
	}
	applyIntEnv(problems, "REDIS_DB", &cfg.RedisDB)
	if v := strings.TrimSpace(os.Getenv("ASYNQ_REDIS_ADDR")); v != "" {
		cfg.AsynqRedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ASYNQ_REDIS_PASSWORD")); v != "" {
		cfg.AsynqRedisPass = v
	}
	applyIntEnv(problems, "ASYNQ_REDIS_DB", &cfg.AsynqRedisDB)
	if v := strings.TrimSpace(os.Getenv("ASYNQ_QUEUE")); v != "" {
		cfg.AsynqQueue = v
	}
	applyIntEnv(problems, "ASYNQ_CONCURRENCY", &cfg.AsynqConcurrency)
	if v := strings.TrimSpace(os.Getenv("INFLUX_URL")); v != "" {
		cfg.InfluxURL = v
	}
	if v := strings.TrimSpace(os.Getenv("INFLUX_TOKEN")); v != "" {
		cfg.InfluxToken = v
	}
	if v := strings.TrimSpace(os.Getenv("INFLUX_ORG")); v != "" {
		cfg.InfluxOrg = v
	}
	if v := strings.TrimSpace(os.Getenv("INFLUX_BUCKET")); v != "" {
		cfg.InfluxBucket = v
	}
	applyIntEnv(problems, "INFLUX_TIMEOUT_MS", &cfg.InfluxTimeoutMS)
	applyIntEnv(problems, "CHART_CACHE_TTL_SECONDS", &cfg.ChartCacheTTLSec)
	applyIntEnv(problems, "OFFLINE_SCAN_INTERVAL_SECONDS", &cfg.OfflineScanSec)
	applyIntEnv(problems, "OFFLINE_AFTER_SECONDS", &cfg.OfflineAfterSec)
	if v := strings.TrimSpace(os.Getenv("ALARM_WEBHOOK_URL")); v != "" {
		cfg.AlarmWebhookURL = v
	}
	applyIntEnv(problems, "ALARM_WEBHOOK_TIMEOUT_MS", &cfg.AlarmWebhookMS)
	applyIntEnv(problems, "ALARM_WEBHOOK_RETRY_MAX", &cfg.AlarmWebhookTry)
	applyFloatEnv(problems, "RATE_LIMIT_RPS", &cfg.RateLimitRPS)
	applyIntEnv(problems, "RATE_LIMIT_BURST", &cfg.RateLimitBurst)
	applyBoolEnv(problems, "OTEL_ENABLED", &cfg.OtelEnabled)
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.OtelEndpoint = v
	}
	applyBoolEnv(problems, "OTEL_EXPORTER_OTLP_INSECURE", &cfg.OtelInsecure)
	applyFloatEnv(problems, "OTEL_SAMPLE_RATIO", &cfg.OtelSampleRatio)
}

func applyIntEnv(problems *[]Problem, key string, dest *int) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be an integer"})
		return
	}
	*dest = n
}

func applyFloatEnv(problems *[]Problem, key string, dest *float64) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be a number"})
		return
	}
	*dest = f
}

func applyBoolEnv(problems *[]Problem, key string, dest *bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	b, ok := asBool(v)
	if !ok {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be a boolean"})
		return
	}
	*dest = b
}

func applyConfigMap(cfg *Config, raw map[string]any, problems *[]Problem) {
	for k, v := range raw {
		key := strings.ToUpper(strings.TrimSpace(k))
		switch key {
		case "ENV":
			if s, ok := v.(string); ok {
				cfg.Env = strings.TrimSpace(s)
			}
		case "SERVICE_NAME":
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				cfg.ServiceName = strings.TrimSpace(s)
			}
		case "HTTP_PORT":
			p, ok := asInt(v)
			if !ok || p <= 0 || p > 65535 {
				*problems = append(*problems, Problem{Field: key, Message: "HTTP_PORT must be 1-65535"})
			} else {
				cfg.HTTPPort = p
			}
		case "LOG_LEVEL":
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				cfg.LogLevel = strings.TrimSpace(s)
			}
		case "REQUEST_TIMEOUT_MS":
			applyIntKey(problems, key, v, &cfg.RequestTimeoutMS)
		case "OIDC_ISSUER":
			applyStringKey(v, &cfg.OIDCIssuer)
		case "OIDC_AUDIENCE":
			applyStringKey(v, &cfg.OIDCAudience)
		case "OIDC_JWKS_URL":
			applyStringKey(v, &cfg.OIDCJWKSURL)
		case "JWKS_CACHE_TTL_SECONDS":
			applyIntKey(problems, key, v, &cfg.JWKSTTLSeconds)
		case "JWT_CLOCK_SKEW_SECONDS":
			applyIntKey(problems, key, v, &cfg.JWTClockSkewSec)
		case "DATABASE_URL":
			applyStringKey(v, &cfg.DatabaseURL)
		case "DB_MAX_CONNS":
			applyIntKey(problems, key, v, &cfg.DBMaxConns)
		case "DB_MIN_CONNS":
			applyIntKey(problems, key, v, &cfg.DBMinConns)
		case "DB_CONN_MAX_IDLE_SECONDS":
			applyIntKey(problems, key, v, &cfg.DBConnMaxIdleSec)
		case "DB_CONN_MAX_LIFETIME_SECONDS":
			applyIntKey(problems, key, v, &cfg.DBConnMaxLifeSec)
		case "AUDIT_ENABLED":
			applyBoolKey(problems, key, v, &cfg.AuditEnabled)
		case "KAFKA_BROKERS":
			if s, ok := v.(string); ok {
				cfg.KafkaBrokers = parseCSV(s)
			} else if arr, ok := v.([]any); ok {
				cfg.KafkaBrokers = parseAnyCSV(arr)
			}
		case "KAFKA_CLIENT_ID":
			applyStringKey(v, &cfg.KafkaClientID)
		case "KAFKA_CONSUMER_GROUP":
			applyStringKey(v, &cfg.KafkaGroupID)
		case "KAFKA_RETRY_MAX":
			applyIntKey(problems, key, v, &cfg.KafkaRetryMax)
		case "KAFKA_WRITE_TIMEOUT_MS":
			applyIntKey(problems, key, v, &cfg.KafkaWriteMS)
		case "REDIS_ADDR":
			applyStringKey(v, &cfg.RedisAddr)
		case "REDIS_PASSWORD":
			if s, ok := v.(string); ok {
				cfg.RedisPassword = s
			}
		case "REDIS_DB":
			applyIntKey(problems, key, v, &cfg.RedisDB)
		case "ASYNQ_REDIS_ADDR":
			applyStringKey(v, &cfg.AsynqRedisAddr)
		case "ASYNQ_REDIS_PASSWORD":
			if s, ok := v.(string); ok {
				cfg.AsynqRedisPass = s
			}
		case "ASYNQ_REDIS_DB":
			applyIntKey(problems, key, v, &cfg.AsynqRedisDB)
		case "ASYNQ_QUEUE":
			applyStringKey(v, &cfg.AsynqQueue)
		case "ASYNQ_CONCURRENCY":
			applyIntKey(problems, key, v, &cfg.AsynqConcurrency)
		case "INFLUX_URL":
			applyStringKey(v, &cfg.InfluxURL)
		case "INFLUX_TOKEN":
			if s, ok := v.(string); ok {
				cfg.InfluxToken = s
			}
		case "INFLUX_ORG":
			applyStringKey(v, &cfg.InfluxOrg)
		case "INFLUX_BUCKET":
			applyStringKey(v, &cfg.InfluxBucket)
		case "INFLUX_TIMEOUT_MS":
			applyIntKey(problems, key, v, &cfg.InfluxTimeoutMS)
		case "CHART_CACHE_TTL_SECONDS":
			applyIntKey(problems, key, v, &cfg.ChartCacheTTLSec)
		case "OFFLINE_SCAN_INTERVAL_SECONDS":
			applyIntKey(problems, key, v, &cfg.OfflineScanSec)
		case "OFFLINE_AFTER_SECONDS":
			applyIntKey(problems, key, v, &cfg.OfflineAfterSec)
		case "ALARM_WEBHOOK_URL":
			applyStringKey(v, &cfg.AlarmWebhookURL)
		case "ALARM_WEBHOOK_TIMEOUT_MS":
			applyIntKey(problems, key, v, &cfg.AlarmWebhookMS)
		case "ALARM_WEBHOOK_RETRY_MAX":
			applyIntKey(problems, key, v, &cfg.AlarmWebhookTry)
		case "RATE_LIMIT_RPS":
			applyFloatKey(problems, key, v, &cfg.RateLimitRPS)
		case "RATE_LIMIT_BURST":
			applyIntKey(problems, key, v, &cfg.RateLimitBurst)
		case "OTEL_ENABLED":
			applyBoolKey(problems, key, v, &cfg.OtelEnabled)
		case "OTEL_EXPORTER_OTLP_ENDPOINT":
			applyStringKey(v, &cfg.OtelEndpoint)
		case "OTEL_EXPORTER_OTLP_INSECURE":
			applyBoolKey(problems, key, v, &cfg.OtelInsecure)
		case "OTEL_SAMPLE_RATIO":
			applyFloatKey(problems, key, v, &cfg.OtelSampleRatio)
		}
	}
}

func applyStringKey(v any, dest *string) {
	if s, ok := v.(string); ok {
		*dest = strings.TrimSpace(s)
	}
}

func applyIntKey(problems *[]Problem, key string, v any, dest *int) {
	n, ok := asInt(v)
	if !ok {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be an integer"})
		return
	}
	*dest = n
}

func applyFloatKey(problems *[]Problem, key string, v any, dest *float64) {
	f, ok := asFloat(v)
	if !ok {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be a number"})
		return
	}
	*dest = f
}

func applyBoolKey(problems *[]Problem, key string, v any, dest *bool) {
	switch t := v.(type) {
	case bool:
		*dest = t
	case string:
		if b, ok := asBool(t); ok {
			*dest = b
		} else {
			*problems = append(*problems, Problem{Field: key, Message: key + " must be a boolean"})
		}
	default:
		*problems = append(*problems, Problem{Field: key, Message: key + " must be a boolean"})
	}
}

func readStringKey(raw map[string]any, key string) (string, bool) {
	for k, v := range raw {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			s, ok := v.(string)
			return s, ok
		}
	}
	return "", false
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		return i, err == nil
	default:
		return 0, false
	}
}

func asBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y":
		return true, true
	case "false", "0", "no", "n":
		return false, true
	default:
		return false, false
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAnyCSV(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

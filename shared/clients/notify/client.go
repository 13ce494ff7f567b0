package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"multiphase-telemetry-dashboard/shared/config"
)

// Client delivers alarm notifications to an external webhook. Failures trip a
// circuit breaker so a dead endpoint does not stall the worker.
type Client struct {
	webhookURL string
	timeout    time.Duration
	retryMax   int
	http       *http.Client
	breaker    *circuitBreaker
}

type AlarmNotification struct {
	TenantID     string    `json:"tenant_id"`
	AlarmID      int64     `json:"alarm_id"`
	SerialNumber string    `json:"serial_number"`
	TypeName     string    `json:"type_name"`
	Severity     string    `json:"severity"`
	StatusName   string    `json:"status_name"`
	Message      string    `json:"message,omitempty"`
	RaisedAt     time.Time `json:"raised_at"`
}

func New(cfg config.Config) (*Client, error) {
	if cfg.AlarmWebhookURL == "" {
		return nil, errors.New("ALARM_WEBHOOK_URL is required")
	}
	timeout := time.Duration(cfg.AlarmWebhookMS) * time.Millisecond
	return &Client{
		webhookURL: cfg.AlarmWebhookURL,
		timeout:    timeout,
		retryMax:   cfg.AlarmWebhookTry,
		http:       &http.Client{Timeout: timeout},
		breaker:    newCircuitBreaker(5, 30*time.Second),
	}, nil
}

func (c *Client) SendAlarm(ctx context.Context, n AlarmNotification) error {
	if c == nil || c.http == nil {
		return errors.New("notify client not initialized")
	}
	if c.breaker.Open() {
		return errors.New("notify circuit open")
	}
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.breaker.Fail()
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			lastErr = errors.New("webhook server error")
			c.breaker.Fail()
			continue
		}
		if resp.StatusCode >= 300 {
			return errors.New("webhook rejected notification")
		}
		c.breaker.Success()
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("webhook delivery failed")
	}
	return lastErr
}

type circuitBreaker struct {
	mu            sync.Mutex
	failures      int
	openUntil     time.Time
	threshold     int
	resetDuration time.Duration
}

func newCircuitBreaker(threshold int, reset time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, resetDuration: reset}
}

func (b *circuitBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openUntil.IsZero() {
		return false
	}
	if time.Now().After(b.openUntil) {
		b.openUntil = time.Time{}
		b.failures = 0
		return false
	}
	return true
}

func (b *circuitBreaker) Fail() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.openUntil = time.Now().Add(b.resetDuration)
	}
}

func (b *circuitBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
}

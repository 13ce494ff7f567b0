//go:build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"multiphase-telemetry-dashboard/api/internal/models"
	"multiphase-telemetry-dashboard/api/internal/repos"
)

// TestLatestReadingRawFallback covers the realtime read for a device that
// has raw readings but no latest-projection row yet, as happens between a
// device's first message and the consumer's projection upsert.
func TestLatestReadingRawFallback(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	readings := repos.NewReadingsRepo(pool)
	serial := "it-" + uuid.NewString()[:8]
	recorded := time.Now().UTC().Truncate(time.Second).Add(-time.Minute)

	id, err := readings.InsertReading(ctx, models.DeviceReading{
		SerialNumber: serial,
		RecordedAt:   recorded,
		Values:       map[string]float64{"oil": 12.5, "water": 30},
	})
	if err != nil {
		t.Fatalf("insert reading failed: %v", err)
	}
	defer pool.Exec(context.Background(), `DELETE FROM device_readings WHERE reading_id = $1`, id)

	latest, err := readings.LatestForSerial(ctx, serial)
	if err != nil {
		t.Fatalf("latest read failed: %v", err)
	}
	if latest.SerialNumber != serial {
		t.Fatalf("serial = %s, want %s", latest.SerialNumber, serial)
	}
	if latest.Values["oil"] != 12.5 {
		t.Fatalf("values = %v", latest.Values)
	}
	if !latest.RecordedAt.Equal(recorded) {
		t.Fatalf("recordedAt = %v, want %v", latest.RecordedAt, recorded)
	}
	// Without a projection row received_at degrades to the raw recorded_at.
	if !latest.ReceivedAt.Equal(recorded) {
		t.Fatalf("receivedAt = %v, want %v", latest.ReceivedAt, recorded)
	}

	batch, err := readings.LatestForSerials(ctx, []string{serial})
	if err != nil {
		t.Fatalf("batch latest failed: %v", err)
	}
	if len(batch) != 1 || batch[0].Values["water"] != 30 {
		t.Fatalf("batch latest = %+v", batch)
	}
}

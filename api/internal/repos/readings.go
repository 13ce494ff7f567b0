package repos

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"multiphase-telemetry-dashboard/api/internal/aggregate"
	"multiphase-telemetry-dashboard/api/internal/models"
)

type ReadingsRepo struct {
	pool *pgxpool.Pool
}

func NewReadingsRepo(pool *pgxpool.Pool) *ReadingsRepo {
	return &ReadingsRepo{pool: pool}
}

func (r *ReadingsRepo) InsertReading(ctx context.Context, reading models.DeviceReading) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO device_readings (serial_number, recorded_at, reading_values, longitude, latitude)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING reading_id
	`, reading.SerialNumber, reading.RecordedAt.UTC(), reading.Values, reading.Longitude, reading.Latitude).Scan(&id)
	return id, err
}

// UpsertLatest maintains the per-device latest snapshot. The guard keeps the
// newest recorded_at in place when messages arrive out of order.
func (r *ReadingsRepo) UpsertLatest(ctx context.Context, serial string, recordedAt time.Time, values map[string]float64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO device_latest (serial_number, recorded_at, reading_values, received_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (serial_number) DO UPDATE SET
			recorded_at = EXCLUDED.recorded_at,
			reading_values = EXCLUDED.reading_values,
			received_at = EXCLUDED.received_at
		WHERE EXCLUDED.recorded_at >= device_latest.recorded_at
	`, serial, recordedAt.UTC(), values)
	return err
}

func (r *ReadingsRepo) RangeBySerial(ctx context.Context, serial string, start, end time.Time) ([]aggregate.Reading, error) {
	return r.RangeBySerials(ctx, []string{serial}, start, end)
}

func (r *ReadingsRepo) RangeBySerials(ctx context.Context, serials []string, start, end time.Time) ([]aggregate.Reading, error) {
	if len(serials) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT serial_number, recorded_at, reading_values
		FROM device_readings
		WHERE serial_number = ANY($1) AND recorded_at >= $2 AND recorded_at <= $3
		ORDER BY recorded_at
	`, serials, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []aggregate.Reading
	for rows.Next() {
		var rd aggregate.Reading
		if err := rows.Scan(&rd.SerialNumber, &rd.RecordedAt, &rd.Values); err != nil {
			return nil, err
		}
		readings = append(readings, rd)
	}
	return readings, rows.Err()
}

// SeriesBySerials is the widget-series variant of RangeBySerials: oldest
// first, capped at limit rows.
func (r *ReadingsRepo) SeriesBySerials(ctx context.Context, serials []string, start, end time.Time, limit int) ([]aggregate.Reading, error) {
	if len(serials) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > 2000 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
		SELECT serial_number, recorded_at, reading_values
		FROM device_readings
		WHERE serial_number = ANY($1) AND recorded_at >= $2 AND recorded_at <= $3
		ORDER BY recorded_at
		LIMIT $4
	`, serials, start.UTC(), end.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []aggregate.Reading
	for rows.Next() {
		var rd aggregate.Reading
		if err := rows.Scan(&rd.SerialNumber, &rd.RecordedAt, &rd.Values); err != nil {
			return nil, err
		}
		readings = append(readings, rd)
	}
	return readings, rows.Err()
}

// LatestForSerials reads the latest projections, falling back to the newest
// raw reading for devices whose projection row is missing.
func (r *ReadingsRepo) LatestForSerials(ctx context.Context, serials []string) ([]aggregate.Latest, error) {
	if len(serials) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT s.serial, COALESCE(dl.reading_values, raw.reading_values)
		FROM unnest($1::text[]) AS s(serial)
		LEFT JOIN device_latest dl ON dl.serial_number = s.serial
		LEFT JOIN LATERAL (
			SELECT reading_values FROM device_readings
			WHERE serial_number = s.serial
			ORDER BY recorded_at DESC LIMIT 1
		) raw ON dl.serial_number IS NULL
		WHERE dl.serial_number IS NOT NULL OR raw.reading_values IS NOT NULL
	`, serials)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var latest []aggregate.Latest
	for rows.Next() {
		var l aggregate.Latest
		if err := rows.Scan(&l.SerialNumber, &l.Values); err != nil {
			return nil, err
		}
		latest = append(latest, l)
	}
	return latest, rows.Err()
}

// LatestForSerial reads one device's latest projection, falling back to the
// newest raw reading when no projection row exists yet.
func (r *ReadingsRepo) LatestForSerial(ctx context.Context, serial string) (models.LatestReading, error) {
	var l models.LatestReading
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(dl.serial_number, raw.serial_number),
		       COALESCE(dl.recorded_at, raw.recorded_at),
		       COALESCE(dl.reading_values, raw.reading_values),
		       COALESCE(dl.received_at, raw.recorded_at)
		FROM (SELECT $1::text AS serial) s
		LEFT JOIN device_latest dl ON dl.serial_number = s.serial
		LEFT JOIN LATERAL (
			SELECT serial_number, recorded_at, reading_values
			FROM device_readings
			WHERE serial_number = s.serial
			ORDER BY recorded_at DESC LIMIT 1
		) raw ON dl.serial_number IS NULL
		WHERE dl.serial_number IS NOT NULL OR raw.serial_number IS NOT NULL
	`, serial).Scan(&l.SerialNumber, &l.RecordedAt, &l.Values, &l.ReceivedAt)
	return l, err
}

// StaleSerials lists devices whose latest snapshot is older than the cutoff,
// with their tenant, for the offline scanner.
func (r *ReadingsRepo) StaleSerials(ctx context.Context, cutoff time.Time) ([]models.StaleDevice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT d.serial_number, d.tenant_id, dl.recorded_at
		FROM devices d
		JOIN device_latest dl ON dl.serial_number = d.serial_number
		WHERE dl.recorded_at < $1
		ORDER BY dl.recorded_at
	`, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stale []models.StaleDevice
	for rows.Next() {
		var s models.StaleDevice
		if err := rows.Scan(&s.SerialNumber, &s.TenantID, &s.LastSeenAt); err != nil {
			return nil, err
		}
		stale = append(stale, s)
	}
	return stale, rows.Err()
}

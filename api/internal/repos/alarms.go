package repos

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"multiphase-telemetry-dashboard/api/internal/alarmflow"
	"multiphase-telemetry-dashboard/api/internal/models"
)

type AlarmsRepo struct {
	pool *pgxpool.Pool
}

func NewAlarmsRepo(pool *pgxpool.Pool) *AlarmsRepo {
	return &AlarmsRepo{pool: pool}
}

// AlarmFilter narrows alarm listings. Zero values mean "no constraint".
// NodeIDs carries a pre-resolved hierarchy subtree; SerialNumber matches as
// a case-insensitive substring.
type AlarmFilter struct {
	StatusID     int64
	TypeID       int64
	Severity     string
	SerialNumber string
	NodeIDs      []int64
	From, To     time.Time
	SortBy       string
	SortOrder    string
	Limit        int
	Offset       int
}

// Sortable alarm columns, keyed by the API parameter name.
var alarmSortColumns = map[string]string{
	"created_at":      "a.created_at",
	"updated_at":      "a.updated_at",
	"acknowledged_at": "a.acknowledged_at",
	"resolved_at":     "a.resolved_at",
	"serial_number":   "a.serial_number",
	"severity":        "at.severity",
	"status":          "ast.name",
}

// alarmOrderBy renders the ORDER BY clause from whitelisted column and
// direction names. Anything off the whitelist falls back to newest first.
func alarmOrderBy(sortBy string, sortOrder string) string {
	col, ok := alarmSortColumns[strings.ToLower(strings.TrimSpace(sortBy))]
	if !ok {
		col = "a.created_at"
	}
	dir := "DESC"
	if strings.EqualFold(strings.TrimSpace(sortOrder), "asc") {
		dir = "ASC"
	}
	return " ORDER BY " + col + " " + dir
}

const alarmColumns = `
	a.alarm_id, a.serial_number, a.type_id, at.name, at.severity,
	a.status_id, ast.name, a.message, a.metadata,
	a.acknowledged_by, a.acknowledged_at, a.resolved_by, a.resolved_at,
	a.created_at, a.updated_at`

const alarmJoins = `
	FROM alarms a
	JOIN alarm_types at ON at.type_id = a.type_id
	JOIN alarm_statuses ast ON ast.status_id = a.status_id
	JOIN devices d ON d.serial_number = a.serial_number`

func scanAlarm(row interface{ Scan(...any) error }) (models.Alarm, error) {
	var a models.Alarm
	err := row.Scan(&a.AlarmID, &a.SerialNumber, &a.TypeID, &a.TypeName, &a.Severity,
		&a.StatusID, &a.StatusName, &a.Message, &a.Metadata,
		&a.AcknowledgedBy, &a.AcknowledgedAt, &a.ResolvedBy, &a.ResolvedAt,
		&a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func alarmWhere(tenantID uuid.UUID, filter AlarmFilter) *whereBuilder {
	wb := &whereBuilder{}
	wb.add("d.tenant_id = $%d", tenantID)
	if filter.StatusID != 0 {
		wb.add("a.status_id = $%d", filter.StatusID)
	}
	if filter.TypeID != 0 {
		wb.add("a.type_id = $%d", filter.TypeID)
	}
	if filter.Severity != "" {
		wb.add("at.severity = $%d", filter.Severity)
	}
	if filter.SerialNumber != "" {
		wb.add("a.serial_number ILIKE $%d", "%"+filter.SerialNumber+"%")
	}
	if len(filter.NodeIDs) > 0 {
		wb.add("d.node_id = ANY($%d)", filter.NodeIDs)
	}
	if !filter.From.IsZero() {
		wb.add("a.created_at >= $%d", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		wb.add("a.created_at <= $%d", filter.To.UTC())
	}
	return wb
}

func (r *AlarmsRepo) ListAlarms(ctx context.Context, tenantID uuid.UUID, filter AlarmFilter) ([]models.Alarm, int64, error) {
	wb := alarmWhere(tenantID, filter)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+alarmJoins+` `+wb.where(), wb.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	sql := `SELECT` + alarmColumns + alarmJoins + ` ` + wb.where() +
		alarmOrderBy(filter.SortBy, filter.SortOrder) +
		` LIMIT $` + itoa(wb.next()) + ` OFFSET $` + itoa(wb.next()+1)
	rows, err := r.pool.Query(ctx, sql, append(wb.args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var alarms []models.Alarm
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, 0, err
		}
		alarms = append(alarms, a)
	}
	return alarms, total, rows.Err()
}

func (r *AlarmsRepo) GetAlarm(ctx context.Context, tenantID uuid.UUID, alarmID int64) (models.Alarm, error) {
	return scanAlarm(r.pool.QueryRow(ctx, `
		SELECT`+alarmColumns+alarmJoins+`
		WHERE d.tenant_id = $1 AND a.alarm_id = $2
	`, tenantID, alarmID))
}

func (r *AlarmsRepo) CreateAlarm(ctx context.Context, serial string, typeID int64, statusID int64, message *string, metadata json.RawMessage) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO alarms (serial_number, type_id, status_id, message, metadata)
		VALUES ($1, $2, $3, $4, COALESCE($5, '{}'::jsonb))
		RETURNING alarm_id
	`, serial, typeID, statusID, message, metadata).Scan(&id)
	return id, err
}

// UpdateStatus applies a computed status change. Actor stamps only move
// forward: an earlier acknowledgement survives later transitions.
func (r *AlarmsRepo) UpdateStatus(ctx context.Context, tenantID uuid.UUID, alarmID int64, ch alarmflow.Change) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE alarms a
		SET status_id = $3,
			acknowledged_by = COALESCE($4, a.acknowledged_by),
			acknowledged_at = COALESCE($5, a.acknowledged_at),
			resolved_by = COALESCE($6, a.resolved_by),
			resolved_at = COALESCE($7, a.resolved_at),
			updated_at = $8
		FROM devices d
		WHERE d.serial_number = a.serial_number
		  AND d.tenant_id = $1 AND a.alarm_id = $2
	`, tenantID, alarmID, ch.StatusID, ch.AcknowledgedBy, ch.AcknowledgedAt, ch.ResolvedBy, ch.ResolvedAt, ch.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Statistics counts alarms by status and severity. A non-empty nodeIDs
// scopes the counts to devices attached to that pre-resolved subtree.
func (r *AlarmsRepo) Statistics(ctx context.Context, tenantID uuid.UUID, nodeIDs []int64) (models.AlarmStatistics, error) {
	stats := models.AlarmStatistics{
		ByStatus:   make(map[string]int64),
		BySeverity: make(map[string]int64),
	}
	for _, sev := range alarmflow.Severities() {
		stats.BySeverity[sev] = 0
	}
	wb := &whereBuilder{}
	wb.add("d.tenant_id = $%d", tenantID)
	if len(nodeIDs) > 0 {
		wb.add("d.node_id = ANY($%d)", nodeIDs)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT ast.name, at.severity, COUNT(*)
		`+alarmJoins+`
		`+wb.where()+`
		GROUP BY ast.name, at.severity
	`, wb.args...)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var status, severity string
		var count int64
		if err := rows.Scan(&status, &severity, &count); err != nil {
			return stats, err
		}
		stats.Total += count
		stats.ByStatus[status] += count
		stats.BySeverity[severity] += count
	}
	return stats, rows.Err()
}

func (r *AlarmsRepo) ListAlarmTypes(ctx context.Context) ([]models.AlarmType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT type_id, name, severity FROM alarm_types ORDER BY type_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []models.AlarmType
	for rows.Next() {
		var t models.AlarmType
		if err := rows.Scan(&t.TypeID, &t.Name, &t.Severity); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func (r *AlarmsRepo) ListAlarmStatuses(ctx context.Context) ([]models.AlarmStatus, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status_id, name FROM alarm_statuses ORDER BY status_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []models.AlarmStatus
	for rows.Next() {
		var s models.AlarmStatus
		if err := rows.Scan(&s.StatusID, &s.Name); err != nil {
			return nil, err
		}
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}

func (r *AlarmsRepo) GetType(ctx context.Context, typeID int64) (models.AlarmType, error) {
	var t models.AlarmType
	err := r.pool.QueryRow(ctx, `
		SELECT type_id, name, severity FROM alarm_types WHERE type_id = $1
	`, typeID).Scan(&t.TypeID, &t.Name, &t.Severity)
	return t, err
}

func (r *AlarmsRepo) GetStatus(ctx context.Context, statusID int64) (models.AlarmStatus, error) {
	var s models.AlarmStatus
	err := r.pool.QueryRow(ctx, `
		SELECT status_id, name FROM alarm_statuses WHERE status_id = $1
	`, statusID).Scan(&s.StatusID, &s.Name)
	return s, err
}

// TypeAndStatusByName resolves catalog rows for the alarm worker, which
// raises offline alarms by name.
func (r *AlarmsRepo) TypeAndStatusByName(ctx context.Context, typeName string, statusName string) (models.AlarmType, models.AlarmStatus, error) {
	var t models.AlarmType
	var s models.AlarmStatus
	err := r.pool.QueryRow(ctx, `
		SELECT type_id, name, severity FROM alarm_types WHERE name = $1
	`, typeName).Scan(&t.TypeID, &t.Name, &t.Severity)
	if err != nil {
		return t, s, err
	}
	err = r.pool.QueryRow(ctx, `
		SELECT status_id, name FROM alarm_statuses WHERE name = $1
	`, statusName).Scan(&s.StatusID, &s.Name)
	return t, s, err
}

// HasOpenAlarm reports whether the device already has an unresolved alarm of
// the given type, so the offline scan does not raise duplicates.
func (r *AlarmsRepo) HasOpenAlarm(ctx context.Context, serial string, typeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM alarms a
			JOIN alarm_statuses ast ON ast.status_id = a.status_id
			WHERE a.serial_number = $1 AND a.type_id = $2 AND ast.name <> $3
		)
	`, serial, typeID, alarmflow.StatusResolved).Scan(&exists)
	return exists, err
}

package repos

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"multiphase-telemetry-dashboard/api/internal/models"
)

type DevicesRepo struct {
	pool *pgxpool.Pool
}

func NewDevicesRepo(pool *pgxpool.Pool) *DevicesRepo {
	return &DevicesRepo{pool: pool}
}

// DeviceFilter narrows device listings. Zero values mean "no constraint".
type DeviceFilter struct {
	TypeID  int64
	NodeIDs []int64
	Search  string
	Limit   int
	Offset  int
}

const deviceColumns = `
	d.device_id, d.tenant_id, d.node_id, d.type_id, dt.name, d.serial_number, d.metadata, d.created_at`

func scanDevice(row interface{ Scan(...any) error }) (models.Device, error) {
	var d models.Device
	err := row.Scan(&d.DeviceID, &d.TenantID, &d.NodeID, &d.TypeID, &d.TypeName, &d.SerialNumber, &d.Metadata, &d.CreatedAt)
	return d, err
}

func (r *DevicesRepo) ListDevices(ctx context.Context, tenantID uuid.UUID, filter DeviceFilter) ([]models.Device, int64, error) {
	wb := &whereBuilder{}
	wb.add("d.tenant_id = $%d", tenantID)
	if filter.TypeID != 0 {
		wb.add("d.type_id = $%d", filter.TypeID)
	}
	if len(filter.NodeIDs) > 0 {
		wb.add("d.node_id = ANY($%d)", filter.NodeIDs)
	}
	if filter.Search != "" {
		wb.add("d.serial_number ILIKE '%%' || $%d || '%%'", filter.Search)
	}

	base := `FROM devices d JOIN device_types dt ON dt.type_id = d.type_id ` + wb.where()

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) `+base, wb.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	sql := `SELECT` + deviceColumns + ` ` + base +
		` ORDER BY d.serial_number` +
		` LIMIT $` + itoa(wb.next()) + ` OFFSET $` + itoa(wb.next()+1)
	rows, err := r.pool.Query(ctx, sql, append(wb.args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, 0, err
		}
		devices = append(devices, d)
	}
	return devices, total, rows.Err()
}

func (r *DevicesRepo) GetDevice(ctx context.Context, tenantID uuid.UUID, deviceID int64) (models.Device, error) {
	return scanDevice(r.pool.QueryRow(ctx, `
		SELECT`+deviceColumns+`
		FROM devices d JOIN device_types dt ON dt.type_id = d.type_id
		WHERE d.tenant_id = $1 AND d.device_id = $2
	`, tenantID, deviceID))
}

// GetDeviceAny looks a device up without tenant scoping, so callers can
// distinguish "does not exist" from "belongs to another tenant".
func (r *DevicesRepo) GetDeviceAny(ctx context.Context, deviceID int64) (models.Device, error) {
	return scanDevice(r.pool.QueryRow(ctx, `
		SELECT`+deviceColumns+`
		FROM devices d JOIN device_types dt ON dt.type_id = d.type_id
		WHERE d.device_id = $1
	`, deviceID))
}

func (r *DevicesRepo) GetDeviceBySerial(ctx context.Context, serial string) (models.Device, error) {
	return scanDevice(r.pool.QueryRow(ctx, `
		SELECT`+deviceColumns+`
		FROM devices d JOIN device_types dt ON dt.type_id = d.type_id
		WHERE d.serial_number = $1
	`, serial))
}

func (r *DevicesRepo) CreateDevice(ctx context.Context, tenantID uuid.UUID, typeID int64, serial string, nodeID *int64, metadata json.RawMessage) (models.Device, error) {
	var deviceID int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO devices (tenant_id, type_id, serial_number, node_id, metadata)
		VALUES ($1, $2, $3, $4, COALESCE($5, '{}'::jsonb))
		RETURNING device_id
	`, tenantID, typeID, serial, nodeID, metadata).Scan(&deviceID)
	if err != nil {
		return models.Device{}, err
	}
	return r.GetDevice(ctx, tenantID, deviceID)
}

// AttachToNode moves a device under a hierarchy node, or detaches it when
// nodeID is nil. The node must belong to the same tenant and allow devices.
func (r *DevicesRepo) AttachToNode(ctx context.Context, tenantID uuid.UUID, deviceID int64, nodeID *int64) (int64, error) {
	if nodeID == nil {
		tag, err := r.pool.Exec(ctx, `
			UPDATE devices SET node_id = NULL
			WHERE tenant_id = $1 AND device_id = $2
		`, tenantID, deviceID)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE devices SET node_id = $3
		WHERE tenant_id = $1 AND device_id = $2
		  AND EXISTS (
			SELECT 1 FROM hierarchy_nodes hn
			WHERE hn.tenant_id = $1 AND hn.node_id = $3 AND hn.can_attach_device
		  )
	`, tenantID, deviceID, *nodeID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *DevicesRepo) DeleteDevice(ctx context.Context, tenantID uuid.UUID, deviceID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM devices WHERE tenant_id = $1 AND device_id = $2
	`, tenantID, deviceID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SerialsForNodes lists serial numbers of devices attached to any of the
// given nodes, for hierarchy chart rollups.
func (r *DevicesRepo) SerialsForNodes(ctx context.Context, tenantID uuid.UUID, nodeIDs []int64) ([]string, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT serial_number
		FROM devices
		WHERE tenant_id = $1 AND node_id = ANY($2)
		ORDER BY serial_number
	`, tenantID, nodeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var serials []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		serials = append(serials, s)
	}
	return serials, rows.Err()
}

// SerialsForType lists serials of the tenant's devices of one type. A
// non-empty nodeIDs narrows the result to devices attached to those nodes.
func (r *DevicesRepo) SerialsForType(ctx context.Context, tenantID uuid.UUID, typeID int64, nodeIDs []int64) ([]string, error) {
	wb := &whereBuilder{}
	wb.add("tenant_id = $%d", tenantID)
	wb.add("type_id = $%d", typeID)
	if len(nodeIDs) > 0 {
		wb.add("node_id = ANY($%d)", nodeIDs)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT serial_number FROM devices
		`+wb.where()+`
		ORDER BY serial_number
	`, wb.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var serials []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		serials = append(serials, s)
	}
	return serials, rows.Err()
}

// CountByType breaks the tenant's device inventory down per device type,
// for the dashboard statistics block.
func (r *DevicesRepo) CountByType(ctx context.Context, tenantID uuid.UUID) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT dt.name, COUNT(*)
		FROM devices d
		JOIN device_types dt ON dt.type_id = d.type_id
		WHERE d.tenant_id = $1
		GROUP BY dt.name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// SerialsForTenant lists every device serial in the tenant, for the
// dashboard-wide rollup.
func (r *DevicesRepo) SerialsForTenant(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT serial_number FROM devices
		WHERE tenant_id = $1
		ORDER BY serial_number
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var serials []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		serials = append(serials, s)
	}
	return serials, rows.Err()
}

func (r *DevicesRepo) ListDeviceTypes(ctx context.Context) ([]models.DeviceType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT type_id, name FROM device_types ORDER BY type_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []models.DeviceType
	for rows.Next() {
		var dt models.DeviceType
		if err := rows.Scan(&dt.TypeID, &dt.Name); err != nil {
			return nil, err
		}
		types = append(types, dt)
	}
	return types, rows.Err()
}

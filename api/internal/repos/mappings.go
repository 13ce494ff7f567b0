package repos

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"multiphase-telemetry-dashboard/api/internal/models"
)

type MappingsRepo struct {
	pool *pgxpool.Pool
}

func NewMappingsRepo(pool *pgxpool.Pool) *MappingsRepo {
	return &MappingsRepo{pool: pool}
}

// GetForType resolves one mapping, constrained to the given device type so a
// widget series cannot reference another type's property.
func (r *MappingsRepo) GetForType(ctx context.Context, mappingID int64, typeID int64) (models.TagMapping, error) {
	var m models.TagMapping
	err := r.pool.QueryRow(ctx, `
		SELECT mapping_id, type_id, tag, display_name, unit, expression, ui_order
		FROM tag_mappings
		WHERE mapping_id = $1 AND type_id = $2
	`, mappingID, typeID).Scan(&m.MappingID, &m.TypeID, &m.Tag, &m.DisplayName, &m.Unit, &m.Expression, &m.UIOrder)
	return m, err
}

func (r *MappingsRepo) ListByType(ctx context.Context, typeID int64) ([]models.TagMapping, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT mapping_id, type_id, tag, display_name, unit, expression, ui_order
		FROM tag_mappings
		WHERE type_id = $1
		ORDER BY ui_order, tag
	`, typeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []models.TagMapping
	for rows.Next() {
		var m models.TagMapping
		if err := rows.Scan(&m.MappingID, &m.TypeID, &m.Tag, &m.DisplayName, &m.Unit, &m.Expression, &m.UIOrder); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func (r *MappingsRepo) Create(ctx context.Context, m models.TagMapping) (models.TagMapping, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tag_mappings (type_id, tag, display_name, unit, expression, ui_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING mapping_id
	`, m.TypeID, m.Tag, m.DisplayName, m.Unit, m.Expression, m.UIOrder).Scan(&m.MappingID)
	return m, err
}

func (r *MappingsRepo) Update(ctx context.Context, m models.TagMapping) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tag_mappings
		SET display_name = $2, unit = $3, expression = $4, ui_order = $5
		WHERE mapping_id = $1
	`, m.MappingID, m.DisplayName, m.Unit, m.Expression, m.UIOrder)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *MappingsRepo) Delete(ctx context.Context, mappingID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tag_mappings WHERE mapping_id = $1`, mappingID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *MappingsRepo) TypeIDForMapping(ctx context.Context, mappingID int64) (int64, error) {
	var typeID int64
	err := r.pool.QueryRow(ctx, `
		SELECT type_id FROM tag_mappings WHERE mapping_id = $1
	`, mappingID).Scan(&typeID)
	return typeID, err
}

// KnownTags lists the raw (non-derived) tags for a device type, used to
// validate mapping expressions on write.
func (r *MappingsRepo) KnownTags(ctx context.Context, typeID int64) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tag FROM tag_mappings
		WHERE type_id = $1 AND expression IS NULL
	`, typeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := make(map[string]bool)
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags[tag] = true
	}
	return tags, rows.Err()
}

package repos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"multiphase-telemetry-dashboard/api/internal/models"
)

type HierarchyRepo struct {
	pool *pgxpool.Pool
}

func NewHierarchyRepo(pool *pgxpool.Pool) *HierarchyRepo {
	return &HierarchyRepo{pool: pool}
}

func (r *HierarchyRepo) ListNodes(ctx context.Context, tenantID uuid.UUID) ([]models.HierarchyNode, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT node_id, tenant_id, name, level_name, level_order, parent_id, can_attach_device, created_at
		FROM hierarchy_nodes
		WHERE tenant_id = $1
		ORDER BY level_order, name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []models.HierarchyNode
	for rows.Next() {
		var n models.HierarchyNode
		if err := rows.Scan(&n.NodeID, &n.TenantID, &n.Name, &n.LevelName, &n.LevelOrder, &n.ParentID, &n.CanAttachDevice, &n.CreatedAt); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (r *HierarchyRepo) GetNode(ctx context.Context, tenantID uuid.UUID, nodeID int64) (models.HierarchyNode, error) {
	var n models.HierarchyNode
	err := r.pool.QueryRow(ctx, `
		SELECT node_id, tenant_id, name, level_name, level_order, parent_id, can_attach_device, created_at
		FROM hierarchy_nodes
		WHERE tenant_id = $1 AND node_id = $2
	`, tenantID, nodeID).
		Scan(&n.NodeID, &n.TenantID, &n.Name, &n.LevelName, &n.LevelOrder, &n.ParentID, &n.CanAttachDevice, &n.CreatedAt)
	return n, err
}

// GetNodeAny looks a node up without tenant scoping, so callers can
// distinguish "does not exist" from "belongs to another tenant".
func (r *HierarchyRepo) GetNodeAny(ctx context.Context, nodeID int64) (models.HierarchyNode, error) {
	var n models.HierarchyNode
	err := r.pool.QueryRow(ctx, `
		SELECT node_id, tenant_id, name, level_name, level_order, parent_id, can_attach_device, created_at
		FROM hierarchy_nodes
		WHERE node_id = $1
	`, nodeID).
		Scan(&n.NodeID, &n.TenantID, &n.Name, &n.LevelName, &n.LevelOrder, &n.ParentID, &n.CanAttachDevice, &n.CreatedAt)
	return n, err
}

func (r *HierarchyRepo) CreateNode(ctx context.Context, tenantID uuid.UUID, name string, levelName string, levelOrder int, parentID *int64, canAttach bool) (models.HierarchyNode, error) {
	var n models.HierarchyNode
	err := r.pool.QueryRow(ctx, `
		INSERT INTO hierarchy_nodes (tenant_id, name, level_name, level_order, parent_id, can_attach_device)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING node_id, tenant_id, name, level_name, level_order, parent_id, can_attach_device, created_at
	`, tenantID, name, levelName, levelOrder, parentID, canAttach).
		Scan(&n.NodeID, &n.TenantID, &n.Name, &n.LevelName, &n.LevelOrder, &n.ParentID, &n.CanAttachDevice, &n.CreatedAt)
	return n, err
}

func (r *HierarchyRepo) RenameNode(ctx context.Context, tenantID uuid.UUID, nodeID int64, name string) (models.HierarchyNode, error) {
	var n models.HierarchyNode
	err := r.pool.QueryRow(ctx, `
		UPDATE hierarchy_nodes
		SET name = $3
		WHERE tenant_id = $1 AND node_id = $2
		RETURNING node_id, tenant_id, name, level_name, level_order, parent_id, can_attach_device, created_at
	`, tenantID, nodeID, name).
		Scan(&n.NodeID, &n.TenantID, &n.Name, &n.LevelName, &n.LevelOrder, &n.ParentID, &n.CanAttachDevice, &n.CreatedAt)
	return n, err
}

// DeleteNode removes a leaf node. Rows with children or attached devices are
// left alone and reported through the returned count.
func (r *HierarchyRepo) DeleteNode(ctx context.Context, tenantID uuid.UUID, nodeID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM hierarchy_nodes hn
		WHERE hn.tenant_id = $1 AND hn.node_id = $2
		  AND NOT EXISTS (SELECT 1 FROM hierarchy_nodes c WHERE c.parent_id = hn.node_id)
		  AND NOT EXISTS (SELECT 1 FROM devices d WHERE d.node_id = hn.node_id)
	`, tenantID, nodeID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *HierarchyRepo) DeviceCountsByNode(ctx context.Context, tenantID uuid.UUID) (map[int64]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT node_id, COUNT(*)
		FROM devices
		WHERE tenant_id = $1 AND node_id IS NOT NULL
		GROUP BY node_id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var nodeID int64
		var count int
		if err := rows.Scan(&nodeID, &count); err != nil {
			return nil, err
		}
		counts[nodeID] = count
	}
	return counts, rows.Err()
}

// CountByLevel tallies the tenant's hierarchy nodes per level name.
func (r *HierarchyRepo) CountByLevel(ctx context.Context, tenantID uuid.UUID) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT level_name, COUNT(*)
		FROM hierarchy_nodes
		WHERE tenant_id = $1
		GROUP BY level_name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var level string
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		counts[level] = count
	}
	return counts, rows.Err()
}

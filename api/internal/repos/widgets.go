package repos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"multiphase-telemetry-dashboard/api/internal/models"
)

type WidgetsRepo struct {
	pool *pgxpool.Pool
}

func NewWidgetsRepo(pool *pgxpool.Pool) *WidgetsRepo {
	return &WidgetsRepo{pool: pool}
}

func (r *WidgetsRepo) Pool() *pgxpool.Pool { return r.pool }

// ActiveDashboard returns the tenant's active dashboard, creating a default
// one on first use.
func (r *WidgetsRepo) ActiveDashboard(ctx context.Context, tenantID uuid.UUID) (models.Dashboard, error) {
	var d models.Dashboard
	err := r.pool.QueryRow(ctx, `
		SELECT dashboard_id, tenant_id, name, is_active, created_at
		FROM dashboards
		WHERE tenant_id = $1 AND is_active
		ORDER BY dashboard_id
		LIMIT 1
	`, tenantID).Scan(&d.DashboardID, &d.TenantID, &d.Name, &d.IsActive, &d.CreatedAt)
	if err == nil {
		return d, nil
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO dashboards (tenant_id, name, is_active)
		VALUES ($1, 'Overview', true)
		ON CONFLICT (tenant_id) WHERE is_active DO NOTHING
		RETURNING dashboard_id, tenant_id, name, is_active, created_at
	`, tenantID).Scan(&d.DashboardID, &d.TenantID, &d.Name, &d.IsActive, &d.CreatedAt)
	return d, err
}

// WidgetWithLayout pairs a widget definition with its grid placement.
type WidgetWithLayout struct {
	models.WidgetDefinition
	Layout models.DashboardLayout `json:"layout"`
}

func (r *WidgetsRepo) ListWidgets(ctx context.Context, dashboardID int64) ([]WidgetWithLayout, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT w.widget_id, w.widget_type, w.title, w.data_source, w.created_at,
		       l.layout_id, l.dashboard_id, l.grid_x, l.grid_y, l.grid_w, l.grid_h, l.overrides
		FROM dashboard_layouts l
		JOIN widget_definitions w ON w.widget_id = l.widget_id
		WHERE l.dashboard_id = $1
		ORDER BY l.grid_y, l.grid_x
	`, dashboardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var widgets []WidgetWithLayout
	for rows.Next() {
		var w WidgetWithLayout
		if err := rows.Scan(&w.WidgetID, &w.WidgetType, &w.Title, &w.DataSource, &w.CreatedAt,
			&w.Layout.LayoutID, &w.Layout.DashboardID, &w.Layout.GridX, &w.Layout.GridY,
			&w.Layout.GridW, &w.Layout.GridH, &w.Layout.Overrides); err != nil {
			return nil, err
		}
		w.Layout.WidgetID = w.WidgetID
		widgets = append(widgets, w)
	}
	return widgets, rows.Err()
}

func (r *WidgetsRepo) GetWidget(ctx context.Context, dashboardID int64, widgetID int64) (WidgetWithLayout, error) {
	var w WidgetWithLayout
	err := r.pool.QueryRow(ctx, `
		SELECT w.widget_id, w.widget_type, w.title, w.data_source, w.created_at,
		       l.layout_id, l.dashboard_id, l.grid_x, l.grid_y, l.grid_w, l.grid_h, l.overrides
		FROM dashboard_layouts l
		JOIN widget_definitions w ON w.widget_id = l.widget_id
		WHERE l.dashboard_id = $1 AND w.widget_id = $2
	`, dashboardID, widgetID).
		Scan(&w.WidgetID, &w.WidgetType, &w.Title, &w.DataSource, &w.CreatedAt,
			&w.Layout.LayoutID, &w.Layout.DashboardID, &w.Layout.GridX, &w.Layout.GridY,
			&w.Layout.GridW, &w.Layout.GridH, &w.Layout.Overrides)
	w.Layout.WidgetID = w.WidgetID
	return w, err
}

// CreateWidget inserts the definition and its layout row on the same
// connection so a failed layout insert rolls the definition back. db is
// expected to be a transaction.
func (r *WidgetsRepo) CreateWidget(ctx context.Context, db DBTX, dashboardID int64, w models.WidgetDefinition, layout models.DashboardLayout) (WidgetWithLayout, error) {
	var out WidgetWithLayout
	err := db.QueryRow(ctx, `
		INSERT INTO widget_definitions (widget_type, title, data_source)
		VALUES ($1, $2, $3)
		RETURNING widget_id, widget_type, title, data_source, created_at
	`, w.WidgetType, w.Title, w.DataSource).
		Scan(&out.WidgetID, &out.WidgetType, &out.Title, &out.DataSource, &out.CreatedAt)
	if err != nil {
		return out, err
	}
	err = db.QueryRow(ctx, `
		INSERT INTO dashboard_layouts (dashboard_id, widget_id, grid_x, grid_y, grid_w, grid_h, overrides)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, '{}'::jsonb))
		RETURNING layout_id, dashboard_id, grid_x, grid_y, grid_w, grid_h, overrides
	`, dashboardID, out.WidgetID, layout.GridX, layout.GridY, layout.GridW, layout.GridH, layout.Overrides).
		Scan(&out.Layout.LayoutID, &out.Layout.DashboardID, &out.Layout.GridX, &out.Layout.GridY,
			&out.Layout.GridW, &out.Layout.GridH, &out.Layout.Overrides)
	out.Layout.WidgetID = out.WidgetID
	return out, err
}

// UpdateLayouts rewrites grid placements for the given dashboard. Layout
// rows not mentioned keep their position.
func (r *WidgetsRepo) UpdateLayouts(ctx context.Context, db DBTX, dashboardID int64, layouts []models.DashboardLayout) error {
	for _, l := range layouts {
		_, err := db.Exec(ctx, `
			UPDATE dashboard_layouts
			SET grid_x = $3, grid_y = $4, grid_w = $5, grid_h = $6,
				overrides = COALESCE($7, overrides)
			WHERE dashboard_id = $1 AND widget_id = $2
		`, dashboardID, l.WidgetID, l.GridX, l.GridY, l.GridW, l.GridH, l.Overrides)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *WidgetsRepo) DeleteWidget(ctx context.Context, db DBTX, dashboardID int64, widgetID int64) (int64, error) {
	tag, err := db.Exec(ctx, `
		DELETE FROM dashboard_layouts WHERE dashboard_id = $1 AND widget_id = $2
	`, dashboardID, widgetID)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, nil
	}
	// Drop the definition once no dashboard references it.
	_, err = db.Exec(ctx, `
		DELETE FROM widget_definitions w
		WHERE w.widget_id = $1
		  AND NOT EXISTS (SELECT 1 FROM dashboard_layouts l WHERE l.widget_id = w.widget_id)
	`, widgetID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/models"
)

type ServerGroupRepository struct {
	pool *pgxpool.Pool
}

func NewServerGroupRepository(pool *pgxpool.Pool) *ServerGroupRepository {
	return &ServerGroupRepository{pool: pool}
}

const serverGroupColumns = `id, name, panel_api_url, panel_api_key,
	node_list, node_count, created_at, updated_at`

func (r *ServerGroupRepository) GetByID(ctx context.Context, id string) (*models.ServerGroup, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscribe.server_groups WHERE id = $1`, serverGroupColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *ServerGroupRepository) GetAll(ctx context.Context) ([]*models.ServerGroup, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscribe.server_groups ORDER BY name`, serverGroupColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query server_groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.ServerGroup
	for rows.Next() {
		g := &models.ServerGroup{}
		if err := rows.Scan(
			&g.ID, &g.Name, &g.PanelAPIURL, &g.PanelAPIKey,
			&g.NodeList, &g.NodeCount, &g.CreatedAt, &g.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan server_group row: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r *ServerGroupRepository) Upsert(ctx context.Context, g *models.ServerGroup) error {
	query := `
		INSERT INTO subscribe.server_groups (
			id, name, panel_api_url, panel_api_key, node_list, node_count
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			panel_api_url = EXCLUDED.panel_api_url,
			panel_api_key = EXCLUDED.panel_api_key,
			node_list = EXCLUDED.node_list,
			node_count = EXCLUDED.node_count,
			updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query,
		g.ID, g.Name, g.PanelAPIURL, g.PanelAPIKey, g.NodeList, g.NodeCount,
	)
	if err != nil {
		return fmt.Errorf("upsert server_group: %w", err)
	}
	return nil
}

// Delete removes a group. Refused while any plan still references it.
func (r *ServerGroupRepository) Delete(ctx context.Context, id string) error {
	var planCount int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscribe.plans WHERE server_group_id = $1`, id,
	).Scan(&planCount)
	if err != nil {
		return fmt.Errorf("count referencing plans: %w", err)
	}
	if planCount > 0 {
		return fmt.Errorf("server group %s is referenced by %d plan(s)", id, planCount)
	}

	_, err = r.pool.Exec(ctx, `DELETE FROM subscribe.server_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete server_group: %w", err)
	}
	return nil
}

func (r *ServerGroupRepository) scanOne(row pgx.Row) (*models.ServerGroup, error) {
	g := &models.ServerGroup{}
	err := row.Scan(
		&g.ID, &g.Name, &g.PanelAPIURL, &g.PanelAPIKey,
		&g.NodeList, &g.NodeCount, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan server_group: %w", err)
	}
	return g, nil
}

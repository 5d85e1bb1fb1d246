package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/models"
)

type PlanRepository struct {
	pool *pgxpool.Pool
}

func NewPlanRepository(pool *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{pool: pool}
}

const planColumns = `id, name, server_group_id, billing_period,
	price_cents, active, created_at, updated_at`

func (r *PlanRepository) GetByID(ctx context.Context, id string) (*models.Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscribe.plans WHERE id = $1`, planColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *PlanRepository) GetAll(ctx context.Context) ([]*models.Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscribe.plans ORDER BY name`, planColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

func (r *PlanRepository) GetActive(ctx context.Context) ([]*models.Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscribe.plans WHERE active = TRUE ORDER BY name`, planColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active plans: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

func (r *PlanRepository) Upsert(ctx context.Context, p *models.Plan) error {
	query := `
		INSERT INTO subscribe.plans (
			id, name, server_group_id, billing_period, price_cents, active
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			server_group_id = EXCLUDED.server_group_id,
			billing_period = EXCLUDED.billing_period,
			price_cents = EXCLUDED.price_cents,
			active = EXCLUDED.active,
			updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query,
		p.ID, p.Name, p.ServerGroupID, p.BillingPeriod, p.PriceCents, p.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert plan: %w", err)
	}
	return nil
}

func (r *PlanRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE subscribe.plans SET active = $1, updated_at = NOW() WHERE id = $2`
	tag, err := r.pool.Exec(ctx, query, active, id)
	if err != nil {
		return fmt.Errorf("set plan active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PlanRepository) scanOne(row pgx.Row) (*models.Plan, error) {
	p := &models.Plan{}
	err := row.Scan(
		&p.ID, &p.Name, &p.ServerGroupID, &p.BillingPeriod,
		&p.PriceCents, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan plan: %w", err)
	}
	return p, nil
}

func (r *PlanRepository) scanMany(rows pgx.Rows) ([]*models.Plan, error) {
	var plans []*models.Plan
	for rows.Next() {
		p := &models.Plan{}
		err := rows.Scan(
			&p.ID, &p.Name, &p.ServerGroupID, &p.BillingPeriod,
			&p.PriceCents, &p.Active, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan plan row: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/models"
)

type RedemptionRepository struct {
	pool *pgxpool.Pool
}

func NewRedemptionRepository(pool *pgxpool.Pool) *RedemptionRepository {
	return &RedemptionRepository{pool: pool}
}

const codeColumns = `id, code, plan_id, status, used_by, used_at, created_at`

func (r *RedemptionRepository) Create(ctx context.Context, c *models.RedemptionCode) error {
	query := `
		INSERT INTO subscribe.redemption_codes (id, code, plan_id, status)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query, c.ID, c.Code, c.PlanID, c.Status)
	if err != nil {
		return fmt.Errorf("insert redemption_code: %w", err)
	}
	return nil
}

func (r *RedemptionRepository) GetByCode(ctx context.Context, code string) (*models.RedemptionCode, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscribe.redemption_codes WHERE code = $1`, codeColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, code))
}

// CodeExists probes for a collision before insert. Check-then-act; accepted
// because collision probability over the random code space is vanishingly
// small.
func (r *RedemptionRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM subscribe.redemption_codes WHERE code = $1)`, code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check code exists: %w", err)
	}
	return exists, nil
}

func (r *RedemptionRepository) MarkUsed(ctx context.Context, id, userID string, usedAt time.Time) error {
	query := `
		UPDATE subscribe.redemption_codes
		SET status = 'used', used_by = $1, used_at = $2
		WHERE id = $3 AND status = 'unused'
	`
	tag, err := r.pool.Exec(ctx, query, userID, usedAt, id)
	if err != nil {
		return fmt.Errorf("mark code used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("code %s already used", id)
	}
	return nil
}

func (r *RedemptionRepository) ListByPlan(ctx context.Context, planID, status string) ([]*models.RedemptionCode, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscribe.redemption_codes
		WHERE ($1 = '' OR plan_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT 500
	`, codeColumns)
	rows, err := r.pool.Query(ctx, query, planID, status)
	if err != nil {
		return nil, fmt.Errorf("list redemption_codes: %w", err)
	}
	defer rows.Close()

	var codes []*models.RedemptionCode
	for rows.Next() {
		c := &models.RedemptionCode{}
		if err := rows.Scan(
			&c.ID, &c.Code, &c.PlanID, &c.Status, &c.UsedBy, &c.UsedAt, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan redemption_code row: %w", err)
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

func (r *RedemptionRepository) scanOne(row pgx.Row) (*models.RedemptionCode, error) {
	c := &models.RedemptionCode{}
	err := row.Scan(&c.ID, &c.Code, &c.PlanID, &c.Status, &c.UsedBy, &c.UsedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan redemption_code: %w", err)
	}
	return c, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/models"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	query := `
		INSERT INTO subscribe.orders (
			id, user_id, plan_id, subscription_id, channel, code_id, amount_cents
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		o.ID, o.UserID, o.PlanID, o.SubscriptionID, o.Channel, o.CodeID, o.AmountCents,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// AttachSubscription backfills the subscription reference once issuance
// completed after the order was recorded.
func (r *OrderRepository) AttachSubscription(ctx context.Context, orderID, subscriptionID string) error {
	query := `UPDATE subscribe.orders SET subscription_id = $1 WHERE id = $2`
	_, err := r.pool.Exec(ctx, query, subscriptionID, orderID)
	if err != nil {
		return fmt.Errorf("attach subscription to order: %w", err)
	}
	return nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	query := `
		SELECT id, user_id, plan_id, subscription_id, channel, code_id, amount_cents, created_at
		FROM subscribe.orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 100
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o := &models.Order{}
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.PlanID, &o.SubscriptionID,
			&o.Channel, &o.CodeID, &o.AmountCents, &o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/models"
)

var ErrNotFound = errors.New("not found")

type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

const subscriptionColumns = `id, user_id, plan_id, credential, token, status,
	traffic_total, traffic_used, expires_at, created_at, updated_at`

func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT INTO subscribe.subscriptions (
			id, user_id, plan_id, credential, token, status,
			traffic_total, traffic_used, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		sub.ID, sub.UserID, sub.PlanID, sub.Credential, sub.Token, sub.Status,
		sub.TrafficTotal, sub.TrafficUsed, sub.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*models.Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscribe.subscriptions WHERE id = $1`, subscriptionColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *SubscriptionRepository) GetByToken(ctx context.Context, token string) (*models.Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscribe.subscriptions WHERE token = $1`, subscriptionColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, token))
}

// GetActiveByUser returns the most recent usable subscription. Expired and
// suspended rows are invisible to this query; they are never auto-transitioned.
func (r *SubscriptionRepository) GetActiveByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscribe.subscriptions
		WHERE user_id = $1 AND status = 'active' AND expires_at >= NOW()
		ORDER BY created_at DESC
		LIMIT 1
	`, subscriptionColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, userID))
}

func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]*models.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscribe.subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 100
	`, subscriptionColumns)
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE subscribe.subscriptions SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	return nil
}

// UpdateTrafficUsed overwrites the used-traffic counter. No upper-bound
// check: accounting, not a hard cap.
func (r *SubscriptionRepository) UpdateTrafficUsed(ctx context.Context, id string, trafficUsed int64) error {
	query := `UPDATE subscribe.subscriptions SET traffic_used = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, query, trafficUsed, id)
	if err != nil {
		return fmt.Errorf("update traffic_used: %w", err)
	}
	return nil
}

// UpdateTerms extends a subscription after renewal.
func (r *SubscriptionRepository) UpdateTerms(ctx context.Context, sub *models.Subscription) error {
	query := `
		UPDATE subscribe.subscriptions SET
			plan_id = $1, status = $2, traffic_total = $3, traffic_used = $4,
			expires_at = $5, updated_at = NOW()
		WHERE id = $6
	`
	_, err := r.pool.Exec(ctx, query,
		sub.PlanID, sub.Status, sub.TrafficTotal, sub.TrafficUsed, sub.ExpiresAt, sub.ID,
	)
	if err != nil {
		return fmt.Errorf("update subscription terms: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) scanOne(row pgx.Row) (*models.Subscription, error) {
	sub := &models.Subscription{}
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.PlanID, &sub.Credential, &sub.Token, &sub.Status,
		&sub.TrafficTotal, &sub.TrafficUsed, &sub.ExpiresAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	return sub, nil
}

func (r *SubscriptionRepository) scanMany(rows pgx.Rows) ([]*models.Subscription, error) {
	var results []*models.Subscription
	for rows.Next() {
		sub := &models.Subscription{}
		err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.PlanID, &sub.Credential, &sub.Token, &sub.Status,
			&sub.TrafficTotal, &sub.TrafficUsed, &sub.ExpiresAt, &sub.CreatedAt, &sub.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan subscription row: %w", err)
		}
		results = append(results, sub)
	}
	return results, rows.Err()
}

package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/models"
)

type LogRepository struct {
	pool *pgxpool.Pool
}

func NewLogRepository(pool *pgxpool.Pool) *LogRepository {
	return &LogRepository{pool: pool}
}

// Create creates a new issuance log entry
func (r *LogRepository) Create(ctx context.Context, logEntry *models.IssuanceLog) error {
	if logEntry.ID == "" {
		logEntry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO subscribe.issuance_logs (id, subscription_id, action, status, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		logEntry.ID, logEntry.SubscriptionID, logEntry.Action, logEntry.Status, logEntry.Message, logEntry.Metadata,
	)
	if err != nil {
		return fmt.Errorf("insert issuance log: %w", err)
	}

	return nil
}

// GetBySubscriptionID retrieves logs for a subscription
func (r *LogRepository) GetBySubscriptionID(ctx context.Context, subscriptionID string, limit int) ([]*models.IssuanceLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, subscription_id, action, status, message, metadata, created_at
		FROM subscribe.issuance_logs
		WHERE subscription_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, subscriptionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query issuance logs: %w", err)
	}
	defer rows.Close()

	var logEntries []*models.IssuanceLog
	for rows.Next() {
		logEntry := &models.IssuanceLog{}
		err := rows.Scan(
			&logEntry.ID, &logEntry.SubscriptionID, &logEntry.Action, &logEntry.Status,
			&logEntry.Message, &logEntry.Metadata, &logEntry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan issuance log: %w", err)
		}
		logEntries = append(logEntries, logEntry)
	}

	return logEntries, rows.Err()
}

// LogAction is a helper to log an action
func (r *LogRepository) LogAction(ctx context.Context, subscriptionID, action, status, message string) error {
	logEntry := &models.IssuanceLog{
		SubscriptionID: subscriptionID,
		Action:         action,
		Status:         status,
		Message:        message,
	}
	return r.Create(ctx, logEntry)
}

// LogActionWithMetadata is a helper to log an action with metadata
func (r *LogRepository) LogActionWithMetadata(ctx context.Context, subscriptionID, action, status, message string, metadata map[string]interface{}) error {
	logEntry := &models.IssuanceLog{
		SubscriptionID: subscriptionID,
		Action:         action,
		Status:         status,
		Message:        message,
		Metadata:       metadata,
	}
	return r.Create(ctx, logEntry)
}

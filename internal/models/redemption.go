package models

import "time"

// Redemption code status constants
const (
	CodeStatusUnused = "unused"
	CodeStatusUsed   = "used"
)

// Order channel constants
const (
	OrderChannelRedemption = "redemption"
	OrderChannelPurchase   = "purchase"
)

// RedemptionCode is a single-use token exchangeable for plan activation
// without payment.
type RedemptionCode struct {
	ID        string
	Code      string
	PlanID    string
	Status    string
	UsedBy    *string
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Order records a completed issuance event (redemption or purchase).
type Order struct {
	ID             string
	UserID         string
	PlanID         string
	SubscriptionID *string
	Channel        string
	CodeID         *string
	AmountCents    int64
	CreatedAt      time.Time
}

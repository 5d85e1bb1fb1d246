package models

// ==================== Internal API DTOs ====================

// CreateSubscriptionRequest is sent by the billing side after a purchase
// completes.
type CreateSubscriptionRequest struct {
	UserID       string `json:"user_id" binding:"required"`
	PlanID       string `json:"plan_id" binding:"required"`
	TrafficTotal int64  `json:"traffic_total"`
	DurationDays int    `json:"duration_days"`
}

// UpdateTrafficRequest overwrites a subscription's used-traffic counter.
// Accounting only; no cap is enforced at write time.
type UpdateTrafficRequest struct {
	TrafficUsed int64 `json:"traffic_used"`
}

// UpsertServerGroupRequest creates or updates a server group. NodeList
// accepts either the line format or a JSON array of node objects.
type UpsertServerGroupRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name" binding:"required"`
	PanelAPIURL string `json:"panel_api_url"`
	PanelAPIKey string `json:"panel_api_key"`
	NodeList    string `json:"node_list"`
}

// UpsertPlanRequest creates or updates a plan.
type UpsertPlanRequest struct {
	ID            string `json:"id"`
	Name          string `json:"name" binding:"required"`
	ServerGroupID string `json:"server_group_id" binding:"required"`
	BillingPeriod string `json:"billing_period"`
	PriceCents    int64  `json:"price_cents"`
	Active        *bool  `json:"active"`
}

// GenerateCodesRequest asks for a batch of redemption codes.
type GenerateCodesRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
	Count  int    `json:"count" binding:"required"`
}

// GenerateCodesResponse returns the generated codes.
type GenerateCodesResponse struct {
	PlanID string   `json:"plan_id"`
	Codes  []string `json:"codes"`
}

// ==================== User API DTOs ====================

// RedeemRequest is the user-facing redemption request.
type RedeemRequest struct {
	Code string `json:"code" binding:"required"`
}

// RedeemResponse reports the redemption outcome. Degraded is set when the
// code was consumed and the plan attached but subscription creation failed
// downstream; the redemption itself still succeeded.
type RedeemResponse struct {
	Success      bool              `json:"success"`
	Degraded     bool              `json:"degraded,omitempty"`
	OrderID      string            `json:"order_id,omitempty"`
	Subscription *SubscriptionInfo `json:"subscription,omitempty"`
	Message      string            `json:"message"`
}

// SubscriptionInfo is the user view of a subscription. The panel credential
// is deliberately absent: only the fetch token is exposed.
type SubscriptionInfo struct {
	SubscriptionID string  `json:"subscription_id"`
	PlanID         string  `json:"plan_id"`
	Status         string  `json:"status"`
	Token          string  `json:"token"`
	SubscribeURL   string  `json:"subscribe_url"`
	TrafficTotal   int64   `json:"traffic_total"`
	TrafficUsed    int64   `json:"traffic_used"`
	TrafficPercent float64 `json:"traffic_percent"`
	ExpiresAt      string  `json:"expires_at"`
	CreatedAt      string  `json:"created_at"`
}

// OrderInfo is the user view of an issuance event.
type OrderInfo struct {
	ID             string `json:"id"`
	PlanID         string `json:"plan_id"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	Channel        string `json:"channel"`
	AmountCents    int64  `json:"amount_cents"`
	CreatedAt      string `json:"created_at"`
}

// ==================== Admin view DTOs ====================

// ServerGroupInfo is the admin view of a server group. The panel API key is
// never echoed back.
type ServerGroupInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PanelAPIURL  string `json:"panel_api_url"`
	PanelEnabled bool   `json:"panel_enabled"`
	NodeCount    int    `json:"node_count"`
	Nodes        []Node `json:"nodes,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// PlanInfo is the admin view of a plan.
type PlanInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ServerGroupID string `json:"server_group_id"`
	BillingPeriod string `json:"billing_period,omitempty"`
	PriceCents    int64  `json:"price_cents"`
	Active        bool   `json:"active"`
	DurationDays  int    `json:"duration_days"`
	TrafficTotal  int64  `json:"traffic_total"`
}

// IssuanceLogInfo is the admin view of an audit entry.
type IssuanceLogInfo struct {
	ID             string                 `json:"id"`
	SubscriptionID string                 `json:"subscription_id"`
	Action         string                 `json:"action"`
	Status         string                 `json:"status"`
	Message        string                 `json:"message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      string                 `json:"created_at"`
}

// CodeInfo is the admin view of a redemption code.
type CodeInfo struct {
	ID        string  `json:"id"`
	Code      string  `json:"code"`
	PlanID    string  `json:"plan_id"`
	Status    string  `json:"status"`
	UsedBy    *string `json:"used_by,omitempty"`
	UsedAt    *string `json:"used_at,omitempty"`
	CreatedAt string  `json:"created_at"`
}

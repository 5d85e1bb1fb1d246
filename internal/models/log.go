package models

import "time"

// IssuanceLog is an audit entry for issuance and panel operations.
type IssuanceLog struct {
	ID             string
	SubscriptionID string
	Action         string
	Status         string
	Message        string
	Metadata       map[string]interface{}
	CreatedAt      time.Time
}

package models

import (
	"strings"
	"time"
)

// Billing period constants
const (
	BillingPeriodMonthly   = "monthly"
	BillingPeriodQuarterly = "quarterly"
	BillingPeriodYearly    = "yearly"
)

// GB is the decimal gigabyte used for plan quotas (matches what the
// storefront advertises, not the binary GiB).
const GB = int64(1_000_000_000)

// Plan is a priced tier bound to exactly one ServerGroup.
type Plan struct {
	ID            string
	Name          string
	ServerGroupID string
	// BillingPeriod is authoritative when set. Legacy rows without it fall
	// back to keyword matching on the display name (月/季/年).
	BillingPeriod string
	PriceCents    int64
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ResolveTerms returns the subscription duration in days and the traffic
// quota in bytes for this plan. The explicit billing_period field wins;
// the name-keyword rule only covers rows migrated without it.
func (p *Plan) ResolveTerms() (durationDays int, trafficTotal int64) {
	period := p.BillingPeriod
	if period == "" {
		switch {
		case strings.Contains(p.Name, "年"):
			period = BillingPeriodYearly
		case strings.Contains(p.Name, "季"):
			period = BillingPeriodQuarterly
		case strings.Contains(p.Name, "月"):
			period = BillingPeriodMonthly
		default:
			period = BillingPeriodMonthly
		}
	}

	switch period {
	case BillingPeriodYearly:
		return 365, 12 * GB
	case BillingPeriodQuarterly:
		return 90, 3 * GB
	default:
		return 30, 1 * GB
	}
}

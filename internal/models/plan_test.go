package models

import (
	"testing"
	"time"
)

func TestResolveTerms(t *testing.T) {
	tests := []struct {
		name        string
		plan        Plan
		wantDays    int
		wantTraffic int64
	}{
		{"explicit monthly", Plan{BillingPeriod: BillingPeriodMonthly}, 30, 1 * GB},
		{"explicit quarterly", Plan{BillingPeriod: BillingPeriodQuarterly}, 90, 3 * GB},
		{"explicit yearly", Plan{BillingPeriod: BillingPeriodYearly}, 365, 12 * GB},
		{"keyword fallback 月", Plan{Name: "月付套餐"}, 30, 1 * GB},
		{"keyword fallback 季", Plan{Name: "季度套餐"}, 90, 3 * GB},
		{"keyword fallback 年", Plan{Name: "年付大客户"}, 365, 12 * GB},
		{"field wins over name", Plan{Name: "年付", BillingPeriod: BillingPeriodMonthly}, 30, 1 * GB},
		{"no hint defaults monthly", Plan{Name: "特惠套餐"}, 30, 1 * GB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days, traffic := tt.plan.ResolveTerms()
			if days != tt.wantDays || traffic != tt.wantTraffic {
				t.Errorf("ResolveTerms() = (%d, %d), want (%d, %d)", days, traffic, tt.wantDays, tt.wantTraffic)
			}
		})
	}
}

func TestQuarterlyQuotaIsDecimalGB(t *testing.T) {
	_, traffic := (&Plan{Name: "季度套餐"}).ResolveTerms()
	if traffic != 3_000_000_000 {
		t.Errorf("quarterly quota = %d bytes, want 3000000000", traffic)
	}
}

func TestSubscriptionLifecyclePredicates(t *testing.T) {
	now := time.Now()
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	tests := []struct {
		name      string
		sub       Subscription
		usable    bool
		effective string
	}{
		{"active unexpired", Subscription{Status: SubscriptionStatusActive, ExpiresAt: future}, true, SubscriptionStatusActive},
		{"active lapsed", Subscription{Status: SubscriptionStatusActive, ExpiresAt: past}, false, SubscriptionStatusExpired},
		{"suspended unexpired", Subscription{Status: SubscriptionStatusSuspended, ExpiresAt: future}, false, SubscriptionStatusSuspended},
		{"suspended lapsed", Subscription{Status: SubscriptionStatusSuspended, ExpiresAt: past}, false, SubscriptionStatusSuspended},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sub.IsUsable(now); got != tt.usable {
				t.Errorf("IsUsable = %v, want %v", got, tt.usable)
			}
			if got := tt.sub.EffectiveStatus(now); got != tt.effective {
				t.Errorf("EffectiveStatus = %q, want %q", got, tt.effective)
			}
		})
	}
}

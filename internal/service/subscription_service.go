package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/client"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/config"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/models"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/repository"
)

// Domain errors surfaced to handlers.
var (
	ErrInvalidDuration    = errors.New("duration must be positive")
	ErrInvalidQuota       = errors.New("traffic quota must be positive")
	ErrSubscriptionLapsed = errors.New("subscription has already expired")
	ErrPanelNotConfigured = errors.New("server group has no panel configured")
)

// SubscriptionStore is the persistence surface the issuer needs.
type SubscriptionStore interface {
	Create(ctx context.Context, sub *models.Subscription) error
	GetByID(ctx context.Context, id string) (*models.Subscription, error)
	GetByToken(ctx context.Context, token string) (*models.Subscription, error)
	GetActiveByUser(ctx context.Context, userID string) (*models.Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Subscription, error)
	UpdateStatus(ctx context.Context, id, status string) error
	UpdateTrafficUsed(ctx context.Context, id string, trafficUsed int64) error
	UpdateTerms(ctx context.Context, sub *models.Subscription) error
}

// PlanStore resolves plans.
type PlanStore interface {
	GetByID(ctx context.Context, id string) (*models.Plan, error)
}

// ServerGroupStore resolves server groups.
type ServerGroupStore interface {
	GetByID(ctx context.Context, id string) (*models.ServerGroup, error)
}

// PanelAPI is the panel operations surface used during issuance.
type PanelAPI interface {
	AddUUID(ctx context.Context, panel client.Panel, uuid string) client.Result
	RemoveUUID(ctx context.Context, panel client.Panel, uuid string) client.Result
	ValidateUUID(ctx context.Context, panel client.Panel, uuid string) client.ValidateResult
}

// ActionLogger records issuance audit entries.
type ActionLogger interface {
	LogAction(ctx context.Context, subscriptionID, action, status, message string) error
	LogActionWithMetadata(ctx context.Context, subscriptionID, action, status, message string, metadata map[string]interface{}) error
}

// SubscriptionService creates and manages the lifecycle of subscriptions,
// including credential registration with the external panel.
type SubscriptionService struct {
	cfg    *config.Config
	subs   SubscriptionStore
	plans  PlanStore
	groups ServerGroupStore
	logs   ActionLogger
	panel  PanelAPI
}

// NewSubscriptionService creates a new subscription service
func NewSubscriptionService(
	cfg *config.Config,
	subs SubscriptionStore,
	plans PlanStore,
	groups ServerGroupStore,
	logs ActionLogger,
	panel PanelAPI,
) *SubscriptionService {
	return &SubscriptionService{
		cfg:    cfg,
		subs:   subs,
		plans:  plans,
		groups: groups,
		logs:   logs,
		panel:  panel,
	}
}

// Create issues a new subscription. The credential is registered with the
// group's panel before anything is persisted: panel registration is a
// precondition of issuance, not a best-effort side effect. When it fails,
// no subscription row is written.
func (s *SubscriptionService) Create(ctx context.Context, userID, planID string, trafficTotal int64, durationDays int) (*models.Subscription, error) {
	if durationDays <= 0 {
		return nil, ErrInvalidDuration
	}
	if trafficTotal <= 0 {
		return nil, ErrInvalidQuota
	}

	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("plan not found: %w", err)
	}
	group, err := s.groups.GetByID(ctx, plan.ServerGroupID)
	if err != nil {
		return nil, fmt.Errorf("server group not found: %w", err)
	}

	// The credential goes to the panel; the token goes into the user-facing
	// URL. They must never be the same value.
	credential := uuid.New().String()
	token := uuid.New().String()
	for token == credential {
		token = uuid.New().String()
	}

	if group.PanelEnabled() {
		res := s.panel.AddUUID(ctx, panelOf(group), credential)
		if !res.Success {
			// No subscription row exists yet to hang an audit entry on
			log.Printf("[SubscriptionService] Panel registration failed: user=%s plan=%s: %s",
				userID, planID, res.Message)
			return nil, fmt.Errorf("panel registration failed: %s", res.Message)
		}
	} else {
		log.Printf("[SubscriptionService] Group %s is panel-disabled, skipping registration", group.ID)
	}

	sub := &models.Subscription{
		ID:           uuid.New().String(),
		UserID:       userID,
		PlanID:       planID,
		Credential:   credential,
		Token:        token,
		Status:       models.SubscriptionStatusActive,
		TrafficTotal: trafficTotal,
		TrafficUsed:  0,
		ExpiresAt:    time.Now().AddDate(0, 0, durationDays),
	}

	if err := s.subs.Create(ctx, sub); err != nil {
		// Rollback: remove the credential from the panel again
		if group.PanelEnabled() {
			_ = s.panel.RemoveUUID(ctx, panelOf(group), credential)
		}
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	s.logs.LogActionWithMetadata(ctx, sub.ID, "subscription_created", "active",
		"Subscription issued successfully",
		map[string]interface{}{
			"plan_id":       planID,
			"traffic_total": trafficTotal,
			"duration_days": durationDays,
			"panel_enabled": group.PanelEnabled(),
		})

	log.Printf("[SubscriptionService] Subscription created: id=%s plan=%s", sub.ID, planID)
	return sub, nil
}

// CreateFromPlan issues a subscription with quota and duration resolved
// from the plan's billing terms.
func (s *SubscriptionService) CreateFromPlan(ctx context.Context, userID, planID string) (*models.Subscription, error) {
	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("plan not found: %w", err)
	}
	durationDays, trafficTotal := plan.ResolveTerms()
	return s.Create(ctx, userID, planID, trafficTotal, durationDays)
}

// Get loads a subscription by ID.
func (s *SubscriptionService) Get(ctx context.Context, id string) (*models.Subscription, error) {
	return s.subs.GetByID(ctx, id)
}

// GetActive returns the most relevant usable subscription for a user, or nil
// when none exists. Expired or suspended rows stay invisible here; they are
// never transitioned by this query.
func (s *SubscriptionService) GetActive(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := s.subs.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

// ListForUser returns all of a user's subscriptions, newest first.
func (s *SubscriptionService) ListForUser(ctx context.Context, userID string) ([]*models.Subscription, error) {
	return s.subs.ListByUser(ctx, userID)
}

// GetByToken looks up a subscription by its fetch token.
func (s *SubscriptionService) GetByToken(ctx context.Context, token string) (*models.Subscription, error) {
	return s.subs.GetByToken(ctx, token)
}

// Suspend flips a subscription to suspended.
func (s *SubscriptionService) Suspend(ctx context.Context, id string) error {
	if _, err := s.subs.GetByID(ctx, id); err != nil {
		return fmt.Errorf("subscription not found: %w", err)
	}
	if err := s.subs.UpdateStatus(ctx, id, models.SubscriptionStatusSuspended); err != nil {
		return err
	}
	s.logs.LogAction(ctx, id, "subscription_suspended", "suspended", "")
	return nil
}

// Resume flips a suspended subscription back to active. Not unconditional:
// a lapsed subscription cannot be resumed.
func (s *SubscriptionService) Resume(ctx context.Context, id string) error {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("subscription not found: %w", err)
	}
	if sub.IsExpired(time.Now()) {
		return ErrSubscriptionLapsed
	}
	if err := s.subs.UpdateStatus(ctx, id, models.SubscriptionStatusActive); err != nil {
		return err
	}
	s.logs.LogAction(ctx, id, "subscription_resumed", "active", "")
	return nil
}

// UpdateTrafficUsage overwrites the used-traffic counter. Accounting only:
// no check against the quota is made here.
func (s *SubscriptionService) UpdateTrafficUsage(ctx context.Context, id string, used int64) error {
	return s.subs.UpdateTrafficUsed(ctx, id, used)
}

// Renew extends a subscription by another billing period of the given plan
// (or its current plan when planID is empty). The quota is reset; a lapsed
// subscription restarts from now, an unexpired one extends from its current
// expiry. The credential and token are unchanged, so issued links keep
// working.
func (s *SubscriptionService) Renew(ctx context.Context, id, planID string) (*models.Subscription, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("subscription not found: %w", err)
	}

	if planID == "" {
		planID = sub.PlanID
	}
	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("plan not found: %w", err)
	}
	durationDays, trafficTotal := plan.ResolveTerms()

	now := time.Now()
	base := sub.ExpiresAt
	if base.Before(now) {
		base = now
	}

	sub.PlanID = planID
	sub.Status = models.SubscriptionStatusActive
	sub.TrafficTotal = trafficTotal
	sub.TrafficUsed = 0
	sub.ExpiresAt = base.AddDate(0, 0, durationDays)

	if err := s.subs.UpdateTerms(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save renewal: %w", err)
	}

	s.logs.LogActionWithMetadata(ctx, sub.ID, "subscription_renewed", "active", "",
		map[string]interface{}{
			"plan_id":    planID,
			"expires_at": sub.ExpiresAt,
		})

	log.Printf("[SubscriptionService] Subscription renewed: id=%s plan=%s until=%s",
		sub.ID, planID, sub.ExpiresAt.Format(time.RFC3339))
	return sub, nil
}

// Revoke suspends a subscription and best-effort removes its credential
// from the panel.
func (s *SubscriptionService) Revoke(ctx context.Context, id, reason string) error {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("subscription not found: %w", err)
	}

	_, group, err := s.ResolveDelivery(ctx, sub)
	if err == nil && group.PanelEnabled() {
		if res := s.panel.RemoveUUID(ctx, panelOf(group), sub.Credential); !res.Success {
			log.Printf("[SubscriptionService] Warning: failed to remove credential from panel: %s", res.Message)
			// Continue execution, don't block the flow
		}
	}

	if err := s.subs.UpdateStatus(ctx, id, models.SubscriptionStatusSuspended); err != nil {
		return err
	}
	s.logs.LogAction(ctx, id, "subscription_revoked", "suspended", reason)
	return nil
}

// ResolveDelivery loads the plan and server group a subscription is served
// from.
func (s *SubscriptionService) ResolveDelivery(ctx context.Context, sub *models.Subscription) (*models.Plan, *models.ServerGroup, error) {
	plan, err := s.plans.GetByID(ctx, sub.PlanID)
	if err != nil {
		return nil, nil, fmt.Errorf("plan not found: %w", err)
	}
	group, err := s.groups.GetByID(ctx, plan.ServerGroupID)
	if err != nil {
		return nil, nil, fmt.Errorf("server group not found: %w", err)
	}
	return plan, group, nil
}

// VerifyCredential asks the panel whether the subscription's credential is
// still registered. For panel-disabled groups there is nothing to verify and
// the credential is treated as present. Success and Valid are independent:
// Success=false means the panel could not be asked at all.
func (s *SubscriptionService) VerifyCredential(ctx context.Context, group *models.ServerGroup, credential string) client.ValidateResult {
	if !group.PanelEnabled() {
		return client.ValidateResult{Result: client.Result{Success: true}, Valid: true}
	}
	return s.panel.ValidateUUID(ctx, panelOf(group), credential)
}

// ReRegister re-adds a subscription's credential to the panel. This is the
// remediation path for credentials the panel reports absent.
func (s *SubscriptionService) ReRegister(ctx context.Context, sub *models.Subscription) error {
	_, group, err := s.ResolveDelivery(ctx, sub)
	if err != nil {
		return err
	}
	if !group.PanelEnabled() {
		return ErrPanelNotConfigured
	}

	res := s.panel.AddUUID(ctx, panelOf(group), sub.Credential)
	if !res.Success {
		s.logs.LogAction(ctx, sub.ID, "panel_reregister_failed", "failed", res.Message)
		return fmt.Errorf("panel re-registration failed: %s", res.Message)
	}

	s.logs.LogAction(ctx, sub.ID, "panel_reregistered", "active", "")
	return nil
}

// BuildInfo converts a subscription to its user-facing view. The panel
// credential never appears here.
func (s *SubscriptionService) BuildInfo(sub *models.Subscription) *models.SubscriptionInfo {
	trafficPercent := 0.0
	if sub.TrafficTotal > 0 {
		trafficPercent = float64(sub.TrafficUsed) / float64(sub.TrafficTotal) * 100
	}

	return &models.SubscriptionInfo{
		SubscriptionID: sub.ID,
		PlanID:         sub.PlanID,
		Status:         sub.EffectiveStatus(time.Now()),
		Token:          sub.Token,
		SubscribeURL:   fmt.Sprintf("%s/subscribe?token=%s", s.cfg.Subscribe.PublicBaseURL, sub.Token),
		TrafficTotal:   sub.TrafficTotal,
		TrafficUsed:    sub.TrafficUsed,
		TrafficPercent: trafficPercent,
		ExpiresAt:      sub.ExpiresAt.Format(time.RFC3339),
		CreatedAt:      sub.CreatedAt.Format(time.RFC3339),
	}
}

func panelOf(group *models.ServerGroup) client.Panel {
	return client.Panel{APIURL: group.PanelAPIURL, APIKey: group.PanelAPIKey}
}

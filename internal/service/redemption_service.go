package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/config"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/models"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/repository"
)

var (
	ErrCodeNotFound    = errors.New("redemption code not found")
	ErrCodeAlreadyUsed = errors.New("redemption code already used")
	ErrPlanDisabled    = errors.New("plan is not active")
)

// Codes without a confusable character set (no 0/O, 1/I).
const codeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeStore is the persistence surface for redemption codes.
type CodeStore interface {
	Create(ctx context.Context, c *models.RedemptionCode) error
	GetByCode(ctx context.Context, code string) (*models.RedemptionCode, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	MarkUsed(ctx context.Context, id, userID string, usedAt time.Time) error
	ListByPlan(ctx context.Context, planID, status string) ([]*models.RedemptionCode, error)
}

// OrderStore records issuance events.
type OrderStore interface {
	Create(ctx context.Context, o *models.Order) error
	AttachSubscription(ctx context.Context, orderID, subscriptionID string) error
}

// Issuer is the slice of SubscriptionService the redemption flow needs.
type Issuer interface {
	Create(ctx context.Context, userID, planID string, trafficTotal int64, durationDays int) (*models.Subscription, error)
	BuildInfo(sub *models.Subscription) *models.SubscriptionInfo
}

// RedemptionService exchanges single-use codes for plan activation.
type RedemptionService struct {
	cfg    *config.Config
	codes  CodeStore
	orders OrderStore
	plans  PlanStore
	issuer Issuer
}

// NewRedemptionService creates a new redemption service
func NewRedemptionService(
	cfg *config.Config,
	codes CodeStore,
	orders OrderStore,
	plans PlanStore,
	issuer Issuer,
) *RedemptionService {
	return &RedemptionService{
		cfg:    cfg,
		codes:  codes,
		orders: orders,
		plans:  plans,
		issuer: issuer,
	}
}

// Redeem consumes a code and issues a subscription for its plan.
//
// Partial-failure tolerance: once the code is consumed and the order
// recorded, a downstream issuance failure does NOT roll anything back. The
// redemption is reported successful with a degraded message; the missing
// subscription needs manual remediation.
func (s *RedemptionService) Redeem(ctx context.Context, code, userID string) (*models.RedeemResponse, error) {
	if code == "" {
		return nil, ErrCodeNotFound
	}

	rc, err := s.codes.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("load code: %w", err)
	}
	if rc.Status != models.CodeStatusUnused {
		return nil, ErrCodeAlreadyUsed
	}

	plan, err := s.plans.GetByID(ctx, rc.PlanID)
	if err != nil {
		return nil, fmt.Errorf("plan not found: %w", err)
	}
	if !plan.Active {
		return nil, ErrPlanDisabled
	}

	durationDays, trafficTotal := plan.ResolveTerms()

	if err := s.codes.MarkUsed(ctx, rc.ID, userID, time.Now()); err != nil {
		return nil, fmt.Errorf("consume code: %w", err)
	}

	order := &models.Order{
		ID:          uuid.New().String(),
		UserID:      userID,
		PlanID:      plan.ID,
		Channel:     models.OrderChannelRedemption,
		CodeID:      &rc.ID,
		AmountCents: 0,
	}
	// orderID stays empty if the row was never persisted, so the response
	// never references an order that does not exist.
	orderID := order.ID
	if err := s.orders.Create(ctx, order); err != nil {
		// The code is already consumed; keep going rather than stranding it.
		log.Printf("[RedemptionService] Warning: failed to record order for code %s: %v", rc.ID, err)
		orderID = ""
	}

	sub, err := s.issuer.Create(ctx, userID, plan.ID, trafficTotal, durationDays)
	if err != nil {
		log.Printf("[RedemptionService] Code %s consumed but issuance failed: %v", rc.ID, err)
		return &models.RedeemResponse{
			Success:  true,
			Degraded: true,
			OrderID:  orderID,
			Message:  "Code redeemed and plan attached, but subscription setup failed. Please contact support.",
		}, nil
	}

	if orderID != "" {
		if err := s.orders.AttachSubscription(ctx, orderID, sub.ID); err != nil {
			log.Printf("[RedemptionService] Warning: failed to attach subscription to order %s: %v", orderID, err)
		}
	}

	log.Printf("[RedemptionService] Code redeemed: plan=%s subscription=%s", plan.ID, sub.ID)

	return &models.RedeemResponse{
		Success:      true,
		OrderID:      orderID,
		Subscription: s.issuer.BuildInfo(sub),
		Message:      "Code redeemed successfully",
	}, nil
}

// GenerateCodes creates a batch of redemption codes for a plan. Codes are
// generated one at a time with a collision probe before each insert.
func (s *RedemptionService) GenerateCodes(ctx context.Context, planID string, count int) (*models.GenerateCodesResponse, error) {
	if count <= 0 || count > 500 {
		return nil, fmt.Errorf("count must be between 1 and 500")
	}
	if _, err := s.plans.GetByID(ctx, planID); err != nil {
		return nil, fmt.Errorf("plan not found: %w", err)
	}

	length := s.cfg.Subscribe.CodeLength
	if length <= 0 {
		length = 16
	}

	codes := make([]string, 0, count)
	for len(codes) < count {
		code, err := generateCode(length)
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}

		exists, err := s.codes.CodeExists(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("check code collision: %w", err)
		}
		if exists {
			continue
		}

		rc := &models.RedemptionCode{
			ID:     uuid.New().String(),
			Code:   code,
			PlanID: planID,
			Status: models.CodeStatusUnused,
		}
		if err := s.codes.Create(ctx, rc); err != nil {
			return nil, fmt.Errorf("insert code: %w", err)
		}
		codes = append(codes, code)
	}

	log.Printf("[RedemptionService] Generated %d codes for plan %s", len(codes), planID)
	return &models.GenerateCodesResponse{PlanID: planID, Codes: codes}, nil
}

// ListCodes returns the admin view of codes for a plan.
func (s *RedemptionService) ListCodes(ctx context.Context, planID, status string) ([]*models.CodeInfo, error) {
	rcs, err := s.codes.ListByPlan(ctx, planID, status)
	if err != nil {
		return nil, err
	}

	infos := make([]*models.CodeInfo, 0, len(rcs))
	for _, rc := range rcs {
		info := &models.CodeInfo{
			ID:        rc.ID,
			Code:      rc.Code,
			PlanID:    rc.PlanID,
			Status:    rc.Status,
			UsedBy:    rc.UsedBy,
			CreatedAt: rc.CreatedAt.Format(time.RFC3339),
		}
		if rc.UsedAt != nil {
			usedAt := rc.UsedAt.Format(time.RFC3339)
			info.UsedAt = &usedAt
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func generateCode(length int) (string, error) {
	max := big.NewInt(int64(len(codeCharset)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeCharset[n.Int64()]
	}
	return string(buf), nil
}

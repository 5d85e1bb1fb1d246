package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/config"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/models"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/repository"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/service"
)

type Handler struct {
	cfg                 *config.Config
	subscriptionService *service.SubscriptionService
	redemptionService   *service.RedemptionService
	planRepo            *repository.PlanRepository
	orderRepo           *repository.OrderRepository
	logRepo             *repository.LogRepository
}

func NewHandler(
	cfg *config.Config,
	subscriptionService *service.SubscriptionService,
	redemptionService *service.RedemptionService,
	planRepo *repository.PlanRepository,
	orderRepo *repository.OrderRepository,
	logRepo *repository.LogRepository,
) *Handler {
	return &Handler{
		cfg:                 cfg,
		subscriptionService: subscriptionService,
		redemptionService:   redemptionService,
		planRepo:            planRepo,
		orderRepo:           orderRepo,
		logRepo:             logRepo,
	}
}

// ==================== User API Handlers ====================

// ListActivePlans returns the plans currently offered
func (h *Handler) ListActivePlans(c *gin.Context) {
	plans, err := h.planRepo.GetActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	infos := make([]models.PlanInfo, 0, len(plans))
	for _, p := range plans {
		days, quota := p.ResolveTerms()
		infos = append(infos, models.PlanInfo{
			ID:            p.ID,
			Name:          p.Name,
			ServerGroupID: p.ServerGroupID,
			BillingPeriod: p.BillingPeriod,
			PriceCents:    p.PriceCents,
			Active:        p.Active,
			DurationDays:  days,
			TrafficTotal:  quota,
		})
	}

	c.JSON(http.StatusOK, gin.H{"plans": infos})
}

// GetMySubscription returns the current user's usable subscription
func (h *Handler) GetMySubscription(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	sub, err := h.subscriptionService.GetActive(c.Request.Context(), userID.(string))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if sub == nil {
		c.JSON(http.StatusOK, gin.H{
			"has_subscription": false,
			"message":          "No active subscription. Redeem a code or purchase a plan.",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"has_subscription": true,
		"subscription":     h.subscriptionService.BuildInfo(sub),
	})
}

// ListMySubscriptions returns all of the current user's subscriptions,
// usable or not
func (h *Handler) ListMySubscriptions(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	subs, err := h.subscriptionService.ListForUser(c.Request.Context(), userID.(string))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	infos := make([]*models.SubscriptionInfo, 0, len(subs))
	for _, sub := range subs {
		infos = append(infos, h.subscriptionService.BuildInfo(sub))
	}

	c.JSON(http.StatusOK, gin.H{"subscriptions": infos})
}

// ListMyOrders returns the current user's order history
func (h *Handler) ListMyOrders(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	orders, err := h.orderRepo.ListByUser(c.Request.Context(), userID.(string))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	infos := make([]models.OrderInfo, 0, len(orders))
	for _, o := range orders {
		info := models.OrderInfo{
			ID:          o.ID,
			PlanID:      o.PlanID,
			Channel:     o.Channel,
			AmountCents: o.AmountCents,
			CreatedAt:   o.CreatedAt.Format(time.RFC3339),
		}
		if o.SubscriptionID != nil {
			info.SubscriptionID = *o.SubscriptionID
		}
		infos = append(infos, info)
	}

	c.JSON(http.StatusOK, gin.H{"orders": infos})
}

// SuspendMySubscription suspends one of the current user's subscriptions
func (h *Handler) SuspendMySubscription(c *gin.Context) {
	sub, ok := h.ownedSubscription(c)
	if !ok {
		return
	}

	if err := h.subscriptionService.Suspend(c.Request.Context(), sub.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "subscription suspended"})
}

// ResumeMySubscription resumes a suspended subscription. Lapsed
// subscriptions are refused.
func (h *Handler) ResumeMySubscription(c *gin.Context) {
	sub, ok := h.ownedSubscription(c)
	if !ok {
		return
	}

	if err := h.subscriptionService.Resume(c.Request.Context(), sub.ID); err != nil {
		if errors.Is(err, service.ErrSubscriptionLapsed) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "subscription has expired and cannot be resumed"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "subscription resumed"})
}

// Redeem exchanges a redemption code for plan activation
func (h *Handler) Redeem(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.redemptionService.Redeem(c.Request.Context(), req.Code, userID.(string))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCodeNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "redemption code not found"})
		case errors.Is(err, service.ErrCodeAlreadyUsed):
			c.JSON(http.StatusBadRequest, gin.H{"error": "redemption code already used"})
		case errors.Is(err, service.ErrPlanDisabled):
			c.JSON(http.StatusBadRequest, gin.H{"error": "plan is no longer offered"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ownedSubscription loads the :id subscription and checks it belongs to the
// authenticated user. Responds 404 on mismatch to avoid leaking IDs.
func (h *Handler) ownedSubscription(c *gin.Context) (*models.Subscription, bool) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return nil, false
	}

	sub, err := h.subscriptionService.Get(c.Request.Context(), c.Param("id"))
	if err != nil || sub.UserID != userID.(string) {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return nil, false
	}
	return sub, true
}

// ==================== Internal API Handlers ====================

// CreateSubscription handles issuance requests from the billing side
func (h *Handler) CreateSubscription(c *gin.Context) {
	var req models.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var sub *models.Subscription
	var err error
	if req.TrafficTotal > 0 && req.DurationDays > 0 {
		sub, err = h.subscriptionService.Create(c.Request.Context(), req.UserID, req.PlanID, req.TrafficTotal, req.DurationDays)
	} else {
		// Unspecified terms fall back to the plan's billing period
		sub, err = h.subscriptionService.CreateFromPlan(c.Request.Context(), req.UserID, req.PlanID)
	}

	if err != nil {
		if errors.Is(err, service.ErrInvalidDuration) || errors.Is(err, service.ErrInvalidQuota) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "subscription": h.subscriptionService.BuildInfo(sub)})
}

// UpdateTraffic overwrites a subscription's used-traffic counter
func (h *Handler) UpdateTraffic(c *gin.Context) {
	var req models.UpdateTrafficRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TrafficUsed < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "traffic_used must not be negative"})
		return
	}

	if err := h.subscriptionService.UpdateTrafficUsage(c.Request.Context(), c.Param("id"), req.TrafficUsed); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RenewSubscription extends a subscription after the billing side confirmed
// a renewal payment
func (h *Handler) RenewSubscription(c *gin.Context) {
	var req struct {
		PlanID string `json:"plan_id"`
	}
	_ = c.ShouldBindJSON(&req)

	sub, err := h.subscriptionService.Renew(c.Request.Context(), c.Param("id"), req.PlanID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription or plan not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "subscription": h.subscriptionService.BuildInfo(sub)})
}

// RevokeSubscription suspends a subscription and removes its panel credential
func (h *Handler) RevokeSubscription(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := h.subscriptionService.Revoke(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "subscription revoked"})
}

// GetUserSubscription returns a user's usable subscription (called by user-portal)
func (h *Handler) GetUserSubscription(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	sub, err := h.subscriptionService.GetActive(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "no active subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.subscriptionService.BuildInfo(sub)})
}

// GetSubscriptionLogs returns the audit trail for a subscription
func (h *Handler) GetSubscriptionLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	logs, err := h.logRepo.GetBySubscriptionID(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	infos := make([]models.IssuanceLogInfo, 0, len(logs))
	for _, l := range logs {
		infos = append(infos, models.IssuanceLogInfo{
			ID:             l.ID,
			SubscriptionID: l.SubscriptionID,
			Action:         l.Action,
			Status:         l.Status,
			Message:        l.Message,
			Metadata:       l.Metadata,
			CreatedAt:      l.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{"logs": infos})
}

// GenerateCodes creates a batch of redemption codes (admin/internal)
func (h *Handler) GenerateCodes(c *gin.Context) {
	var req models.GenerateCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.redemptionService.GenerateCodes(c.Request.Context(), req.PlanID, req.Count)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// ListCodes queries redemption codes (admin/internal)
func (h *Handler) ListCodes(c *gin.Context) {
	planID := c.Query("plan_id")
	status := c.Query("status")

	codes, err := h.redemptionService.ListCodes(c.Request.Context(), planID, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"codes": codes})
}

package http

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/models"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/nodes"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/render"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/repository"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/service"
)

// FetchSubscription serves the client-importable payload for a token.
// The token is the only authentication; the panel credential never appears
// in the URL.
func (h *Handler) FetchSubscription(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	sub, err := h.subscriptionService.GetByToken(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	if sub.Status == models.SubscriptionStatusSuspended {
		c.JSON(http.StatusForbidden, gin.H{"error": "subscription is suspended"})
		return
	}
	if sub.IsExpired(now) {
		c.JSON(http.StatusForbidden, gin.H{"error": "subscription has expired"})
		return
	}

	_, group, err := h.subscriptionService.ResolveDelivery(c.Request.Context(), sub)
	if err != nil {
		// 套餐或节点组已被删除，对用户表现为订阅不存在
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}

	// Cross-check the credential with the panel before emitting anything.
	// Success and Valid are independent: Success=false means the panel
	// could not be reached, which is our problem, not the user's.
	vr := h.subscriptionService.VerifyCredential(c.Request.Context(), group, sub.Credential)
	if !vr.Success {
		log.Printf("[Subscribe] Panel validation unreachable for sub %s: %s", sub.ID, vr.Message)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cannot verify subscription at the moment, please try again later"})
		return
	}
	if !vr.Valid {
		c.JSON(http.StatusForbidden, gin.H{
			"error":      "credential is not registered on the panel",
			"addUuidUrl": fmt.Sprintf("%s/subscribe/readd?token=%s", h.cfg.Subscribe.PublicBaseURL, sub.Token),
		})
		return
	}

	nodeList := nodes.ParseAny(group.NodeList)

	format := c.DefaultQuery("format", h.cfg.Subscribe.DefaultFormat)
	result, err := render.Render(sub, nodeList, format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Subscription-Userinfo", result.UserInfo)
	c.Data(http.StatusOK, result.ContentType, []byte(result.Body))
}

// ReaddCredential re-registers a subscription's credential on the panel.
// 面板侧凭证丢失时的自助补救入口
func (h *Handler) ReaddCredential(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	sub, err := h.subscriptionService.GetByToken(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if !sub.IsUsable(time.Now()) {
		c.JSON(http.StatusForbidden, gin.H{"error": "subscription is not active"})
		return
	}

	if err := h.subscriptionService.ReRegister(c.Request.Context(), sub); err != nil {
		if errors.Is(err, service.ErrPanelNotConfigured) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "this subscription does not use a panel"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "re-registration failed, please try again later"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "credential re-registered"})
}

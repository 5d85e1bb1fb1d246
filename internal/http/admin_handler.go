package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/client"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/models"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/nodes"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/repository"
)

// AdminHandler serves the server-group and plan management endpoints used by
// the admin-portal.
type AdminHandler struct {
	groupRepo   *repository.ServerGroupRepository
	planRepo    *repository.PlanRepository
	panelClient *client.PanelClient
}

func NewAdminHandler(
	groupRepo *repository.ServerGroupRepository,
	planRepo *repository.PlanRepository,
	panelClient *client.PanelClient,
) *AdminHandler {
	return &AdminHandler{
		groupRepo:   groupRepo,
		planRepo:    planRepo,
		panelClient: panelClient,
	}
}

// ==================== Server Group Management ====================

// ListServerGroups returns all server groups (without node detail)
func (h *AdminHandler) ListServerGroups(c *gin.Context) {
	groups, err := h.groupRepo.GetAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	infos := make([]models.ServerGroupInfo, 0, len(groups))
	for _, g := range groups {
		infos = append(infos, groupInfo(g, false))
	}

	c.JSON(http.StatusOK, gin.H{"groups": infos})
}

// GetServerGroup returns one group including its parsed node list
func (h *AdminHandler) GetServerGroup(c *gin.Context) {
	group, err := h.groupRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "server group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"group": groupInfo(group, true)})
}

// UpsertServerGroup creates or updates a server group. The node list is
// stored as submitted; the parsed count is derived here so list views don't
// have to re-parse.
func (h *AdminHandler) UpsertServerGroup(c *gin.Context) {
	var req models.UpsertServerGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	parsed := nodes.ParseAny(req.NodeList)

	group := &models.ServerGroup{
		ID:          req.ID,
		Name:        req.Name,
		PanelAPIURL: strings.TrimRight(req.PanelAPIURL, "/"),
		PanelAPIKey: req.PanelAPIKey,
		NodeList:    req.NodeList,
		NodeCount:   len(parsed),
	}

	if err := h.groupRepo.Upsert(c.Request.Context(), group); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"group": groupInfo(group, false)})
}

// DeleteServerGroup removes a group unless plans still reference it
func (h *AdminHandler) DeleteServerGroup(c *gin.Context) {
	if err := h.groupRepo.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "server group deleted"})
}

// PanelStatus probes the group's panel health endpoint
func (h *AdminHandler) PanelStatus(c *gin.Context) {
	group, panel, ok := h.panelOf(c)
	if !ok {
		return
	}

	res := h.panelClient.Status(c.Request.Context(), panel)
	c.JSON(http.StatusOK, gin.H{
		"group_id":  group.ID,
		"reachable": res.Success,
		"version":   res.Version,
		"users":     res.Users,
		"message":   res.Message,
	})
}

// PanelUUIDs lists the credentials currently registered on the group's panel
func (h *AdminHandler) PanelUUIDs(c *gin.Context) {
	group, panel, ok := h.panelOf(c)
	if !ok {
		return
	}

	res := h.panelClient.ListUUIDs(c.Request.Context(), panel)
	if !res.Success {
		c.JSON(http.StatusBadGateway, gin.H{"error": res.Message})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"group_id": group.ID,
		"count":    len(res.UUIDs),
		"uuids":    res.UUIDs,
	})
}

func (h *AdminHandler) panelOf(c *gin.Context) (*models.ServerGroup, client.Panel, bool) {
	group, err := h.groupRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "server group not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return nil, client.Panel{}, false
	}
	if !group.PanelEnabled() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "server group has no panel configured"})
		return nil, client.Panel{}, false
	}
	return group, client.Panel{APIURL: group.PanelAPIURL, APIKey: group.PanelAPIKey}, true
}

// ==================== Plan Management ====================

// ListPlans returns all plans including disabled ones
func (h *AdminHandler) ListPlans(c *gin.Context) {
	plans, err := h.planRepo.GetAll(c.Request.Context())
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

// UpsertPlan creates or updates a plan. The referenced server group must
// exist.
func (h *AdminHandler) UpsertPlan(c *gin.Context) {
	var req models.UpsertPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.groupRepo.GetByID(c.Request.Context(), req.ServerGroupID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "server group does not exist"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if req.BillingPeriod != "" {
		switch req.BillingPeriod {
		case models.BillingPeriodMonthly, models.BillingPeriodQuarterly, models.BillingPeriodYearly:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "billing_period must be monthly, quarterly or yearly"})
			return
		}
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	plan := &models.Plan{
		ID:            req.ID,
		Name:          req.Name,
		ServerGroupID: req.ServerGroupID,
		BillingPeriod: req.BillingPeriod,
		PriceCents:    req.PriceCents,
		Active:        active,
	}

	if err := h.planRepo.Upsert(c.Request.Context(), plan); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	days, quota := plan.ResolveTerms()
	c.JSON(http.StatusOK, gin.H{"plan": models.PlanInfo{
		ID:            plan.ID,
		Name:          plan.Name,
		ServerGroupID: plan.ServerGroupID,
		BillingPeriod: plan.BillingPeriod,
		PriceCents:    plan.PriceCents,
		Active:        plan.Active,
		DurationDays:  days,
		TrafficTotal:  quota,
	}})
}

// SetPlanActive toggles whether a plan is offered
func (h *AdminHandler) SetPlanActive(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.planRepo.SetActive(c.Request.Context(), c.Param("id"), *req.Active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "plan not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func groupInfo(g *models.ServerGroup, includeNodes bool) models.ServerGroupInfo {
	info := models.ServerGroupInfo{
		ID:           g.ID,
		Name:         g.Name,
		PanelAPIURL:  g.PanelAPIURL,
		PanelEnabled: g.PanelEnabled(),
		NodeCount:    g.NodeCount,
		CreatedAt:    g.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    g.UpdatedAt.Format(time.RFC3339),
	}
	if includeNodes {
		info.Nodes = nodes.ParseAny(g.NodeList)
	}
	return info
}

package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/client"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/config"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/repository"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/service"
)

// RateLimiter 简单的内存速率限制器
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int           // 最大请求数
	window   time.Duration // 时间窗口
}

// NewRateLimiter 创建速率限制器
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow 检查是否允许请求
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	// 清理过期请求
	var valid []time.Time
	for _, t := range rl.requests[key] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}

	// 检查是否超过限制
	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	// 记录新请求
	rl.requests[key] = append(valid, now)
	return true
}

// RateLimitMiddleware 速率限制中间件
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 使用用户 ID 或 IP 作为限制 key
		key := c.GetString("userID")
		if key == "" {
			key = c.ClientIP()
		}

		if !rl.Allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, please try again later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

type Server struct {
	router       *gin.Engine
	handler      *Handler
	adminHandler *AdminHandler
	cfg          *config.Config
}

// 全局速率限制器: 每用户每分钟最多 30 次请求
var userRateLimiter = NewRateLimiter(30, time.Minute)

// 兑换速率限制器: 每用户每小时最多 10 次（防止暴力猜测兑换码）
var redeemRateLimiter = NewRateLimiter(10, time.Hour)

// 订阅拉取速率限制器: 每 IP 每分钟最多 60 次（客户端轮询）
var subscribeRateLimiter = NewRateLimiter(60, time.Minute)

func NewServer(
	cfg *config.Config,
	subscriptionService *service.SubscriptionService,
	redemptionService *service.RedemptionService,
	groupRepo *repository.ServerGroupRepository,
	planRepo *repository.PlanRepository,
	orderRepo *repository.OrderRepository,
	logRepo *repository.LogRepository,
	panelClient *client.PanelClient,
) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	handler := NewHandler(cfg, subscriptionService, redemptionService, planRepo, orderRepo, logRepo)
	adminHandler := NewAdminHandler(groupRepo, planRepo, panelClient)

	s := &Server{
		router:       router,
		handler:      handler,
		adminHandler: adminHandler,
		cfg:          cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "subscribe-service",
		})
	})

	// Public subscription fetch - authenticated by the token itself
	public := s.router.Group("/subscribe")
	public.Use(RateLimitMiddleware(subscribeRateLimiter))
	{
		public.GET("", s.handler.FetchSubscription)
		public.GET("/readd", s.handler.ReaddCredential) // 凭证失效后的补救入口
	}

	// User API - requires JWT authentication
	user := s.router.Group("/api/v1")
	user.Use(JWTAuthMiddleware(s.cfg.JWT.SecretKey))
	user.Use(RateLimitMiddleware(userRateLimiter)) // 用户 API 速率限制
	{
		user.GET("/plans", s.handler.ListActivePlans)
		user.GET("/my/subscription", s.handler.GetMySubscription)
		user.GET("/my/subscriptions", s.handler.ListMySubscriptions)
		user.GET("/my/orders", s.handler.ListMyOrders)
		user.POST("/my/subscriptions/:id/suspend", s.handler.SuspendMySubscription)
		user.POST("/my/subscriptions/:id/resume", s.handler.ResumeMySubscription)
		// 兑换使用更严格的速率限制
		user.POST("/redeem", RateLimitMiddleware(redeemRateLimiter), s.handler.Redeem)
	}

	// Internal API - called by the billing side and user-portal
	internal := s.router.Group("/api/internal")
	internal.Use(InternalAuthMiddleware(s.cfg.InternalSecret))
	{
		internal.POST("/subscriptions", s.handler.CreateSubscription)
		internal.PUT("/subscriptions/:id/traffic", s.handler.UpdateTraffic)
		internal.POST("/subscriptions/:id/renew", s.handler.RenewSubscription)
		internal.POST("/subscriptions/:id/revoke", s.handler.RevokeSubscription)
		internal.GET("/subscriptions/:id/logs", s.handler.GetSubscriptionLogs)
		internal.GET("/users/:user_id/subscription", s.handler.GetUserSubscription)

		// Redemption code management
		internal.POST("/codes/generate", s.handler.GenerateCodes)
		internal.GET("/codes", s.handler.ListCodes)
	}

	// Internal Admin API (供 admin-portal 调用，需要 Internal Secret)
	internalAdmin := s.router.Group("/api/internal/admin")
	internalAdmin.Use(InternalAuthMiddleware(s.cfg.InternalSecret))
	{
		internalAdmin.GET("/groups", s.adminHandler.ListServerGroups)
		internalAdmin.GET("/groups/:id", s.adminHandler.GetServerGroup)
		internalAdmin.POST("/groups", s.adminHandler.UpsertServerGroup)
		internalAdmin.DELETE("/groups/:id", s.adminHandler.DeleteServerGroup)
		internalAdmin.GET("/groups/:id/panel/status", s.adminHandler.PanelStatus)
		internalAdmin.GET("/groups/:id/panel/uuids", s.adminHandler.PanelUUIDs)

		internalAdmin.GET("/plans", s.adminHandler.ListPlans)
		internalAdmin.POST("/plans", s.adminHandler.UpsertPlan)
		internalAdmin.PUT("/plans/:id/active", s.adminHandler.SetPlanActive)
	}
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/client"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/config"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/db"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/http"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/repository"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/service"
)

func main() {
	log.Println("Starting Subscribe Service...")

	// .env is optional; real deployments inject env vars directly
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()
	if cfg.Server.Mode == "release" {
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
	}

	// Initialize database
	database, err := db.New(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	pool := database.Pool

	// Initialize repositories
	subscriptionRepo := repository.NewSubscriptionRepository(pool)
	planRepo := repository.NewPlanRepository(pool)
	groupRepo := repository.NewServerGroupRepository(pool)
	redemptionRepo := repository.NewRedemptionRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	logRepo := repository.NewLogRepository(pool)

	// Initialize clients
	panelClient := client.NewPanelClient()

	// Initialize services
	subscriptionService := service.NewSubscriptionService(
		cfg,
		subscriptionRepo,
		planRepo,
		groupRepo,
		logRepo,
		panelClient,
	)

	redemptionService := service.NewRedemptionService(
		cfg,
		redemptionRepo,
		orderRepo,
		planRepo,
		subscriptionService,
	)

	// Initialize HTTP server
	server := http.NewServer(cfg, subscriptionService, redemptionService, groupRepo, planRepo, orderRepo, logRepo, panelClient)

	// Start server in goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		log.Printf("Server starting on %s", addr)
		if err := server.Run(addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	log.Println("Server exited")
}

package main

import (
	"context"
	"log"

	"github.com/mossy-p/call-signaling/config"
	"github.com/mossy-p/call-signaling/internal/call"
	"github.com/mossy-p/call-signaling/internal/handlers"
	"github.com/mossy-p/call-signaling/internal/middleware"
	"github.com/mossy-p/call-signaling/internal/paired"
	"github.com/mossy-p/call-signaling/internal/presence"
	"github.com/mossy-p/call-signaling/internal/signaling"
	"github.com/mossy-p/call-signaling/internal/store"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to Redis
	st, err := store.Connect(context.Background(), cfg.Redis, cfg.SessionTTL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer st.Close()

	log.Println("Redis connection established")

	// Compose the signaling stack
	channel := signaling.New(st)
	pres := presence.NewRedis(st.Client(), cfg.PresenceTTL)
	api := &handlers.API{
		Calls:     call.NewController(channel, st, pres),
		Pairs:     paired.NewController(channel, st),
		Presence:  pres,
		Store:     st,
		JWTSecret: cfg.JWTSecret,
	}

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Global CORS middleware (runs before routing)
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", api.Health)

	// Session API (authenticated)
	apiGroup := router.Group("/api")
	{
		// Login endpoint (public)
		apiGroup.POST("/auth/login", handlers.Login(cfg.JWTSecret))

		authed := apiGroup.Group("", middleware.JWTAuth(cfg.JWTSecret))

		// One-to-one call flow
		authed.POST("/calls", api.PlaceCall)
		authed.POST("/calls/:callId/answer", api.AnswerCall)
		authed.POST("/calls/:callId/reject", api.RejectCall)
		authed.POST("/calls/:callId/end", api.EndCall)
		authed.POST("/calls/:callId/candidates/:role", api.AddCallCandidate)
		authed.DELETE("/calls/:callId", api.CleanupCall)

		// Walkie-talkie flow
		authed.POST("/pairs", api.CreatePair)
		authed.POST("/pairs/:pairId/answer", api.AnswerPair)
		authed.POST("/pairs/:pairId/status", api.UpdatePairStatus)
		authed.POST("/pairs/:pairId/candidates/:role", api.AddPairCandidate)
		authed.DELETE("/pairs/:pairId", api.CleanupPair)
		authed.DELETE("/pairs", api.CleanupAllPairs)
	}

	// WebSocket observe endpoints (token as query parameter)
	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("/attach", api.Attach)
		wsGroup.GET("/incoming", api.WatchIncoming)
		wsGroup.GET("/calls/:callId", api.WatchCall)
		wsGroup.GET("/calls/:callId/candidates/:role", api.WatchCallCandidates)
		wsGroup.GET("/pairs", api.WatchMyPairs)
		wsGroup.GET("/pairs/:pairId", api.WatchPair)
		wsGroup.GET("/pairs/:pairId/candidates/:role", api.WatchPairCandidates)
	}

	// Start server
	log.Printf("Starting call signaling server on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

// Package main runs the live classroom polling server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/classpulse/backend/config"
	"github.com/classpulse/backend/internal/auth"
	"github.com/classpulse/backend/internal/history"
	"github.com/classpulse/backend/internal/live"
	"github.com/classpulse/backend/internal/middleware"
	"github.com/classpulse/backend/internal/polls"
	"github.com/classpulse/backend/internal/realtime"
	"github.com/classpulse/backend/internal/students"
	"github.com/classpulse/backend/internal/votes"
	"github.com/classpulse/backend/pkg/database"
	"github.com/classpulse/backend/pkg/redis"
	"github.com/classpulse/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	// Redis is optional: without it the hub delivers to local clients only.
	var redisBridge *realtime.RedisPubSub
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		redisBridge = realtime.NewRedisPubSub(rdb.Client, logger)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	var hub *realtime.Hub
	if redisBridge != nil {
		hub = realtime.NewHub(logger, redisBridge, redisBridge)
	} else {
		hub = realtime.NewHub(logger, nil, nil)
	}

	// Repositories
	authRepo := auth.NewRepository(pool)
	pollRepo := polls.NewRepository(pool)
	historyRepo := history.NewRepository(pool)
	studentRepo := students.NewRepository(pool)
	voteRepo := votes.NewRepository(pool)

	// Live session orchestrator
	orch := live.NewOrchestrator(
		clockwork.NewRealClock(),
		pollRepo,
		historyRepo,
		studentRepo,
		voteRepo,
		hub,
		logger,
		live.Options{
			AllAnsweredGrace:    time.Duration(cfg.Live.AllAnsweredGraceSec) * time.Second,
			DefaultQuestionTime: time.Duration(cfg.Live.DefaultQuestionTimeSec) * time.Second,
		},
	)

	// Handlers
	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	pollHandler := polls.NewHandler(pollRepo)
	historyHandler := history.NewHandler(historyRepo, studentRepo)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{"status": "ok", "live_sessions": orch.Registry().Len()})
	})

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Polls (authoring)
		api.POST("/polls", middleware.RequireRole("teacher"), pollHandler.Create)
		api.GET("/polls", middleware.RequireRole("teacher"), pollHandler.ListMine)
		api.GET("/polls/:id", pollHandler.GetByID)
		api.DELETE("/polls/:id", middleware.RequireRole("teacher"), pollHandler.Delete)

		// Histories
		api.GET("/histories/:id", historyHandler.GetByID)
		api.GET("/histories/:id/export", middleware.RequireRole("teacher"), historyHandler.ExportCSV)
		api.GET("/users/me/history", historyHandler.ListMine)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, orch, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

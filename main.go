package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"thinkshare/internal/config"
	"thinkshare/internal/db"
	"thinkshare/internal/handlers"
	"thinkshare/internal/logger"
	"thinkshare/internal/middleware"
	"thinkshare/internal/observability"
	"thinkshare/internal/rabbitmq"
	"thinkshare/internal/repositories"
	"thinkshare/internal/telemetry"
	"thinkshare/internal/ws"
)

func main() {
	cfg := config.LoadServer()

	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		log.Fatal("failed to init tracing", zap.Error(err))
	}

	database, err := db.Connect(ctx, cfg.DBDSN, log)
	if err != nil {
		log.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)))
	auditEmitter := telemetry.NewAuditEmitter(publisher, cfg.AuditRouting, cfg.ServiceName, cfg.Environment, log)

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	accountRepo := repositories.NewAccountRepo(database)

	hub := ws.NewHub(conversationRepo, log)

	conversationHandler := handlers.NewConversationHandler(conversationRepo, accountRepo, auditEmitter)
	messageHandler := handlers.NewMessageHandler(conversationRepo, messageRepo, accountRepo, hub, auditEmitter)
	wsHandler := ws.NewHandler(hub)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := database.PingContext(pingCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)
	sendLimit := middleware.RateLimit(middleware.NewLimiterPool(cfg.SendRatePerSec, cfg.SendBurst))

	api := router.Group("/", authMiddleware)
	api.GET("/conversations", conversationHandler.ListConversations)
	api.POST("/conversations", conversationHandler.CreateConversation)
	api.POST("/conversations/:id/read", conversationHandler.MarkRead)
	api.GET("/conversations/:id/messages", messageHandler.ListMessages)
	api.POST("/conversations/:id/messages", sendLimit, messageHandler.SendMessage)
	api.PATCH("/messages/:id", messageHandler.EditMessage)
	api.DELETE("/messages/:id", messageHandler.DeleteMessage)
	api.POST("/messages/:id/reactions", messageHandler.AddReaction)
	api.DELETE("/messages/:id/reactions/:reaction", messageHandler.RemoveReaction)
	api.GET("/ws", wsHandler.Handle)
	handlers.RegisterDebugRoutes(api, auditEmitter, hub, cfg.DebugRoutes)

	grpcServer, health := observability.NewHealthServer(cfg.ServiceName)
	grpcListener, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
	if err != nil {
		log.Fatal("failed to listen for grpc health", zap.Error(err))
	}
	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error("grpc health server stopped", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("listening", zap.String("port", cfg.Port), zap.String("grpc_health_port", cfg.GRPCHealthPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	health.SetServingStatus(cfg.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown", zap.Error(err))
	}
}

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"dm-service/internal/config"
	"dm-service/internal/db"
	grpcserver "dm-service/internal/grpc"
	"dm-service/internal/handlers"
	"dm-service/internal/logger"
	"dm-service/internal/middleware"
	"dm-service/internal/observability"
	"dm-service/internal/rabbitmq"
	"dm-service/internal/repositories"
	"dm-service/internal/services"
	"dm-service/internal/telemetry"
	"dm-service/internal/ws"
)

const healthInterval = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.New(cfg.ServiceName, cfg.LogLevel)

	shutdownTracing, err := observability.InitTracing(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	database, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Info().
		Str("mode", rabbitmq.PublisherMode(publisher)).
		Str("noop_reason", rabbitmq.PublisherNoopReason(publisher)).
		Msg("event publisher ready")
	emitter := telemetry.NewAuditEmitter(publisher, cfg.ServiceName, cfg.Environment)

	userRepo := repositories.NewUserRepo(database)
	friendshipRepo := repositories.NewFriendshipRepo()
	messageRepo := repositories.NewMessageRepo()
	conversationRepo := repositories.NewConversationRepo()

	friendGraph := services.NewFriendGraph(database, userRepo, friendshipRepo)
	chatIndex := services.NewConversationIndex(database, userRepo, messageRepo, conversationRepo, cfg.ChatListMode)
	messaging := &services.Messaging{
		MessageStore:      services.NewMessageStore(database, userRepo, friendshipRepo, messageRepo, conversationRepo),
		ReadTracker:       services.NewReadTracker(database, userRepo, friendshipRepo, messageRepo, conversationRepo),
		ConversationIndex: chatIndex,
	}

	if cfg.RebuildChatIndex {
		written, err := chatIndex.RebuildIndex(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to rebuild conversation index")
		}
		log.Info().Int64("rows", written).Msg("conversation index rebuilt")
	}

	hub := ws.NewHub()
	verifier := middleware.NewTokenVerifier(cfg.JWTSecret)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.ServiceName),
		middleware.RequestID(),
		middleware.RequestLogger(),
		observability.HTTPMetricsMiddleware(),
	)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api", middleware.AuthMiddleware(verifier))
	handlers.NewFriendHandler(friendGraph, emitter).Register(api)
	handlers.NewMessageHandler(messaging, hub, emitter).Register(api)
	router.GET("/ws", ws.NewUserWebSocketHandler(hub, verifier).Handle)
	handlers.RegisterDebugRoutes(router, emitter, cfg.DebugRoutes)

	healthServer := grpcserver.NewHealthServer(database, cfg.ServiceName)
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to listen for grpc")
	}
	go healthServer.Watch(ctx, healthInterval)
	go func() {
		if err := healthServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("grpc server error")
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
	healthServer.Stop()
}

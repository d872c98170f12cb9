package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/EvanKristianPratama/Anon-chat/internal/api/handlers"
	"github.com/EvanKristianPratama/Anon-chat/internal/api/middleware"
	"github.com/EvanKristianPratama/Anon-chat/internal/config"
	"github.com/EvanKristianPratama/Anon-chat/internal/service"
	"github.com/EvanKristianPratama/Anon-chat/internal/session"
	"github.com/EvanKristianPratama/Anon-chat/internal/store"
	ws "github.com/EvanKristianPratama/Anon-chat/internal/websocket"
	"github.com/EvanKristianPratama/Anon-chat/pkg/distributed"
	"github.com/EvanKristianPratama/Anon-chat/pkg/logger"
	"github.com/EvanKristianPratama/Anon-chat/pkg/ratelimit"
)

// sweepLockTTL stays below the sweep interval so a crashed holder never
// blocks more than one pass.
const sweepLockTTL = 10 * time.Second

// SetupRouter wires the whole engine and returns the router plus a
// cleanup func for graceful shutdown. The coordination backend is
// chosen here: Redis when configured, in-memory otherwise.
func SetupRouter(cfg *config.Config) (*gin.Engine, func(), error) {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	var (
		st         store.Store
		limiter    ratelimit.Limiter
		dispatcher distributed.MatchDispatcher
		guard      service.SweepGuard
	)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis url: %w", err)
		}

		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		// Room records outlive the longest legal session by a margin;
		// the sweeper, not the TTL, is the primary terminator.
		st = store.NewRedisStore(client, cfg.MaxSessionDuration+2*time.Minute)
		limiter = ratelimit.NewRedisLimiter(client)
		dispatcher = distributed.NewRedisDispatcher(client, cfg.MatchWorkers)
		guard = distributed.NewRedisSweepGuard(client, sweepLockTTL)
		logger.Info("Using Redis coordination backend")
	} else {
		st = store.NewMemoryStore()
		limiter = ratelimit.NewMemoryLimiter()
		dispatcher = distributed.NewLocalDispatcher()
		guard = service.LocalSweepGuard{}
		logger.Info("Using in-memory coordination backend")
	}

	registry := session.NewRegistry(cfg.AliasMinLength, cfg.AliasMaxLength)

	hub := ws.NewHub()
	hub.SetAllowedOrigins(cfg.CORSAllowedOrigins)

	roomService := service.NewRoomService(st, registry, hub, cfg.IdleTimeout, cfg.MaxSessionDuration)
	matchService := service.NewMatchService(st, registry, hub, roomService, dispatcher)
	metricsService := service.NewMetricsService(st, hub, cfg.MetricsPushInterval)
	sweeper := service.NewSweeper(roomService, metricsService, guard, cfg.SweepInterval)

	gateway := handlers.NewChatGateway(cfg, registry, limiter, hub, matchService, roomService, metricsService)
	hub.SetHandler(gateway)
	go hub.Run()

	if err := dispatcher.Start(context.Background(), matchService.RunMatchingPass); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("failed to start match dispatcher: %w", err)
	}
	sweeper.Start()
	metricsService.Start()

	wsHandler := handlers.NewWebSocketHandler(hub, registry, metricsService)

	router.GET("/health", handlers.HealthCheck)
	router.GET("/ws", wsHandler.HandleUser)
	router.GET("/ws/admin", wsHandler.HandleAdmin)

	cleanup := func() {
		metricsService.Stop()
		sweeper.Stop()
		dispatcher.Stop()
		if err := st.Close(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}

	return router, cleanup, nil
}

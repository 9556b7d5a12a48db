package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rigshop-api/internal/cache"
	"rigshop-api/internal/config"
	"rigshop-api/internal/events"
	"rigshop-api/internal/handler"
	"rigshop-api/internal/logger"
	"rigshop-api/internal/middleware"
	"rigshop-api/internal/repository"
	"rigshop-api/internal/router"
	"rigshop-api/internal/service"
	"rigshop-api/internal/store"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()

	log := logger.Must(cfg.App.Environment, cfg.App.LogLevel)
	defer log.Sync()

	log.Info("starting rigshop api",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
		zap.String("store", cfg.Store.Type))

	// Initialize the single-table store
	table, err := store.Open(context.Background(), &cfg.Store, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer table.Close()

	// Initialize Redis client (optional: catalog cache and sessions)
	var redisClient *redis.Client
	redisClient, err = cache.NewRedisClient(cache.RedisOptions{
		Addr:     cfg.Cache.RedisAddress(),
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	if err != nil {
		log.Warn("redis unavailable, sessions disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		log.Info("redis client initialized", zap.String("addr", cfg.Cache.RedisAddress()))
	}

	var catalogCache cache.Cache
	if cfg.Cache.Type == "redis" && redisClient != nil {
		catalogCache = cache.NewRedisCache(redisClient, "")
	} else {
		memCache := cache.NewMemoryCache()
		defer memCache.Close()
		catalogCache = memCache
	}

	// Initialize event publisher
	var publisher events.Publisher
	if brokers := cfg.Events.Brokers(); len(brokers) > 0 {
		publisher = events.NewKafkaPublisher(brokers, cfg.Events.Topic, cfg.Events.BufferSize, log)
		log.Info("kafka publisher initialized", zap.Strings("brokers", brokers), zap.String("topic", cfg.Events.Topic))
	} else {
		publisher = events.NewLogPublisher(log)
	}

	// Initialize repositories
	catalogRepo := repository.NewTableCatalogRepository(table)
	orderRepo := repository.NewTableOrderRepository(table)
	restockRepo := repository.NewTableRestockRepository(table)

	// Initialize services
	catalogService := service.NewCatalogService(catalogRepo, catalogCache, cfg.Cache.TTL, log)
	reservationService := service.NewReservationService(catalogService, catalogRepo, orderRepo, restockRepo, publisher,
		service.ReservationConfig{MaxQuantity: cfg.Order.MaxQuantity, Producer: cfg.App.Name}, log)
	orderService := service.NewOrderService(orderRepo, log)

	restockScheduler := service.NewRestockScheduler(restockRepo, catalogRepo, cfg.Order.RestockInterval, log)
	restockScheduler.Start()

	var (
		tokens   middleware.TokenValidator
		sessions handler.SessionStore
	)
	if redisClient != nil {
		tokenService := service.NewTokenService(redisClient, cfg.Auth.SessionTTL, log)
		tokens, sessions = tokenService, tokenService
	}

	// Create router
	r := router.New(router.Config{
		Handler:        handler.New(table, cfg.App.Name, cfg.App.Version),
		CatalogHandler: handler.NewCatalogHandler(catalogService, log),
		OrderHandler:   handler.NewOrderHandler(reservationService, orderService, log),
		AdminHandler:   handler.NewAdminHandler(table, catalogCache, restockRepo, restockScheduler, cfg.Store.Type, log),
		AuthHandler:    handler.NewAuthHandler(sessions, log),
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{
			Tokens:       tokens,
			TrustGateway: cfg.Auth.TrustGateway,
			Logger:       log,
		}),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("addr", cfg.Server.Address()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}

	// Stop background work after in-flight requests have finished
	restockScheduler.Stop()
	if err := publisher.Close(); err != nil {
		log.Error("failed to close event publisher", zap.Error(err))
	}

	log.Info("server stopped")
}

package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/leonardofgirotto/storefront/internal/adapter/events"
	"github.com/leonardofgirotto/storefront/internal/adapter/handler"
	"github.com/leonardofgirotto/storefront/internal/adapter/storage"
	"github.com/leonardofgirotto/storefront/internal/config"
	"github.com/leonardofgirotto/storefront/internal/core/service"
	"github.com/leonardofgirotto/storefront/internal/port"
	"github.com/leonardofgirotto/storefront/pkg/logging"
	"github.com/leonardofgirotto/storefront/pkg/metrics"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()

	logger, flushLogs, err := logging.New(cfg.ErrorLogPath)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer flushLogs()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Fatal("failed to connect mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping mysql", zap.Error(err))
	}
	logger.Info("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	logger.Info("connected to redis")

	// Initialize adapters
	store := storage.NewMySQLStore(db)
	cache := storage.NewRedisAdapter(rdb)

	// Sync the stock mirror from the authoritative store
	products, err := store.ListProducts(ctx, "")
	if err != nil {
		logger.Fatal("failed to load products for stock sync", zap.Error(err))
	}
	for _, p := range products {
		if err := cache.SetStock(ctx, p.ID, p.Quantity); err != nil {
			logger.Fatal("failed to sync stock mirror", zap.String("product_id", p.ID), zap.Error(err))
		}
	}
	logger.Info("stock mirror synced", zap.Int("products", len(products)))

	// Initialize event publisher (disabled when no brokers configured)
	var publisher port.EventPublisher
	kafkaPublisher := events.NewKafkaPublisher(cfg.KafkaBrokers)
	if kafkaPublisher != nil {
		publisher = kafkaPublisher
		logger.Info("kafka publisher enabled")
	}

	// Initialize services
	orderService := service.NewOrderService(store, cache, publisher, logger)
	productService := service.NewProductService(store, cache, logger)
	userService := service.NewUserService(store, logger)

	// Initialize HTTP server
	serverMetrics := metrics.NewServerMetrics()
	httpHandler := handler.NewHTTPHandler(orderService, productService, userService, serverMetrics)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpHandler.Routes(),
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("HTTP server stopped")

	if kafkaPublisher != nil {
		kafkaPublisher.Close()
	}
	rdb.Close()
	db.Close()
	logger.Info("connections closed")
}

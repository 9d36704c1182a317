package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agrichain/config"
	"agrichain/db"
	"agrichain/httpapi"
	"agrichain/identity"
	"agrichain/outbox"
	"agrichain/product"
	"agrichain/provenance"
	"agrichain/purchase"
	"agrichain/rating"
	"agrichain/telemetry"
	"agrichain/transfer"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := telemetry.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("initialize logger: %v", err)
	}
	defer telemetry.Sync()

	logger := telemetry.Logger()
	logger.Info("starting agrichain api")

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	logger.Info("database connected")

	identityService := identity.NewService(identity.NewRepository(pool), cfg.Auth.JWTSecret, cfg.Auth.OpeningBalance)
	productService := product.NewService(product.NewRepository(pool), logger)
	transferService := transfer.NewService(transfer.NewRepository(pool), identityService, logger)
	purchaseService := purchase.NewService(purchase.NewRepository(pool), logger)
	ratingService := rating.NewService(rating.NewRepository(pool), logger)
	timeline := provenance.NewRepository(pool)

	publisher := outbox.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer publisher.Close()
	logger.Info("kafka producer initialized")

	relayCtx, relayCancel := context.WithCancel(context.Background())
	defer relayCancel()

	relay := outbox.NewRelay(outbox.NewQueue(pool), publisher, cfg.Relay.PollInterval, logger)
	go func() {
		if err := relay.Run(relayCtx); err != nil {
			logger.Sugar().Errorf("outbox relay stopped: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := httpapi.NewHandler(identityService, productService, transferService, purchaseService, ratingService, timeline, logger)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Sugar().Infof("http server listening on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Errorf("server forced to shutdown: %v", err)
	}

	relayCancel()

	logger.Info("server exited")
}

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

	"inventory-service/config"
	"inventory-service/internal/api"
	"inventory-service/internal/broker"
	"inventory-service/internal/lock"
	"inventory-service/internal/redisclient"
	"inventory-service/internal/service"
	"inventory-service/internal/store"
	"inventory-service/internal/util"
	"inventory-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting inventory service")

	tp, err := util.InitTracer("inventory-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	releaseProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRelease)
	defer releaseProducer.Close()
	eventsProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer eventsProducer.Close()
	log.Println("Kafka producers initialized")

	scheduler := broker.NewReleaseScheduler(releaseProducer, eventsProducer)
	locks := lock.NewService(redisClient)

	inventoryService := service.NewInventoryService(db, db, scheduler, cfg.Business.ReleaseDelay)
	cartService := service.NewCartService(db, db, locks, cfg.Business.CartLockTTL)
	catalogValidator := service.NewCatalogValidator(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	releaseConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicRelease, cfg.Kafka.ConsumerGroup)
	releaseWorker := worker.NewReleaseWorker(releaseConsumer, inventoryService, cfg.Worker)
	go func() {
		if err := releaseWorker.Start(workerCtx); err != nil {
			log.Printf("Release worker stopped: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(inventoryService, cartService, catalogValidator)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	if err := releaseWorker.Stop(); err != nil {
		log.Printf("Error stopping release worker: %v", err)
	}

	log.Println("Server exited")
}

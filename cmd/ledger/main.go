package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"finpay/internal/config"
	"finpay/internal/dbpool"
	"finpay/internal/eventbus"
	"finpay/internal/ledger"
	"finpay/internal/logging"
	"finpay/internal/metrics"
	"finpay/internal/outbox"
)

type container struct {
	server    *http.Server
	consumers []*eventbus.Consumer
	cancel    context.CancelFunc
}

func main() {
	cfg := config.Load("ledger")
	logging.Init(cfg.ServiceName, cfg.LogLevel)
	defer logging.Sync()

	ctx, cancel := context.WithCancel(context.Background())

	pool, err := dbpool.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to open postgres pool: %v", err)
	}
	defer pool.Close()

	kafkaCfg := eventbus.NewKafkaConfig(cfg.KafkaBootstrapServers, cfg.ServiceName)
	producer, err := eventbus.NewKafkaPublisher(kafkaCfg)
	if err != nil {
		log.Fatalf("failed to build kafka publisher: %v", err)
	}
	defer producer.Close()

	repo := ledger.NewRepository(pool)
	if err := repo.EnsureAccounts(ctx); err != nil {
		log.Fatalf("failed to bootstrap ledger accounts: %v", err)
	}
	svc := ledger.NewService(repo)

	c := &container{cancel: cancel}

	router := gin.New()
	router.Use(gin.Recovery(), metrics.GinMiddleware(cfg.ServiceName))
	router.GET("/health", func(ctx *gin.Context) { ctx.JSON(http.StatusOK, gin.H{"ok": true}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	ledger.RegisterRoutes(router, svc)

	c.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go outbox.RunLoop(ctx, pool, producer, "ledger_outbox_events", cfg.ServiceName)

	for topic, handler := range ledger.Handlers(svc) {
		consumer, err := eventbus.NewConsumer(kafkaCfg, "ledger-"+topic, topic, handler)
		if err != nil {
			log.Fatalf("failed to build consumer for %s: %v", topic, err)
		}
		consumer.Start()
		c.consumers = append(c.consumers, consumer)
	}

	go func() {
		logging.Info("ledger listening", map[string]interface{}{"port": cfg.ServerPort})
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	c.waitForShutdown()
}

func (c *container) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("shutting down ledger", nil)
	c.cancel()

	for _, consumer := range c.consumers {
		_ = consumer.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.server.Shutdown(shutdownCtx); err != nil {
		logging.Error("server forced to shutdown", err, nil)
	}
}

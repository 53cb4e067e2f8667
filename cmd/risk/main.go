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
	"github.com/redis/go-redis/v9"

	"finpay/internal/config"
	"finpay/internal/dbpool"
	"finpay/internal/eventbus"
	"finpay/internal/logging"
	"finpay/internal/metrics"
	"finpay/internal/outbox"
	"finpay/internal/risk"
)

type container struct {
	server    *http.Server
	consumers []*eventbus.Consumer
	cancel    context.CancelFunc
}

func main() {
	cfg := config.Load("risk")
	logging.Init(cfg.ServiceName, cfg.LogLevel)
	defer logging.Sync()

	ctx, cancel := context.WithCancel(context.Background())

	pool, err := dbpool.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to open postgres pool: %v", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid redis url: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	kafkaCfg := eventbus.NewKafkaConfig(cfg.KafkaBootstrapServers, cfg.ServiceName)
	producer, err := eventbus.NewKafkaPublisher(kafkaCfg)
	if err != nil {
		log.Fatalf("failed to build kafka publisher: %v", err)
	}
	defer producer.Close()

	repo := risk.NewRepository(pool)
	rules := risk.NewRuleEngine(redisClient, risk.RuleThresholds{
		VelocityPerHour:      cfg.RiskVelocityPerHour,
		ReviewAmountCents:    int64(cfg.RiskReviewAmountCents),
		DenyFrequencyPerHour: cfg.RiskDenyFrequencyThreshold,
	})
	orchestratorClient := risk.NewOrchestratorClient(cfg.OrchestratorURL)
	svc := risk.NewService(repo, rules, orchestratorClient)

	c := &container{cancel: cancel}

	router := gin.New()
	router.Use(gin.Recovery(), metrics.GinMiddleware(cfg.ServiceName))
	router.GET("/health", func(ctx *gin.Context) { ctx.JSON(http.StatusOK, gin.H{"ok": true}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	opsGroup := router.Group("", apiKeyRequired(cfg.APIKey))
	risk.RegisterRoutes(opsGroup, svc)

	c.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go outbox.RunLoop(ctx, pool, producer, "risk_outbox_events", cfg.ServiceName)

	for topic, handler := range risk.Handlers(svc) {
		consumer, err := eventbus.NewConsumer(kafkaCfg, "risk-"+topic, topic, handler)
		if err != nil {
			log.Fatalf("failed to build consumer for %s: %v", topic, err)
		}
		consumer.Start()
		c.consumers = append(c.consumers, consumer)
	}

	go func() {
		logging.Info("risk listening", map[string]interface{}{"port": cfg.ServerPort})
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	c.waitForShutdown()
}

func apiKeyRequired(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("x-api-key") != expected {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

func (c *container) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("shutting down risk", nil)
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

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
	"finpay/internal/gateway"
	"finpay/internal/idempotency"
	"finpay/internal/logging"
	"finpay/internal/metrics"
	"finpay/internal/ratelimit"
)

type container struct {
	server *http.Server
	cancel context.CancelFunc
}

func main() {
	cfg := config.Load("gateway")
	logging.Init(cfg.ServiceName, cfg.LogLevel)
	defer logging.Sync()

	_, cancel := context.WithCancel(context.Background())

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid redis url: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	limiter := ratelimit.NewLimiter(redisClient, float64(cfg.RateLimitPerMinute), float64(cfg.RateLimitPerMinute)/60.0)
	cache := idempotency.NewCache(redisClient, cfg.IdempotencyTTL())

	deps := &gateway.Dependencies{
		APIKey:          cfg.APIKey,
		OrchestratorURL: cfg.OrchestratorURL,
		HTTPClient:      &http.Client{Timeout: 5 * time.Second},
		Limiter:         limiter,
		IdempotencyTTL:  cfg.IdempotencyTTL(),
		Cache:           cache,
	}

	c := &container{cancel: cancel}

	router := gin.New()
	router.Use(gin.Recovery(), metrics.GinMiddleware(cfg.ServiceName))
	router.GET("/health", func(ctx *gin.Context) { ctx.JSON(http.StatusOK, gin.H{"ok": true}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	gateway.RegisterRoutes(router, deps)

	c.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logging.Info("gateway listening", map[string]interface{}{"port": cfg.ServerPort})
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

	logging.Info("shutting down gateway", nil)
	c.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.server.Shutdown(shutdownCtx); err != nil {
		logging.Error("server forced to shutdown", err, nil)
	}
}

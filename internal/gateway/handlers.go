// Package gateway implements the externally-facing HTTP surface from
// spec.md §6: API-key auth, idempotency caching, rate limiting, and
// forwarding to the orchestrator — grounded on the teacher's
// internal/api/handlers closure-over-dependencies style and Pay-Chain's
// idempotency middleware.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"finpay/internal/idempotency"
	"finpay/internal/logging"
	"finpay/internal/ratelimit"
)

type createPaymentRequest struct {
	CustomerID     string `json:"customer_id" binding:"required,min=1"`
	AmountCents    int64  `json:"amount_cents" binding:"required,gt=0"`
	Currency       string `json:"currency" binding:"required,len=3"`
	IdempotencyKey string `json:"idempotency_key" binding:"required,min=5"`
}

// Dependencies wires the gateway handler to its collaborators, kept as a
// plain struct (not a global singleton) per SPEC_FULL.md's per-service
// Container pattern.
type Dependencies struct {
	APIKey          string
	OrchestratorURL string
	HTTPClient      *http.Client
	Limiter         *ratelimit.Limiter
	IdempotencyTTL  time.Duration
	Cache           *idempotency.Cache
}

// RegisterRoutes wires the gateway's public HTTP surface.
func RegisterRoutes(router gin.IRouter, deps *Dependencies) {
	router.POST("/payments", apiKeyAuth(deps.APIKey), createPaymentHandler(deps))
}

func apiKeyAuth(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("x-api-key") != expected {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

func createPaymentHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		correlationID := c.GetHeader("x-correlation-id")
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		ctx := c.Request.Context()

		if cached, err := deps.Cache.Get(ctx, deps.APIKey, cacheKey(req.CustomerID, req.IdempotencyKey)); err == nil && cached != nil {
			c.Data(cached.StatusCode, "application/json", cached.Body)
			return
		}

		allowed, err := deps.Limiter.Allow(ctx, req.CustomerID)
		if err != nil {
			logging.Error("rate limiter unavailable, failing open", err, map[string]interface{}{"customer_id": req.CustomerID})
		} else if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		status, body, err := forwardToOrchestrator(ctx, deps, req, correlationID)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "orchestrator unavailable"})
			return
		}

		if status >= 200 && status < 300 {
			_ = deps.Cache.Set(ctx, deps.APIKey, cacheKey(req.CustomerID, req.IdempotencyKey), idempotency.CachedResponse{
				StatusCode: status,
				Body:       body,
			})
		}

		c.Data(status, "application/json", body)
	}
}

func cacheKey(customerID, idempotencyKey string) string {
	return fmt.Sprintf("payment:%s:%s", customerID, idempotencyKey)
}

func forwardToOrchestrator(ctx context.Context, deps *Dependencies, req createPaymentRequest, correlationID string) (int, []byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return 0, nil, fmt.Errorf("encode forwarded request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, deps.OrchestratorURL+"/internal/payments", bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build forwarded request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-trace-id", correlationID)

	resp, err := deps.HTTPClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("forward to orchestrator: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read orchestrator response: %w", err)
	}
	return resp.StatusCode, body, nil
}

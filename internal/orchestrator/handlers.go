package orchestrator

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// createPaymentRequest mirrors the gateway's forwarded body, per spec.md §6.
type createPaymentRequest struct {
	CustomerID     string `json:"customer_id" binding:"required,min=1"`
	AmountCents    int64  `json:"amount_cents" binding:"required,gt=0"`
	Currency       string `json:"currency" binding:"required,len=3"`
	IdempotencyKey string `json:"idempotency_key" binding:"required,min=5"`
}

type paymentResponse struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

// RegisterRoutes wires the orchestrator's internal HTTP surface.
func RegisterRoutes(router gin.IRouter, svc *Service) {
	router.POST("/internal/payments", createPaymentHandler(svc))
	router.GET("/payments/:payment_id", getPaymentHandler(svc))
}

func createPaymentHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		traceID := c.GetHeader("x-trace-id")
		payment, err := svc.CreatePayment(c.Request.Context(), req.CustomerID, req.AmountCents, req.Currency, req.IdempotencyKey, traceID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create payment"})
			return
		}

		c.JSON(http.StatusOK, paymentResponse{PaymentID: payment.PaymentID, Status: string(payment.Status)})
	}
}

func getPaymentHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		paymentID := c.Param("payment_id")
		payment, err := svc.GetPayment(c.Request.Context(), paymentID)
		if err != nil {
			var notFound *ErrPaymentNotFound
			if errors.As(err, &notFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load payment"})
			return
		}

		c.JSON(http.StatusOK, paymentResponse{PaymentID: payment.PaymentID, Status: string(payment.Status)})
	}
}

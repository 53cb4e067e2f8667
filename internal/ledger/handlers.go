package ledger

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes wires the ledger's reconciliation HTTP surface.
func RegisterRoutes(router gin.IRouter, svc *Service) {
	router.GET("/reconciliation/:transaction_id", reconcileOneHandler(svc))
	router.GET("/reconciliation", reconcileAllHandler(svc))
}

func reconcileOneHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		transactionID := c.Param("transaction_id")
		debits, credits, balanced, err := svc.Reconcile(c.Request.Context(), transactionID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reconcile"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"transaction_id": transactionID,
			"debits_cents":   debits,
			"credits_cents":  credits,
			"balanced":       balanced,
		})
	}
}

func reconcileAllHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 1000
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		all, imbalanced, err := svc.ReconcileAll(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reconcile"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"total_transactions": len(all),
			"imbalanced":         imbalanced,
		})
	}
}

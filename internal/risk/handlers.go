package risk

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type reviewResponse struct {
	ReviewID   string  `json:"review_id"`
	PaymentID  string  `json:"payment_id"`
	CustomerID string  `json:"customer_id"`
	Amount     int64   `json:"amount_cents"`
	Reason     string  `json:"reason"`
	Status     string  `json:"status"`
	ReviewedBy *string `json:"reviewed_by,omitempty"`
}

type manualDecisionRequest struct {
	ReviewedBy string `json:"reviewed_by" binding:"required"`
}

// RegisterRoutes wires risk's ops HTTP surface. Every route requires
// x-api-key, checked by the caller-supplied auth middleware.
func RegisterRoutes(router gin.IRouter, svc *Service) {
	router.GET("/ops/reviews", listReviewsHandler(svc))
	router.POST("/ops/reviews/:payment_id/approve", manualDecisionHandler(svc, ReviewApproved))
	router.POST("/ops/reviews/:payment_id/deny", manualDecisionHandler(svc, ReviewDenied))
}

func listReviewsHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.DefaultQuery("status", "PENDING")
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

		reviews, err := svc.ListReviews(c.Request.Context(), status, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reviews"})
			return
		}

		out := make([]reviewResponse, 0, len(reviews))
		for _, r := range reviews {
			out = append(out, reviewResponse{
				ReviewID: r.ReviewID, PaymentID: r.PaymentID, CustomerID: r.CustomerID,
				Amount: r.AmountCents, Reason: r.Reason, Status: string(r.Status), ReviewedBy: r.ReviewedBy,
			})
		}
		c.JSON(http.StatusOK, gin.H{"reviews": out})
	}
}

func manualDecisionHandler(svc *Service, decision ReviewStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		paymentID := c.Param("payment_id")

		var req manualDecisionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		err := svc.ManualDecision(c.Request.Context(), paymentID, decision, req.ReviewedBy)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"payment_id": paymentID, "status": string(decision)})
		case isNotFound(err):
			c.JSON(http.StatusNotFound, gin.H{"error": "review not found"})
		case isConflict(err):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply decision"})
		}
	}
}

func isNotFound(err error) bool {
	var notFound *ErrReviewNotFound
	return errors.As(err, &notFound)
}

func isConflict(err error) bool {
	var conflict *ErrReviewConflict
	return errors.As(err, &conflict)
}

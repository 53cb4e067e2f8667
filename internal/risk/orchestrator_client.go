package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OrchestratorClient queries the orchestrator's payment-status endpoint, the
// synchronous lookup the manual-review flow in spec.md §4.6 needs before
// honoring an ops decision.
type OrchestratorClient struct {
	baseURL string
	http    *http.Client
}

// NewOrchestratorClient builds a client bound to baseURL with the 5 s HTTP
// timeout spec.md §5 mandates for all client calls.
func NewOrchestratorClient(baseURL string) *OrchestratorClient {
	return &OrchestratorClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

type paymentStatusResponse struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

// GetStatus fetches the current status for paymentID, or an error if the
// orchestrator is unreachable or returns non-200.
func (c *OrchestratorClient) GetStatus(ctx context.Context, paymentID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/"+paymentID, nil)
	if err != nil {
		return "", fmt.Errorf("build status request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call orchestrator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", &ErrReviewNotFound{PaymentID: paymentID}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("orchestrator returned status %d for payment %s", resp.StatusCode, paymentID)
	}

	var out paymentStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode orchestrator response: %w", err)
	}
	return out.Status, nil
}

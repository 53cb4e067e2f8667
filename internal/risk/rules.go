package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RuleThresholds are the tunable limits from spec.md §4.6 / §6.
type RuleThresholds struct {
	VelocityPerHour       int
	ReviewAmountCents     int64
	DenyFrequencyPerHour  int
}

// evaluate applies the rule table in order, first match wins, per spec.md
// §4.6.
func evaluate(velocityCount int64, failedAttempts int64, amountCents int64, t RuleThresholds) (Decision, string) {
	switch {
	case velocityCount > int64(t.DenyFrequencyPerHour):
		return DecisionDeny, "high_frequency"
	case amountCents > t.ReviewAmountCents:
		return DecisionReview, "high_amount"
	case failedAttempts >= 3:
		return DecisionReview, "multiple_failed_attempts"
	case velocityCount > int64(t.VelocityPerHour):
		return DecisionReview, "velocity_threshold"
	default:
		return DecisionApprove, "rule_passed"
	}
}

// RuleEngine computes decisions using the shared fast KV store's velocity
// counters, the way original_source/finpay/services/risk/main.py does with
// Redis INCR/EXPIRE/GET.
type RuleEngine struct {
	redis      *redis.Client
	thresholds RuleThresholds
}

// NewRuleEngine builds a RuleEngine.
func NewRuleEngine(client *redis.Client, thresholds RuleThresholds) *RuleEngine {
	return &RuleEngine{redis: client, thresholds: thresholds}
}

// Decide evaluates the rule table for one payment request.
func (e *RuleEngine) Decide(ctx context.Context, customerID string, amountCents int64) (Decision, string, error) {
	bucket := time.Now().UTC().Format("2006010215")
	velocityKey := fmt.Sprintf("velocity:%s:%s", customerID, bucket)

	velocityCount, err := e.redis.Incr(ctx, velocityKey).Result()
	if err != nil {
		return "", "", fmt.Errorf("incr velocity counter: %w", err)
	}
	if velocityCount == 1 {
		if err := e.redis.Expire(ctx, velocityKey, 7200*time.Second).Err(); err != nil {
			return "", "", fmt.Errorf("set velocity expiry: %w", err)
		}
	}

	failedKey := fmt.Sprintf("failed_attempts:%s", customerID)
	failedAttempts, err := e.redis.Get(ctx, failedKey).Int64()
	if err != nil && err != redis.Nil {
		return "", "", fmt.Errorf("read failed attempts counter: %w", err)
	}

	decision, reason := evaluate(velocityCount, failedAttempts, amountCents, e.thresholds)
	return decision, reason, nil
}

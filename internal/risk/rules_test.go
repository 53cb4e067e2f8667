package risk

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var thresholds = RuleThresholds{
	VelocityPerHour:      20,
	ReviewAmountCents:     100000,
	DenyFrequencyPerHour:  50,
}

func TestEvaluate_FirstMatchWins(t *testing.T) {
	t.Run("deny takes priority over everything else", func(t *testing.T) {
		decision, reason := evaluate(51, 5, 200000, thresholds)
		assert.Equal(t, DecisionDeny, decision)
		assert.Equal(t, "high_frequency", reason)
	})

	t.Run("high amount reviewed even with low velocity", func(t *testing.T) {
		decision, reason := evaluate(1, 0, 100001, thresholds)
		assert.Equal(t, DecisionReview, decision)
		assert.Equal(t, "high_amount", reason)
	})

	t.Run("repeated failures reviewed under the review-amount threshold", func(t *testing.T) {
		decision, reason := evaluate(1, 3, 500, thresholds)
		assert.Equal(t, DecisionReview, decision)
		assert.Equal(t, "multiple_failed_attempts", reason)
	})

	t.Run("velocity above threshold reviewed", func(t *testing.T) {
		decision, reason := evaluate(21, 0, 500, thresholds)
		assert.Equal(t, DecisionReview, decision)
		assert.Equal(t, "velocity_threshold", reason)
	})

	t.Run("clean request approved", func(t *testing.T) {
		decision, reason := evaluate(1, 0, 500, thresholds)
		assert.Equal(t, DecisionApprove, decision)
		assert.Equal(t, "rule_passed", reason)
	})
}

func newTestRuleEngine(t *testing.T) (*RuleEngine, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRuleEngine(client, thresholds), mr
}

func TestRuleEngine_Decide_ApprovesFirstRequest(t *testing.T) {
	engine, _ := newTestRuleEngine(t)

	decision, reason, err := engine.Decide(context.Background(), "cust-1", 1000)
	require.NoError(t, err)
	assert.Equal(t, DecisionApprove, decision)
	assert.Equal(t, "rule_passed", reason)
}

func TestRuleEngine_Decide_VelocityAccumulatesAcrossCalls(t *testing.T) {
	engine, _ := newTestRuleEngine(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, _, err := engine.Decide(ctx, "cust-2", 1000)
		require.NoError(t, err)
	}

	decision, reason, err := engine.Decide(ctx, "cust-2", 1000)
	require.NoError(t, err)
	assert.Equal(t, DecisionReview, decision)
	assert.Equal(t, "velocity_threshold", reason)
}

func TestRuleEngine_Decide_ReadsFailedAttemptsCounter(t *testing.T) {
	engine, mr := newTestRuleEngine(t)
	require.NoError(t, mr.Set("failed_attempts:cust-3", "3"))

	decision, reason, err := engine.Decide(context.Background(), "cust-3", 1000)
	require.NoError(t, err)
	assert.Equal(t, DecisionReview, decision)
	assert.Equal(t, "multiple_failed_attempts", reason)
}

package provideradapter

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWeightedOutcomer_ForceHooks(t *testing.T) {
	w := NewWeightedOutcomer(rand.NewSource(1))

	assert.Equal(t, OutcomeTimeout, w.Decide("force-timeout"))
	assert.Equal(t, OutcomeTimeout, w.Decide("Force-Timeout-customer-9"))
	assert.Equal(t, OutcomeDecline, w.Decide("force-decline"))
	assert.Equal(t, OutcomeDecline, w.Decide("FORCE-DECLINE-whale"))
}

func TestWeightedOutcomer_RandomDistributionStaysWithinWeights(t *testing.T) {
	w := NewWeightedOutcomer(rand.NewSource(42))

	counts := map[Outcome]int{}
	const trials = 10000
	for i := 0; i < trials; i++ {
		counts[w.Decide("cust-normal")]++
	}

	successRatio := float64(counts[OutcomeSuccess]) / trials
	timeoutRatio := float64(counts[OutcomeTimeout]) / trials
	declineRatio := float64(counts[OutcomeDecline]) / trials

	assert.InDelta(t, 0.70, successRatio, 0.03)
	assert.InDelta(t, 0.20, timeoutRatio, 0.03)
	assert.InDelta(t, 0.10, declineRatio, 0.03)
}

func TestWeightedOutcomer_NonForceCustomerNeverShortCircuits(t *testing.T) {
	w := NewWeightedOutcomer(rand.NewSource(7))
	outcome := w.Decide("regular-customer-id")
	assert.Contains(t, []Outcome{OutcomeSuccess, OutcomeTimeout, OutcomeDecline}, outcome)
}

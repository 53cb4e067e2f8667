package statemachine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition_Allowed(t *testing.T) {
	cases := []struct {
		from, to Status
	}{
		{Created, RiskReview},
		{Created, Approved},
		{Created, Failed},
		{RiskReview, Approved},
		{RiskReview, Failed},
		{Approved, Authorized},
		{Authorized, Captured},
		{Authorized, Reversed},
		{Captured, Settled},
		{Captured, Reversed},
		{Failed, Reversed},
	}
	for _, tc := range cases {
		assert.NoError(t, ValidateTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}
}

func TestValidateTransition_Rejected(t *testing.T) {
	cases := []struct {
		from, to Status
	}{
		{Created, Settled},
		{Settled, Created},
		{Captured, Approved},
		{Reversed, Captured},
		{Failed, Captured},
	}
	for _, tc := range cases {
		err := ValidateTransition(tc.from, tc.to)
		require.Error(t, err)
		var invalid *ErrInvalidTransition
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, tc.from, invalid.From)
		assert.Equal(t, tc.to, invalid.To)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(Settled))
	assert.True(t, IsTerminal(Reversed))
	assert.False(t, IsTerminal(Created))
	assert.False(t, IsTerminal(Failed))
}

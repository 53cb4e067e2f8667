package provideradapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePayload(t *testing.T) {
	cases := []struct {
		name    string
		payload authorizePayload
		wantErr bool
	}{
		{"valid", authorizePayload{CustomerID: "cust-1", Currency: "USD", AmountCents: 100}, false},
		{"empty customer id", authorizePayload{CustomerID: "  ", Currency: "USD", AmountCents: 100}, true},
		{"short currency", authorizePayload{CustomerID: "cust-1", Currency: "US", AmountCents: 100}, true},
		{"zero amount", authorizePayload{CustomerID: "cust-1", Currency: "USD", AmountCents: 0}, true},
		{"negative amount", authorizePayload{CustomerID: "cust-1", Currency: "USD", AmountCents: -5}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePayload(tc.payload)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDecodeAuthorizePayload(t *testing.T) {
	raw := map[string]interface{}{
		"customer_id":  "cust-42",
		"currency":     "EUR",
		"amount_cents": float64(2599),
	}
	payload := decodeAuthorizePayload(raw)
	assert.Equal(t, "cust-42", payload.CustomerID)
	assert.Equal(t, "EUR", payload.Currency)
	assert.Equal(t, int64(2599), payload.AmountCents)
}

func TestDecodeAuthorizePayload_MissingFieldsLeaveZeroValues(t *testing.T) {
	payload := decodeAuthorizePayload(map[string]interface{}{})
	assert.Empty(t, payload.CustomerID)
	assert.Empty(t, payload.Currency)
	assert.Zero(t, payload.AmountCents)
}

func TestNewBackoff_ProducesFixedDoublingSchedule(t *testing.T) {
	b := newBackoff()
	first := b.NextBackOff()
	second := b.NextBackOff()
	third := b.NextBackOff()

	assert.Equal(t, first*2, second)
	assert.Equal(t, second*2, third)
}

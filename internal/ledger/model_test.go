package ledger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrLedgerImbalance_ErrorMessageNamesTransaction(t *testing.T) {
	err := &ErrLedgerImbalance{TransactionID: "settlement:pay-1", Debits: 500, Credits: 400}
	assert.Contains(t, err.Error(), "settlement:pay-1")

	var asImbalance *ErrLedgerImbalance
	assert.True(t, errors.As(err, &asImbalance))
	assert.Equal(t, int64(500), asImbalance.Debits)
	assert.Equal(t, int64(400), asImbalance.Credits)
}

func TestWellKnownAccountIDsAreDistinct(t *testing.T) {
	ids := []string{AccountIDCustomerCash, AccountIDMerchantReceivable, AccountIDPlatformFee, AccountIDClearing}
	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "account id %q must be unique", id)
		seen[id] = true
	}
}

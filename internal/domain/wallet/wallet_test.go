package wallet_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/peerpush/chally/internal/domain/wallet"
)

func TestAllocation_Refundable_RequiresRemainingAndPaymentRef(t *testing.T) {
	ref := "pi_123"

	assert.True(t, wallet.Allocation{Remaining: 10, PaymentRef: &ref}.Refundable())
	assert.False(t, wallet.Allocation{Remaining: 0, PaymentRef: &ref}.Refundable())
	assert.False(t, wallet.Allocation{Remaining: 10, PaymentRef: nil}.Refundable())
}

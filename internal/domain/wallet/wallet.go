// Package wallet holds the Allocation and Refund types that back FIFO lot
// tracking. The wallet service (internal/services/walletsvc) is the only
// writer of these types; this package is pure data plus small invariants.
package wallet

import (
	"time"

	"github.com/google/uuid"

	"github.com/peerpush/chally/internal/domain/money"
)

// Allocation is one deposit (or payout) tracked as an individually
// refundable lot. Remaining is the only mutable field and only ever
// decreases.
type Allocation struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Original      money.Tokens
	Remaining     money.Tokens
	PaymentRef    *string // nil for PAYOUT-origin (winnings) allocations: non-refundable
	LedgerEntryID uuid.UUID
	CreatedAt     time.Time
}

// Refundable reports whether a still has external refund capacity: some
// remaining balance and a payment reference to refund against.
func (a Allocation) Refundable() bool {
	return a.Remaining > 0 && a.PaymentRef != nil
}

// Refund is an audit record of one executed external refund against one
// allocation. Refund rows are created-and-final, never updated.
type Refund struct {
	ID                      uuid.UUID
	UserID                  uuid.UUID
	AllocationID            uuid.UUID
	Amount                  money.Tokens
	ExternalRefundID        string
	WithdrawalLedgerEntryID uuid.UUID
	CreatedAt               time.Time
}

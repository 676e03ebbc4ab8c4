// Package ledger holds the append-only LedgerEntry type and the sign
// invariant that every entry must satisfy before it is allowed to commit.
package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/peerpush/chally/internal/domain/money"
)

// Kind is the movement type of a LedgerEntry. The sign of Entry.Amount is
// fixed by Kind and checked by Valid before any write.
type Kind string

const (
	KindDeposit    Kind = "DEPOSIT"
	KindStake      Kind = "STAKE"
	KindPayout     Kind = "PAYOUT"
	KindWithdrawal Kind = "WITHDRAWAL"
)

// Entry is a single, immutable movement of tokens for one user. Entries are
// never updated or deleted after commit; the set of all entries for a user
// is the sole source of truth for that user's balance.
type Entry struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Kind       Kind
	Amount     money.Tokens // signed; see Valid
	Currency   string
	ExternalID *string // idempotency key alongside Kind, when present
	Note       string
	CreatedAt  time.Time
}

// Valid reports whether amount carries the correct sign for kind.
// DEPOSIT and PAYOUT are credits (amount > 0); STAKE and WITHDRAWAL are
// debits (amount < 0). Zero is never valid for any kind.
func Valid(kind Kind, amount money.Tokens) bool {
	switch kind {
	case KindDeposit, KindPayout:
		return amount > 0
	case KindStake, KindWithdrawal:
		return amount < 0
	default:
		return false
	}
}

// IsCredit reports whether kind adds to a wallet's balance.
func IsCredit(kind Kind) bool {
	return kind == KindDeposit || kind == KindPayout
}

// Package withdrawalsvc implements spec §4.4's Withdraw: FIFO refund
// allocation against the external payment processor with partial-success
// semantics. A processor failure on one allocation is recorded and
// skipped; the engine continues with the next, and the final WITHDRAWAL
// ledger entry reflects only what actually refunded.
package withdrawalsvc

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/peerpush/chally/internal/domain/ledger"
	"github.com/peerpush/chally/internal/domain/money"
	"github.com/peerpush/chally/internal/domain/wallet"
	"github.com/peerpush/chally/internal/platform/advisorylock"
	"github.com/peerpush/chally/internal/platform/apperrors"
	"github.com/peerpush/chally/internal/platform/dbtx"
	"github.com/peerpush/chally/internal/platform/mlog"
	"github.com/peerpush/chally/internal/platform/mtrace"
	"github.com/peerpush/chally/internal/services/ledgersvc"
)

// Processor is the refund capability of the external payment processor.
type Processor interface {
	RefundPayment(ctx context.Context, paymentRef string, amountCents money.Cents) (externalRefundID string, err error)
}

// AllocationRepository is the subset of postgres.AllocationRepository
// withdrawalsvc needs.
type AllocationRepository interface {
	ListActiveFIFO(ctx context.Context, userID uuid.UUID, onlyRefundable bool, refundWindow time.Duration) ([]wallet.Allocation, error)
	DecrementRemaining(ctx context.Context, id uuid.UUID, amount money.Tokens) error
}

// RefundRepository persists Refund audit rows.
type RefundRepository interface {
	Create(ctx context.Context, r wallet.Refund) (uuid.UUID, error)
}

// Result is the response shape of spec §4.4's Withdraw.
type Result struct {
	Requested money.Tokens
	Refunded  money.Tokens
	RefundIDs []uuid.UUID
	Partial   bool
}

// Service implements spec §4.4.
type Service struct {
	db              *sql.DB
	ledger          *ledgersvc.Service
	allocations     AllocationRepository
	refunds         RefundRepository
	processor       Processor
	currency        string
	tokenPriceCents int64
	refundWindow    time.Duration
	withdrawalsOn   func() bool
}

// New builds a Service. withdrawalsOn is called at the top of every
// Withdraw so the feature flag (spec §6 withdraw_mode) can be toggled
// without restarting the process.
func New(db *sql.DB, ledger *ledgersvc.Service, allocations AllocationRepository, refunds RefundRepository, processor Processor, currency string, tokenPriceCents int64, refundWindowDays int, withdrawalsOn func() bool) *Service {
	return &Service{
		db:              db,
		ledger:          ledger,
		allocations:     allocations,
		refunds:         refunds,
		processor:       processor,
		currency:        currency,
		tokenPriceCents: tokenPriceCents,
		refundWindow:    time.Duration(refundWindowDays) * 24 * time.Hour,
		withdrawalsOn:   withdrawalsOn,
	}
}

// Withdraw implements spec §4.4's algorithm under the user's exclusive
// wallet lock, held across the processor calls: the lock must stay held
// because whether remaining decrements depends on each call's outcome.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, tokens money.Tokens) (Result, error) {
	ctx, span := mtrace.FromContext(ctx).Start(ctx, "withdrawalsvc.Withdraw")
	defer span.End()
	logger := mlog.FromContext(ctx)

	if !tokens.Positive() {
		return Result{}, apperrors.New(apperrors.KindInvalidAmount, "invalid amount", "tokens must be positive", nil)
	}
	if !s.withdrawalsOn() {
		return Result{}, apperrors.New(apperrors.KindDisabled, "withdrawals disabled", "", nil)
	}

	var result Result
	err := dbtx.RunInTransaction(ctx, s.db, func(txCtx context.Context) error {
		tx := dbtx.TxFromContext(txCtx)
		if err := advisorylock.AcquireUser(txCtx, tx, userID); err != nil {
			return err
		}

		balance, err := s.ledger.Balance(txCtx, userID)
		if err != nil {
			return err
		}
		if balance < tokens {
			return apperrors.New(apperrors.KindInsufficient, "insufficient balance", "", nil)
		}

		candidates, err := s.allocations.ListActiveFIFO(txCtx, userID, true, s.refundWindow)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return apperrors.New(apperrors.KindNoRefundableFunds, "no refundable funds", "", nil)
		}

		remaining := tokens
		type pendingRefund struct {
			allocationID     uuid.UUID
			amount           money.Tokens
			externalRefundID string
		}
		var pending []pendingRefund

		for _, a := range candidates {
			if remaining == 0 {
				break
			}
			take := a.Remaining
			if take > remaining {
				take = remaining
			}

			amountCents := take.ToCents(s.tokenPriceCents)
			externalRefundID, refundErr := s.processor.RefundPayment(txCtx, *a.PaymentRef, amountCents)
			if refundErr != nil {
				logger.Warnf("refund failed for allocation=%s payment_ref=%s: %v", a.ID, *a.PaymentRef, refundErr)
				continue // partial success: skip, do not decrement, try next allocation
			}

			if err := s.allocations.DecrementRemaining(txCtx, a.ID, take); err != nil {
				return err
			}
			remaining -= take
			pending = append(pending, pendingRefund{allocationID: a.ID, amount: take, externalRefundID: externalRefundID})
		}

		actuallyRefunded := tokens - remaining
		if actuallyRefunded <= 0 {
			return apperrors.New(apperrors.KindProcessorError, "all refunds failed", "", nil)
		}

		// The WITHDRAWAL entry must exist before Refund rows can reference
		// it (spec §4.4 step 3: link every Refund created in this call to
		// its entry_id), so it is appended only now that the FIFO pass is
		// complete and actuallyRefunded is known.
		entryID, err := s.ledger.Append(txCtx, userID, ledger.KindWithdrawal, -actuallyRefunded, s.currency, nil, "")
		if err != nil {
			return err
		}

		var refundIDs []uuid.UUID
		for _, p := range pending {
			refundID, err := s.refunds.Create(txCtx, wallet.Refund{
				UserID:                  userID,
				AllocationID:            p.allocationID,
				Amount:                  p.amount,
				ExternalRefundID:        p.externalRefundID,
				WithdrawalLedgerEntryID: entryID,
			})
			if err != nil {
				return err
			}
			refundIDs = append(refundIDs, refundID)
		}

		result = Result{
			Requested: tokens,
			Refunded:  actuallyRefunded,
			RefundIDs: refundIDs,
			Partial:   actuallyRefunded < tokens,
		}
		logger.Infof("withdrawal user_id=%s requested=%d refunded=%d partial=%t entry_id=%s", userID, tokens, actuallyRefunded, result.Partial, entryID)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

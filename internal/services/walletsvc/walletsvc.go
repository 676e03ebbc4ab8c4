// Package walletsvc implements spec §4.2: Credit and Debit, each running
// inside one transaction under the user's exclusive advisory lock, with
// FIFO allocation bookkeeping alongside every ledger write.
package walletsvc

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

// AllocationRepository is the persistence contract walletsvc depends on
// for FIFO lot bookkeeping.
type AllocationRepository interface {
	Create(ctx context.Context, a wallet.Allocation) (uuid.UUID, error)
	ListActiveFIFO(ctx context.Context, userID uuid.UUID, onlyRefundable bool, refundWindow time.Duration) ([]wallet.Allocation, error)
	DecrementRemaining(ctx context.Context, id uuid.UUID, amount money.Tokens) error
}

// Service implements spec §4.2 Credit/Debit.
type Service struct {
	db          *sql.DB
	ledger      *ledgersvc.Service
	allocations AllocationRepository
	currency    string
}

// New builds a Service. db is used directly (not through dbtx.Executor)
// because advisory locks must be taken on the concrete *sql.Tx that
// RunInTransaction opens.
func New(db *sql.DB, ledger *ledgersvc.Service, allocations AllocationRepository, currency string) *Service {
	return &Service{db: db, ledger: ledger, allocations: allocations, currency: currency}
}

// Credit implements spec §4.2's Credit operation for kind ∈ {DEPOSIT,
// PAYOUT}. When kind is DEPOSIT and paymentRef is non-nil, a refundable
// allocation is created alongside the ledger entry; when kind is PAYOUT,
// a non-refundable synthetic allocation (payment_ref = nil) is created so
// winnings remain spendable but never leave as a card refund.
func (s *Service) Credit(ctx context.Context, userID uuid.UUID, amount money.Tokens, kind ledger.Kind, externalID, paymentRef *string) (uuid.UUID, error) {
	ctx, span := mtrace.FromContext(ctx).Start(ctx, "walletsvc.Credit")
	defer span.End()
	logger := mlog.FromContext(ctx)

	if kind != ledger.KindDeposit && kind != ledger.KindPayout {
		return uuid.Nil, apperrors.New(apperrors.KindInvalidAmount, "invalid credit kind", string(kind), nil)
	}
	if amount <= 0 {
		return uuid.Nil, apperrors.New(apperrors.KindInvalidAmount, "invalid amount", "credit amount must be positive", nil)
	}

	var entryID uuid.UUID
	err := dbtx.RunInTransaction(ctx, s.db, func(txCtx context.Context) error {
		tx := dbtx.TxFromContext(txCtx)
		if err := advisorylock.AcquireUser(txCtx, tx, userID); err != nil {
			return err
		}

		id, appendErr := s.ledger.Append(txCtx, userID, kind, amount, s.currency, externalID, "")
		if appendErr != nil {
			if be, ok := apperrors.As(appendErr); ok && be.Kind == apperrors.KindDuplicate {
				entryID = id
				return nil // idempotent no-op: no new allocation either
			}
			return appendErr
		}
		entryID = id

		var allocPaymentRef *string
		if kind == ledger.KindDeposit {
			allocPaymentRef = paymentRef
		} else {
			allocPaymentRef = nil // PAYOUT: permanently non-refundable
		}

		_, err := s.allocations.Create(txCtx, wallet.Allocation{
			UserID:        userID,
			Original:      amount,
			Remaining:     amount,
			PaymentRef:    allocPaymentRef,
			LedgerEntryID: id,
		})
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}

	logger.Infof("wallet credit user_id=%s kind=%s amount=%d entry_id=%s", userID, kind, amount, entryID)
	return entryID, nil
}

// Debit implements spec §4.2's Debit operation for kind ∈ {STAKE,
// WITHDRAWAL}. It fails with Insufficient when the balance is too low,
// otherwise appends a negative ledger entry and consumes allocations in
// FIFO order until amount is exhausted.
func (s *Service) Debit(ctx context.Context, userID uuid.UUID, amount money.Tokens, kind ledger.Kind, note string) (uuid.UUID, error) {
	ctx, span := mtrace.FromContext(ctx).Start(ctx, "walletsvc.Debit")
	defer span.End()
	logger := mlog.FromContext(ctx)

	if kind != ledger.KindStake && kind != ledger.KindWithdrawal {
		return uuid.Nil, apperrors.New(apperrors.KindInvalidAmount, "invalid debit kind", string(kind), nil)
	}
	if amount <= 0 {
		return uuid.Nil, apperrors.New(apperrors.KindInvalidAmount, "invalid amount", "debit amount must be positive", nil)
	}

	var entryID uuid.UUID
	err := dbtx.RunInTransaction(ctx, s.db, func(txCtx context.Context) error {
		tx := dbtx.TxFromContext(txCtx)
		if err := advisorylock.AcquireUser(txCtx, tx, userID); err != nil {
			return err
		}

		balance, err := s.ledger.Balance(txCtx, userID)
		if err != nil {
			return err
		}
		if balance < amount {
			return apperrors.New(apperrors.KindInsufficient, "insufficient balance", "", nil)
		}

		id, err := s.ledger.Append(txCtx, userID, kind, -amount, s.currency, nil, note)
		if err != nil {
			return err
		}
		entryID = id

		return s.consumeFIFO(txCtx, userID, amount)
	})
	if err != nil {
		return uuid.Nil, err
	}

	logger.Infof("wallet debit user_id=%s kind=%s amount=%d entry_id=%s", userID, kind, amount, entryID)
	return entryID, nil
}

// consumeFIFO decrements allocations for userID in created_at order until
// amount has been consumed. It does not distinguish refundable from
// non-refundable allocations: both PAYOUT and DEPOSIT lots back spending
// capacity equally (spec §4.2's "stake_consumption").
func (s *Service) consumeFIFO(ctx context.Context, userID uuid.UUID, amount money.Tokens) error {
	allocations, err := s.allocations.ListActiveFIFO(ctx, userID, false, 0)
	if err != nil {
		return err
	}

	remaining := amount
	for _, a := range allocations {
		if remaining == 0 {
			break
		}
		take := a.Remaining
		if take > remaining {
			take = remaining
		}
		if err := s.allocations.DecrementRemaining(ctx, a.ID, take); err != nil {
			return err
		}
		remaining -= take
	}

	if remaining > 0 {
		return apperrors.New(apperrors.KindInsufficient, "insufficient allocation capacity", "balance exceeded sum of active allocations; this indicates a bookkeeping bug, not a user-facing condition", nil)
	}
	return nil
}

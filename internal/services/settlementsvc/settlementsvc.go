// Package settlementsvc implements spec §4.5: Join, Settle, and
// Cancel. Settle is idempotent on an already-SETTLED challenge; Join
// debits a stake and creates the participant row under one lock and one
// transaction; Cancel refunds every collected stake as a non-refundable
// PAYOUT. All three hold their advisory locks and write the ledger and
// allocation tables directly, in the same transaction, the way
// withdrawalsvc.Withdraw does — never by calling back into walletsvc,
// whose Credit/Debit each open their own transaction and would re-acquire
// a lock already held by the caller.
package settlementsvc

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/peerpush/chally/internal/domain/challenge"
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

// ChallengeRepository is the subset of postgres.ChallengeRepository
// settlementsvc depends on.
type ChallengeRepository interface {
	Find(ctx context.Context, id uuid.UUID) (challenge.Challenge, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status challenge.Status) error
}

// ParticipantRepository is the subset of postgres.ParticipantRepository
// settlementsvc depends on.
type ParticipantRepository interface {
	Create(ctx context.Context, p challenge.Participant) (uuid.UUID, error)
	CountForChallenge(ctx context.Context, challengeID uuid.UUID) (int, error)
	ListForChallenge(ctx context.Context, challengeID uuid.UUID) ([]challenge.Participant, error)
}

// AllocationRepository is the subset of postgres.AllocationRepository
// settlementsvc depends on to consume and mint FIFO lots inline, within
// the same transaction as its ledger writes.
type AllocationRepository interface {
	Create(ctx context.Context, a wallet.Allocation) (uuid.UUID, error)
	ListActiveFIFO(ctx context.Context, userID uuid.UUID, onlyRefundable bool, refundWindow time.Duration) ([]wallet.Allocation, error)
	DecrementRemaining(ctx context.Context, id uuid.UUID, amount money.Tokens) error
}

// JoinResult is the response shape of Join.
type JoinResult struct {
	ParticipantID uuid.UUID
	StakePaid     money.Tokens
}

// SettleResult is the response shape of spec §4.5's Settle.
type SettleResult struct {
	TotalPool        money.Tokens
	Winners          []uuid.UUID
	PerWinner        money.Tokens
	RemainderWinners []uuid.UUID
	PlatformRevenue  money.Tokens
}

// Service implements spec §4.5.
type Service struct {
	db            *sql.DB
	challenges    ChallengeRepository
	participants  ParticipantRepository
	ledger        *ledgersvc.Service
	allocations   AllocationRepository
	currency      string
	platformID    uuid.UUID
	allowLateJoin bool
}

// New builds a Service. platformID is the reserved treasury identity
// (spec §3 "Reserved identity") that receives forfeited stakes. allowLateJoin
// implements spec §4.5's "configurable late-join flag" alternative to the
// strict now < start_at check.
func New(db *sql.DB, challenges ChallengeRepository, participants ParticipantRepository, ledger *ledgersvc.Service, allocations AllocationRepository, currency string, platformID uuid.UUID, allowLateJoin bool) *Service {
	return &Service{
		db:            db,
		challenges:    challenges,
		participants:  participants,
		ledger:        ledger,
		allocations:   allocations,
		currency:      currency,
		platformID:    platformID,
		allowLateJoin: allowLateJoin,
	}
}

// Join implements the join-time stake described in spec §4.5: verifies the
// challenge is ACTIVE, still before start_at unless late joins are
// configured on, and has capacity, then debits the stake and creates the
// participant row inside one transaction under the user's advisory lock.
// No partial join: a failure at any step rolls back both the debit and the
// participant row together.
func (s *Service) Join(ctx context.Context, userID, challengeID uuid.UUID) (JoinResult, error) {
	ctx, span := mtrace.FromContext(ctx).Start(ctx, "settlementsvc.Join")
	defer span.End()

	c, err := s.challenges.Find(ctx, challengeID)
	if err != nil {
		return JoinResult{}, err
	}
	if c.Status != challenge.StatusActive {
		return JoinResult{}, apperrors.New(apperrors.KindStateConflict, "challenge not joinable", "challenge is not active", nil)
	}
	if !s.allowLateJoin && !time.Now().UTC().Before(c.StartAt) {
		return JoinResult{}, apperrors.New(apperrors.KindStateConflict, "challenge already started", "", nil)
	}
	if c.MaxParticipants != nil {
		count, err := s.participants.CountForChallenge(ctx, challengeID)
		if err != nil {
			return JoinResult{}, err
		}
		if count >= *c.MaxParticipants {
			return JoinResult{}, apperrors.New(apperrors.KindStateConflict, "challenge full", "", nil)
		}
	}

	var result JoinResult
	err = dbtx.RunInTransaction(ctx, s.db, func(txCtx context.Context) error {
		tx := dbtx.TxFromContext(txCtx)
		if err := advisorylock.AcquireUser(txCtx, tx, userID); err != nil {
			return err
		}

		entryID, err := s.debitStake(txCtx, userID, c.Stake, "challenge join: "+challengeID.String())
		if err != nil {
			return err
		}

		participantID, err := s.participants.Create(txCtx, challenge.Participant{
			ChallengeID:        challengeID,
			UserID:             userID,
			Status:             challenge.ParticipantJoined,
			StakeLedgerEntryID: entryID,
		})
		if err != nil {
			return err
		}

		result = JoinResult{ParticipantID: participantID, StakePaid: c.Stake}
		return nil
	})
	if err != nil {
		return JoinResult{}, err
	}
	return result, nil
}

// debitStake appends a negative STAKE ledger entry for userID and consumes
// FIFO allocations for amount, mirroring walletsvc.Debit's body exactly but
// inline, so it runs inside a transaction the caller already holds open
// (and whose advisory lock the caller has already acquired).
func (s *Service) debitStake(ctx context.Context, userID uuid.UUID, amount money.Tokens, note string) (uuid.UUID, error) {
	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return uuid.Nil, err
	}
	if balance < amount {
		return uuid.Nil, apperrors.New(apperrors.KindInsufficient, "insufficient balance", "", nil)
	}

	entryID, err := s.ledger.Append(ctx, userID, ledger.KindStake, -amount, s.currency, nil, note)
	if err != nil {
		return uuid.Nil, err
	}

	if err := s.consumeFIFO(ctx, userID, amount); err != nil {
		return uuid.Nil, err
	}
	return entryID, nil
}

// consumeFIFO decrements allocations for userID in created_at order until
// amount has been consumed, mirroring walletsvc.Service.consumeFIFO.
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

// creditPayout appends a PAYOUT ledger entry for userID and mints a
// non-refundable allocation (payment_ref = nil) for amount, mirroring
// walletsvc.Credit's PAYOUT branch inline so winners' money and the
// challenge's UpdateStatus write land in the same transaction.
func (s *Service) creditPayout(ctx context.Context, userID uuid.UUID, amount money.Tokens) error {
	entryID, err := s.ledger.Append(ctx, userID, ledger.KindPayout, amount, s.currency, nil, "")
	if err != nil {
		return err
	}

	_, err = s.allocations.Create(ctx, wallet.Allocation{
		UserID:        userID,
		Original:      amount,
		Remaining:     amount,
		PaymentRef:    nil,
		LedgerEntryID: entryID,
	})
	return err
}

// Settle implements spec §4.5's algorithm. It is idempotent on an
// already-SETTLED challenge: it re-derives and returns the same result
// from the persisted ledger/participant state without writing anything.
func (s *Service) Settle(ctx context.Context, challengeID uuid.UUID) (SettleResult, error) {
	ctx, span := mtrace.FromContext(ctx).Start(ctx, "settlementsvc.Settle")
	defer span.End()
	logger := mlog.FromContext(ctx)

	var result SettleResult
	err := dbtx.RunInTransaction(ctx, s.db, func(txCtx context.Context) error {
		tx := dbtx.TxFromContext(txCtx)
		if err := advisorylock.AcquireChallenge(txCtx, tx, challengeID); err != nil {
			return err
		}

		c, err := s.challenges.Find(txCtx, challengeID)
		if err != nil {
			return err
		}

		participants, err := s.participants.ListForChallenge(txCtx, challengeID)
		if err != nil {
			return err
		}

		if c.Status == challenge.StatusSettled {
			result = deriveResultFromParticipants(participants, c.Stake)
			return nil // idempotent: no writes
		}
		if c.Status != challenge.StatusCompleted {
			return apperrors.New(apperrors.KindStateConflict, "challenge not completed", "", nil)
		}

		winners := winningParticipants(participants)

		lockOrder := make([]uuid.UUID, 0, len(winners)+1)
		for _, w := range winners {
			lockOrder = append(lockOrder, w.UserID)
		}
		lockOrder = append(lockOrder, s.platformID)
		if err := advisorylock.AcquireUsersAscending(txCtx, tx, lockOrder); err != nil {
			return err
		}

		totalPool := c.Stake * money.Tokens(len(participants))

		if len(winners) == 0 {
			if err := s.creditPayout(txCtx, s.platformID, totalPool); err != nil {
				return err
			}
			result = SettleResult{TotalPool: totalPool, PlatformRevenue: totalPool}
		} else {
			n := money.Tokens(len(winners))
			perWinner := totalPool / n
			remainder := int(totalPool % n)

			winnerIDs := make([]uuid.UUID, 0, len(winners))
			var remainderIDs []uuid.UUID
			for i, w := range winners {
				amount := perWinner
				if i < remainder {
					amount++
					remainderIDs = append(remainderIDs, w.UserID)
				}
				if err := s.creditPayout(txCtx, w.UserID, amount); err != nil {
					return err
				}
				winnerIDs = append(winnerIDs, w.UserID)
			}

			result = SettleResult{
				TotalPool:        totalPool,
				Winners:          winnerIDs,
				PerWinner:        perWinner,
				RemainderWinners: remainderIDs,
				PlatformRevenue:  0,
			}
		}

		if err := s.challenges.UpdateStatus(txCtx, challengeID, challenge.StatusSettled); err != nil {
			return err
		}

		logger.Infof("settlement challenge_id=%s pool=%d winners=%d platform_revenue=%d", challengeID, totalPool, len(winners), result.PlatformRevenue)
		return nil
	})
	if err != nil {
		return SettleResult{}, err
	}
	return result, nil
}

// winningParticipants returns the COMPLETED participants of p, ordered by
// joined_at ascending (tie-break user_id), the order the deterministic
// remainder distribution (spec §4.5 step 5) consumes. ListForChallenge
// already orders this way; Settle re-sorts defensively so the guarantee
// does not depend on the repository's query never changing.
func winningParticipants(p []challenge.Participant) []challenge.Participant {
	var winners []challenge.Participant
	for _, participant := range p {
		if participant.Won() {
			winners = append(winners, participant)
		}
	}
	sort.SliceStable(winners, func(i, j int) bool {
		if winners[i].JoinedAt.Equal(winners[j].JoinedAt) {
			return winners[i].UserID.String() < winners[j].UserID.String()
		}
		return winners[i].JoinedAt.Before(winners[j].JoinedAt)
	})
	return winners
}

// deriveResultFromParticipants recomputes a settlement result for an
// already-SETTLED challenge, used by Settle's idempotent path. It mirrors
// the payout split exactly since it applies the same deterministic
// formula to the same persisted participant set.
func deriveResultFromParticipants(p []challenge.Participant, stake money.Tokens) SettleResult {
	totalPool := stake * money.Tokens(len(p))
	winners := winningParticipants(p)

	if len(winners) == 0 {
		return SettleResult{TotalPool: totalPool, PlatformRevenue: totalPool}
	}

	n := money.Tokens(len(winners))
	perWinner := totalPool / n
	remainder := int(totalPool % n)

	winnerIDs := make([]uuid.UUID, 0, len(winners))
	var remainderIDs []uuid.UUID
	for i, w := range winners {
		if i < remainder {
			remainderIDs = append(remainderIDs, w.UserID)
		}
		winnerIDs = append(winnerIDs, w.UserID)
	}

	return SettleResult{
		TotalPool:        totalPool,
		Winners:          winnerIDs,
		PerWinner:        perWinner,
		RemainderWinners: remainderIDs,
		PlatformRevenue:  0,
	}
}

// Cancel implements spec §4.5's cancellation: refunds every collected
// stake as a PAYOUT to its original payer (a non-refundable synthetic
// allocation, same as any other winnings credit) and marks the challenge
// CANCELLED, all inside one transaction under the participants' advisory
// locks.
func (s *Service) Cancel(ctx context.Context, challengeID uuid.UUID) error {
	ctx, span := mtrace.FromContext(ctx).Start(ctx, "settlementsvc.Cancel")
	defer span.End()

	return dbtx.RunInTransaction(ctx, s.db, func(txCtx context.Context) error {
		tx := dbtx.TxFromContext(txCtx)
		if err := advisorylock.AcquireChallenge(txCtx, tx, challengeID); err != nil {
			return err
		}

		c, err := s.challenges.Find(txCtx, challengeID)
		if err != nil {
			return err
		}
		if c.Status.Terminal() {
			return apperrors.New(apperrors.KindStateConflict, "challenge already terminal", "", nil)
		}

		participants, err := s.participants.ListForChallenge(txCtx, challengeID)
		if err != nil {
			return err
		}

		userIDs := make([]uuid.UUID, 0, len(participants))
		for _, p := range participants {
			userIDs = append(userIDs, p.UserID)
		}
		if err := advisorylock.AcquireUsersAscending(txCtx, tx, userIDs); err != nil {
			return err
		}

		for _, p := range participants {
			if err := s.creditPayout(txCtx, p.UserID, c.Stake); err != nil {
				return err
			}
		}

		return s.challenges.UpdateStatus(txCtx, challengeID, challenge.StatusCancelled)
	})
}

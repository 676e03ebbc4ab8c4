// Package advisorylock wraps Postgres transaction-scoped advisory locks,
// used as the per-user wallet lock (spec §4.2) and per-challenge
// settlement lock (spec §4.5). A transaction-scoped lock
// (pg_advisory_xact_lock) is chosen over a session-scoped one or a Redis
// lock because it is released automatically at commit or rollback,
// exactly matching the lifetime the spec requires with no separate
// unlock path to forget.
package advisorylock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/google/uuid"

	"github.com/peerpush/chally/internal/platform/apperrors"
)

// DefaultWaitTimeout is the lock-wait timeout from spec §5: on timeout the
// operation fails with WalletBusy so the caller can back off.
const DefaultWaitTimeout = 5 * time.Second

// pollInterval is how often AcquireUser/AcquireChallenge retry
// pg_try_advisory_xact_lock while waiting for DefaultWaitTimeout to elapse.
const pollInterval = 25 * time.Millisecond

// key derives a stable 64-bit advisory lock key from id, namespaced by
// kind so a user lock and a challenge lock never collide on the same key
// space even if their UUIDs happened to hash identically.
func key(kind byte, id uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write([]byte{kind})
	h.Write(id[:])
	return int64(h.Sum64())
}

const (
	kindUser      byte = 'u'
	kindChallenge byte = 'c'
)

// AcquireUser takes the per-user wallet lock for the duration of the
// transaction tx belongs to. It must be called with a transaction already
// open via dbtx.RunInTransaction; the lock releases automatically at
// commit or rollback.
func AcquireUser(ctx context.Context, tx *sql.Tx, userID uuid.UUID) error {
	return acquire(ctx, tx, key(kindUser, userID))
}

// AcquireChallenge takes the per-challenge settlement lock.
func AcquireChallenge(ctx context.Context, tx *sql.Tx, challengeID uuid.UUID) error {
	return acquire(ctx, tx, key(kindChallenge, challengeID))
}

// AcquireUsersAscending takes locks for every id in userIDs in ascending
// order, as spec §4.2/§4.5 require to avoid cross-user deadlock. Duplicate
// ids are locked once.
func AcquireUsersAscending(ctx context.Context, tx *sql.Tx, userIDs []uuid.UUID) error {
	ordered := dedupeSorted(userIDs)
	for _, id := range ordered {
		if err := AcquireUser(ctx, tx, id); err != nil {
			return err
		}
	}
	return nil
}

func dedupeSorted(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].String() > out[j].String(); j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func acquire(ctx context.Context, tx *sql.Tx, lockKey int64) error {
	deadline := time.Now().Add(DefaultWaitTimeout)

	for {
		var acquired bool
		row := tx.QueryRowContext(ctx, `SELECT pg_try_advisory_xact_lock($1)`, lockKey)
		if err := row.Scan(&acquired); err != nil {
			return apperrors.New(apperrors.KindWalletBusy, "wallet busy", "lock probe failed", err)
		}
		if acquired {
			return nil
		}
		if time.Now().After(deadline) {
			return apperrors.New(apperrors.KindWalletBusy, "wallet busy", "lock wait exceeded", nil)
		}

		select {
		case <-ctx.Done():
			return apperrors.New(apperrors.KindWalletBusy, "wallet busy", "context cancelled while waiting for lock", ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

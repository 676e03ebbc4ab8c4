// Package ledgersvc implements the append-only ledger contract of spec
// §4.1: Append, Balance, Sum. It is the only component allowed to write
// ledger_entries; everything else in the core goes through it (directly or
// via walletsvc, which wraps it with locking and allocation bookkeeping).
package ledgersvc

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/peerpush/chally/internal/domain/ledger"
	"github.com/peerpush/chally/internal/domain/money"
	"github.com/peerpush/chally/internal/platform/apperrors"
	"github.com/peerpush/chally/internal/platform/mlog"
	"github.com/peerpush/chally/internal/platform/mtrace"
)

// Repository is the persistence contract ledgersvc depends on.
type Repository interface {
	Append(ctx context.Context, e ledger.Entry) (uuid.UUID, error)
	FindByExternalID(ctx context.Context, kind ledger.Kind, externalID string) (uuid.UUID, bool, error)
	Balance(ctx context.Context, userID uuid.UUID) (money.Tokens, error)
	Sum(ctx context.Context, userID uuid.UUID, kind ledger.Kind, since *time.Time) (money.Tokens, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]ledger.Entry, error)
}

// Service implements spec §4.1.
type Service struct {
	repo Repository
}

// New builds a Service over repo.
func New(repo Repository) *Service {
	return &Service{repo: repo}
}

// Append writes one entry. When externalID is supplied and an entry for
// (kind, externalID) already exists, Append returns the existing entry's
// id and apperrors.ErrDuplicate wrapped so the caller (walletsvc) can
// treat it as a no-op rather than a failure.
func (s *Service) Append(ctx context.Context, userID uuid.UUID, kind ledger.Kind, amount money.Tokens, currency string, externalID *string, note string) (uuid.UUID, error) {
	ctx, span := mtrace.FromContext(ctx).Start(ctx, "ledgersvc.Append")
	defer span.End()
	logger := mlog.FromContext(ctx)

	if !ledger.Valid(kind, amount) {
		return uuid.Nil, apperrors.New(apperrors.KindInvalidAmount, "invalid amount", "amount sign does not match entry kind", nil)
	}

	id, err := s.repo.Append(ctx, ledger.Entry{
		UserID:     userID,
		Kind:       kind,
		Amount:     amount,
		Currency:   currency,
		ExternalID: externalID,
		Note:       note,
	})
	if err != nil {
		if be, ok := apperrors.As(err); ok && be.Kind == apperrors.KindDuplicate && externalID != nil {
			existingID, found, lookupErr := s.repo.FindByExternalID(ctx, kind, *externalID)
			if lookupErr == nil && found {
				logger.Infof("ledger append duplicate, external_id=%s kind=%s existing_id=%s", *externalID, kind, existingID)
				return existingID, err
			}
		}
		return uuid.Nil, err
	}

	logger.Infof("ledger append user_id=%s kind=%s amount=%d external_id=%v entry_id=%s", userID, kind, amount, externalID, id)
	return id, nil
}

// Balance returns Σ amount for userID, computed directly from storage.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (money.Tokens, error) {
	ctx, span := mtrace.FromContext(ctx).Start(ctx, "ledgersvc.Balance")
	defer span.End()
	return s.repo.Balance(ctx, userID)
}

// Sum totals entries of kind for userID since the given instant (nil means
// all time), used for daily-limit checks.
func (s *Service) Sum(ctx context.Context, userID uuid.UUID, kind ledger.Kind, since *time.Time) (money.Tokens, error) {
	ctx, span := mtrace.FromContext(ctx).Start(ctx, "ledgersvc.Sum")
	defer span.End()
	return s.repo.Sum(ctx, userID, kind, since)
}

// ListByUser returns every entry for userID, for GET /wallet.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]ledger.Entry, error) {
	ctx, span := mtrace.FromContext(ctx).Start(ctx, "ledgersvc.ListByUser")
	defer span.End()
	return s.repo.ListByUser(ctx, userID)
}

// TodayUTCMidnight returns the start of the current UTC day, the `since`
// bound spec §4.3's daily deposit cap check uses.
func TodayUTCMidnight() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

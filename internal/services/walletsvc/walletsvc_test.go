package walletsvc_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerpush/chally/internal/domain/ledger"
	"github.com/peerpush/chally/internal/domain/money"
	"github.com/peerpush/chally/internal/domain/wallet"
	"github.com/peerpush/chally/internal/platform/apperrors"
	"github.com/peerpush/chally/internal/services/ledgersvc"
	"github.com/peerpush/chally/internal/services/walletsvc"
)

type fakeLedgerRepo struct {
	balance money.Tokens
	entries []ledger.Entry
}

func (f *fakeLedgerRepo) Append(ctx context.Context, e ledger.Entry) (uuid.UUID, error) {
	if e.ExternalID != nil {
		for _, existing := range f.entries {
			if existing.Kind == e.Kind && existing.ExternalID != nil && *existing.ExternalID == *e.ExternalID {
				return existing.ID, apperrors.New(apperrors.KindDuplicate, "duplicate", "", nil)
			}
		}
	}
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	f.entries = append(f.entries, e)
	f.balance += e.Amount
	return e.ID, nil
}

func (f *fakeLedgerRepo) FindByExternalID(ctx context.Context, kind ledger.Kind, externalID string) (uuid.UUID, bool, error) {
	for _, e := range f.entries {
		if e.Kind == kind && e.ExternalID != nil && *e.ExternalID == externalID {
			return e.ID, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (f *fakeLedgerRepo) Balance(ctx context.Context, userID uuid.UUID) (money.Tokens, error) {
	return f.balance, nil
}

func (f *fakeLedgerRepo) Sum(ctx context.Context, userID uuid.UUID, kind ledger.Kind, since *time.Time) (money.Tokens, error) {
	return 0, nil
}

func (f *fakeLedgerRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]ledger.Entry, error) {
	return f.entries, nil
}

type fakeAllocations struct {
	allocations []wallet.Allocation
	created     []wallet.Allocation
	decremented map[uuid.UUID]money.Tokens
}

func (f *fakeAllocations) Create(ctx context.Context, a wallet.Allocation) (uuid.UUID, error) {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	f.created = append(f.created, a)
	f.allocations = append(f.allocations, a)
	return a.ID, nil
}

func (f *fakeAllocations) ListActiveFIFO(ctx context.Context, userID uuid.UUID, onlyRefundable bool, refundWindow time.Duration) ([]wallet.Allocation, error) {
	var out []wallet.Allocation
	for _, a := range f.allocations {
		if a.Remaining <= 0 {
			continue
		}
		if onlyRefundable && !a.Refundable() {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAllocations) DecrementRemaining(ctx context.Context, id uuid.UUID, amount money.Tokens) error {
	if f.decremented == nil {
		f.decremented = map[uuid.UUID]money.Tokens{}
	}
	f.decremented[id] += amount
	for i, a := range f.allocations {
		if a.ID == id {
			f.allocations[i].Remaining -= amount
		}
	}
	return nil
}

func expectLockQuery(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT pg_try_advisory_xact_lock`).WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(true))
}

func ref(s string) *string { return &s }

func TestCredit_DepositCreatesRefundableAllocation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledgerRepo := &fakeLedgerRepo{}
	allocations := &fakeAllocations{}
	svc := walletsvc.New(db, ledgersvc.New(ledgerRepo), allocations, "USD")

	mock.ExpectBegin()
	expectLockQuery(mock)
	mock.ExpectCommit()

	userID := uuid.New()
	ext := "pi_abc"
	_, err = svc.Credit(context.Background(), userID, money.Tokens(100), ledger.KindDeposit, &ext, &ext)
	require.NoError(t, err)

	require.Len(t, allocations.created, 1)
	assert.True(t, allocations.created[0].Refundable())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredit_PayoutCreatesNonRefundableAllocation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledgerRepo := &fakeLedgerRepo{}
	allocations := &fakeAllocations{}
	svc := walletsvc.New(db, ledgersvc.New(ledgerRepo), allocations, "USD")

	mock.ExpectBegin()
	expectLockQuery(mock)
	mock.ExpectCommit()

	_, err = svc.Credit(context.Background(), uuid.New(), money.Tokens(300), ledger.KindPayout, nil, nil)
	require.NoError(t, err)

	require.Len(t, allocations.created, 1)
	assert.False(t, allocations.created[0].Refundable(), "PAYOUT winnings must never be externally refundable")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredit_DuplicateExternalIDIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledgerRepo := &fakeLedgerRepo{}
	allocations := &fakeAllocations{}
	svc := walletsvc.New(db, ledgersvc.New(ledgerRepo), allocations, "USD")

	mock.ExpectBegin()
	expectLockQuery(mock)
	mock.ExpectCommit()
	mock.ExpectBegin()
	expectLockQuery(mock)
	mock.ExpectCommit()

	userID := uuid.New()
	ext := "pi_replay"
	firstID, err := svc.Credit(context.Background(), userID, money.Tokens(100), ledger.KindDeposit, &ext, &ext)
	require.NoError(t, err)

	secondID, err := svc.Credit(context.Background(), userID, money.Tokens(100), ledger.KindDeposit, &ext, &ext)
	require.NoError(t, err, "a replayed webhook credit must succeed as a no-op, not error")
	assert.Equal(t, firstID, secondID)

	assert.Len(t, allocations.created, 1, "no second allocation for a duplicate credit")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredit_RejectsInvalidKind(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := walletsvc.New(db, ledgersvc.New(&fakeLedgerRepo{}), &fakeAllocations{}, "USD")

	_, err = svc.Credit(context.Background(), uuid.New(), money.Tokens(100), ledger.KindStake, nil, nil)
	require.Error(t, err)
	be, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindInvalidAmount, be.Kind)
}

func TestDebit_ConsumesAllocationsInFIFOOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userID := uuid.New()
	older := wallet.Allocation{ID: uuid.New(), UserID: userID, Original: 50, Remaining: 50, PaymentRef: ref("pi_old"), CreatedAt: time.Now().Add(-time.Hour)}
	newer := wallet.Allocation{ID: uuid.New(), UserID: userID, Original: 100, Remaining: 100, PaymentRef: ref("pi_new"), CreatedAt: time.Now()}
	allocations := &fakeAllocations{allocations: []wallet.Allocation{older, newer}}
	ledgerRepo := &fakeLedgerRepo{balance: 150}

	svc := walletsvc.New(db, ledgersvc.New(ledgerRepo), allocations, "USD")

	mock.ExpectBegin()
	expectLockQuery(mock)
	mock.ExpectCommit()

	_, err = svc.Debit(context.Background(), userID, money.Tokens(75), ledger.KindStake, "join")
	require.NoError(t, err)

	assert.Equal(t, money.Tokens(50), allocations.decremented[older.ID], "oldest allocation drains first")
	assert.Equal(t, money.Tokens(25), allocations.decremented[newer.ID])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDebit_RejectsInsufficientBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledgerRepo := &fakeLedgerRepo{balance: 10}
	svc := walletsvc.New(db, ledgersvc.New(ledgerRepo), &fakeAllocations{}, "USD")

	mock.ExpectBegin()
	expectLockQuery(mock)
	mock.ExpectRollback()

	_, err = svc.Debit(context.Background(), uuid.New(), money.Tokens(100), ledger.KindStake, "join")
	require.Error(t, err)
	be, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindInsufficient, be.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDebit_RejectsInvalidKind(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := walletsvc.New(db, ledgersvc.New(&fakeLedgerRepo{}), &fakeAllocations{}, "USD")

	_, err = svc.Debit(context.Background(), uuid.New(), money.Tokens(100), ledger.KindDeposit, "join")
	require.Error(t, err)
	be, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindInvalidAmount, be.Kind)
}

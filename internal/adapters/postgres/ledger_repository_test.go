package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerpush/chally/internal/adapters/postgres"
	"github.com/peerpush/chally/internal/domain/ledger"
	"github.com/peerpush/chally/internal/domain/money"
	"github.com/peerpush/chally/internal/platform/apperrors"
)

func TestLedgerRepository_Append_RejectsSignMismatch(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewLedgerRepository(db)
	_, err = repo.Append(context.Background(), ledger.Entry{Kind: ledger.KindDeposit, Amount: money.Tokens(-10)})
	require.Error(t, err)
	be, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindInvalidAmount, be.Kind)
}

func TestLedgerRepository_Append_TranslatesUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO ledger_entries").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "ledger_entries_kind_external_id_uniq"})

	repo := postgres.NewLedgerRepository(db)
	ext := "pi_dup"
	_, err = repo.Append(context.Background(), ledger.Entry{UserID: uuid.New(), Kind: ledger.KindDeposit, Amount: money.Tokens(100), Currency: "USD", ExternalID: &ext})
	require.Error(t, err)
	be, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindDuplicate, be.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_Append_Succeeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(1, 1))

	repo := postgres.NewLedgerRepository(db)
	id, err := repo.Append(context.Background(), ledger.Entry{UserID: uuid.New(), Kind: ledger.KindDeposit, Amount: money.Tokens(100), Currency: "USD"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_Balance_SumsAmounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userID := uuid.New()
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(300)))

	repo := postgres.NewLedgerRepository(db)
	balance, err := repo.Balance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, money.Tokens(300), balance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_FindByExternalID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM ledger_entries").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := postgres.NewLedgerRepository(db)
	_, found, err := repo.FindByExternalID(context.Background(), ledger.KindDeposit, "missing")
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_ListByUser_ScansEntries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userID := uuid.New()
	entryID := uuid.New()
	now := time.Now()
	mock.ExpectQuery("SELECT id, user_id, kind, amount, currency, external_id, note, created_at FROM ledger_entries").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "kind", "amount", "currency", "external_id", "note", "created_at"}).
			AddRow(entryID, userID, "DEPOSIT", int64(100), "USD", nil, "", now))

	repo := postgres.NewLedgerRepository(db)
	entries, err := repo.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entryID, entries[0].ID)
	assert.Equal(t, ledger.KindDeposit, entries[0].Kind)
	assert.Equal(t, money.Tokens(100), entries[0].Amount)
	require.NoError(t, mock.ExpectationsWereMet())
}

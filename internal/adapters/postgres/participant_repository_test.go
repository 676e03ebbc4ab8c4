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
	"github.com/peerpush/chally/internal/domain/challenge"
	"github.com/peerpush/chally/internal/platform/apperrors"
)

func TestParticipantRepository_Create_TranslatesDuplicateJoin(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO participants").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "participants_challenge_user_uniq"})

	repo := postgres.NewParticipantRepository(db)
	_, err = repo.Create(context.Background(), challenge.Participant{ChallengeID: uuid.New(), UserID: uuid.New()})
	require.Error(t, err)
	be, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindStateConflict, be.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepository_CountForChallenge(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	challengeID := uuid.New()
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(challengeID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	repo := postgres.NewParticipantRepository(db)
	count, err := repo.CountForChallenge(context.Background(), challengeID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepository_ListForChallenge_OrdersByJoinedAt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	challengeID := uuid.New()
	earlyID, lateID := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT id, challenge_id, user_id, status, joined_at, stake_ledger_entry_id FROM participants").
		WillReturnRows(sqlmock.NewRows([]string{"id", "challenge_id", "user_id", "status", "joined_at", "stake_ledger_entry_id"}).
			AddRow(earlyID, challengeID, uuid.New(), "COMPLETED", now.Add(-time.Hour), uuid.New()).
			AddRow(lateID, challengeID, uuid.New(), "JOINED", now, uuid.New()))

	repo := postgres.NewParticipantRepository(db)
	participants, err := repo.ListForChallenge(context.Background(), challengeID)
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, earlyID, participants[0].ID)
	assert.True(t, participants[0].Won())
	assert.False(t, participants[1].Won())
	require.NoError(t, mock.ExpectationsWereMet())
}

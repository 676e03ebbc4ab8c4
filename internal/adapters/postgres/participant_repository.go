package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/peerpush/chally/internal/domain/challenge"
	"github.com/peerpush/chally/internal/platform/dbtx"
)

// ParticipantRepository persists and queries Participant rows.
type ParticipantRepository struct {
	db *sql.DB
}

// NewParticipantRepository builds a ParticipantRepository against db.
func NewParticipantRepository(db *sql.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// Create inserts a new participant at join time. A (challenge_id, user_id)
// collision is translated to apperrors.KindStateConflict by
// translateParticipantError.
func (r *ParticipantRepository) Create(ctx context.Context, p challenge.Participant) (uuid.UUID, error) {
	id := uuid.New()

	query, args, err := psql.Insert("participants").
		Columns("id", "challenge_id", "user_id", "status", "joined_at", "stake_ledger_entry_id").
		Values(id, p.ChallengeID, p.UserID, string(p.Status), p.JoinedAt, p.StakeLedgerEntryID).
		ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("building insert: %w", err)
	}

	exec := dbtx.GetExecutor(ctx, r.db)
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return uuid.Nil, translateParticipantError(err)
	}
	return id, nil
}

// CountForChallenge returns the current participant count, for capacity
// checks against Challenge.MaxParticipants.
func (r *ParticipantRepository) CountForChallenge(ctx context.Context, challengeID uuid.UUID) (int, error) {
	query, args, err := psql.Select("COUNT(*)").
		From("participants").
		Where(sq.Eq{"challenge_id": challengeID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building select: %w", err)
	}

	exec := dbtx.GetExecutor(ctx, r.db)
	var count int
	var scanErr error
	switch e := exec.(type) {
	case *sql.DB:
		scanErr = e.QueryRowContext(ctx, query, args...).Scan(&count)
	case *sql.Tx:
		scanErr = e.QueryRowContext(ctx, query, args...).Scan(&count)
	}
	if scanErr != nil {
		return 0, fmt.Errorf("scanning count: %w", scanErr)
	}
	return count, nil
}

// ListForChallenge returns every participant of challengeID, ordered by
// joined_at ascending — the order the settlement engine's deterministic
// remainder distribution (spec §4.5) depends on.
func (r *ParticipantRepository) ListForChallenge(ctx context.Context, challengeID uuid.UUID) ([]challenge.Participant, error) {
	query, args, err := psql.Select("id", "challenge_id", "user_id", "status", "joined_at", "stake_ledger_entry_id").
		From("participants").
		Where(sq.Eq{"challenge_id": challengeID}).
		OrderBy("joined_at ASC", "user_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	exec := dbtx.GetExecutor(ctx, r.db)
	var rows *sql.Rows
	switch e := exec.(type) {
	case *sql.DB:
		rows, err = e.QueryContext(ctx, query, args...)
	case *sql.Tx:
		rows, err = e.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	var out []challenge.Participant
	for rows.Next() {
		var p challenge.Participant
		var status string
		if err := rows.Scan(&p.ID, &p.ChallengeID, &p.UserID, &status, &p.JoinedAt, &p.StakeLedgerEntryID); err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		p.Status = challenge.ParticipantStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

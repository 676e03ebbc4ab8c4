package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/peerpush/chally/internal/domain/challenge"
	"github.com/peerpush/chally/internal/domain/money"
	"github.com/peerpush/chally/internal/platform/apperrors"
	"github.com/peerpush/chally/internal/platform/dbtx"
)

// ChallengeRepository reads and transitions the subset of challenge state
// the financial core owns. Every other challenge field (title, proof
// rules) is peripheral and not modeled here.
type ChallengeRepository struct {
	db *sql.DB
}

// NewChallengeRepository builds a ChallengeRepository against db.
func NewChallengeRepository(db *sql.DB) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

func (r *ChallengeRepository) scanRow(row interface{ Scan(...any) error }) (challenge.Challenge, error) {
	var c challenge.Challenge
	var status string
	var stake int64
	if err := row.Scan(&c.ID, &c.CreatorID, &stake, &c.MaxParticipants, &c.StartAt, &c.EndAt, &status, &c.VerificationThreshold); err != nil {
		if err == sql.ErrNoRows {
			return challenge.Challenge{}, apperrors.New(apperrors.KindNotFound, "challenge not found", "", err)
		}
		return challenge.Challenge{}, fmt.Errorf("scanning challenge: %w", err)
	}
	c.Stake = money.Tokens(stake)
	c.Status = challenge.Status(status)
	return c, nil
}

// Find returns the challenge with id, locking the row FOR UPDATE when
// called within a transaction so a concurrent Settle cannot race the
// status read against this one's write.
func (r *ChallengeRepository) Find(ctx context.Context, id uuid.UUID) (challenge.Challenge, error) {
	query, args, err := psql.Select("id", "creator_id", "stake", "max_participants", "start_at", "end_at", "status", "verification_threshold").
		From("challenges").
		Where(sq.Eq{"id": id}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return challenge.Challenge{}, fmt.Errorf("building select: %w", err)
	}

	exec := dbtx.GetExecutor(ctx, r.db)
	switch e := exec.(type) {
	case *sql.DB:
		return r.scanRow(e.QueryRowContext(ctx, query, args...))
	case *sql.Tx:
		return r.scanRow(e.QueryRowContext(ctx, query, args...))
	}
	return challenge.Challenge{}, fmt.Errorf("no executor")
}

// UpdateStatus transitions a challenge to status.
func (r *ChallengeRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status challenge.Status) error {
	query, args, err := psql.Update("challenges").
		Set("status", string(status)).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}

	exec := dbtx.GetExecutor(ctx, r.db)
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating challenge status: %w", err)
	}
	return nil
}

// Package postgres implements the repository interfaces the services
// depend on, grounded on the teacher's adapters/postgres/account package:
// a Repository interface, a *PostgreSQLRepository struct per aggregate,
// squirrel for query building, and a single pgconn-error translation
// function per table.
package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/peerpush/chally/internal/platform/apperrors"
)

// pgUniqueViolation is the Postgres error code for a unique constraint
// violation (23505).
const pgUniqueViolation = "23505"

// translateLedgerError maps a raw Postgres error from a ledger_entries
// write to a typed business error, mirroring the teacher's
// services.ValidatePGError switch on ConstraintName.
func translateLedgerError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case "ledger_entries_kind_external_id_uniq":
			return apperrors.New(apperrors.KindDuplicate, "duplicate external id", "an entry for this (kind, external_id) already exists", err)
		}
	}
	return err
}

// translateParticipantError maps participants writes, in particular the
// (challenge_id, user_id) uniqueness constraint from spec §3.
func translateParticipantError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case "participants_challenge_user_uniq":
			return apperrors.New(apperrors.KindStateConflict, "already joined", "user already joined this challenge", err)
		}
	}
	return err
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/peerpush/chally/internal/domain/ledger"
	"github.com/peerpush/chally/internal/domain/money"
	"github.com/peerpush/chally/internal/platform/apperrors"
	"github.com/peerpush/chally/internal/platform/dbtx"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// LedgerRepository persists and queries the append-only ledger_entries
// table. No method here ever issues an UPDATE or DELETE, per spec
// invariant 5.
type LedgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository builds a LedgerRepository against db.
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append inserts one entry. It fails with apperrors.KindDuplicate when
// (kind, external_id) already exists, translating the unique-constraint
// violation rather than checking existence first, to avoid a
// check-then-insert race under concurrent webhook retries.
func (r *LedgerRepository) Append(ctx context.Context, e ledger.Entry) (uuid.UUID, error) {
	if !ledger.Valid(e.Kind, e.Amount) {
		return uuid.Nil, apperrors.New(apperrors.KindInvalidAmount, "sign violation", fmt.Sprintf("amount %d invalid for kind %s", e.Amount, e.Kind), nil)
	}

	id := uuid.New()
	createdAt := time.Now().UTC()

	query, args, err := psql.Insert("ledger_entries").
		Columns("id", "user_id", "kind", "amount", "currency", "external_id", "note", "created_at").
		Values(id, e.UserID, string(e.Kind), int64(e.Amount), e.Currency, e.ExternalID, e.Note, createdAt).
		ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("building insert: %w", err)
	}

	exec := dbtx.GetExecutor(ctx, r.db)
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return uuid.Nil, translateLedgerError(err)
	}

	return id, nil
}

// FindByExternalID returns the entry id for (kind, externalID), used by
// the wallet service to return the original id on an idempotent retry.
func (r *LedgerRepository) FindByExternalID(ctx context.Context, kind ledger.Kind, externalID string) (uuid.UUID, bool, error) {
	query, args, err := psql.Select("id").
		From("ledger_entries").
		Where(sq.Eq{"kind": string(kind), "external_id": externalID}).
		ToSql()
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("building select: %w", err)
	}

	exec := dbtx.GetExecutor(ctx, r.db)
	var id uuid.UUID
	switch e := exec.(type) {
	case *sql.DB:
		err = e.QueryRowContext(ctx, query, args...).Scan(&id)
	case *sql.Tx:
		err = e.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err == sql.ErrNoRows {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("scanning entry id: %w", err)
	}
	return id, true, nil
}

// Balance sums every entry's amount for userID directly from storage,
// never from a cached scalar (spec §4.1 rationale).
func (r *LedgerRepository) Balance(ctx context.Context, userID uuid.UUID) (money.Tokens, error) {
	query, args, err := psql.Select("COALESCE(SUM(amount), 0)").
		From("ledger_entries").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building select: %w", err)
	}

	exec := dbtx.GetExecutor(ctx, r.db)
	var total int64
	var scanErr error
	switch e := exec.(type) {
	case *sql.DB:
		scanErr = e.QueryRowContext(ctx, query, args...).Scan(&total)
	case *sql.Tx:
		scanErr = e.QueryRowContext(ctx, query, args...).Scan(&total)
	}
	if scanErr != nil {
		return 0, fmt.Errorf("scanning balance: %w", scanErr)
	}
	return money.Tokens(total), nil
}

// Sum totals entries of kind for userID created at or after since (when
// since is non-nil), used for the daily-deposit-cap check.
func (r *LedgerRepository) Sum(ctx context.Context, userID uuid.UUID, kind ledger.Kind, since *time.Time) (money.Tokens, error) {
	builder := psql.Select("COALESCE(SUM(amount), 0)").
		From("ledger_entries").
		Where(sq.Eq{"user_id": userID, "kind": string(kind)})
	if since != nil {
		builder = builder.Where(sq.GtOrEq{"created_at": *since})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building select: %w", err)
	}

	exec := dbtx.GetExecutor(ctx, r.db)
	var total int64
	var scanErr error
	switch e := exec.(type) {
	case *sql.DB:
		scanErr = e.QueryRowContext(ctx, query, args...).Scan(&total)
	case *sql.Tx:
		scanErr = e.QueryRowContext(ctx, query, args...).Scan(&total)
	}
	if scanErr != nil {
		return 0, fmt.Errorf("scanning sum: %w", scanErr)
	}
	return money.Tokens(total), nil
}

// ListByUser returns every entry for userID, newest first, for the wallet
// read endpoint (GET /wallet).
func (r *LedgerRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]ledger.Entry, error) {
	query, args, err := psql.Select("id", "user_id", "kind", "amount", "currency", "external_id", "note", "created_at").
		From("ledger_entries").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
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
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var kind string
		var amount int64
		if err := rows.Scan(&e.ID, &e.UserID, &kind, &amount, &e.Currency, &e.ExternalID, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Kind = ledger.Kind(kind)
		e.Amount = money.Tokens(amount)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/peerpush/chally/internal/domain/money"
	"github.com/peerpush/chally/internal/domain/wallet"
	"github.com/peerpush/chally/internal/platform/dbtx"
)

// AllocationRepository persists allocations. Remaining is the only column
// any method here ever updates after insert; original, payment_ref,
// ledger_entry_id and user_id never change.
type AllocationRepository struct {
	db *sql.DB
}

// NewAllocationRepository builds an AllocationRepository against db.
func NewAllocationRepository(db *sql.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// Create inserts a new allocation with remaining = original.
func (r *AllocationRepository) Create(ctx context.Context, a wallet.Allocation) (uuid.UUID, error) {
	id := uuid.New()
	createdAt := time.Now().UTC()

	query, args, err := psql.Insert("allocations").
		Columns("id", "user_id", "original", "remaining", "payment_ref", "ledger_entry_id", "created_at").
		Values(id, a.UserID, int64(a.Original), int64(a.Original), a.PaymentRef, a.LedgerEntryID, createdAt).
		ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("building insert: %w", err)
	}

	exec := dbtx.GetExecutor(ctx, r.db)
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return uuid.Nil, fmt.Errorf("inserting allocation: %w", err)
	}
	return id, nil
}

// ListActiveFIFO returns every allocation for userID with remaining > 0,
// ordered oldest-first, for stake consumption (spec §4.2). onlyRefundable
// additionally filters to payment_ref IS NOT NULL and created_at within
// the refund window, for withdrawal candidate selection (spec §4.4).
func (r *AllocationRepository) ListActiveFIFO(ctx context.Context, userID uuid.UUID, onlyRefundable bool, refundWindow time.Duration) ([]wallet.Allocation, error) {
	builder := psql.Select("id", "user_id", "original", "remaining", "payment_ref", "ledger_entry_id", "created_at").
		From("allocations").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Gt{"remaining": 0}).
		OrderBy("created_at ASC")

	if onlyRefundable {
		builder = builder.Where(sq.NotEq{"payment_ref": nil}).
			Where(sq.GtOrEq{"created_at": time.Now().UTC().Add(-refundWindow)})
	}

	query, args, err := builder.ToSql()
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
		return nil, fmt.Errorf("querying allocations: %w", err)
	}
	defer rows.Close()

	var out []wallet.Allocation
	for rows.Next() {
		var a wallet.Allocation
		var original, remaining int64
		if err := rows.Scan(&a.ID, &a.UserID, &original, &remaining, &a.PaymentRef, &a.LedgerEntryID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning allocation: %w", err)
		}
		a.Original = money.Tokens(original)
		a.Remaining = money.Tokens(remaining)
		out = append(out, a)
	}
	return out, rows.Err()
}

// DecrementRemaining reduces allocation id's remaining by amount. It is
// guarded by remaining >= amount in the WHERE clause so a racing writer
// outside the normal wallet-lock path (there should be none) cannot drive
// remaining negative; ErrNoRows-shaped zero-row-affected signals a bug,
// not a business error, since the wallet lock is expected to serialize
// every writer.
func (r *AllocationRepository) DecrementRemaining(ctx context.Context, id uuid.UUID, amount money.Tokens) error {
	query, args, err := psql.Update("allocations").
		Set("remaining", sq.Expr("remaining - ?", int64(amount))).
		Where(sq.Eq{"id": id}).
		Where(sq.GtOrEq{"remaining": int64(amount)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}

	exec := dbtx.GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("decrementing allocation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("allocation %s: insufficient remaining for decrement of %d", id, amount)
	}
	return nil
}

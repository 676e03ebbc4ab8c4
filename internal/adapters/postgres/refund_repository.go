package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/peerpush/chally/internal/domain/money"
	"github.com/peerpush/chally/internal/domain/wallet"
	"github.com/peerpush/chally/internal/platform/dbtx"
)

// RefundRepository persists Refund audit rows. Refunds are created-and-
// final; there is no update or delete method.
type RefundRepository struct {
	db *sql.DB
}

// NewRefundRepository builds a RefundRepository against db.
func NewRefundRepository(db *sql.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

// Create inserts one refund row.
func (r *RefundRepository) Create(ctx context.Context, rf wallet.Refund) (uuid.UUID, error) {
	id := uuid.New()
	createdAt := time.Now().UTC()

	query, args, err := psql.Insert("refunds").
		Columns("id", "user_id", "allocation_id", "amount", "external_refund_id", "withdrawal_ledger_entry_id", "created_at").
		Values(id, rf.UserID, rf.AllocationID, int64(rf.Amount), rf.ExternalRefundID, rf.WithdrawalLedgerEntryID, createdAt).
		ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("building insert: %w", err)
	}

	exec := dbtx.GetExecutor(ctx, r.db)
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return uuid.Nil, fmt.Errorf("inserting refund: %w", err)
	}
	return id, nil
}

// SumForAllocation returns the total refunded so far for allocationID, the
// refund term of invariant 3 (§8.2). No service calls it.
func (r *RefundRepository) SumForAllocation(ctx context.Context, allocationID uuid.UUID) (money.Tokens, error) {
	query, args, err := psql.Select("COALESCE(SUM(amount), 0)").
		From("refunds").
		Where("allocation_id = ?", allocationID).
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
		return 0, fmt.Errorf("scanning refund sum: %w", scanErr)
	}
	return money.Tokens(total), nil
}

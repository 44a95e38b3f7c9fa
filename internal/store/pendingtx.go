package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetPendingTransactionByIdempotencyKey returns the PendingTransaction bound
// to key for accountID, if any, in whatever status, supporting FundLocker's
// idempotent retry (minotari spec §4.7 step 1). FundLocker reuses it only
// while it is Pending.
func (s *Store) GetPendingTransactionByIdempotencyKey(ctx context.Context, accountID int64, key string) (*PendingTransaction, error) {
	row := s.db.QueryRowContext(ctx, pendingTxSelectColumns+`
		FROM pending_transactions WHERE account_id = ? AND idempotency_key = ?`,
		accountID, key)
	return scanPendingTx(row)
}

// GetPendingTransaction fetches a pending transaction by id.
func (s *Store) GetPendingTransaction(ctx context.Context, id string) (*PendingTransaction, error) {
	row := s.db.QueryRowContext(ctx, pendingTxSelectColumns+`FROM pending_transactions WHERE id = ?`, id)
	return scanPendingTx(row)
}

const pendingTxSelectColumns = `
	SELECT id, idempotency_key, account_id, status, requires_change_output,
		total_value, fee_without_change, fee_with_change, expires_at, created_at
	`

func scanPendingTx(row *sql.Row) (*PendingTransaction, error) {
	p := &PendingTransaction{}
	var key sql.NullString
	err := row.Scan(&p.ID, &key, &p.AccountID, &p.Status, &p.RequiresChangeOutput,
		&p.TotalValue, &p.FeeWithoutChange, &p.FeeWithChange, &p.ExpiresAt, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan pending tx: %w", err)
	}
	if key.Valid {
		p.IdempotencyKey = &key.String
	}
	return p, nil
}

// InsertPendingTransaction creates a new PendingTransaction, assigning a
// fresh UUID if ID is empty, and returns the populated record. A key already
// used by another row of the account yields ErrDuplicateIdempotencyKey.
func (t *Tx) InsertPendingTransaction(ctx context.Context, p *PendingTransaction) (*PendingTransaction, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	var key interface{}
	if p.IdempotencyKey != nil {
		key = *p.IdempotencyKey
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO pending_transactions (id, idempotency_key, account_id, status,
			requires_change_output, total_value, fee_without_change, fee_with_change,
			expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, key, p.AccountID, p.Status, p.RequiresChangeOutput, p.TotalValue,
		p.FeeWithoutChange, p.FeeWithChange, p.ExpiresAt, p.CreatedAt)
	if err != nil {
		if key != nil && isUniqueViolation(err, "pending_transactions.idempotency_key") {
			return nil, ErrDuplicateIdempotencyKey
		}
		return nil, fmt.Errorf("store: insert pending tx: %w", err)
	}
	return p, nil
}

// UpdatePendingTransactionStatus transitions a PendingTransaction's status.
func (t *Tx) UpdatePendingTransactionStatus(ctx context.Context, id string, status PendingTransactionStatus) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE pending_transactions SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("store: update pending tx status: %w", err)
	}
	return nil
}

// ListExpiredPendingTransactions returns Pending transactions whose
// expires_at has passed, for UnlockerTask (minotari spec §4.8).
func (t *Tx) ListExpiredPendingTransactions(ctx context.Context, now time.Time) ([]*PendingTransaction, error) {
	rows, err := t.tx.QueryContext(ctx, pendingTxSelectColumns+`
		FROM pending_transactions WHERE status = ? AND expires_at <= ?`,
		PendingStatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("store: list expired pending tx: %w", err)
	}
	defer rows.Close()

	var out []*PendingTransaction
	for rows.Next() {
		p := &PendingTransaction{}
		var key sql.NullString
		if err := rows.Scan(&p.ID, &key, &p.AccountID, &p.Status, &p.RequiresChangeOutput,
			&p.TotalValue, &p.FeeWithoutChange, &p.FeeWithChange, &p.ExpiresAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan pending tx row: %w", err)
		}
		if key.Valid {
			p.IdempotencyKey = &key.String
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListLockedOutputsForPendingTx is an alias kept for readability at call
// sites in fundlock; delegates to Store.ListOutputsLockedBy.
func (s *Store) ListLockedOutputsForPendingTx(ctx context.Context, pendingTxID string) ([]*Output, error) {
	return s.ListOutputsLockedBy(ctx, pendingTxID)
}

// CancelPendingTransactionsAt transitions every PendingTransaction in the
// given id set that is still Pending to Cancelled, used by the reorg
// resolver (minotari spec §4.3 step c). Ids in any other status are left
// unchanged.
func (t *Tx) CancelPendingTransactionsAt(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := t.tx.ExecContext(ctx, `
			UPDATE pending_transactions SET status = ? WHERE id = ? AND status = ?`,
			PendingStatusCancelled, id, PendingStatusPending); err != nil {
			return fmt.Errorf("store: cancel pending tx %s: %w", id, err)
		}
	}
	return nil
}

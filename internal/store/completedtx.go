package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

const completedTxSelectColumns = `
	SELECT id, pending_tx_id, account_id, status, last_rejected_reason, kernel_excess,
		sent_payref, sent_output_hash, mined_height, mined_block_hash, confirmation_height,
		broadcast_attempts, serialized_transaction
	`

// InsertCompletedTransaction creates a new CompletedTransaction record,
// assigning a UUID if one isn't already set.
func (t *Tx) InsertCompletedTransaction(ctx context.Context, c *CompletedTransaction) (*CompletedTransaction, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	var sentOutputHash interface{}
	if c.SentOutputHash != nil {
		sentOutputHash = c.SentOutputHash[:]
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO completed_transactions (id, pending_tx_id, account_id, status,
			last_rejected_reason, kernel_excess, sent_payref, sent_output_hash,
			broadcast_attempts, serialized_transaction)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.PendingTxID, c.AccountID, c.Status, c.LastRejectedReason, c.KernelExcess,
		c.SentPayref, sentOutputHash, c.BroadcastAttempts, c.SerializedTransaction)
	if err != nil {
		return nil, fmt.Errorf("store: insert completed tx: %w", err)
	}
	return c, nil
}

// GetCompletedTransaction fetches a completed transaction by id.
func (s *Store) GetCompletedTransaction(ctx context.Context, id string) (*CompletedTransaction, error) {
	row := s.db.QueryRowContext(ctx, completedTxSelectColumns+`FROM completed_transactions WHERE id = ?`, id)
	return scanCompletedTx(row)
}

// ListActiveCompletedTransactions returns every CompletedTransaction not yet
// in a terminal state (Rejected/Cancelled), for the transaction monitor's
// per-poll reconciliation loop.
func (s *Store) ListActiveCompletedTransactions(ctx context.Context, accountID int64) ([]*CompletedTransaction, error) {
	rows, err := s.db.QueryContext(ctx, completedTxSelectColumns+`
		FROM completed_transactions
		WHERE account_id = ? AND status NOT IN (?, ?)`,
		accountID, CompletedStatusRejected, CompletedStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("store: list active completed tx: %w", err)
	}
	defer rows.Close()
	return scanCompletedTxRows(rows)
}

// ListCompletedTransactionsMinedFromHeight returns completed transactions
// whose mined_height >= fromHeight, the set a reorg resets back to
// Completed (minotari spec §4.3 step f).
func (t *Tx) ListCompletedTransactionsMinedFromHeight(ctx context.Context, accountID int64, fromHeight uint64) ([]*CompletedTransaction, error) {
	rows, err := t.tx.QueryContext(ctx, completedTxSelectColumns+`
		FROM completed_transactions
		WHERE account_id = ? AND mined_height IS NOT NULL AND mined_height >= ?`,
		accountID, fromHeight)
	if err != nil {
		return nil, fmt.Errorf("store: list mined completed tx: %w", err)
	}
	defer rows.Close()
	return scanCompletedTxRows(rows)
}

// UpdateCompletedTransactionStatus sets status and, optionally, a rejection
// reason.
func (t *Tx) UpdateCompletedTransactionStatus(ctx context.Context, id string, status CompletedTransactionStatus, rejectReason string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE completed_transactions SET status = ?, last_rejected_reason = ? WHERE id = ?`,
		status, rejectReason, id)
	if err != nil {
		return fmt.Errorf("store: update completed tx status: %w", err)
	}
	return nil
}

// IncrementBroadcastAttempts bumps broadcast_attempts by one and returns the
// new count.
func (t *Tx) IncrementBroadcastAttempts(ctx context.Context, id string) (int, error) {
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE completed_transactions SET broadcast_attempts = broadcast_attempts + 1 WHERE id = ?`,
		id); err != nil {
		return 0, fmt.Errorf("store: increment broadcast attempts: %w", err)
	}
	var n int
	if err := t.tx.QueryRowContext(ctx, `SELECT broadcast_attempts FROM completed_transactions WHERE id = ?`, id).
		Scan(&n); err != nil {
		return 0, fmt.Errorf("store: read broadcast attempts: %w", err)
	}
	return n, nil
}

// RecordMined sets mined_height/mined_block_hash on a completed transaction.
func (t *Tx) RecordMined(ctx context.Context, id string, height uint64, blockHash [32]byte) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE completed_transactions SET mined_height = ?, mined_block_hash = ? WHERE id = ?`,
		height, blockHash[:], id)
	if err != nil {
		return fmt.Errorf("store: record mined: %w", err)
	}
	return nil
}

// RecordConfirmed sets confirmation_height on a completed transaction.
func (t *Tx) RecordConfirmed(ctx context.Context, id string, confirmationHeight uint64) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE completed_transactions SET confirmation_height = ? WHERE id = ?`,
		confirmationHeight, id)
	if err != nil {
		return fmt.Errorf("store: record confirmed: %w", err)
	}
	return nil
}

// ResetCompletedTransactionForReorg clears mined/confirmation fields and
// broadcast_attempts, setting status back to Completed, per minotari spec
// §4.3 step f.
func (t *Tx) ResetCompletedTransactionForReorg(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE completed_transactions
		SET status = ?, mined_height = NULL, mined_block_hash = NULL,
			confirmation_height = NULL, broadcast_attempts = 0
		WHERE id = ?`, CompletedStatusCompleted, id)
	if err != nil {
		return fmt.Errorf("store: reset completed tx for reorg: %w", err)
	}
	return nil
}

func scanCompletedTx(row *sql.Row) (*CompletedTransaction, error) {
	c := &CompletedTransaction{}
	var sentOutputHash []byte
	var minedHeight, confirmationHeight sql.NullInt64
	var minedBlockHash []byte

	err := row.Scan(&c.ID, &c.PendingTxID, &c.AccountID, &c.Status, &c.LastRejectedReason,
		&c.KernelExcess, &c.SentPayref, &sentOutputHash, &minedHeight, &minedBlockHash,
		&confirmationHeight, &c.BroadcastAttempts, &c.SerializedTransaction)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan completed tx: %w", err)
	}
	fillCompletedTxOptional(c, sentOutputHash, minedHeight, minedBlockHash, confirmationHeight)
	return c, nil
}

func scanCompletedTxRows(rows *sql.Rows) ([]*CompletedTransaction, error) {
	var out []*CompletedTransaction
	for rows.Next() {
		c := &CompletedTransaction{}
		var sentOutputHash []byte
		var minedHeight, confirmationHeight sql.NullInt64
		var minedBlockHash []byte

		err := rows.Scan(&c.ID, &c.PendingTxID, &c.AccountID, &c.Status, &c.LastRejectedReason,
			&c.KernelExcess, &c.SentPayref, &sentOutputHash, &minedHeight, &minedBlockHash,
			&confirmationHeight, &c.BroadcastAttempts, &c.SerializedTransaction)
		if err != nil {
			return nil, fmt.Errorf("store: scan completed tx row: %w", err)
		}
		fillCompletedTxOptional(c, sentOutputHash, minedHeight, minedBlockHash, confirmationHeight)
		out = append(out, c)
	}
	return out, rows.Err()
}

func fillCompletedTxOptional(c *CompletedTransaction, sentOutputHash []byte,
	minedHeight sql.NullInt64, minedBlockHash []byte, confirmationHeight sql.NullInt64) {

	if len(sentOutputHash) == 32 {
		var h [32]byte
		copy(h[:], sentOutputHash)
		c.SentOutputHash = &h
	}
	if minedHeight.Valid {
		v := uint64(minedHeight.Int64)
		c.MinedHeight = &v
	}
	if len(minedBlockHash) == 32 {
		var h [32]byte
		copy(h[:], minedBlockHash)
		c.MinedBlockHash = &h
	}
	if confirmationHeight.Valid {
		v := uint64(confirmationHeight.Int64)
		c.ConfirmationHeight = &v
	}
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertOutput inserts a detected output, idempotently on (account_id,
// output_hash). If a row already exists it is left untouched and
// newlyInserted is false, matching minotari spec §4.1's rescan-idempotence
// requirement.
func (t *Tx) InsertOutput(ctx context.Context, o *Output) (id int64, newlyInserted bool, err error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id FROM outputs WHERE account_id = ? AND output_hash = ?`,
		o.AccountID, o.OutputHash[:])

	var existing int64
	switch err := row.Scan(&existing); err {
	case nil:
		return existing, false, nil
	case sql.ErrNoRows:
		// fall through to insert
	default:
		return 0, false, fmt.Errorf("store: lookup output: %w", err)
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO outputs (account_id, output_hash, mined_height, mined_block_hash,
			value, wallet_output_blob, memo_parsed, memo_hex, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.AccountID, o.OutputHash[:], o.MinedHeight, o.MinedBlockHash[:],
		o.Value, o.WalletOutputBlob, o.MemoParsed, o.MemoHex, OutputUnspent)
	if err != nil {
		return 0, false, fmt.Errorf("store: insert output: %w", err)
	}

	newID, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return newID, true, nil
}

// GetOutputByHash looks up a non-deleted output by its natural key.
func (t *Tx) GetOutputByHash(ctx context.Context, accountID int64, hash [32]byte) (*Output, error) {
	row := t.tx.QueryRowContext(ctx, outputSelectColumns+`
		FROM outputs WHERE account_id = ? AND output_hash = ? AND deleted_at IS NULL`,
		accountID, hash[:])
	return scanOutput(row)
}

// GetOutput fetches an output by id regardless of deletion state.
func (s *Store) GetOutput(ctx context.Context, id int64) (*Output, error) {
	row := s.db.QueryRowContext(ctx, outputSelectColumns+`FROM outputs WHERE id = ?`, id)
	return scanOutput(row)
}

const outputSelectColumns = `
	SELECT id, account_id, output_hash, mined_height, mined_block_hash, value,
		wallet_output_blob, memo_parsed, memo_hex, confirmed_height, status,
		locked_by_request_id, locked_at, deleted_at, deleted_in_block_height
	`

func scanOutput(row *sql.Row) (*Output, error) {
	o := &Output{}
	var hash, blockHash []byte
	var confirmedHeight sql.NullInt64
	var lockedBy sql.NullString
	var lockedAt, deletedAt sql.NullTime
	var deletedHeight sql.NullInt64

	err := row.Scan(&o.ID, &o.AccountID, &hash, &o.MinedHeight, &blockHash, &o.Value,
		&o.WalletOutputBlob, &o.MemoParsed, &o.MemoHex, &confirmedHeight, &o.Status,
		&lockedBy, &lockedAt, &deletedAt, &deletedHeight)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan output: %w", err)
	}

	copy(o.OutputHash[:], hash)
	copy(o.MinedBlockHash[:], blockHash)
	if confirmedHeight.Valid {
		v := uint64(confirmedHeight.Int64)
		o.ConfirmedHeight = &v
	}
	if lockedBy.Valid {
		o.LockedByRequestID = &lockedBy.String
	}
	if lockedAt.Valid {
		o.LockedAt = &lockedAt.Time
	}
	if deletedAt.Valid {
		o.DeletedAt = &deletedAt.Time
	}
	if deletedHeight.Valid {
		v := uint64(deletedHeight.Int64)
		o.DeletedInBlockHeight = &v
	}
	return o, nil
}

// ListUnspentOutputsForSelection returns non-deleted Unspent outputs mined at
// or before tip-confirmationWindow, ordered by value descending (largest
// first), matching the coin-selection order of minotari spec §4.7.1.
func (s *Store) ListUnspentOutputsForSelection(ctx context.Context, accountID int64, maxMinedHeight uint64) ([]*Output, error) {
	rows, err := s.db.QueryContext(ctx, outputSelectColumns+`
		FROM outputs
		WHERE account_id = ? AND status = ? AND deleted_at IS NULL AND mined_height <= ?
		ORDER BY value DESC, id ASC`,
		accountID, OutputUnspent, maxMinedHeight)
	if err != nil {
		return nil, fmt.Errorf("store: list unspent outputs: %w", err)
	}
	defer rows.Close()
	return scanOutputRows(rows)
}

// ListOutputsLockedBy returns the (possibly already-unlocked-by-reorg)
// outputs locked under pendingTxID, for reorg recovery callers that are not
// already inside a transaction.
func (s *Store) ListOutputsLockedBy(ctx context.Context, pendingTxID string) ([]*Output, error) {
	rows, err := s.db.QueryContext(ctx, outputSelectColumns+`
		FROM outputs WHERE locked_by_request_id = ?`, pendingTxID)
	if err != nil {
		return nil, fmt.Errorf("store: list locked outputs: %w", err)
	}
	defer rows.Close()
	return scanOutputRows(rows)
}

// ListOutputsLockedBy is the transaction-scoped twin of Store's method of
// the same name, for callers (e.g. UnlockerTask.Sweep) that must read
// inside the same transaction doing the unlocking: with the single-writer
// connection pool this package uses, issuing that read against s.db while
// a Tx is open on the one available connection would block forever.
func (t *Tx) ListOutputsLockedBy(ctx context.Context, pendingTxID string) ([]*Output, error) {
	rows, err := t.tx.QueryContext(ctx, outputSelectColumns+`
		FROM outputs WHERE locked_by_request_id = ?`, pendingTxID)
	if err != nil {
		return nil, fmt.Errorf("store: list locked outputs: %w", err)
	}
	defer rows.Close()
	return scanOutputRows(rows)
}

func scanOutputRows(rows *sql.Rows) ([]*Output, error) {
	var out []*Output
	for rows.Next() {
		o := &Output{}
		var hash, blockHash []byte
		var confirmedHeight sql.NullInt64
		var lockedBy sql.NullString
		var lockedAt, deletedAt sql.NullTime
		var deletedHeight sql.NullInt64

		err := rows.Scan(&o.ID, &o.AccountID, &hash, &o.MinedHeight, &blockHash, &o.Value,
			&o.WalletOutputBlob, &o.MemoParsed, &o.MemoHex, &confirmedHeight, &o.Status,
			&lockedBy, &lockedAt, &deletedAt, &deletedHeight)
		if err != nil {
			return nil, fmt.Errorf("store: scan output row: %w", err)
		}
		copy(o.OutputHash[:], hash)
		copy(o.MinedBlockHash[:], blockHash)
		if confirmedHeight.Valid {
			v := uint64(confirmedHeight.Int64)
			o.ConfirmedHeight = &v
		}
		if lockedBy.Valid {
			o.LockedByRequestID = &lockedBy.String
		}
		if lockedAt.Valid {
			o.LockedAt = &lockedAt.Time
		}
		if deletedAt.Valid {
			o.DeletedAt = &deletedAt.Time
		}
		if deletedHeight.Valid {
			v := uint64(deletedHeight.Int64)
			o.DeletedInBlockHeight = &v
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// LockOutputs transitions the given output ids Unspent -> Locked under
// requestID, failing the whole call if any is not currently Unspent.
func (t *Tx) LockOutputs(ctx context.Context, ids []int64, requestID string, lockedAt time.Time) error {
	for _, id := range ids {
		res, err := t.tx.ExecContext(ctx, `
			UPDATE outputs SET status = ?, locked_by_request_id = ?, locked_at = ?
			WHERE id = ? AND status = ?`,
			OutputLocked, requestID, lockedAt, id, OutputUnspent)
		if err != nil {
			return fmt.Errorf("store: lock output %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrOutputNotLockable
		}
	}
	return nil
}

// UnlockOutputs transitions outputs Locked -> Unspent, clearing lock
// fields. Used on rejection, expiry, and reorg rollback.
func (t *Tx) UnlockOutputs(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := t.tx.ExecContext(ctx, `
			UPDATE outputs SET status = ?, locked_by_request_id = NULL, locked_at = NULL
			WHERE id = ? AND status = ?`,
			OutputUnspent, id, OutputLocked); err != nil {
			return fmt.Errorf("store: unlock output %d: %w", id, err)
		}
	}
	return nil
}

// MarkOutputsSpent transitions outputs to Spent status.
func (t *Tx) MarkOutputsSpent(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := t.tx.ExecContext(ctx, `UPDATE outputs SET status = ? WHERE id = ?`,
			OutputSpent, id); err != nil {
			return fmt.Errorf("store: mark output %d spent: %w", id, err)
		}
	}
	return nil
}

// PromoteConfirmedOutputs sets confirmed_height for every non-deleted
// output whose mined_height <= currentHeight-requiredConfirmations and
// which isn't confirmed yet, returning the promoted outputs (minotari spec
// §4.4 step 4).
func (t *Tx) PromoteConfirmedOutputs(ctx context.Context, accountID, currentHeight, requiredConfirmations uint64) ([]*Output, error) {
	if currentHeight < requiredConfirmations {
		return nil, nil
	}
	threshold := currentHeight - requiredConfirmations

	rows, err := t.tx.QueryContext(ctx, outputSelectColumns+`
		FROM outputs
		WHERE account_id = ? AND deleted_at IS NULL AND confirmed_height IS NULL
			AND mined_height <= ?`,
		accountID, threshold)
	if err != nil {
		return nil, fmt.Errorf("store: select confirmable outputs: %w", err)
	}
	promoted, err := scanOutputRows(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	for _, o := range promoted {
		confirmedHeight := o.MinedHeight + requiredConfirmations
		if _, err := t.tx.ExecContext(ctx, `UPDATE outputs SET confirmed_height = ? WHERE id = ?`,
			confirmedHeight, o.ID); err != nil {
			return nil, fmt.Errorf("store: promote output %d: %w", o.ID, err)
		}
		o.ConfirmedHeight = &confirmedHeight
	}
	return promoted, nil
}

// SoftDeleteOutputsFromHeight soft-deletes every non-deleted output with
// mined_height >= fromHeight and synthesizes a reversal BalanceChange for
// each one's original credit, per minotari spec §4.3 step d. It returns the
// affected outputs (pre-deletion state) for the caller to collect
// locked_by_request_id values.
func (t *Tx) SoftDeleteOutputsFromHeight(ctx context.Context, accountID int64, fromHeight uint64, deletedAtHeight uint64, now time.Time) ([]*Output, error) {
	rows, err := t.tx.QueryContext(ctx, outputSelectColumns+`
		FROM outputs WHERE account_id = ? AND mined_height >= ? AND deleted_at IS NULL`,
		accountID, fromHeight)
	if err != nil {
		return nil, fmt.Errorf("store: select outputs to roll back: %w", err)
	}
	affected, err := scanOutputRows(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	for _, o := range affected {
		if _, err := t.tx.ExecContext(ctx, `
			UPDATE outputs SET deleted_at = ?, deleted_in_block_height = ? WHERE id = ?`,
			now, deletedAtHeight, o.ID); err != nil {
			return nil, fmt.Errorf("store: soft-delete output %d: %w", o.ID, err)
		}

		if err := t.reverseCreditForOutput(ctx, o.ID, deletedAtHeight, now); err != nil {
			return nil, err
		}
	}
	return affected, nil
}

// reverseCreditForOutput synthesizes a reversal BalanceChange debiting the
// active credit originally recorded for outputID.
func (t *Tx) reverseCreditForOutput(ctx context.Context, outputID int64, effectiveHeight uint64, now time.Time) error {
	var changeID int64
	var credit uint64
	var accountID int64
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, account_id, balance_credit FROM balance_changes
		WHERE caused_by_output_id = ? AND is_reversal = 0 AND is_reversed = 0`, outputID)
	switch err := row.Scan(&changeID, &accountID, &credit); err {
	case sql.ErrNoRows:
		return nil
	case nil:
	default:
		return fmt.Errorf("store: find credit for output %d: %w", outputID, err)
	}

	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO balance_changes (account_id, caused_by_output_id, balance_credit,
			balance_debit, effective_height, effective_date, description, is_reversal,
			reversal_of_balance_change_id)
		VALUES (?, ?, 0, ?, ?, ?, ?, 1, ?)`,
		accountID, outputID, credit, effectiveHeight, now,
		"Reversal due to blockchain reorganization", changeID); err != nil {
		return fmt.Errorf("store: insert reversal for output %d: %w", outputID, err)
	}

	if _, err := t.tx.ExecContext(ctx, `UPDATE balance_changes SET is_reversed = 1 WHERE id = ?`, changeID); err != nil {
		return fmt.Errorf("store: mark reversed output %d: %w", outputID, err)
	}
	return nil
}

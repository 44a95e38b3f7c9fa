package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertInput records outputID as spent, idempotently per output_id among
// non-deleted rows. A previously soft-deleted row for the same output is
// resurrected (its deleted_at cleared) rather than duplicated, matching
// minotari spec §4.1's "soft-deleted rows can be un-deleted" contract.
func (t *Tx) InsertInput(ctx context.Context, in *Input) (id int64, newlyInserted bool, err error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, deleted_at FROM inputs WHERE output_id = ? ORDER BY id DESC LIMIT 1`,
		in.OutputID)

	var existingID int64
	var deletedAt sql.NullTime
	switch err := row.Scan(&existingID, &deletedAt); err {
	case sql.ErrNoRows:
		// fall through to insert
	case nil:
		if !deletedAt.Valid {
			return existingID, false, nil
		}
		if _, err := t.tx.ExecContext(ctx, `
			UPDATE inputs SET deleted_at = NULL, mined_in_block_height = ?,
				mined_in_block_hash = ?, mined_timestamp = ? WHERE id = ?`,
			in.MinedInBlockHeight, in.MinedInBlockHash[:], in.MinedTimestamp, existingID); err != nil {
			return 0, false, fmt.Errorf("store: resurrect input %d: %w", existingID, err)
		}
		return existingID, true, nil
	default:
		return 0, false, fmt.Errorf("store: lookup input: %w", err)
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO inputs (account_id, output_id, mined_in_block_height,
			mined_in_block_hash, mined_timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		in.AccountID, in.OutputID, in.MinedInBlockHeight, in.MinedInBlockHash[:], in.MinedTimestamp)
	if err != nil {
		return 0, false, fmt.Errorf("store: insert input: %w", err)
	}

	newID, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return newID, true, nil
}

const inputSelectColumns = `
	SELECT id, account_id, output_id, mined_in_block_height, mined_in_block_hash,
		mined_timestamp, deleted_at
	`

// GetInput fetches an input by id.
func (s *Store) GetInput(ctx context.Context, id int64) (*Input, error) {
	row := s.db.QueryRowContext(ctx, inputSelectColumns+`FROM inputs WHERE id = ?`, id)
	return scanInput(row)
}

func scanInput(row *sql.Row) (*Input, error) {
	in := &Input{}
	var blockHash []byte
	var deletedAt sql.NullTime

	err := row.Scan(&in.ID, &in.AccountID, &in.OutputID, &in.MinedInBlockHeight,
		&blockHash, &in.MinedTimestamp, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan input: %w", err)
	}
	copy(in.MinedInBlockHash[:], blockHash)
	if deletedAt.Valid {
		in.DeletedAt = &deletedAt.Time
	}
	return in, nil
}

// SoftDeleteInputsFromHeight soft-deletes every non-deleted input with
// mined_in_block_height >= fromHeight and synthesizes a reversal
// BalanceChange reversing its debit, per minotari spec §4.3 step d.
func (t *Tx) SoftDeleteInputsFromHeight(ctx context.Context, accountID int64, fromHeight uint64, now time.Time) ([]*Input, error) {
	rows, err := t.tx.QueryContext(ctx, inputSelectColumns+`
		FROM inputs WHERE account_id = ? AND mined_in_block_height >= ? AND deleted_at IS NULL`,
		accountID, fromHeight)
	if err != nil {
		return nil, fmt.Errorf("store: select inputs to roll back: %w", err)
	}

	var affected []*Input
	for rows.Next() {
		in := &Input{}
		var blockHash []byte
		var deletedAt sql.NullTime
		if err := rows.Scan(&in.ID, &in.AccountID, &in.OutputID, &in.MinedInBlockHeight,
			&blockHash, &in.MinedTimestamp, &deletedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan input row: %w", err)
		}
		copy(in.MinedInBlockHash[:], blockHash)
		affected = append(affected, in)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, in := range affected {
		if _, err := t.tx.ExecContext(ctx, `UPDATE inputs SET deleted_at = ? WHERE id = ?`,
			now, in.ID); err != nil {
			return nil, fmt.Errorf("store: soft-delete input %d: %w", in.ID, err)
		}
		if err := t.reverseDebitForInput(ctx, in.ID, in.OutputID, now); err != nil {
			return nil, err
		}
		// The spent output returns to circulation from the ledger's
		// perspective; its own row is soft-deleted separately by
		// SoftDeleteOutputsFromHeight when the output itself was
		// mined at or after the rollback height, otherwise it
		// reverts from Spent to Unspent.
		if _, err := t.tx.ExecContext(ctx, `
			UPDATE outputs SET status = ? WHERE id = ? AND status = ? AND deleted_at IS NULL`,
			OutputUnspent, in.OutputID, OutputSpent); err != nil {
			return nil, fmt.Errorf("store: revert output %d to unspent: %w", in.OutputID, err)
		}
	}
	return affected, nil
}

func (t *Tx) reverseDebitForInput(ctx context.Context, inputID, outputID int64, now time.Time) error {
	var changeID int64
	var debit uint64
	var accountID int64
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, account_id, balance_debit FROM balance_changes
		WHERE caused_by_input_id = ? AND is_reversal = 0 AND is_reversed = 0`, inputID)
	switch err := row.Scan(&changeID, &accountID, &debit); err {
	case sql.ErrNoRows:
		return nil
	case nil:
	default:
		return fmt.Errorf("store: find debit for input %d: %w", inputID, err)
	}

	var effectiveHeight uint64
	if err := t.tx.QueryRowContext(ctx, `SELECT mined_in_block_height FROM inputs WHERE id = ?`, inputID).
		Scan(&effectiveHeight); err != nil {
		return fmt.Errorf("store: height for input %d: %w", inputID, err)
	}

	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO balance_changes (account_id, caused_by_input_id, balance_credit,
			balance_debit, effective_height, effective_date, description, is_reversal,
			reversal_of_balance_change_id)
		VALUES (?, ?, ?, 0, ?, ?, ?, 1, ?)`,
		accountID, inputID, debit, effectiveHeight, now,
		"Reversal due to blockchain reorganization", changeID); err != nil {
		return fmt.Errorf("store: insert reversal for input %d: %w", inputID, err)
	}

	if _, err := t.tx.ExecContext(ctx, `UPDATE balance_changes SET is_reversed = 1 WHERE id = ?`, changeID); err != nil {
		return fmt.Errorf("store: mark reversed input %d: %w", inputID, err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertCreditForOutput records a credit BalanceChange caused by an output,
// used by the block processor for every newly-detected output.
func (t *Tx) InsertCreditForOutput(ctx context.Context, bc *BalanceChange) (int64, error) {
	if bc.CausedByOutputID == nil || bc.BalanceCredit == 0 || bc.BalanceDebit != 0 {
		return 0, ErrInvalidBalanceChange
	}
	return t.insertBalanceChange(ctx, bc)
}

// InsertDebitForInput records a debit BalanceChange caused by an input,
// used by the block processor for every newly-detected spend.
func (t *Tx) InsertDebitForInput(ctx context.Context, bc *BalanceChange) (int64, error) {
	if bc.CausedByInputID == nil || bc.BalanceDebit == 0 || bc.BalanceCredit != 0 {
		return 0, ErrInvalidBalanceChange
	}
	return t.insertBalanceChange(ctx, bc)
}

func (t *Tx) insertBalanceChange(ctx context.Context, bc *BalanceChange) (int64, error) {
	var outputID, inputID interface{}
	if bc.CausedByOutputID != nil {
		outputID = *bc.CausedByOutputID
	}
	if bc.CausedByInputID != nil {
		inputID = *bc.CausedByInputID
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO balance_changes (account_id, caused_by_output_id, caused_by_input_id,
			balance_credit, balance_debit, effective_height, effective_date, description,
			claimed_recipient, claimed_sender, claimed_fee, claimed_amount, claimed_memo,
			is_reversal, is_reversed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0)`,
		bc.AccountID, outputID, inputID, bc.BalanceCredit, bc.BalanceDebit,
		bc.EffectiveHeight, bc.EffectiveDate, bc.Description, bc.ClaimedRecipient,
		bc.ClaimedSender, bc.ClaimedFee, bc.ClaimedAmount, bc.ClaimedMemo)
	if err != nil {
		return 0, fmt.Errorf("store: insert balance change: %w", err)
	}
	return res.LastInsertId()
}

const balanceChangeSelectColumns = `
	SELECT id, account_id, caused_by_output_id, caused_by_input_id, balance_credit,
		balance_debit, effective_height, effective_date, description, claimed_recipient,
		claimed_sender, claimed_fee, claimed_amount, claimed_memo, is_reversal,
		reversal_of_balance_change_id, is_reversed
	`

func scanBalanceChangeRows(rows *sql.Rows) ([]*BalanceChange, error) {
	var out []*BalanceChange
	for rows.Next() {
		bc := &BalanceChange{}
		var outputID, inputID, reversalOf sql.NullInt64

		err := rows.Scan(&bc.ID, &bc.AccountID, &outputID, &inputID, &bc.BalanceCredit,
			&bc.BalanceDebit, &bc.EffectiveHeight, &bc.EffectiveDate, &bc.Description,
			&bc.ClaimedRecipient, &bc.ClaimedSender, &bc.ClaimedFee, &bc.ClaimedAmount,
			&bc.ClaimedMemo, &bc.IsReversal, &reversalOf, &bc.IsReversed)
		if err != nil {
			return nil, fmt.Errorf("store: scan balance change: %w", err)
		}
		if outputID.Valid {
			v := outputID.Int64
			bc.CausedByOutputID = &v
		}
		if inputID.Valid {
			v := inputID.Int64
			bc.CausedByInputID = &v
		}
		if reversalOf.Valid {
			v := reversalOf.Int64
			bc.ReversalOfBalanceChange = &v
		}
		out = append(out, bc)
	}
	return out, rows.Err()
}

// ListAllBalanceChanges returns every balance change for an account,
// including reversals and reversed rows, for audit reads (minotari spec §9).
func (s *Store) ListAllBalanceChanges(ctx context.Context, accountID int64) ([]*BalanceChange, error) {
	rows, err := s.db.QueryContext(ctx, balanceChangeSelectColumns+`
		FROM balance_changes WHERE account_id = ? ORDER BY effective_height, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("store: list balance changes: %w", err)
	}
	defer rows.Close()
	return scanBalanceChangeRows(rows)
}

// ListActiveBalanceChanges returns non-reversed, non-reversal balance
// changes, the set that drives current state (minotari spec §9).
func (s *Store) ListActiveBalanceChanges(ctx context.Context, accountID int64) ([]*BalanceChange, error) {
	rows, err := s.db.QueryContext(ctx, balanceChangeSelectColumns+`
		FROM balance_changes
		WHERE account_id = ? AND is_reversed = 0 AND is_reversal = 0
		ORDER BY effective_height, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("store: list active balance changes: %w", err)
	}
	defer rows.Close()
	return scanBalanceChangeRows(rows)
}

// ListBalanceChangesByOutput returns every balance change caused by outputID.
func (s *Store) ListBalanceChangesByOutput(ctx context.Context, outputID int64) ([]*BalanceChange, error) {
	rows, err := s.db.QueryContext(ctx, balanceChangeSelectColumns+`
		FROM balance_changes WHERE caused_by_output_id = ? ORDER BY id`, outputID)
	if err != nil {
		return nil, fmt.Errorf("store: list balance changes by output: %w", err)
	}
	defer rows.Close()
	return scanBalanceChangeRows(rows)
}

// ListBalanceChangesByInput returns every balance change caused by inputID.
func (s *Store) ListBalanceChangesByInput(ctx context.Context, inputID int64) ([]*BalanceChange, error) {
	rows, err := s.db.QueryContext(ctx, balanceChangeSelectColumns+`
		FROM balance_changes WHERE caused_by_input_id = ? ORDER BY id`, inputID)
	if err != nil {
		return nil, fmt.Errorf("store: list balance changes by input: %w", err)
	}
	defer rows.Close()
	return scanBalanceChangeRows(rows)
}

// CurrentBalance computes sum(credit) - sum(debit) over active (non-reversed,
// non-reversal) balance changes, the invariant checked in minotari spec §8.
func (s *Store) CurrentBalance(ctx context.Context, accountID int64) (int64, error) {
	var credit, debit sql.NullInt64
	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(balance_credit), 0), COALESCE(SUM(balance_debit), 0)
		FROM balance_changes WHERE account_id = ? AND is_reversed = 0 AND is_reversal = 0`,
		accountID)
	if err := row.Scan(&credit, &debit); err != nil {
		return 0, fmt.Errorf("store: current balance: %w", err)
	}
	return credit.Int64 - debit.Int64, nil
}

// BalanceSummary is the spendable/in-flight breakdown webhook payloads carry
// (minotari spec §6).
type BalanceSummary struct {
	Available        int64
	PendingIncoming  int64
	PendingOutgoing  int64
}

// AccountBalanceSummary splits CurrentBalance into spendable value (confirmed,
// unlocked, unspent outputs), value still awaiting confirmation, and value
// committed to outbound transactions that haven't reached a terminal state.
func (s *Store) AccountBalanceSummary(ctx context.Context, accountID int64) (*BalanceSummary, error) {
	var available, pendingIncoming sql.NullInt64
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = ? AND confirmed_height IS NOT NULL THEN value ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN confirmed_height IS NULL THEN value ELSE 0 END), 0)
		FROM outputs WHERE account_id = ? AND deleted_at IS NULL`,
		OutputUnspent, accountID)
	if err := row.Scan(&available, &pendingIncoming); err != nil {
		return nil, fmt.Errorf("store: account balance summary: %w", err)
	}

	var pendingOutgoing sql.NullInt64
	row = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(p.total_value), 0)
		FROM completed_transactions c
		JOIN pending_transactions p ON p.id = c.pending_tx_id
		WHERE c.account_id = ? AND c.status IN (?, ?, ?)`,
		accountID, CompletedStatusCompleted, CompletedStatusBroadcast, CompletedStatusMinedUnconfirmed)
	if err := row.Scan(&pendingOutgoing); err != nil {
		return nil, fmt.Errorf("store: account balance summary: pending outgoing: %w", err)
	}

	return &BalanceSummary{
		Available:       available.Int64,
		PendingIncoming: pendingIncoming.Int64,
		PendingOutgoing: pendingOutgoing.Int64,
	}, nil
}

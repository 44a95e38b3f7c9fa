package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertScannedTipBlock records height/hash as scanned, idempotently per
// (account_id, height) (minotari spec §8 rescan idempotence).
func (t *Tx) InsertScannedTipBlock(ctx context.Context, accountID int64, height uint64, hash [32]byte) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO scanned_tip_blocks (account_id, height, hash) VALUES (?, ?, ?)
		ON CONFLICT(account_id, height) DO UPDATE SET hash = excluded.hash`,
		accountID, height, hash[:])
	if err != nil {
		return fmt.Errorf("store: insert scanned tip: %w", err)
	}
	return nil
}

// ListScannedTipsDescending returns scanned tip blocks for accountID newest
// first, the order ReorgResolver walks when looking for the fork point.
func (s *Store) ListScannedTipsDescending(ctx context.Context, accountID int64, limit int) ([]*ScannedTipBlock, error) {
	if limit <= 0 {
		// SQLite treats a negative LIMIT as unbounded; 0 would otherwise
		// return no rows, which callers that pass 0 for "all" don't expect.
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, height, hash FROM scanned_tip_blocks
		WHERE account_id = ? ORDER BY height DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list scanned tips: %w", err)
	}
	defer rows.Close()

	var out []*ScannedTipBlock
	for rows.Next() {
		tb := &ScannedTipBlock{}
		var hash []byte
		if err := rows.Scan(&tb.ID, &tb.AccountID, &tb.Height, &hash); err != nil {
			return nil, fmt.Errorf("store: scan tip row: %w", err)
		}
		copy(tb.Hash[:], hash)
		out = append(out, tb)
	}
	return out, rows.Err()
}

// DeleteScannedTipsFromHeight deletes every scanned tip at height >=
// fromHeight, returning the deleted rows for event emission (minotari spec
// §4.3 step a).
func (t *Tx) DeleteScannedTipsFromHeight(ctx context.Context, accountID int64, fromHeight uint64) ([]*ScannedTipBlock, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, account_id, height, hash FROM scanned_tip_blocks
		WHERE account_id = ? AND height >= ?`, accountID, fromHeight)
	if err != nil {
		return nil, fmt.Errorf("store: select tips to roll back: %w", err)
	}

	var out []*ScannedTipBlock
	for rows.Next() {
		tb := &ScannedTipBlock{}
		var hash []byte
		if err := rows.Scan(&tb.ID, &tb.AccountID, &tb.Height, &hash); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan tip row: %w", err)
		}
		copy(tb.Hash[:], hash)
		out = append(out, tb)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := t.tx.ExecContext(ctx, `
		DELETE FROM scanned_tip_blocks WHERE account_id = ? AND height >= ?`,
		accountID, fromHeight); err != nil {
		return nil, fmt.Errorf("store: delete rolled-back tips: %w", err)
	}
	return out, nil
}

// PruneScannedTips keeps only the last keepLast rows plus every Mth block
// below that threshold, per minotari spec §3's "pruned to the last N plus
// every Mth block below that" retention policy.
func (t *Tx) PruneScannedTips(ctx context.Context, accountID int64, keepLast int, everyMth uint64) error {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT height FROM scanned_tip_blocks WHERE account_id = ? ORDER BY height DESC`,
		accountID)
	if err != nil {
		return fmt.Errorf("store: list tips for pruning: %w", err)
	}

	var heights []uint64
	for rows.Next() {
		var h uint64
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return fmt.Errorf("store: scan tip height: %w", err)
		}
		heights = append(heights, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if len(heights) <= keepLast {
		return nil
	}

	var toDelete []uint64
	for i, h := range heights[keepLast:] {
		idx := keepLast + i
		_ = idx
		if everyMth == 0 || h%everyMth != 0 {
			toDelete = append(toDelete, h)
		}
	}

	for _, h := range toDelete {
		if _, err := t.tx.ExecContext(ctx, `
			DELETE FROM scanned_tip_blocks WHERE account_id = ? AND height = ?`,
			accountID, h); err != nil {
			return fmt.Errorf("store: prune tip %d: %w", h, err)
		}
	}
	return nil
}

// GetScannedTipAtHeight fetches the scanned tip at an exact height, if any.
func (s *Store) GetScannedTipAtHeight(ctx context.Context, accountID int64, height uint64) (*ScannedTipBlock, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, height, hash FROM scanned_tip_blocks
		WHERE account_id = ? AND height = ?`, accountID, height)

	tb := &ScannedTipBlock{}
	var hash []byte
	err := row.Scan(&tb.ID, &tb.AccountID, &tb.Height, &hash)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get scanned tip: %w", err)
	}
	copy(tb.Hash[:], hash)
	return tb, nil
}

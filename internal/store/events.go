package store

import (
	"context"
	"fmt"
	"time"
)

// InsertWalletEvent persists an immutable audit entry for one observable
// state change inside t (minotari spec §9 "event fan-out" redesign).
// events.Recorder calls it from its own transaction after the event is
// published, not from the transaction that caused the change.
func (t *Tx) InsertWalletEvent(ctx context.Context, accountID int64, eventType string, payload []byte) (*WalletEvent, error) {
	now := time.Now().UTC()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO wallet_events (account_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?)`, accountID, eventType, payload, now)
	if err != nil {
		return nil, fmt.Errorf("store: insert wallet event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &WalletEvent{ID: id, AccountID: accountID, EventType: eventType, Payload: payload, CreatedAt: now}, nil
}

// ListWalletEventsSince returns events with id > afterID, in commit order,
// for consumers that want to resume a feed.
func (s *Store) ListWalletEventsSince(ctx context.Context, accountID int64, afterID int64, limit int) ([]*WalletEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, event_type, payload, created_at FROM wallet_events
		WHERE account_id = ? AND id > ? ORDER BY id LIMIT ?`, accountID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list wallet events: %w", err)
	}
	defer rows.Close()

	var out []*WalletEvent
	for rows.Next() {
		e := &WalletEvent{}
		if err := rows.Scan(&e.ID, &e.AccountID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan wallet event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

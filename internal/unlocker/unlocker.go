// Package unlocker runs the periodic sweep that expires stale fund
// reservations and restores their outputs to spendable (minotari spec
// §4.8).
package unlocker

import (
	"context"
	"fmt"
	"time"

	"github.com/decred/slog"

	"github.com/decred/minotari/internal/store"
)

var log = slog.Disabled

// UseLogger sets the package-wide logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// DefaultInterval is the sweep cadence minotari spec §4.8 specifies.
const DefaultInterval = 60 * time.Second

// Task periodically expires PendingTransactions past their expires_at and
// restores the outputs they had reserved.
type Task struct {
	store    *store.Store
	interval time.Duration
}

// New constructs a Task using the default 60-second interval.
func New(st *store.Store) *Task {
	return &Task{store: st, interval: DefaultInterval}
}

// Run loops until ctx is cancelled, running one Sweep per tick and exiting
// cleanly between cycles on cancellation.
func (t *Task) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infof("unlocker: shutting down")
			return
		case <-ticker.C:
			if err := t.Sweep(ctx); err != nil {
				log.Errorf("unlocker: sweep: %v", err)
			}
		}
	}
}

// Sweep runs one expiration pass across every account in a single
// transaction.
func (t *Task) Sweep(ctx context.Context) error {
	tx, err := t.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	expired, err := tx.ListExpiredPendingTransactions(ctx, now)
	if err != nil {
		return fmt.Errorf("unlocker: list expired: %w", err)
	}

	for _, p := range expired {
		if err := tx.UpdatePendingTransactionStatus(ctx, p.ID, store.PendingStatusExpired); err != nil {
			return fmt.Errorf("unlocker: expire %s: %w", p.ID, err)
		}

		outputs, err := tx.ListOutputsLockedBy(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("unlocker: list locked outputs for %s: %w", p.ID, err)
		}
		if len(outputs) == 0 {
			continue
		}
		ids := make([]int64, len(outputs))
		for i, o := range outputs {
			ids[i] = o.ID
		}
		if err := tx.UnlockOutputs(ctx, ids); err != nil {
			return fmt.Errorf("unlocker: unlock outputs for %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("unlocker: commit: %w", err)
	}
	if len(expired) > 0 {
		log.Infof("unlocker: expired %d pending transactions", len(expired))
	}
	return nil
}

// Package reorg implements fork-point detection against the remote node's
// header chain and the cascading rollback of outputs, inputs, pending and
// completed transactions, and displayed transactions that a reorg
// invalidates.
package reorg

import (
	"context"
	"fmt"
	"time"

	"github.com/decred/slog"

	"github.com/decred/minotari/internal/events"
	"github.com/decred/minotari/internal/store"
	"github.com/decred/minotari/internal/walletrpc"
)

var log = slog.Disabled

// UseLogger sets the package-wide logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// HeaderSource fetches a block header by height, satisfied by a
// walletrpc.Scanner.
type HeaderSource interface {
	GetHeaderByHeight(ctx context.Context, height uint64) (*walletrpc.BlockHeader, error)
}

// Information describes the blast radius of a detected reorg.
type Information struct {
	RolledBackFromHeight         uint64
	RolledBackBlocksCount        uint64
	InvalidatedOutputHashes      [][32]byte
	CancelledTransactionIDs      []string
	ReorganizedDisplayedTxIDs    [][8]byte
}

// Result is the outcome of resolving one account's tip chain.
type Result struct {
	ResumeHeight uint64
	Info         *Information
}

// Resolver compares an account's locally stored scanned-tip chain against
// the remote node's header chain, finds the fork point, and performs the
// rollback transaction (minotari spec §4.3).
type Resolver struct {
	store   *store.Store
	headers HeaderSource
	bus     *events.Bus
}

// New constructs a Resolver.
func New(st *store.Store, headers HeaderSource, bus *events.Bus) *Resolver {
	return &Resolver{store: st, headers: headers, bus: bus}
}

// Resolve walks the account's locally stored tip chain newest-to-oldest,
// compares each against the remote header at that height, and — if any
// local tip has been superseded — performs the full rollback transaction.
func (r *Resolver) Resolve(ctx context.Context, accountID int64) (*Result, error) {
	tips, err := r.store.ListScannedTipsDescending(ctx, accountID, 0)
	if err != nil {
		return nil, fmt.Errorf("reorg: list scanned tips: %w", err)
	}
	if len(tips) == 0 {
		return &Result{ResumeHeight: 0}, nil
	}

	resumeHeight := uint64(0)
	forkFound := false
	reorgedFromHeight := tips[0].Height + 1

	for _, tip := range tips {
		hdr, err := r.headers.GetHeaderByHeight(ctx, tip.Height)
		if err != nil {
			return nil, fmt.Errorf("reorg: get header at height %d: %w", tip.Height, err)
		}
		if hdr != nil && hdr.Hash == tip.Hash {
			resumeHeight = tip.Height + 1
			forkFound = true
			break
		}
		reorgedFromHeight = tip.Height
	}
	if !forkFound {
		// every local tip was superseded: resume from height 0, a full
		// rescan (minotari spec §4.3 step 3). No birthday-based height is
		// derived here; callers resume from the returned 0 as is.
		resumeHeight = 0
	}

	if resumeHeight == tips[0].Height+1 {
		// fork point is the newest local tip: nothing to roll back.
		return &Result{ResumeHeight: resumeHeight}, nil
	}

	info, err := r.rollback(ctx, accountID, resumeHeight, reorgedFromHeight)
	if err != nil {
		return nil, err
	}
	return &Result{ResumeHeight: resumeHeight, Info: info}, nil
}

func (r *Resolver) rollback(ctx context.Context, accountID int64, resumeHeight, rolledBackFromHeight uint64) (*Information, error) {
	info := &Information{RolledBackFromHeight: rolledBackFromHeight}

	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("reorg: begin tx: %w", err)
	}
	defer tx.Rollback()

	// a. delete scanned tips from resumeHeight, emitting BlockRolledBack.
	deletedTips, err := tx.DeleteScannedTipsFromHeight(ctx, accountID, resumeHeight)
	if err != nil {
		return nil, fmt.Errorf("reorg: delete scanned tips: %w", err)
	}
	info.RolledBackBlocksCount = uint64(len(deletedTips))
	for _, t := range deletedTips {
		r.publish(accountID, events.TypeBlockRolledBack, events.BlockRolledBack{
			Height: t.Height, BlockHash: t.Hash,
		})
	}

	// b. find outputs at mined_height >= resumeHeight, collect their
	// locked_by_request_id set before they are soft-deleted.
	affectedOutputs, err := tx.SoftDeleteOutputsFromHeight(ctx, accountID, resumeHeight, resumeHeight, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("reorg: soft-delete outputs: %w", err)
	}

	pendingTxIDs := map[string]struct{}{}
	for _, o := range affectedOutputs {
		info.InvalidatedOutputHashes = append(info.InvalidatedOutputHashes, o.OutputHash)
		if o.LockedByRequestID != nil {
			pendingTxIDs[*o.LockedByRequestID] = struct{}{}
		}
		r.publish(accountID, events.TypeOutputRolledBack, events.OutputRolledBack{
			Hash:                o.OutputHash,
			OriginalBlockHeight: o.MinedHeight,
			RolledBackAtHeight:  resumeHeight,
		})
	}

	// c. cancel every PendingTransaction whose reservation touched a
	// rolled-back output.
	var cancelIDs []string
	for id := range pendingTxIDs {
		cancelIDs = append(cancelIDs, id)
	}
	if len(cancelIDs) > 0 {
		if err := tx.CancelPendingTransactionsAt(ctx, cancelIDs); err != nil {
			return nil, fmt.Errorf("reorg: cancel pending transactions: %w", err)
		}
		for _, id := range cancelIDs {
			info.CancelledTransactionIDs = append(info.CancelledTransactionIDs, id)
			r.publish(accountID, events.TypePendingTransactionCancelled, events.PendingTransactionCancelled{
				TxID: id, Reason: "reorg",
			})
		}
	}

	// d. soft-delete matching inputs; the store synthesizes reversal
	// balance changes for both outputs and inputs.
	if _, err := tx.SoftDeleteInputsFromHeight(ctx, accountID, resumeHeight, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("reorg: soft-delete inputs: %w", err)
	}

	// e. mark displayed transactions at block_height >= resumeHeight as
	// Reorganized.
	reorganized, err := tx.MarkDisplayedTransactionsReorganized(ctx, accountID, resumeHeight)
	if err != nil {
		return nil, fmt.Errorf("reorg: mark displayed tx reorganized: %w", err)
	}
	for _, d := range reorganized {
		info.ReorganizedDisplayedTxIDs = append(info.ReorganizedDisplayedTxIDs, d.ID)
	}

	// f. reset completed transactions mined at or above resumeHeight back
	// to Completed.
	mined, err := tx.ListCompletedTransactionsMinedFromHeight(ctx, accountID, resumeHeight)
	if err != nil {
		return nil, fmt.Errorf("reorg: list mined completed tx: %w", err)
	}
	for _, c := range mined {
		if err := tx.ResetCompletedTransactionForReorg(ctx, c.ID); err != nil {
			return nil, fmt.Errorf("reorg: reset completed tx %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("reorg: commit rollback: %w", err)
	}

	log.Infof("reorg: account %d rolled back %d blocks, resume_height=%d, invalidated %d outputs, cancelled %d pending tx",
		accountID, info.RolledBackBlocksCount, resumeHeight, len(info.InvalidatedOutputHashes), len(info.CancelledTransactionIDs))

	if r.bus != nil {
		r.bus.Publish(events.Event{
			AccountID: accountID,
			Type:      events.TypeReorgDetected,
			Data: events.ReorgDetected{
				ResumeHeight:            resumeHeight,
				RolledBackFromHeight:    info.RolledBackFromHeight,
				RolledBackBlocksCount:   info.RolledBackBlocksCount,
				InvalidatedOutputHashes: info.InvalidatedOutputHashes,
				CancelledTransactionIDs: info.CancelledTransactionIDs,
			},
			CreatedAt: time.Now().UTC(),
		})
	}

	return info, nil
}

func (r *Resolver) publish(accountID int64, typ events.Type, data interface{}) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.Event{AccountID: accountID, Type: typ, Data: data, CreatedAt: time.Now().UTC()})
}

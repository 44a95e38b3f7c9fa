// Package txmonitor drives the outbound-transaction state machine:
// broadcast confirmation via kernel query, confirmation counting, and
// rejection handling, plus keeping received-transaction confirmation
// counts current.
package txmonitor

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/decred/slog"

	"github.com/decred/minotari/internal/events"
	"github.com/decred/minotari/internal/nodeclient"
	"github.com/decred/minotari/internal/store"
)

var log = slog.Disabled

// UseLogger sets the package-wide logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// Monitor owns one account's outbound state machine plus its
// has_pending_outbound flag (minotari spec §3 "Ownership").
type Monitor struct {
	store                 *store.Store
	node                  *nodeclient.Client
	bus                   *events.Bus
	accountID              int64
	requiredConfirmations  uint64
	maxBroadcastAttempts   int

	hasPendingOutbound int32 // atomic bool
}

// New constructs a Monitor for one account.
func New(st *store.Store, node *nodeclient.Client, bus *events.Bus, accountID int64, requiredConfirmations uint64, maxBroadcastAttempts int) *Monitor {
	return &Monitor{
		store: st, node: node, bus: bus, accountID: accountID,
		requiredConfirmations: requiredConfirmations, maxBroadcastAttempts: maxBroadcastAttempts,
	}
}

// HasPendingOutbound reports whether the last Poll found any outbound
// transaction of this account in Broadcast or MinedUnconfirmed status.
// BlockProcessor receives this flag but does not act on it (minotari spec
// §4.4).
func (m *Monitor) HasPendingOutbound() bool {
	return atomic.LoadInt32(&m.hasPendingOutbound) != 0
}

func (m *Monitor) setHasPendingOutbound(v bool) {
	if v {
		atomic.StoreInt32(&m.hasPendingOutbound, 1)
	} else {
		atomic.StoreInt32(&m.hasPendingOutbound, 0)
	}
}

// Poll runs one reconciliation pass over every active CompletedTransaction
// for this account, plus the secondary duty of recomputing confirmations
// on pending/unconfirmed DisplayedTransactions. tipHeight is the
// currently-scanned chain tip.
func (m *Monitor) Poll(ctx context.Context, tipHeight uint64) error {
	active, err := m.store.ListActiveCompletedTransactions(ctx, m.accountID)
	if err != nil {
		return fmt.Errorf("txmonitor: list active completed tx: %w", err)
	}

	anyPending := false
	for _, c := range active {
		if err := m.reconcileOne(ctx, c, tipHeight); err != nil {
			log.Errorf("txmonitor: reconcile %s: %v", c.ID, err)
			continue
		}
		switch c.Status {
		case store.CompletedStatusBroadcast, store.CompletedStatusMinedUnconfirmed:
			anyPending = true
		}
	}
	m.setHasPendingOutbound(anyPending)

	return m.reconcileDisplayedConfirmations(ctx, tipHeight)
}

func (m *Monitor) reconcileOne(ctx context.Context, c *store.CompletedTransaction, tipHeight uint64) error {
	switch c.Status {
	case store.CompletedStatusCompleted:
		return m.tryBroadcast(ctx, c)
	case store.CompletedStatusBroadcast:
		return m.tryLocateOnChain(ctx, c, tipHeight)
	case store.CompletedStatusMinedUnconfirmed:
		return m.tryConfirm(ctx, c, tipHeight)
	}
	return nil
}

func (m *Monitor) tryBroadcast(ctx context.Context, c *store.CompletedTransaction) error {
	result, err := m.node.SubmitTransaction(ctx, c.SerializedTransaction)
	if err != nil {
		// transient network/5xx: bump attempts, retry next cycle.
		return m.bumpAttemptOrReject(ctx, c, fmt.Sprintf("submit error: %v", err))
	}

	if result.Accepted || result.RejectionReason == nodeclient.RejectionAlreadyMined {
		return m.markBroadcast(ctx, c)
	}

	// any other rejection is permanent.
	return m.reject(ctx, c, string(result.RejectionReason))
}

func (m *Monitor) bumpAttemptOrReject(ctx context.Context, c *store.CompletedTransaction, reason string) error {
	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	n, err := tx.IncrementBroadcastAttempts(ctx, c.ID)
	if err != nil {
		return err
	}
	if n >= m.maxBroadcastAttempts {
		if err := tx.UpdateCompletedTransactionStatus(ctx, c.ID, store.CompletedStatusRejected, reason); err != nil {
			return err
		}
		if err := m.unlockPendingOutputs(ctx, tx, c); err != nil {
			return err
		}
		if err := m.markSentDisplayedTxRejected(ctx, tx, c); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		m.publish(events.TypeTransactionRejected, events.TransactionRejected{TxID: c.ID, Reason: reason})
		return nil
	}
	return tx.Commit()
}

func (m *Monitor) markBroadcast(ctx context.Context, c *store.CompletedTransaction) error {
	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.IncrementBroadcastAttempts(ctx, c.ID); err != nil {
		return err
	}
	if err := tx.UpdateCompletedTransactionStatus(ctx, c.ID, store.CompletedStatusBroadcast, ""); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	m.publish(events.TypeTransactionBroadcast, events.TransactionBroadcast{TxID: c.ID, KernelExcess: c.KernelExcess})
	return nil
}

func (m *Monitor) reject(ctx context.Context, c *store.CompletedTransaction, reason string) error {
	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.UpdateCompletedTransactionStatus(ctx, c.ID, store.CompletedStatusRejected, reason); err != nil {
		return err
	}
	if err := m.unlockPendingOutputs(ctx, tx, c); err != nil {
		return err
	}
	if err := m.markSentDisplayedTxRejected(ctx, tx, c); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	m.publish(events.TypeTransactionRejected, events.TransactionRejected{TxID: c.ID, Reason: reason})
	return nil
}

// markSentDisplayedTxRejected looks up the DisplayedTransaction built from
// this CompletedTransaction's sent (change) output, if one was created,
// and marks it Rejected. Absent a sent output (e.g. rejection occurred
// before a change output was ever attributed), there is nothing to mark.
func (m *Monitor) markSentDisplayedTxRejected(ctx context.Context, tx *store.Tx, c *store.CompletedTransaction) error {
	if c.SentOutputHash == nil {
		return nil
	}
	out, err := tx.GetOutputByHash(ctx, m.accountID, *c.SentOutputHash)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	d, err := tx.FindDisplayedTransactionByOutputHash(ctx, m.accountID, out.ID)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	return tx.MarkDisplayedTransactionRejected(ctx, d.ID)
}

func (m *Monitor) unlockPendingOutputs(ctx context.Context, tx *store.Tx, c *store.CompletedTransaction) error {
	outputs, err := tx.ListOutputsLockedBy(ctx, c.PendingTxID)
	if err != nil {
		return err
	}
	if len(outputs) == 0 {
		return nil
	}
	ids := make([]int64, len(outputs))
	for i, o := range outputs {
		ids[i] = o.ID
	}
	return tx.UnlockOutputs(ctx, ids)
}

func (m *Monitor) tryLocateOnChain(ctx context.Context, c *store.CompletedTransaction, tipHeight uint64) error {
	nonce, sig := splitKernelExcess(c.KernelExcess)
	result, err := m.node.QueryKernel(ctx, nonce, sig)
	if err != nil {
		return fmt.Errorf("query kernel: %w", err)
	}
	if result.Location != nodeclient.LocationMined || result.MinedHeight == nil {
		return nil
	}

	var blockHash [32]byte
	if result.MinedHeaderHash != nil {
		if raw, err := hex.DecodeString(*result.MinedHeaderHash); err == nil {
			copy(blockHash[:], raw)
		}
	}

	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.RecordMined(ctx, c.ID, *result.MinedHeight, blockHash); err != nil {
		return err
	}
	if err := tx.UpdateCompletedTransactionStatus(ctx, c.ID, store.CompletedStatusMinedUnconfirmed, ""); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	confirmations := uint64(0)
	if tipHeight >= *result.MinedHeight {
		confirmations = tipHeight - *result.MinedHeight
	}
	m.publish(events.TypeTransactionUnconfirmed, events.TransactionUnconfirmed{
		TxID: c.ID, MinedHeight: *result.MinedHeight, Confirmations: confirmations,
	})
	return nil
}

func (m *Monitor) tryConfirm(ctx context.Context, c *store.CompletedTransaction, tipHeight uint64) error {
	if c.MinedHeight == nil || tipHeight < *c.MinedHeight+m.requiredConfirmations {
		return nil
	}

	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	confirmationHeight := *c.MinedHeight + m.requiredConfirmations
	if err := tx.RecordConfirmed(ctx, c.ID, confirmationHeight); err != nil {
		return err
	}
	if err := tx.UpdateCompletedTransactionStatus(ctx, c.ID, store.CompletedStatusMinedConfirmed, ""); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	m.publish(events.TypeTransactionConfirmed, events.TransactionConfirmed{
		TxID: c.ID, MinedHeight: *c.MinedHeight, ConfirmationHeight: confirmationHeight,
	})
	return nil
}

// reconcileDisplayedConfirmations is the monitor's secondary duty: keeping
// every Pending/Unconfirmed DisplayedTransaction's confirmation count and
// status current as the tip advances (minotari spec §4.6).
func (m *Monitor) reconcileDisplayedConfirmations(ctx context.Context, tipHeight uint64) error {
	candidates, err := m.store.ListDisplayedTransactionsForReconciliation(ctx, m.accountID)
	if err != nil {
		return fmt.Errorf("txmonitor: list displayed tx for reconciliation: %w", err)
	}

	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, d := range candidates {
		confirmations := uint64(0)
		if tipHeight >= d.Blockchain.Height {
			confirmations = tipHeight - d.Blockchain.Height
		}
		d.Blockchain.Confirmations = confirmations
		if confirmations >= m.requiredConfirmations {
			d.Status = store.TxStatusConfirmed
		} else {
			d.Status = store.TxStatusUnconfirmed
		}
		if err := tx.UpsertDisplayedTransaction(ctx, d); err != nil {
			return fmt.Errorf("txmonitor: update displayed tx %x: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

func (m *Monitor) publish(typ events.Type, data interface{}) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.Event{AccountID: m.accountID, Type: typ, Data: data, CreatedAt: time.Now().UTC()})
}

// splitKernelExcess splits a stored kernel_excess blob into the
// excess_sig_nonce and excess_sig halves the node's kernel-query endpoint
// expects (minotari spec §4.6, §6).
func splitKernelExcess(kernelExcess []byte) (nonce, sig []byte) {
	if len(kernelExcess) < 64 {
		return kernelExcess, nil
	}
	return kernelExcess[:32], kernelExcess[32:64]
}


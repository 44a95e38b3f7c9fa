// Package txbuilder assembles unsigned transaction requests from a
// FundLocker reservation and, once signed externally, finalizes and
// broadcasts the result (minotari spec §4.7).
package txbuilder

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/decred/slog"

	"github.com/decred/minotari/internal/events"
	"github.com/decred/minotari/internal/fundlock"
	"github.com/decred/minotari/internal/nodeclient"
	"github.com/decred/minotari/internal/store"
	"github.com/decred/minotari/internal/walletrpc"
)

var log = slog.Disabled

// UseLogger sets the package-wide logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// Recipient is one payment destination requested by the caller.
type Recipient struct {
	Amount  uint64
	Address string
	Memo    []byte
}

// Builder works on either side of the external Signer without calling it:
// it assembles an UnsignedTransactionRequest from locked funds and
// recipients, and, once the caller has the signed result, records and
// submits it.
type Builder struct {
	store *store.Store
	node  *nodeclient.Client
	bus   *events.Bus
}

// New constructs a Builder.
func New(st *store.Store, node *nodeclient.Client, bus *events.Bus) *Builder {
	return &Builder{store: st, node: node, bus: bus}
}

// PrepareUnsigned assembles the signer's UnsignedTransactionRequest from a
// FundLocker reservation and the caller's recipients, plus an optional
// change output sized to return the excess to the account (minotari spec
// §4.7 "TransactionBuilder.prepare_unsigned").
func (b *Builder) PrepareUnsigned(locked *fundlock.LockResult, recipients []Recipient, feePerGram uint64) (*walletrpc.UnsignedTransactionRequest, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("txbuilder: no recipients")
	}

	inputs := make([]walletrpc.SelectedInput, len(locked.UTXOs))
	for i, o := range locked.UTXOs {
		inputs[i] = walletrpc.SelectedInput{
			OutputHash: o.OutputHash[:],
			Value:      o.Value,
		}
	}

	outputs := make([]walletrpc.UnsignedOutput, 0, len(recipients)+1)
	var requestedTotal uint64
	for _, r := range recipients {
		requestedTotal += r.Amount
		outputs = append(outputs, walletrpc.UnsignedOutput{
			Amount:           r.Amount,
			RecipientAddress: r.Address,
			Memo:             r.Memo,
		})
	}

	fee := locked.FeeWithoutChange
	if locked.RequiresChangeOutput {
		fee = locked.FeeWithChange
		changeAmount := locked.TotalValue - requestedTotal - fee
		outputs = append(outputs, walletrpc.UnsignedOutput{
			Amount: changeAmount,
			Memo:   changeTransactionInfo(requestedTotal, fee),
		})
	}

	return &walletrpc.UnsignedTransactionRequest{
		Inputs:     inputs,
		Outputs:    outputs,
		FeePerGram: feePerGram,
	}, nil
}

// FinalizeAndBroadcast records signed's kernel_excess, sent_payref and
// serialized bytes as given, marks the PendingTransaction Completed, creates a
// CompletedTransaction, submits it to the node, and maps the submission
// result per minotari spec §4.7 "finalize_and_broadcast".
func (b *Builder) FinalizeAndBroadcast(ctx context.Context, accountID int64, pendingTxID string, signed *walletrpc.SignedTransaction) (*store.CompletedTransaction, error) {
	tx, err := b.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := tx.UpdatePendingTransactionStatus(ctx, pendingTxID, store.PendingStatusCompleted); err != nil {
		return nil, fmt.Errorf("txbuilder: mark pending completed: %w", err)
	}

	completed := &store.CompletedTransaction{
		PendingTxID:           pendingTxID,
		AccountID:             accountID,
		Status:                store.CompletedStatusCompleted,
		KernelExcess:          signed.KernelExcess,
		SentPayref:            signed.SentPayref,
		SentOutputHash:        signed.SentOutputHash,
		SerializedTransaction: signed.Serialized,
	}
	completed, err = tx.InsertCompletedTransaction(ctx, completed)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: insert completed tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("txbuilder: commit: %w", err)
	}

	return b.submit(ctx, completed)
}

// submit broadcasts a freshly-finalized CompletedTransaction and maps the
// node's response onto its status, outside the finalization transaction
// (the submission itself makes an external network call).
func (b *Builder) submit(ctx context.Context, completed *store.CompletedTransaction) (*store.CompletedTransaction, error) {
	result, err := b.node.SubmitTransaction(ctx, completed.SerializedTransaction)
	if err != nil {
		// network error: leave status Completed, the monitor retries it.
		log.Warnf("txbuilder: submit %s: %v (will retry via monitor)", completed.ID, err)
		return completed, nil
	}

	tx, err := b.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	switch {
	case result.Accepted || result.RejectionReason == nodeclient.RejectionAlreadyMined:
		if _, err := tx.IncrementBroadcastAttempts(ctx, completed.ID); err != nil {
			return nil, err
		}
		if err := tx.UpdateCompletedTransactionStatus(ctx, completed.ID, store.CompletedStatusBroadcast, ""); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		completed.Status = store.CompletedStatusBroadcast
		completed.BroadcastAttempts = 1
		b.publish(completed.AccountID, events.TypeTransactionBroadcast, events.TransactionBroadcast{
			TxID: completed.ID, KernelExcess: completed.KernelExcess,
		})
	default:
		reason := string(result.RejectionReason)
		if err := tx.UpdateCompletedTransactionStatus(ctx, completed.ID, store.CompletedStatusRejected, reason); err != nil {
			return nil, err
		}
		outputs, err := tx.ListOutputsLockedBy(ctx, completed.PendingTxID)
		if err != nil {
			return nil, err
		}
		if len(outputs) > 0 {
			ids := make([]int64, len(outputs))
			for i, o := range outputs {
				ids[i] = o.ID
			}
			if err := tx.UnlockOutputs(ctx, ids); err != nil {
				return nil, err
			}
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		completed.Status = store.CompletedStatusRejected
		completed.LastRejectedReason = reason
		b.publish(completed.AccountID, events.TypeTransactionRejected, events.TransactionRejected{
			TxID: completed.ID, Reason: reason,
		})
	}

	return completed, nil
}

func (b *Builder) publish(accountID int64, typ events.Type, data interface{}) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(events.Event{AccountID: accountID, Type: typ, Data: data, CreatedAt: time.Now().UTC()})
}

// changeTransactionInfo encodes the claimed-amount/fee/sender metadata a
// change output's payment-id carries so the receiving wallet can
// reconstruct the original send (minotari spec §4.5.2b). Sender is left
// blank: a view-only wallet has no address of its own to claim.
func changeTransactionInfo(requestedTotal, fee uint64) []byte {
	buf := make([]byte, 1+8+8)
	buf[0] = 0x01 // memoTagTransactionInfo
	binary.BigEndian.PutUint64(buf[1:9], requestedTotal)
	binary.BigEndian.PutUint64(buf[9:17], fee)
	return buf
}

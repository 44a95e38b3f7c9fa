// Package blockproc implements the per-block ledger update: persisting
// newly detected outputs, matching spends against known outputs, recording
// the scanned tip, and promoting outputs past the confirmation threshold.
package blockproc

import (
	"context"
	"encoding/binary"
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

// Exported so displaytx can recognize a rehydrated credit's cause without
// duplicating the literal.
const (
	DescCoinbaseOutput = "Coinbase output found in blockchain scan"
	DescScannedOutput  = "Output found in blockchain scan"
)

// DetectedOutput is one newly persisted output accumulated while
// processing a block, fed into the displayed-tx processor.
type DetectedOutput struct {
	Output     *store.Output
	IsCoinbase bool
	TxInfo     *TransactionInfo
}

// SpentInput is one newly persisted input accumulated while processing a
// block.
type SpentInput struct {
	Input  *store.Input
	Output *store.Output
}

// Accumulator is the set of ledger-relevant events gathered while
// processing one block, handed to the displayed-tx processor (minotari
// spec §4.4 step 5, §4.5).
type Accumulator struct {
	AccountID      int64
	Height         uint64
	BlockHash      [32]byte
	MinedTimestamp time.Time
	Outputs        []DetectedOutput
	Inputs         []SpentInput
}

// Processor persists one scanned block's effects for one account inside a
// single store transaction.
type Processor struct {
	store                 *store.Store
	requiredConfirmations uint64
	bus                   *events.Bus
}

// New constructs a Processor.
func New(st *store.Store, requiredConfirmations uint64, bus *events.Bus) *Processor {
	return &Processor{store: st, requiredConfirmations: requiredConfirmations, bus: bus}
}

// ProcessBlock runs all of minotari spec §4.4's per-block steps for one
// account against one scanned block, inside a single transaction.
// hasPendingOutbound carries the account TransactionMonitor's signal; it
// is not read here, and every spent input is looked up regardless of it.
func (p *Processor) ProcessBlock(ctx context.Context, accountID int64, currentHeight uint64, block walletrpc.BlockScanResult, hasPendingOutbound bool) (*Accumulator, error) {
	acc := &Accumulator{
		AccountID:      accountID,
		Height:         block.Height,
		BlockHash:      block.BlockHash,
		MinedTimestamp: time.Unix(int64(block.MinedTimestamp), 0).UTC(),
	}

	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("blockproc: begin tx: %w", err)
	}
	defer tx.Rollback()

	// Step 1: outputs detected.
	for _, wo := range block.WalletOutputs {
		memoParsed, memoHex, txInfo := parseMemo(wo.OutputBlob)

		o := &store.Output{
			AccountID:        accountID,
			OutputHash:       wo.Hash,
			MinedHeight:      block.Height,
			MinedBlockHash:   block.BlockHash,
			Value:            outputValue(wo.OutputBlob),
			WalletOutputBlob: wo.OutputBlob,
			MemoParsed:       memoParsed,
			MemoHex:          memoHex,
			Status:           store.OutputUnspent,
		}

		id, newlyInserted, err := tx.InsertOutput(ctx, o)
		if err != nil {
			return nil, fmt.Errorf("blockproc: insert output: %w", err)
		}
		o.ID = id
		if !newlyInserted {
			continue
		}

		desc := DescScannedOutput
		if wo.IsCoinbase {
			desc = DescCoinbaseOutput
		}
		if _, err := tx.InsertCreditForOutput(ctx, &store.BalanceChange{
			AccountID:        accountID,
			CausedByOutputID: &id,
			BalanceCredit:    o.Value,
			EffectiveHeight:  block.Height,
			EffectiveDate:    acc.MinedTimestamp,
			Description:      desc,
		}); err != nil {
			return nil, fmt.Errorf("blockproc: insert credit for output %d: %w", id, err)
		}

		acc.Outputs = append(acc.Outputs, DetectedOutput{Output: o, IsCoinbase: wo.IsCoinbase, TxInfo: txInfo})
		p.publish(accountID, events.TypeOutputDetected, events.OutputDetected{
			Hash: o.OutputHash, BlockHeight: o.MinedHeight, BlockHash: o.MinedBlockHash,
			MemoParsed: memoParsed, MemoHex: memoHex,
		})
	}

	// Step 2: inputs spent.
	if len(block.Inputs) > 0 {
		for _, spentHash := range block.Inputs {
			existing, err := tx.GetOutputByHash(ctx, accountID, spentHash)
			if err == store.ErrNotFound {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("blockproc: lookup output by hash: %w", err)
			}

			in := &store.Input{
				AccountID:          accountID,
				OutputID:           existing.ID,
				MinedInBlockHeight: block.Height,
				MinedInBlockHash:   block.BlockHash,
				MinedTimestamp:     acc.MinedTimestamp,
			}
			inputID, newlyInserted, err := tx.InsertInput(ctx, in)
			if err != nil {
				return nil, fmt.Errorf("blockproc: insert input: %w", err)
			}
			in.ID = inputID
			if !newlyInserted {
				continue
			}

			if _, err := tx.InsertDebitForInput(ctx, &store.BalanceChange{
				AccountID:       accountID,
				CausedByInputID: &inputID,
				BalanceDebit:    existing.Value,
				EffectiveHeight: block.Height,
				EffectiveDate:   acc.MinedTimestamp,
				Description:     "Output spent in blockchain scan",
			}); err != nil {
				return nil, fmt.Errorf("blockproc: insert debit for input %d: %w", inputID, err)
			}

			if err := tx.MarkOutputsSpent(ctx, []int64{existing.ID}); err != nil {
				return nil, fmt.Errorf("blockproc: mark output spent: %w", err)
			}

			acc.Inputs = append(acc.Inputs, SpentInput{Input: in, Output: existing})
		}
	}

	// Step 3: record tip.
	if err := tx.InsertScannedTipBlock(ctx, accountID, block.Height, block.BlockHash); err != nil {
		return nil, fmt.Errorf("blockproc: insert scanned tip: %w", err)
	}

	// Step 4: confirmation promotion.
	promoted, err := tx.PromoteConfirmedOutputs(ctx, accountID, currentHeight, p.requiredConfirmations)
	if err != nil {
		return nil, fmt.Errorf("blockproc: promote confirmed outputs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("blockproc: commit: %w", err)
	}

	for _, o := range promoted {
		if o.ConfirmedHeight == nil {
			continue
		}
		p.publish(accountID, events.TypeOutputConfirmed, events.OutputConfirmed{
			Hash: o.OutputHash, BlockHeight: o.MinedHeight, ConfirmationHeight: *o.ConfirmedHeight,
			MemoParsed: o.MemoParsed, MemoHex: o.MemoHex,
		})
	}
	p.publish(accountID, events.TypeBlockProcessed, events.BlockProcessed{Height: block.Height})

	return acc, nil
}

// outputValue extracts the value carried in a wallet_output_blob. The
// blob's layout is owned by the external scanning/signing library; this
// wallet treats everything past the first 8 bytes (big-endian value) as
// opaque spending material.
func outputValue(blob []byte) uint64 {
	if len(blob) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(blob[:8])
}

func (p *Processor) publish(accountID int64, typ events.Type, data interface{}) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.Event{AccountID: accountID, Type: typ, Data: data, CreatedAt: time.Now().UTC()})
}

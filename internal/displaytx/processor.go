// Package displaytx groups raw credit/debit balance changes accumulated by
// the block processor into user-meaningful DisplayedTransaction records:
// coinbase, plain received, received-with-change (via subset-sum input
// matching), and plain sent.
package displaytx

import (
	"context"
	"fmt"
	"sort"

	"github.com/decred/slog"

	"github.com/decred/minotari/internal/blockproc"
	"github.com/decred/minotari/internal/store"
)

var log = slog.Disabled

// UseLogger sets the package-wide logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// Processor reconciles one block's Accumulator against existing
// DisplayedTransactions, updating matched rows and creating new ones
// (minotari spec §4.5).
type Processor struct {
	store                 *store.Store
	requiredConfirmations uint64
}

// New constructs a Processor.
func New(st *store.Store, requiredConfirmations uint64) *Processor {
	return &Processor{store: st, requiredConfirmations: requiredConfirmations}
}

// Reconcile updates existing DisplayedTransactions touched by acc and
// creates new ones for unmatched credits/debits, inside a single
// transaction. tipHeight is used to compute confirmations.
func (p *Processor) Reconcile(ctx context.Context, account *store.Account, acc *blockproc.Accumulator, tipHeight uint64) (updated, created []*store.DisplayedTransaction, err error) {
	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("displaytx: begin tx: %w", err)
	}
	defer tx.Rollback()

	unmatchedOutputs := make([]blockproc.DetectedOutput, 0, len(acc.Outputs))
	for _, o := range acc.Outputs {
		existing, ferr := tx.FindDisplayedTransactionByOutputHash(ctx, account.ID, o.Output.ID)
		if ferr == store.ErrNotFound {
			unmatchedOutputs = append(unmatchedOutputs, o)
			continue
		}
		if ferr != nil {
			return nil, nil, fmt.Errorf("displaytx: find displayed tx by output: %w", ferr)
		}
		applyBlockchainInfo(existing, acc, tipHeight, p.requiredConfirmations)
		if err := tx.UpsertDisplayedTransaction(ctx, existing); err != nil {
			return nil, nil, fmt.Errorf("displaytx: update existing credit: %w", err)
		}
		updated = append(updated, existing)
	}

	unmatchedInputs := make([]blockproc.SpentInput, 0, len(acc.Inputs))
	for _, in := range acc.Inputs {
		existing, ferr := tx.FindDisplayedTransactionByInputHash(ctx, account.ID, in.Input.ID)
		if ferr == store.ErrNotFound {
			unmatchedInputs = append(unmatchedInputs, in)
			continue
		}
		if ferr != nil {
			return nil, nil, fmt.Errorf("displaytx: find displayed tx by input: %w", ferr)
		}
		applyBlockchainInfo(existing, acc, tipHeight, p.requiredConfirmations)
		if err := tx.UpsertDisplayedTransaction(ctx, existing); err != nil {
			return nil, nil, fmt.Errorf("displaytx: update existing debit: %w", err)
		}
		updated = append(updated, existing)
	}

	candidates := make([]candidate, len(unmatchedInputs))
	for i, in := range unmatchedInputs {
		candidates[i] = candidate{index: i, value: in.Output.Value}
	}
	consumed := make(map[int]bool, len(unmatchedInputs))

	for _, o := range unmatchedOutputs {
		var d *store.DisplayedTransaction
		switch {
		case o.IsCoinbase:
			d = newCoinbaseTx(account, acc, o)
		case o.TxInfo != nil:
			totalSend := o.TxInfo.ClaimedAmount + o.Output.Value + o.TxInfo.ClaimedFee
			available := remainingCandidates(candidates, consumed)
			if match := findSubsetSum(available, totalSend); match != nil {
				for _, idx := range match {
					consumed[idx] = true
				}
				d = newChangeTx(account, acc, o, match, unmatchedInputs)
			} else {
				d = newReceivedTx(account, acc, o)
			}
		default:
			d = newReceivedTx(account, acc, o)
		}

		if err := tx.UpsertDisplayedTransaction(ctx, d); err != nil {
			return nil, nil, fmt.Errorf("displaytx: create new credit: %w", err)
		}
		created = append(created, d)
	}

	// Step 3: remaining unmatched debit inputs become outgoing
	// transactions with no change output.
	for i, in := range unmatchedInputs {
		if consumed[i] {
			continue
		}
		d := newDebitOnlyTx(account, acc, in)
		if err := tx.UpsertDisplayedTransaction(ctx, d); err != nil {
			return nil, nil, fmt.Errorf("displaytx: create new debit: %w", err)
		}
		created = append(created, d)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("displaytx: commit: %w", err)
	}
	return updated, created, nil
}

func remainingCandidates(all []candidate, consumed map[int]bool) []candidate {
	out := make([]candidate, 0, len(all))
	for _, c := range all {
		if !consumed[c.index] {
			out = append(out, c)
		}
	}
	return out
}

func applyBlockchainInfo(d *store.DisplayedTransaction, acc *blockproc.Accumulator, tipHeight, requiredConfirmations uint64) {
	confirmations := uint64(0)
	if tipHeight >= d.Blockchain.Height {
		confirmations = tipHeight - d.Blockchain.Height
	}
	d.Blockchain.Confirmations = confirmations
	if confirmations >= requiredConfirmations {
		d.Status = store.TxStatusConfirmed
	} else {
		d.Status = store.TxStatusUnconfirmed
	}
}

func newCoinbaseTx(account *store.Account, acc *blockproc.Accumulator, o blockproc.DetectedOutput) *store.DisplayedTransaction {
	return &store.DisplayedTransaction{
		ID:        deterministicID(account.ViewKeyFingerprint, o.Output.OutputHash),
		AccountID: account.ID,
		Direction: store.DirectionIncoming,
		Source:    store.SourceCoinbase,
		Status:    store.TxStatusUnconfirmed,
		Amount:    o.Output.Value,
		Blockchain: store.BlockchainInfo{
			Height: acc.Height, Timestamp: acc.MinedTimestamp, BlockHash: acc.BlockHash,
		},
		Details: store.DisplayedTxDetails{
			OutputIDs:   []int64{o.Output.ID},
			TotalCredit: o.Output.Value,
		},
	}
}

func newReceivedTx(account *store.Account, acc *blockproc.Accumulator, o blockproc.DetectedOutput) *store.DisplayedTransaction {
	return &store.DisplayedTransaction{
		ID:        deterministicID(account.ViewKeyFingerprint, o.Output.OutputHash),
		AccountID: account.ID,
		Direction: store.DirectionIncoming,
		Source:    store.SourceTransfer,
		Status:    store.TxStatusUnconfirmed,
		Amount:    o.Output.Value,
		Message:   o.Output.MemoParsed,
		Blockchain: store.BlockchainInfo{
			Height: acc.Height, Timestamp: acc.MinedTimestamp, BlockHash: acc.BlockHash,
		},
		Details: store.DisplayedTxDetails{
			OutputIDs:   []int64{o.Output.ID},
			TotalCredit: o.Output.Value,
		},
	}
}

func newChangeTx(account *store.Account, acc *blockproc.Accumulator, o blockproc.DetectedOutput, matchIdx []int, allInputs []blockproc.SpentInput) *store.DisplayedTransaction {
	var inputIDs []int64
	var totalDebit uint64
	for _, idx := range matchIdx {
		in := allInputs[idx]
		inputIDs = append(inputIDs, in.Input.ID)
		totalDebit += in.Output.Value
	}
	d := &store.DisplayedTransaction{
		ID:                  deterministicID(account.ViewKeyFingerprint, o.Output.OutputHash),
		AccountID:           account.ID,
		Direction:           store.DirectionOutgoing,
		Source:              store.SourceTransfer,
		Status:              store.TxStatusUnconfirmed,
		Amount:              o.TxInfo.ClaimedAmount,
		CounterpartyAddress: o.TxInfo.ClaimedSender,
		Fee:                 o.TxInfo.ClaimedFee,
		Blockchain: store.BlockchainInfo{
			Height: acc.Height, Timestamp: acc.MinedTimestamp, BlockHash: acc.BlockHash,
		},
		Details: store.DisplayedTxDetails{
			InputIDs:    inputIDs,
			OutputIDs:   []int64{o.Output.ID},
			TotalCredit: o.Output.Value,
			TotalDebit:  totalDebit,
		},
	}
	return d
}

func newDebitOnlyTx(account *store.Account, acc *blockproc.Accumulator, in blockproc.SpentInput) *store.DisplayedTransaction {
	return &store.DisplayedTransaction{
		ID:        deterministicID(account.ViewKeyFingerprint, in.Output.OutputHash),
		AccountID: account.ID,
		Direction: store.DirectionOutgoing,
		Source:    store.SourceTransfer,
		Status:    store.TxStatusUnconfirmed,
		Amount:    in.Output.Value,
		Blockchain: store.BlockchainInfo{
			Height: acc.Height, Timestamp: acc.MinedTimestamp, BlockHash: acc.BlockHash,
		},
		Details: store.DisplayedTxDetails{
			InputIDs:   []int64{in.Input.ID},
			TotalDebit: in.Output.Value,
		},
	}
}

// ProcessAllStored rebuilds every DisplayedTransaction for an account from
// scratch by replaying its active balance changes grouped by
// effective_height, used on initial load and after a reorg (minotari spec
// §4.5.2).
func ProcessAllStored(ctx context.Context, p *Processor, account *store.Account, tipHeight uint64) error {
	changes, err := p.store.ListActiveBalanceChanges(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("displaytx: list active balance changes: %w", err)
	}

	byHeight := map[uint64][]*store.BalanceChange{}
	var heights []uint64
	for _, c := range changes {
		if _, ok := byHeight[c.EffectiveHeight]; !ok {
			heights = append(heights, c.EffectiveHeight)
		}
		byHeight[c.EffectiveHeight] = append(byHeight[c.EffectiveHeight], c)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })

	for _, h := range heights {
		acc, err := hydrateAccumulator(ctx, p.store, account.ID, h, byHeight[h])
		if err != nil {
			return err
		}
		if _, _, err := p.Reconcile(ctx, account, acc, tipHeight); err != nil {
			return err
		}
	}
	return nil
}

func hydrateAccumulator(ctx context.Context, st *store.Store, accountID int64, height uint64, changes []*store.BalanceChange) (*blockproc.Accumulator, error) {
	acc := &blockproc.Accumulator{AccountID: accountID, Height: height}
	for _, c := range changes {
		switch {
		case c.CausedByOutputID != nil:
			o, err := st.GetOutput(ctx, *c.CausedByOutputID)
			if err != nil {
				return nil, fmt.Errorf("displaytx: hydrate output %d: %w", *c.CausedByOutputID, err)
			}
			if acc.MinedTimestamp.IsZero() {
				acc.MinedTimestamp = c.EffectiveDate
				acc.BlockHash = o.MinedBlockHash
			}
			_, _, txInfo := blockproc.ParseOutputMemo(o.WalletOutputBlob)
			acc.Outputs = append(acc.Outputs, blockproc.DetectedOutput{
				Output:     o,
				IsCoinbase: c.Description == blockproc.DescCoinbaseOutput,
				TxInfo:     txInfo,
			})
		case c.CausedByInputID != nil:
			in, err := st.GetInput(ctx, *c.CausedByInputID)
			if err != nil {
				return nil, fmt.Errorf("displaytx: hydrate input %d: %w", *c.CausedByInputID, err)
			}
			o, err := st.GetOutput(ctx, in.OutputID)
			if err != nil {
				return nil, fmt.Errorf("displaytx: hydrate spent output %d: %w", in.OutputID, err)
			}
			if acc.MinedTimestamp.IsZero() {
				acc.MinedTimestamp = in.MinedTimestamp
				acc.BlockHash = in.MinedInBlockHash
			}
			acc.Inputs = append(acc.Inputs, blockproc.SpentInput{Input: in, Output: o})
		}
	}
	return acc, nil
}

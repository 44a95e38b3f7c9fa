package fundlock

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

// DefaultConfirmationWindow is the number of blocks an output must be
// mined-behind-tip before it is eligible for spend selection.
const DefaultConfirmationWindow = 2

// LockResult is FundLocker.Lock's return value: the locked UTXO set plus
// the fee bookkeeping TransactionBuilder needs (minotari spec §4.7 step 4).
type LockResult struct {
	PendingTxID          string
	UTXOs                []*store.Output
	RequiresChangeOutput bool
	TotalValue           uint64
	FeeWithoutChange     uint64
	FeeWithChange        uint64
}

// Locker reserves UTXOs against concurrent use for a pending outbound
// transaction.
type Locker struct {
	store               *store.Store
	feePolicy           FeePolicy
	confirmationWindow  uint64
}

// New constructs a Locker using the default fee policy and confirmation
// window.
func New(st *store.Store) *Locker {
	return &Locker{
		store:              st,
		feePolicy:          DefaultFeePolicy(),
		confirmationWindow: DefaultConfirmationWindow,
	}
}

// Lock selects inputs covering amount at fee_per_gram, and reserves them
// under a new PendingTransaction (minotari spec §4.7). tipHeight is the
// account's currently-scanned chain tip, used to exclude outputs too
// close to the tip to safely spend. If idempotencyKey is non-nil and a
// Pending PendingTransaction already exists under it, its prior result is
// returned verbatim without any new selection or locking.
func (l *Locker) Lock(ctx context.Context, accountID int64, amount uint64, numOutputs int,
	feePerGram uint64, estimatedOutputWeight *uint64, idempotencyKey *string,
	secondsToLock int, tipHeight uint64) (*LockResult, error) {

	if idempotencyKey != nil {
		if existing, err := l.priorResult(ctx, accountID, *idempotencyKey); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}
	}

	policy := l.feePolicy
	if estimatedOutputWeight != nil {
		policy.OutputWeight = *estimatedOutputWeight
	}

	maxMinedHeight := uint64(0)
	if tipHeight > l.confirmationWindow {
		maxMinedHeight = tipHeight - l.confirmationWindow
	}

	candidates, err := l.store.ListUnspentOutputsForSelection(ctx, accountID, maxMinedHeight)
	if err != nil {
		return nil, fmt.Errorf("fundlock: list unspent outputs: %w", err)
	}

	sel, err := selectInputs(candidates, amount, numOutputs, policy, feePerGram)
	if err != nil {
		return nil, err
	}

	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	pending := &store.PendingTransaction{
		IdempotencyKey:       idempotencyKey,
		AccountID:            accountID,
		Status:               store.PendingStatusPending,
		RequiresChangeOutput: sel.RequiresChangeOutput,
		TotalValue:           sel.TotalValue,
		FeeWithoutChange:     sel.FeeWithoutChange,
		FeeWithChange:        sel.FeeWithChange,
		ExpiresAt:            now.Add(time.Duration(secondsToLock) * time.Second),
		CreatedAt:            now,
	}
	pending, err = tx.InsertPendingTransaction(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("fundlock: insert pending tx: %w", err)
	}

	ids := make([]int64, len(sel.Selected))
	for i, o := range sel.Selected {
		ids[i] = o.ID
	}
	if err := tx.LockOutputs(ctx, ids, pending.ID, now); err != nil {
		return nil, fmt.Errorf("fundlock: lock outputs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("fundlock: commit: %w", err)
	}

	log.Infof("fundlock: locked %d outputs (%d total) for pending tx %s", len(ids), sel.TotalValue, pending.ID)

	return &LockResult{
		PendingTxID:          pending.ID,
		UTXOs:                sel.Selected,
		RequiresChangeOutput: sel.RequiresChangeOutput,
		TotalValue:           sel.TotalValue,
		FeeWithoutChange:     sel.FeeWithoutChange,
		FeeWithChange:        sel.FeeWithChange,
	}, nil
}

// priorResult looks up an existing Pending reservation under key and, if
// found, reconstructs the LockResult it originally produced by reloading
// its locked outputs.
func (l *Locker) priorResult(ctx context.Context, accountID int64, key string) (*LockResult, error) {
	existing, err := l.store.GetPendingTransactionByIdempotencyKey(ctx, accountID, key)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fundlock: lookup idempotency key: %w", err)
	}
	if existing.Status != store.PendingStatusPending {
		return nil, nil
	}

	utxos, err := l.store.ListLockedOutputsForPendingTx(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("fundlock: list locked outputs for %s: %w", existing.ID, err)
	}

	return &LockResult{
		PendingTxID:          existing.ID,
		UTXOs:                utxos,
		RequiresChangeOutput: existing.RequiresChangeOutput,
		TotalValue:           existing.TotalValue,
		FeeWithoutChange:     existing.FeeWithoutChange,
		FeeWithChange:        existing.FeeWithChange,
	}, nil
}

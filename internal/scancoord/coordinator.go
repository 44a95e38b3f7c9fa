// Package scancoord is the outermost orchestrator: it drives the scan
// loop across every account, dispatching each scanned block through the
// block processor, displayed-tx processor, and transaction monitor in
// order, and periodically re-running reorg detection (minotari spec
// §4.9).
package scancoord

import (
	"context"
	"fmt"
	"time"

	"github.com/decred/slog"

	"github.com/decred/minotari/internal/blockproc"
	"github.com/decred/minotari/internal/config"
	"github.com/decred/minotari/internal/displaytx"
	"github.com/decred/minotari/internal/events"
	"github.com/decred/minotari/internal/nodeclient"
	"github.com/decred/minotari/internal/reorg"
	"github.com/decred/minotari/internal/store"
	"github.com/decred/minotari/internal/txmonitor"
	"github.com/decred/minotari/internal/walletrpc"
)

var log = slog.Disabled

// UseLogger sets the package-wide logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// KeyDecryptor recovers an account's raw view key from its encrypted
// storage form. Key management (the cipher, master-key source) is
// supplied by the embedder, mirroring the Scanner/Signer boundary
// (minotari spec §1): this package only consumes the decrypted bytes.
type KeyDecryptor interface {
	DecryptViewKey(account *store.Account) ([]byte, error)
}

// Coordinator owns the scan loop and the per-account collaborators it
// drives each iteration.
type Coordinator struct {
	store          *store.Store
	scannerFactory walletrpc.ScannerFactory
	node           *nodeclient.Client
	bus            *events.Bus
	keys           KeyDecryptor
	cfg            config.Config

	blockproc *blockproc.Processor
	displaytx *displaytx.Processor
	monitors  map[int64]*txmonitor.Monitor
}

// New constructs a Coordinator. cfg should already have WithDefaults
// applied.
func New(st *store.Store, scannerFactory walletrpc.ScannerFactory, node *nodeclient.Client,
	bus *events.Bus, keys KeyDecryptor, cfg config.Config) *Coordinator {

	return &Coordinator{
		store:          st,
		scannerFactory: scannerFactory,
		node:           node,
		bus:            bus,
		keys:           keys,
		cfg:            cfg,
		blockproc:      blockproc.New(st, cfg.RequiredConfirmations, bus),
		displaytx:      displaytx.New(st, cfg.RequiredConfirmations),
		monitors:       make(map[int64]*txmonitor.Monitor),
	}
}

func (c *Coordinator) monitorFor(accountID int64) *txmonitor.Monitor {
	if m, ok := c.monitors[accountID]; ok {
		return m
	}
	m := txmonitor.New(c.store, c.node, c.bus, accountID, c.cfg.RequiredConfirmations, c.cfg.MaxBroadcastAttempts)
	c.monitors[accountID] = m
	return m
}

// accountTarget is one account's scan cursor and scanner-tag assignment
// for the duration of one Run call.
type accountTarget struct {
	account         *store.Account
	resumeHeight    uint64
	scannerIndex    int
	sinceReorgCheck uint64
}

// Run drives the scan loop until mode's termination condition is reached
// or ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context, mode Mode) error {
	accounts, err := c.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("scancoord: list accounts: %w", err)
	}
	if len(accounts) == 0 {
		c.publishStatus(events.ScanPhaseCompleted, 0, mode.MaxBlocks, 0)
		return nil
	}

	scanner, err := c.scannerFactory.NewScanner()
	if err != nil {
		return fmt.Errorf("scancoord: new scanner: %w", err)
	}
	defer scanner.Close()

	targets := make([]*accountTarget, 0, len(accounts))
	for _, a := range accounts {
		t, err := c.prepareAccount(ctx, scanner, a)
		if err != nil {
			return fmt.Errorf("scancoord: prepare account %d: %w", a.ID, err)
		}
		targets = append(targets, t)
	}

	c.publishStatus(events.ScanPhaseStarted, 0, mode.MaxBlocks, minResumeHeight(targets))

	var totalScanned uint64
	timeoutRetries, errorRetries := 0, 0

	for {
		select {
		case <-ctx.Done():
			c.publishStatus(events.ScanPhasePausedCancelled, totalScanned, mode.MaxBlocks, minResumeHeight(targets))
			return nil
		default:
		}

		// At least one account always sits at globalHeight (the minimum),
		// so active is never empty while targets is non-empty.
		active, globalHeight := activeTargets(targets, c.cfg.BatchSize)

		results, moreBlocks, err := c.scanBatchWithRetry(ctx, scanner, globalHeight, &timeoutRetries, &errorRetries)
		if err != nil {
			return fmt.Errorf("scancoord: scan batch: %w", err)
		}

		for _, block := range results {
			tipHeight, err := scanner.GetTipInfo(ctx)
			if err != nil {
				return fmt.Errorf("scancoord: get tip info: %w", err)
			}

			for _, t := range active {
				if block.Height < t.resumeHeight {
					continue
				}
				if err := c.processBlockForAccount(ctx, t, block, tipHeight); err != nil {
					return fmt.Errorf("scancoord: process block %d for account %d: %w", block.Height, t.account.ID, err)
				}
				t.resumeHeight = block.Height + 1
				t.sinceReorgCheck++
			}
			totalScanned++

			if mode.kind == modePartial && totalScanned >= mode.MaxBlocks {
				c.publishStatus(events.ScanPhasePausedMaxBlocks, totalScanned, mode.MaxBlocks, block.Height)
				return nil
			}
		}

		if needsReorgCheck(active, c.cfg.ReorgCheckInterval) {
			if err := c.recheckReorgs(ctx, scanner, active); err != nil {
				return err
			}
		}

		if moreBlocks {
			c.publishStatus(events.ScanPhaseMoreBlocksAvailable, totalScanned, mode.MaxBlocks, globalHeight)
			continue
		}

		// The scanner has nothing further for the active set right now.
		switch mode.kind {
		case modeFull, modePartial:
			c.publishStatus(events.ScanPhaseCompleted, totalScanned, mode.MaxBlocks, globalHeight)
			return nil
		case modeContinuous:
			c.publishStatus(events.ScanPhaseWaiting, totalScanned, mode.MaxBlocks, globalHeight)
			if !c.sleep(ctx, mode.PollInterval) {
				c.publishStatus(events.ScanPhasePausedCancelled, totalScanned, mode.MaxBlocks, globalHeight)
				return nil
			}
			if err := c.recheckReorgs(ctx, scanner, targets); err != nil {
				return err
			}
		}
	}
}

// processBlockForAccount filters block to the outputs tagged with t's
// scanner index, then runs §4.4 (block ledger update), §4.5 (displayed-tx
// reconciliation), and §4.6 (outbound state machine poll) in order.
func (c *Coordinator) processBlockForAccount(ctx context.Context, t *accountTarget, block walletrpc.BlockScanResult, tipHeight uint64) error {
	filtered := block
	filtered.WalletOutputs = nil
	for _, wo := range block.WalletOutputs {
		if wo.ScannerIndex == t.scannerIndex {
			filtered.WalletOutputs = append(filtered.WalletOutputs, wo)
		}
	}

	monitor := c.monitorFor(t.account.ID)

	acc, err := c.blockproc.ProcessBlock(ctx, t.account.ID, block.Height, filtered, monitor.HasPendingOutbound())
	if err != nil {
		return fmt.Errorf("blockproc: %w", err)
	}

	updated, created, err := c.displaytx.Reconcile(ctx, t.account, acc, tipHeight)
	if err != nil {
		return fmt.Errorf("displaytx: %w", err)
	}
	if len(created) > 0 {
		c.publishTxSummaries(t.account.ID, events.TypeTransactionsReady, created)
	}
	if len(updated) > 0 {
		c.publishTxSummaries(t.account.ID, events.TypeTransactionsUpdated, updated)
	}

	if err := monitor.Poll(ctx, tipHeight); err != nil {
		return fmt.Errorf("txmonitor: %w", err)
	}

	const keepRecentTips = 200
	const pruneEveryNth = 10
	ptx, err := c.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("prune scanned tips: begin tx: %w", err)
	}
	defer ptx.Rollback()
	if err := ptx.PruneScannedTips(ctx, t.account.ID, keepRecentTips, pruneEveryNth); err != nil {
		return fmt.Errorf("prune scanned tips: %w", err)
	}
	if err := ptx.Commit(); err != nil {
		return fmt.Errorf("prune scanned tips: commit: %w", err)
	}

	return nil
}

func (c *Coordinator) publishTxSummaries(accountID int64, typ events.Type, txs []*store.DisplayedTransaction) {
	if c.bus == nil {
		return
	}
	summaries := make([]events.DisplayedTxSummary, len(txs))
	for i, d := range txs {
		summaries[i] = events.DisplayedTxSummary{
			ID: d.ID, Direction: d.Direction.String(), Status: d.Status.String(), Amount: d.Amount,
		}
	}
	var data interface{}
	if typ == events.TypeTransactionsReady {
		data = events.TransactionsReady{Transactions: summaries}
	} else {
		data = events.TransactionsUpdated{Transactions: summaries}
	}
	c.bus.Publish(events.Event{AccountID: accountID, Type: typ, Data: data, CreatedAt: time.Now().UTC()})
}

func (c *Coordinator) publishStatus(phase events.ScanPhase, scanned, maxBlocks, currentHeight uint64) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.Event{
		Type: events.TypeScanStatus,
		Data: events.ScanStatus{
			Phase: phase, BlocksScanned: scanned, MaxBlocks: maxBlocks, CurrentHeight: currentHeight,
		},
		CreatedAt: time.Now().UTC(),
	})
}

// sleep waits for d or cancellation, reporting whether it completed
// normally (false means ctx was cancelled first).
func (c *Coordinator) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func minResumeHeight(targets []*accountTarget) uint64 {
	if len(targets) == 0 {
		return 0
	}
	min := targets[0].resumeHeight
	for _, t := range targets[1:] {
		if t.resumeHeight < min {
			min = t.resumeHeight
		}
	}
	return min
}

// activeTargets returns the accounts whose resume_height falls within
// reach of the current horizon, plus that horizon height (minotari spec
// §4.9 step 1 "Group by horizon").
func activeTargets(targets []*accountTarget, batchSize uint64) ([]*accountTarget, uint64) {
	global := minResumeHeight(targets)
	var active []*accountTarget
	for _, t := range targets {
		if t.resumeHeight <= global+batchSize {
			active = append(active, t)
		}
	}
	return active, global
}

func needsReorgCheck(active []*accountTarget, interval uint64) bool {
	if interval == 0 {
		return false
	}
	for _, t := range active {
		if t.sinceReorgCheck >= interval {
			return true
		}
	}
	return false
}

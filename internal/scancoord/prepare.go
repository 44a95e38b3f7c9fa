package scancoord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/decred/minotari/internal/config"
	"github.com/decred/minotari/internal/reorg"
	"github.com/decred/minotari/internal/store"
	"github.com/decred/minotari/internal/walletrpc"
)

// prepareAccount tags scanner with account's view key, runs reorg
// detection once, and determines the account's initial resume height
// (minotari spec §4.9 "Per-account preparation").
func (c *Coordinator) prepareAccount(ctx context.Context, scanner walletrpc.Scanner, account *store.Account) (*accountTarget, error) {
	viewKey, err := c.keys.DecryptViewKey(account)
	if err != nil {
		return nil, fmt.Errorf("decrypt view key: %w", err)
	}

	idx, err := scanner.AddKey(viewKey)
	if err != nil {
		return nil, fmt.Errorf("add key: %w", err)
	}

	existingTips, err := c.store.ListScannedTipsDescending(ctx, account.ID, 1)
	if err != nil {
		return nil, fmt.Errorf("list scanned tips: %w", err)
	}

	var resumeHeight uint64
	if len(existingTips) == 0 {
		resumeHeight, err = c.estimateBirthdayHeight(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("estimate birthday height: %w", err)
		}
	} else {
		result, err := reorg.New(c.store, scanner, c.bus).Resolve(ctx, account.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve reorg: %w", err)
		}
		resumeHeight = result.ResumeHeight
	}

	return &accountTarget{account: account, resumeHeight: resumeHeight, scannerIndex: idx}, nil
}

// estimateBirthdayHeight converts an account's birthday (days since
// epoch) into a block height via the node's get_height_at_time, nudged
// earlier by ScanningOffsetDays to absorb clock skew (minotari spec
// §4.9).
func (c *Coordinator) estimateBirthdayHeight(ctx context.Context, account *store.Account) (uint64, error) {
	days := int64(account.Birthday) - int64(c.cfg.ScanningOffsetDays)
	if days < 0 {
		days = 0
	}
	unixSeconds := days*86400 + c.cfg.EpochAnchor

	height, err := c.node.GetHeightAtTime(ctx, unixSeconds)
	if err != nil {
		return 0, err
	}
	return height, nil
}

// recheckReorgs reruns reorg detection for every target, resetting its
// resume_height on rollback and zeroing its reorg-check counter
// (minotari spec §4.9 step 5).
func (c *Coordinator) recheckReorgs(ctx context.Context, scanner walletrpc.Scanner, targets []*accountTarget) error {
	resolver := reorg.New(c.store, scanner, c.bus)
	for _, t := range targets {
		result, err := resolver.Resolve(ctx, t.account.ID)
		if err != nil {
			return fmt.Errorf("recheck reorg for account %d: %w", t.account.ID, err)
		}
		if result.Info != nil {
			t.resumeHeight = result.ResumeHeight
		}
		t.sinceReorgCheck = 0
	}
	return nil
}

// scanBatchWithRetry calls scanner.ScanBlocks, retrying timeouts up to
// MaxTimeoutRetries and other errors up to MaxErrorRetries with
// exponential backoff base^min(retries, 5) capped at MaxBackoff (minotari
// spec §4.9 step 3, §5 "Timeouts").
func (c *Coordinator) scanBatchWithRetry(ctx context.Context, scanner walletrpc.Scanner, startHeight uint64,
	timeoutRetries, errorRetries *int) ([]walletrpc.BlockScanResult, bool, error) {

	cfg := walletrpc.ScanConfig{StartHeight: startHeight, BatchSize: int(c.cfg.BatchSize)}

	for {
		scanCtx, cancel := context.WithTimeout(ctx, c.cfg.ScanTimeout)
		results, more, err := scanner.ScanBlocks(scanCtx, cfg)
		cancel()

		if err == nil {
			*timeoutRetries = 0
			*errorRetries = 0
			return results, more, nil
		}

		if errors.Is(err, context.DeadlineExceeded) {
			*timeoutRetries++
			if *timeoutRetries > c.cfg.MaxTimeoutRetries {
				return nil, false, fmt.Errorf("scan_blocks timed out after %d retries: %w", *timeoutRetries, err)
			}
			log.Warnf("scancoord: scan_blocks timeout (retry %d/%d)", *timeoutRetries, c.cfg.MaxTimeoutRetries)
			continue
		}

		*errorRetries++
		if *errorRetries > c.cfg.MaxErrorRetries {
			return nil, false, fmt.Errorf("scan_blocks failed after %d retries: %w", *errorRetries, err)
		}
		backoff := backoffFor(*errorRetries)
		log.Warnf("scancoord: scan_blocks error (retry %d/%d, backing off %s): %v",
			*errorRetries, c.cfg.MaxErrorRetries, backoff, err)
		if !c.sleep(ctx, backoff) {
			return nil, false, ctx.Err()
		}
	}
}

// backoffFor computes base^min(retries, 5) seconds, capped at
// DefaultMaxBackoff (minotari spec §4.9 step 3).
func backoffFor(retries int) time.Duration {
	n := retries
	if n > 5 {
		n = 5
	}
	d := time.Second
	for i := 0; i < n; i++ {
		d *= time.Duration(config.DefaultBackoffBase)
	}
	if d > config.DefaultMaxBackoff {
		d = config.DefaultMaxBackoff
	}
	return d
}

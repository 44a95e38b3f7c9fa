// Package config holds the tunables and collaborator handles shared across
// the wallet backend. It deliberately does not parse flags or config files
// (see minotari spec §1 non-goals); callers (the daemon's main, or tests)
// populate a Config directly.
package config

import "time"

const (
	// DefaultRequiredConfirmations is the number of blocks that must be
	// mined on top of a block before its outputs/transactions are
	// considered confirmed.
	DefaultRequiredConfirmations = 3

	// DefaultMaxBroadcastAttempts bounds how many times the transaction
	// monitor will try to (re)submit a transaction before giving up and
	// marking it Rejected.
	DefaultMaxBroadcastAttempts = 5

	// DefaultBatchSize is the number of blocks requested from the scanner
	// library per scan_blocks call.
	DefaultBatchSize = 100

	// DefaultPollInterval is how long the Continuous scan mode sleeps
	// between scan attempts once the node tip has been reached.
	DefaultPollInterval = 15 * time.Second

	// DefaultReorgCheckInterval is how many blocks the scan coordinator
	// processes before re-running the reorg resolver defensively.
	DefaultReorgCheckInterval = 50

	// DefaultScanTimeout bounds a single scan_blocks round trip.
	DefaultScanTimeout = 5 * time.Minute

	// DefaultMaxTimeoutRetries bounds consecutive scan_blocks timeouts
	// before the error propagates to the caller.
	DefaultMaxTimeoutRetries = 3

	// DefaultMaxErrorRetries bounds consecutive scan_blocks errors
	// (non-timeout) before the error propagates to the caller.
	DefaultMaxErrorRetries = 5

	// DefaultBackoffBase is the base of the exponential backoff applied
	// between scan_blocks error retries: base^min(retries, 5).
	DefaultBackoffBase = 2

	// DefaultMaxBackoff caps the computed backoff duration.
	DefaultMaxBackoff = 60 * time.Second

	// DefaultUnlockerInterval is how often UnlockerTask sweeps for
	// expired PendingTransactions.
	DefaultUnlockerInterval = 60 * time.Second

	// DefaultScanningOffsetDays nudges a derived birthday estimate a few
	// days earlier than the account's claimed birthday to absorb clock
	// skew between the wallet and the node that mined the birthday
	// block.
	DefaultScanningOffsetDays = 2

	// RPCMaxFrameSize is the maximum accepted JSON-RPC frame size the
	// remote node will accept for submit_transaction, per minotari
	// spec §6. Transactions whose serialized size would exceed this
	// (minus reserved headroom) are rejected locally before submission.
	RPCMaxFrameSize = 4 * 1024 * 1024

	// RPCFrameReserve is headroom subtracted from RPCMaxFrameSize before
	// comparing against a serialized transaction's size (10 KB json/http
	// overhead plus a 2 MB safety margin per spec §6).
	RPCFrameReserve = 10*1024 + 2*1024*1024

	// WebhookBaseBackoffSeconds is the base multiplier (seconds) of the webhook
	// retry schedule: 30 * 4^(attempt-1), capped at 24h, with ±10% jitter.
	WebhookBaseBackoffSeconds = 30

	// WebhookMaxAttempts is the number of delivery attempts after which a
	// webhook item is marked PermanentFailure.
	WebhookMaxAttempts = 10

	// WebhookMaxBackoff caps the computed webhook retry delay.
	WebhookMaxBackoff = 24 * time.Hour
)

// Config bundles every tunable and external collaborator handle needed to
// run the wallet backend's scanning and transaction pipelines. It mirrors
// watchtower.Config's flat, fully-exported shape. The caller sets the
// collaborator fields (DBPath, NodeBaseURL, secrets); zero-valued tunables
// are filled with package defaults by WithDefaults.
type Config struct {
	// DBPath is the filesystem path of the sqlite database file backing
	// the Store. It is created with its schema initialized if missing.
	DBPath string

	// NodeBaseURL is the base URL of the remote node's HTTP surface
	// (get_tip_info, transactions, get_height_at_time, json_rpc).
	NodeBaseURL string

	// RequiredConfirmations is the number of confirmations needed before
	// an output, transaction, or kernel is considered final.
	RequiredConfirmations uint64

	// MaxBroadcastAttempts bounds outbound transaction retries.
	MaxBroadcastAttempts int

	// BatchSize is the number of blocks requested per scan_blocks call.
	BatchSize uint64

	// PollInterval is the sleep between Continuous-mode scan attempts.
	PollInterval time.Duration

	// ReorgCheckInterval is how many blocks are processed between
	// defensive reorg re-checks.
	ReorgCheckInterval uint64

	// ScanTimeout bounds a single scan_blocks round trip.
	ScanTimeout time.Duration

	// MaxTimeoutRetries bounds consecutive scan_blocks timeouts.
	MaxTimeoutRetries int

	// MaxErrorRetries bounds consecutive scan_blocks errors.
	MaxErrorRetries int

	// UnlockerInterval is the UnlockerTask sweep cadence.
	UnlockerInterval time.Duration

	// ScanningOffsetDays nudges the estimated birthday height earlier.
	ScanningOffsetDays int

	// EpochAnchor is the unix-seconds timestamp the node's genesis block
	// was mined at, used to convert an account's birthday (in days since
	// epoch) into a seconds-since-epoch value for get_height_at_time.
	EpochAnchor int64

	// WebhookSecret signs outgoing webhook deliveries (HMAC-SHA256).
	WebhookSecret []byte

	// WebhookTargetURL is the user's endpoint webhook deliveries are
	// POSTed to. Empty disables webhook delivery.
	WebhookTargetURL string

	// WebhookEventTypes restricts which wallet event types are enqueued
	// for webhook delivery. An empty slice subscribes to everything.
	WebhookEventTypes []string
}

// WithDefaults returns a copy of cfg with zero-valued tunables replaced by
// package defaults, leaving caller-set fields (DBPath, NodeBaseURL, secrets)
// untouched.
func (cfg Config) WithDefaults() Config {
	if cfg.RequiredConfirmations == 0 {
		cfg.RequiredConfirmations = DefaultRequiredConfirmations
	}
	if cfg.MaxBroadcastAttempts == 0 {
		cfg.MaxBroadcastAttempts = DefaultMaxBroadcastAttempts
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ReorgCheckInterval == 0 {
		cfg.ReorgCheckInterval = DefaultReorgCheckInterval
	}
	if cfg.ScanTimeout == 0 {
		cfg.ScanTimeout = DefaultScanTimeout
	}
	if cfg.MaxTimeoutRetries == 0 {
		cfg.MaxTimeoutRetries = DefaultMaxTimeoutRetries
	}
	if cfg.MaxErrorRetries == 0 {
		cfg.MaxErrorRetries = DefaultMaxErrorRetries
	}
	if cfg.UnlockerInterval == 0 {
		cfg.UnlockerInterval = DefaultUnlockerInterval
	}
	if cfg.ScanningOffsetDays == 0 {
		cfg.ScanningOffsetDays = DefaultScanningOffsetDays
	}
	return cfg
}

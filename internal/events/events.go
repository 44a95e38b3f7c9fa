// Package events defines the typed wallet event variants described in
// minotari spec §6 and the in-process EventBus that fans them out to
// real-time consumers, mirroring the teacher's explicit-dependency
// redesign: the Daemon constructs one EventBus and hands it to the
// components rather than relying on a process-wide singleton channel
// (minotari spec §9).
package events

import (
	"time"

	"github.com/decred/slog"
)

// log is the package-level subsystem logger.
var log = slog.Disabled

// UseLogger sets the package-wide logger used by the event bus.
func UseLogger(logger slog.Logger) {
	log = logger
}

// Type identifies a wallet event variant by name.
type Type string

const (
	TypeOutputDetected              Type = "OutputDetected"
	TypeOutputConfirmed             Type = "OutputConfirmed"
	TypeOutputRolledBack            Type = "OutputRolledBack"
	TypeBlockRolledBack             Type = "BlockRolledBack"
	TypeTransactionBroadcast        Type = "TransactionBroadcast"
	TypeTransactionUnconfirmed      Type = "TransactionUnconfirmed"
	TypeTransactionConfirmed        Type = "TransactionConfirmed"
	TypeTransactionRejected         Type = "TransactionRejected"
	TypePendingTransactionCancelled Type = "PendingTransactionCancelled"

	// Scan-level events (minotari spec §6 "Scan events").
	TypeBlockProcessed      Type = "BlockProcessed"
	TypeTransactionsReady   Type = "TransactionsReady"
	TypeTransactionsUpdated Type = "TransactionsUpdated"
	TypeReorgDetected       Type = "ReorgDetected"
	TypeScanStatus          Type = "ScanStatus"
)

// OutputDetected is emitted when a new output is first observed for an
// account's view key.
type OutputDetected struct {
	Hash        [32]byte
	BlockHeight uint64
	BlockHash   [32]byte
	MemoParsed  string
	MemoHex     string
}

// OutputConfirmed is emitted when an output crosses the confirmation
// threshold.
type OutputConfirmed struct {
	Hash               [32]byte
	BlockHeight        uint64
	ConfirmationHeight uint64
	MemoParsed         string
	MemoHex            string
}

// OutputRolledBack is emitted when a reorg invalidates a previously
// detected output.
type OutputRolledBack struct {
	Hash                 [32]byte
	OriginalBlockHeight  uint64
	RolledBackAtHeight   uint64
}

// BlockRolledBack is emitted for every scanned tip block a reorg discards.
type BlockRolledBack struct {
	Height    uint64
	BlockHash [32]byte
}

// TransactionBroadcast is emitted when an outbound transaction is accepted
// by the node.
type TransactionBroadcast struct {
	TxID         string
	KernelExcess []byte
}

// TransactionUnconfirmed is emitted when an outbound transaction is located
// on-chain but hasn't yet reached the confirmation threshold.
type TransactionUnconfirmed struct {
	TxID          string
	MinedHeight   uint64
	Confirmations uint64
}

// TransactionConfirmed is emitted when an outbound transaction reaches the
// confirmation threshold.
type TransactionConfirmed struct {
	TxID               string
	MinedHeight        uint64
	ConfirmationHeight uint64
}

// TransactionRejected is emitted when an outbound transaction is
// permanently rejected.
type TransactionRejected struct {
	TxID   string
	Reason string
}

// PendingTransactionCancelled is emitted when the reorg resolver cancels a
// fund reservation. Expiry by the unlocker does not emit it.
type PendingTransactionCancelled struct {
	TxID   string
	Reason string
}

// ScanPhase enumerates the ScanStatus sub-states described in minotari spec
// §6.
type ScanPhase string

const (
	ScanPhaseStarted             ScanPhase = "Started"
	ScanPhaseProgress            ScanPhase = "Progress"
	ScanPhaseMoreBlocksAvailable ScanPhase = "MoreBlocksAvailable"
	ScanPhaseCompleted           ScanPhase = "Completed"
	ScanPhaseWaiting             ScanPhase = "Waiting"
	ScanPhasePausedMaxBlocks     ScanPhase = "PausedMaxBlocksReached"
	ScanPhasePausedCancelled     ScanPhase = "PausedCancelled"
)

// ScanStatus is emitted as the scan coordinator's loop transitions phases.
type ScanStatus struct {
	Phase            ScanPhase
	BlocksScanned    uint64
	MaxBlocks        uint64
	CurrentHeight    uint64
}

// ReorgDetected is emitted once per account whenever the reorg resolver
// finds at least one reorged tip.
type ReorgDetected struct {
	ResumeHeight              uint64
	RolledBackFromHeight      uint64
	RolledBackBlocksCount     uint64
	InvalidatedOutputHashes   [][32]byte
	CancelledTransactionIDs   []string
}

// BlockProcessed is emitted after a block's transaction commits.
type BlockProcessed struct {
	Height uint64
}

// DisplayedTxSummary is the minimal identifying projection of a
// DisplayedTransaction carried by TransactionsReady/TransactionsUpdated,
// enough for a UI to know what to refetch without re-deriving it from the
// full record.
type DisplayedTxSummary struct {
	ID        [8]byte
	Direction string
	Status    string
	Amount    uint64
}

// TransactionsReady is emitted when the displayed-tx processor creates new
// DisplayedTransactions while processing a block.
type TransactionsReady struct {
	Transactions []DisplayedTxSummary
}

// TransactionsUpdated is emitted when the displayed-tx processor updates
// existing DisplayedTransactions (new confirmations, matched change, etc.)
// while processing a block.
type TransactionsUpdated struct {
	Transactions []DisplayedTxSummary
}

// Event is one envelope delivered on the bus: AccountID plus a typed,
// JSON-serializable Data payload matching one of the structs above.
type Event struct {
	AccountID int64
	Type      Type
	Data      interface{}
	CreatedAt time.Time
}

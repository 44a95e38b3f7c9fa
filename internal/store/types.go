package store

import "time"

// OutputStatus enumerates the lifecycle states of a detected UTXO.
type OutputStatus uint8

const (
	// OutputUnspent is a detected, spendable UTXO.
	OutputUnspent OutputStatus = iota

	// OutputLocked is reserved by a PendingTransaction.
	OutputLocked

	// OutputSpent has a matching Input recorded against it.
	OutputSpent
)

// String implements fmt.Stringer.
func (s OutputStatus) String() string {
	switch s {
	case OutputUnspent:
		return "unspent"
	case OutputLocked:
		return "locked"
	case OutputSpent:
		return "spent"
	default:
		return "unknown"
	}
}

// Account identifies a scan subject: a view key (plus, for child/tapplet
// accounts, a derivation relationship to a parent account).
type Account struct {
	ID                   int64
	FriendlyName         string
	EncryptedViewKey     []byte
	EncryptedSpendPubKey []byte
	Nonce                []byte
	ViewKeyFingerprint   [32]byte
	Birthday             uint64

	// Parent is non-nil when this account is a derived child ("tapplet")
	// account. A child shares its parent's spend key and birthday but
	// carries its own independently-derived view key.
	Parent *ParentRef
}

// ParentRef identifies the parent of a derived child account.
type ParentRef struct {
	AccountID int64
}

// Output is a detected UTXO belonging to an account's view key.
type Output struct {
	ID                   int64
	AccountID            int64
	OutputHash           [32]byte
	MinedHeight          uint64
	MinedBlockHash       [32]byte
	Value                uint64
	WalletOutputBlob     []byte
	MemoParsed           string
	MemoHex              string
	ConfirmedHeight      *uint64
	Status               OutputStatus
	LockedByRequestID    *string
	LockedAt             *time.Time
	DeletedAt            *time.Time
	DeletedInBlockHeight *uint64
}

// Input is a local output that was observed being spent on-chain.
type Input struct {
	ID                int64
	AccountID         int64
	OutputID          int64
	MinedInBlockHeight uint64
	MinedInBlockHash  [32]byte
	MinedTimestamp    time.Time
	DeletedAt         *time.Time
}

// BalanceChange is an atomic ledger entry caused by exactly one Output
// (a credit) or exactly one Input (a debit).
type BalanceChange struct {
	ID                     int64
	AccountID              int64
	CausedByOutputID       *int64
	CausedByInputID        *int64
	BalanceCredit          uint64
	BalanceDebit           uint64
	EffectiveHeight        uint64
	EffectiveDate          time.Time
	Description            string
	ClaimedRecipient       string
	ClaimedSender          string
	ClaimedFee             uint64
	ClaimedAmount          uint64
	ClaimedMemo            string
	IsReversal             bool
	ReversalOfBalanceChange *int64
	IsReversed             bool
}

// ScannedTipBlock is one row of the audit trail of the locally-scanned chain
// tip, used by the reorg resolver to find the fork point against the
// remote node's headers.
type ScannedTipBlock struct {
	ID     int64
	AccountID int64
	Height uint64
	Hash   [32]byte
}

// PendingTransactionStatus enumerates the fund-reservation lifecycle.
type PendingTransactionStatus uint8

const (
	PendingStatusPending PendingTransactionStatus = iota
	PendingStatusCompleted
	PendingStatusCancelled
	PendingStatusExpired
)

func (s PendingTransactionStatus) String() string {
	switch s {
	case PendingStatusPending:
		return "pending"
	case PendingStatusCompleted:
		return "completed"
	case PendingStatusCancelled:
		return "cancelled"
	case PendingStatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// PendingTransaction represents a fund reservation made by FundLocker ahead
// of transaction construction.
type PendingTransaction struct {
	ID                   string // UUID
	IdempotencyKey       *string
	AccountID            int64
	Status               PendingTransactionStatus
	RequiresChangeOutput bool
	TotalValue           uint64
	FeeWithoutChange     uint64
	FeeWithChange        uint64
	ExpiresAt            time.Time
	CreatedAt            time.Time
}

// CompletedTransactionStatus enumerates the outbound broadcast lifecycle.
type CompletedTransactionStatus uint8

const (
	CompletedStatusCompleted CompletedTransactionStatus = iota
	CompletedStatusBroadcast
	CompletedStatusMinedUnconfirmed
	CompletedStatusMinedConfirmed
	CompletedStatusRejected
	CompletedStatusCancelled
)

func (s CompletedTransactionStatus) String() string {
	switch s {
	case CompletedStatusCompleted:
		return "completed"
	case CompletedStatusBroadcast:
		return "broadcast"
	case CompletedStatusMinedUnconfirmed:
		return "mined_unconfirmed"
	case CompletedStatusMinedConfirmed:
		return "mined_confirmed"
	case CompletedStatusRejected:
		return "rejected"
	case CompletedStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CompletedTransaction tracks a signed, (attempted-)broadcast transaction
// from submission through confirmation.
type CompletedTransaction struct {
	ID                    string // UUID
	PendingTxID           string
	AccountID             int64
	Status                CompletedTransactionStatus
	LastRejectedReason    string
	KernelExcess          []byte
	SentPayref            []byte
	SentOutputHash        *[32]byte
	MinedHeight           *uint64
	MinedBlockHash        *[32]byte
	ConfirmationHeight    *uint64
	BroadcastAttempts     int
	SerializedTransaction []byte
}

// TxDirection is the direction of a DisplayedTransaction relative to the
// wallet.
type TxDirection uint8

const (
	DirectionIncoming TxDirection = iota
	DirectionOutgoing
)

func (d TxDirection) String() string {
	if d == DirectionOutgoing {
		return "outgoing"
	}
	return "incoming"
}

// TxSource classifies how a DisplayedTransaction's funds originated.
type TxSource uint8

const (
	SourceTransfer TxSource = iota
	SourceCoinbase
	SourceOneSided
	SourceUnknown
)

func (s TxSource) String() string {
	switch s {
	case SourceCoinbase:
		return "coinbase"
	case SourceOneSided:
		return "one_sided"
	case SourceUnknown:
		return "unknown"
	default:
		return "transfer"
	}
}

// TxStatus is the confirmation/lifecycle status of a DisplayedTransaction.
type TxStatus uint8

const (
	TxStatusPending TxStatus = iota
	TxStatusUnconfirmed
	TxStatusConfirmed
	TxStatusCancelled
	TxStatusReorganized
	TxStatusRejected
)

func (s TxStatus) String() string {
	switch s {
	case TxStatusPending:
		return "pending"
	case TxStatusUnconfirmed:
		return "unconfirmed"
	case TxStatusConfirmed:
		return "confirmed"
	case TxStatusCancelled:
		return "cancelled"
	case TxStatusReorganized:
		return "reorganized"
	case TxStatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// BlockchainInfo captures a DisplayedTransaction's on-chain position.
type BlockchainInfo struct {
	Height        uint64
	Timestamp     time.Time
	Confirmations uint64
	BlockHash     [32]byte
}

// DisplayedTxDetails carries the full input/output provenance of a
// DisplayedTransaction.
type DisplayedTxDetails struct {
	InputIDs         []int64
	OutputIDs        []int64
	TotalCredit      uint64
	TotalDebit       uint64
	SentOutputHashes [][32]byte
	SentPayrefs      [][]byte
}

// DisplayedTransaction is the user-facing, reconstructed view of one
// logical transaction. Its ID is a deterministic hash of the account's view
// key and a representative output hash so it survives restarts and rescans
// without duplication (minotari spec §9).
type DisplayedTransaction struct {
	ID                   [8]byte
	AccountID            int64
	Direction            TxDirection
	Source               TxSource
	Status               TxStatus
	Amount               uint64
	Message              string
	CounterpartyAddress  string
	Blockchain           BlockchainInfo
	Fee                  uint64
	Details              DisplayedTxDetails
}

// WebhookStatus enumerates webhook delivery attempt outcomes.
type WebhookStatus uint8

const (
	WebhookPending WebhookStatus = iota
	WebhookSuccess
	WebhookFailed
	WebhookPermanentFailure
)

func (s WebhookStatus) String() string {
	switch s {
	case WebhookSuccess:
		return "success"
	case WebhookFailed:
		return "failed"
	case WebhookPermanentFailure:
		return "permanent_failure"
	default:
		return "pending"
	}
}

// WebhookQueueItem is a durable, retry-capable webhook delivery job.
type WebhookQueueItem struct {
	ID           int64
	EventID      int64
	EventType    string
	Payload      []byte
	TargetURL    string
	Status       WebhookStatus
	AttemptCount int
	NextRetryAt  time.Time
	LastError    string
}

// WalletEvent is an immutable audit entry recording one observable state
// change. Payload holds the JSON-encoded typed event variant described in
// minotari spec §6.
type WalletEvent struct {
	ID        int64
	AccountID int64
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

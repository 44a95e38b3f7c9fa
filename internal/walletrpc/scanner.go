// Package walletrpc declares the narrow, out-of-scope boundary interfaces
// this wallet backend is built against: the external UTXO scanner library
// that recognizes outputs belonging to a view key, and the external signing
// library that builds and signs transactions. Neither is implemented here —
// per minotari spec §1 and §4.2 both are supplied by the embedder — but the
// rest of this module is written entirely against these interfaces so that
// a real implementation can be substituted without touching scancoord,
// blockproc, or txbuilder.
package walletrpc

import "context"

// WalletOutput is one (hash, output_blob, scanner_index) triple the
// scanner recognized as belonging to one of its tagged view keys.
// IsCoinbase is the scanner's own determination from the output's
// features (minotari spec §4.2) and is authoritative: nothing downstream
// re-derives coinbase-ness from block shape.
type WalletOutput struct {
	Hash         [32]byte
	OutputBlob   []byte
	ScannerIndex int
	IsCoinbase   bool
}

// BlockScanResult mirrors the scanner library's BlockScanResult
// (minotari spec §4.2): one block's worth of wallet-relevant outputs and
// spent-input hashes, for every tagged key at once.
type BlockScanResult struct {
	Height         uint64
	BlockHash      [32]byte
	MinedTimestamp uint64
	WalletOutputs  []WalletOutput
	Inputs         [][32]byte
}

// ScanConfig bounds one scan_blocks call.
type ScanConfig struct {
	StartHeight uint64
	// EndHeight, if non-nil, caps the scan; nil scans to the chain tip.
	EndHeight *uint64
	BatchSize int
}

// BlockHeader is the result of get_header_by_height.
type BlockHeader struct {
	Hash [32]byte
}

// Scanner recognizes outputs and inputs belonging to one or more tagged
// view keys. Implementations are supplied by the embedder (minotari spec
// §1, §4.2); internal/scanadapter is the only caller.
type Scanner interface {
	// AddKey tags the scanner with an additional view key, returning the
	// ScannerIndex future BlockScanResults will report for matches
	// against it (minotari spec §4.2 "multi-key scanning").
	AddKey(viewKey []byte) (scannerIndex int, err error)

	// ScanBlocks scans blocks starting at cfg.StartHeight in batches of
	// cfg.BatchSize, returning every block result plus whether more
	// blocks remain beyond what was returned.
	ScanBlocks(ctx context.Context, cfg ScanConfig) (results []BlockScanResult, moreBlocks bool, err error)

	// GetHeaderByHeight fetches the header hash at height, or nil if the
	// node has no block at that height.
	GetHeaderByHeight(ctx context.Context, height uint64) (*BlockHeader, error)

	// GetTipInfo returns the scanner's view of the chain tip height.
	GetTipInfo(ctx context.Context) (bestBlockHeight uint64, err error)

	// Close releases any resources (e.g. native scanner handles) held by
	// the implementation.
	Close() error
}

// ScannerFactory constructs a fresh Scanner; the scan coordinator calls it
// once at the start of every Run (minotari spec §4.9).
type ScannerFactory interface {
	NewScanner() (Scanner, error)
}

// UnsignedOutput is a recipient output the signer must construct and
// balance with change before signing.
type UnsignedOutput struct {
	Amount              uint64
	RecipientAddress    string
	Memo                []byte
}

// SelectedInput is one input the fund locker has already reserved for a
// transaction.
type SelectedInput struct {
	OutputHash []byte
	Value      uint64
	ScriptKey  []byte
}

// UnsignedTransactionRequest is everything the Signer needs to build and
// sign a complete transaction (minotari spec §4.7 "prepare_unsigned").
type UnsignedTransactionRequest struct {
	Inputs       []SelectedInput
	Outputs      []UnsignedOutput
	FeePerGram   uint64
	ChangeScript []byte
}

// SignedTransaction is the Signer's output: a serialized transaction ready
// for submission, plus the extracted fields the store needs to track it.
type SignedTransaction struct {
	Serialized    []byte
	KernelExcess  []byte
	SentPayref    []byte
	SentOutputHash *[32]byte
	Fee           uint64
}

// Signer builds and signs transactions on behalf of the wallet's spend
// authority. Implementations are supplied by the embedder (minotari spec
// §1). Nothing in this module calls BuildAndSign: internal/txbuilder builds
// the UnsignedTransactionRequest and takes the resulting SignedTransaction.
type Signer interface {
	// BuildAndSign assembles a balanced, signed transaction from the
	// given inputs and outputs.
	BuildAndSign(ctx context.Context, req UnsignedTransactionRequest) (*SignedTransaction, error)
}

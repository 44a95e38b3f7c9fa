package blockproc

import (
	"encoding/binary"
	"encoding/hex"
	"unicode/utf8"
)

// memoTag distinguishes the two shapes an output's payment-id blob can
// take (minotari spec §4.5 step 2b, §10 "Payment-id / memo").
const (
	memoTagPlain           byte = 0x00
	memoTagTransactionInfo byte = 0x01
)

// TransactionInfo is change metadata a sender embeds in a change output's
// payment-id so the receiving wallet (itself) can reconstruct the original
// send as a single outgoing DisplayedTransaction (minotari spec §4.5.2b).
type TransactionInfo struct {
	ClaimedSender string
	ClaimedAmount uint64
	ClaimedFee    uint64
}

// ParseOutputMemo re-derives a stored output's memo/TransactionInfo from
// its wallet_output_blob, used by displaytx when rebuilding an
// Accumulator from persisted balance changes (minotari spec §4.5.2).
func ParseOutputMemo(walletOutputBlob []byte) (memoParsed string, memoHex string, txInfo *TransactionInfo) {
	return parseMemo(walletOutputBlob)
}

// parseMemo decodes a raw payment-id blob into its hex form, a UTF-8
// parsed form (when the blob is plain free-text), and — if the blob is
// tagged as change metadata — a TransactionInfo.
func parseMemo(raw []byte) (memoParsed string, memoHex string, txInfo *TransactionInfo) {
	memoHex = hex.EncodeToString(raw)
	if len(raw) == 0 {
		return "", memoHex, nil
	}

	switch raw[0] {
	case memoTagTransactionInfo:
		if info, ok := decodeTransactionInfo(raw[1:]); ok {
			return "", memoHex, info
		}
		return "", memoHex, nil
	case memoTagPlain:
		body := raw[1:]
		if utf8.Valid(body) {
			return string(body), memoHex, nil
		}
		return "", memoHex, nil
	default:
		// Unrecognized tag byte: best-effort treat the whole blob as
		// free text if it happens to be valid UTF-8.
		if utf8.Valid(raw) {
			return string(raw), memoHex, nil
		}
		return "", memoHex, nil
	}
}

// decodeTransactionInfo decodes a fixed-layout change-metadata body:
// 8-byte big-endian claimed_amount, 8-byte big-endian claimed_fee, then
// the remaining bytes as the claimed sender address (UTF-8).
func decodeTransactionInfo(body []byte) (*TransactionInfo, bool) {
	if len(body) < 16 {
		return nil, false
	}
	amount := binary.BigEndian.Uint64(body[0:8])
	fee := binary.BigEndian.Uint64(body[8:16])
	sender := body[16:]
	if !utf8.Valid(sender) {
		return nil, false
	}
	return &TransactionInfo{
		ClaimedSender: string(sender),
		ClaimedAmount: amount,
		ClaimedFee:    fee,
	}, true
}

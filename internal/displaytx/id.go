package displaytx

import "github.com/decred/dcrd/chaincfg/chainhash"

// deterministicID computes the stable 8-byte DisplayedTransaction id
// H(view_key ∥ representative_output_hash), truncated, so the same
// transaction always gets the same id across restarts and rescans
// (minotari spec §9 "Transaction ID stability").
func deterministicID(viewKeyFingerprint [32]byte, representativeOutputHash [32]byte) [8]byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, viewKeyFingerprint[:]...)
	buf = append(buf, representativeOutputHash[:]...)
	full := chainhash.HashB(buf)

	var id [8]byte
	copy(id[:], full[:8])
	return id
}

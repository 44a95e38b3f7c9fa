package main

import (
	"fmt"

	"github.com/decred/minotari/internal/walletrpc"
)

// linkedScannerAndSigner returns the concrete walletrpc.ScannerFactory and
// walletrpc.Signer this deployment links against. Neither is implemented in
// this module: the UTXO-scanning library and the transaction-signing
// library are embedder-supplied external dependencies (minotari spec §1,
// §4.2), the same way lnd's daemon requires a chain backend to be wired in
// at the same seam. A production build replaces this file (or gates an
// alternate one behind a build tag) with the real construction call.
func linkedScannerAndSigner() (walletrpc.ScannerFactory, walletrpc.Signer, error) {
	return nil, nil, fmt.Errorf("no scanner/signer library linked: replace cmd/minotariwalletd/scanner_link.go with your deployment's implementation")
}

// Package testutil holds small shared fixtures for unit tests across the
// wallet backend: an on-disk sqlite store in a scratch directory, and a
// minimal account row to satisfy the schema's foreign keys.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/decred/minotari/internal/store"
)

// NewStore opens a fresh sqlite-backed Store in t's temp directory. The
// store is closed automatically when t completes.
func NewStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("testutil: open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// NewAccount inserts a minimal account row (no real view key material) and
// returns its id, for tests that only need a valid foreign key.
func NewAccount(t *testing.T, st *store.Store, friendlyName string) int64 {
	t.Helper()

	id, err := st.CreateAccount(context.Background(), &store.Account{
		FriendlyName:         friendlyName,
		EncryptedViewKey:     []byte("ciphertext"),
		EncryptedSpendPubKey: []byte("spend-pubkey"),
		Nonce:                []byte("nonce"),
		Birthday:             0,
	})
	if err != nil {
		t.Fatalf("testutil: create account: %v", err)
	}
	return id
}

// Package keyvault provides a concrete scancoord.KeyDecryptor backed by a
// single master key, used when no external KMS is configured. An account's
// encrypted_view_key/nonce columns are treated as an AES-256-GCM
// ciphertext/nonce pair (minotari spec §3 "Account").
package keyvault

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/decred/minotari/internal/store"
)

// MasterKeyVault decrypts view keys with a single AES-256-GCM master key
// held in process memory. Suitable for single-operator deployments; a
// multi-tenant or HSM-backed deployment should implement
// scancoord.KeyDecryptor against its own key-management service instead.
type MasterKeyVault struct {
	aead cipher.AEAD
}

// New constructs a MasterKeyVault from a 32-byte master key.
func New(masterKey []byte) (*MasterKeyVault, error) {
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("keyvault: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keyvault: new gcm: %w", err)
	}
	return &MasterKeyVault{aead: aead}, nil
}

// DecryptViewKey implements scancoord.KeyDecryptor.
func (v *MasterKeyVault) DecryptViewKey(account *store.Account) ([]byte, error) {
	if len(account.Nonce) != v.aead.NonceSize() {
		return nil, fmt.Errorf("keyvault: account %d: bad nonce size %d, want %d",
			account.ID, len(account.Nonce), v.aead.NonceSize())
	}
	plaintext, err := v.aead.Open(nil, account.Nonce, account.EncryptedViewKey, nil)
	if err != nil {
		return nil, fmt.Errorf("keyvault: account %d: decrypt view key: %w", account.ID, err)
	}
	return plaintext, nil
}

// Seal encrypts viewKey under the caller-supplied nonce (NonceSize bytes),
// producing the ciphertext stored as an account's encrypted_view_key
// alongside that nonce. It does not generate a nonce. Used by account import
// tooling, not by the scan path.
func (v *MasterKeyVault) Seal(viewKey []byte, nonce []byte) []byte {
	return v.aead.Seal(nil, nonce, viewKey, nil)
}

// NonceSize reports the nonce length Seal/DecryptViewKey expect.
func (v *MasterKeyVault) NonceSize() int {
	return v.aead.NonceSize()
}

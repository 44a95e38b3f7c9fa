package keyvault

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/decred/minotari/internal/store"
)

func TestSealThenDecryptRoundTrips(t *testing.T) {
	masterKey := make([]byte, 32)
	_, err := rand.Read(masterKey)
	require.NoError(t, err)

	v, err := New(masterKey)
	require.NoError(t, err)

	nonce := make([]byte, v.NonceSize())
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	viewKey := []byte("a 32-byte-ish view key material!")
	ciphertext := v.Seal(viewKey, nonce)

	account := &store.Account{
		ID:               7,
		EncryptedViewKey: ciphertext,
		Nonce:            nonce,
	}

	got, err := v.DecryptViewKey(account)
	require.NoError(t, err)
	require.Equal(t, viewKey, got)
}

func TestDecryptViewKeyRejectsWrongNonceSize(t *testing.T) {
	masterKey := make([]byte, 32)
	v, err := New(masterKey)
	require.NoError(t, err)

	account := &store.Account{ID: 1, EncryptedViewKey: []byte("x"), Nonce: []byte("tooshort")}
	_, err = v.DecryptViewKey(account)
	require.Error(t, err)
}

func TestDecryptViewKeyRejectsTamperedCiphertext(t *testing.T) {
	masterKey := make([]byte, 32)
	v, err := New(masterKey)
	require.NoError(t, err)

	nonce := make([]byte, v.NonceSize())
	ciphertext := v.Seal([]byte("secret view key"), nonce)
	ciphertext[0] ^= 0xff

	account := &store.Account{ID: 1, EncryptedViewKey: ciphertext, Nonce: nonce}
	_, err = v.DecryptViewKey(account)
	require.Error(t, err)
}

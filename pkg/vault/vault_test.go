package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAESGCMVault_RoundTrips(t *testing.T) {
	v, err := NewAESGCMVault([]byte("0123456789abcdef0123456789abcdef"[:32]))
	require.NoError(t, err)

	ciphertext, err := v.Encrypt([]byte("top secret api key"))
	require.NoError(t, err)

	plaintext, err := v.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "top secret api key", string(plaintext))
}

func TestAESGCMVault_RejectsTamperedCiphertext(t *testing.T) {
	v, err := NewAESGCMVault([]byte("0123456789abcdef0123456789abcdef"[:32]))
	require.NoError(t, err)

	ciphertext, err := v.Encrypt([]byte("secret"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = v.Decrypt(ciphertext)
	assert.Error(t, err)
}

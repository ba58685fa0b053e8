// Package vault is the external collaborator contract for symmetric
// encryption of secret byte strings (spec.md §1, §6). The interface is
// the real contract; AESGCMVault is a local reference implementation for
// development and tests, not a production key-management system.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// Vault encrypts and decrypts opaque byte strings, e.g. third-party
// provider credentials before they are written to the secrets table.
type Vault interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// AESGCMVault implements Vault with AES-256-GCM over a fixed key. There is
// no third-party KMS client in the example corpus to ground a wired
// implementation on, so this uses the standard library directly
// (see DESIGN.md).
type AESGCMVault struct {
	aead cipher.AEAD
}

func NewAESGCMVault(key []byte) (*AESGCMVault, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: create gcm: %w", err)
	}
	return &AESGCMVault{aead: aead}, nil
}

func (v *AESGCMVault) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: generate nonce: %w", err)
	}
	return v.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (v *AESGCMVault) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := v.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("vault: ciphertext too short")
	}
	nonce, payload := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: decrypt: %w", err)
	}
	return plaintext, nil
}

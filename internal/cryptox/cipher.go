package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"passvault/internal/common"
)

// VaultCipher encrypts and decrypts vault unlock secrets with AES-GCM under a
// process-wide key injected at construction. The nonce is generated per call
// and returned separately so the caller can store it next to the user record.
type VaultCipher struct {
	aead cipher.AEAD
}

// NewVaultCipher builds a cipher from the given key. The key must be 16, 24,
// or 32 bytes (AES-128/192/256).
func NewVaultCipher(key []byte) (*VaultCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	return &VaultCipher{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce and returns the
// ciphertext (including the GCM tag) and the nonce.
func (c *VaultCipher) Encrypt(plaintext []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("nonce generation: %w", err)
	}

	ciphertext = c.aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext with the given nonce. Any tampering, wrong nonce,
// or wrong key fails the tag check and yields common.ErrDecryptionFailed with
// no plaintext.
func (c *VaultCipher) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	if len(nonce) != c.aead.NonceSize() {
		return nil, common.ErrDecryptionFailed
	}
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	return plaintext, nil
}

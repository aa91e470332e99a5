// Package cryptutil wraps the symmetric-encryption and content-hashing
// primitives the file-processing core treats as pure library calls:
// AES-256-GCM for at-rest encryption of uploaded buffers, and SHA-256 for
// the content hash attached to upload results.
package cryptutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrCiphertextTooShort is returned by Decrypt when the input is shorter
// than the GCM nonce size and therefore cannot be a valid ciphertext.
var ErrCiphertextTooShort = errors.New("ciphertext shorter than nonce size")

// Box encrypts and decrypts buffers with AES-256-GCM under a single key.
type Box struct {
	aead cipher.AEAD
}

// NewBox builds a Box from a 32-byte AES-256 key.
func NewBox(key []byte) (*Box, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCM: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Encrypt seals plaintext, prefixing the output with a freshly generated nonce.
func (b *Box) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return b.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a buffer produced by Encrypt, splitting its leading nonce
// back off before unsealing.
func (b *Box) Decrypt(ciphertext []byte) ([]byte, error) {
	n := b.aead.NonceSize()
	if len(ciphertext) < n {
		return nil, ErrCiphertextTooShort
	}
	nonce, sealed := ciphertext[:n], ciphertext[n:]
	plaintext, err := b.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// ContentHash returns the lowercase hex SHA-256 digest of buf, attached to
// upload results as a content-addressable integrity check.
func ContentHash(buf []byte) string {
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

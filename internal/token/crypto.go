package token

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters. The salt is fixed: the secret is already
// process-wide and unique per deployment.
const (
	kdfIterations = 100_000
	kdfKeyLen     = 32
)

var kdfSalt = []byte("email-kanban-token-store")

// newAEAD derives an AES-256-GCM cipher from the process-wide secret.
func newAEAD(secret string) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(secret), kdfSalt, kdfIterations, kdfKeyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return aead, nil
}

// seal encrypts plaintext, prepending the random nonce to the result.
func seal(aead cipher.AEAD, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts a blob produced by seal.
func open(aead cipher.AEAD, blob []byte) ([]byte, error) {
	if len(blob) < aead.NonceSize() {
		return nil, fmt.Errorf("credential blob too short")
	}
	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting credential: %w", err)
	}
	return plaintext, nil
}

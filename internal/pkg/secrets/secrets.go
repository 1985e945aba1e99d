package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

var ErrDecrypt = errors.New("secret decryption failed")

const nonceSize = 24

// Sealer encrypts per-tenant signing secrets at rest with a single master
// key. The key is derived from the configured passphrase.
type Sealer struct {
	key [32]byte
}

// NewSealer derives a sealing key from the master passphrase.
func NewSealer(masterKey string) (*Sealer, error) {
	if masterKey == "" {
		return nil, errors.New("encryption key is not configured")
	}
	return &Sealer{key: sha256.Sum256([]byte(masterKey))}, nil
}

// Seal encrypts plaintext with a fresh random nonce. The nonce is prepended
// to the box.
func (s *Sealer) Seal(plaintext string) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key), nil
}

// Open decrypts a box produced by Seal.
func (s *Sealer) Open(box []byte) (string, error) {
	if len(box) <= nonceSize {
		return "", ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])

	plaintext, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

// NewTenantSecret generates random signing-key material for a new tenant.
func NewTenantSecret() (string, error) {
	buf := make([]byte, 48)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("generate tenant secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

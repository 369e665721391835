// Package kms seals message bodies of SSE-enabled queues before they reach
// the storage backend. It uses AES-GCM with a random nonce prepended to the
// ciphertext.
package kms

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the length of keys produced by GenerateKey (AES-256).
const KeySize = 32

// ErrCiphertextTooShort is returned when a ciphertext cannot even hold a nonce.
var ErrCiphertextTooShort = errors.New("kms: ciphertext too short")

// Encrypt encrypts the plaintext using AES-GCM with the provided key.
// It generates a random nonce and prepends it to the ciphertext.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt. It expects the nonce to be prepended to the ciphertext.
func Decrypt(key, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrCiphertextTooShort
	}
	nonce, body := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// GenerateKey returns a random AES-256 key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// ParseKey decodes a base64 (standard encoding) AES key of 16, 24 or 32 bytes.
func ParseKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("kms: decode key: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("kms: key must be 16, 24 or 32 bytes, got %d", len(key))
	}
}

// Sealer binds a key to Encrypt/Decrypt.
type Sealer struct {
	key []byte
}

// NewSealer validates the key and returns a Sealer.
func NewSealer(key []byte) (*Sealer, error) {
	if _, err := aes.NewCipher(key); err != nil {
		return nil, fmt.Errorf("kms: %w", err)
	}
	return &Sealer{key: append([]byte(nil), key...)}, nil
}

// Seal encrypts plaintext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	return Encrypt(s.key, plaintext)
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(ciphertext []byte) ([]byte, error) {
	return Decrypt(s.key, ciphertext)
}

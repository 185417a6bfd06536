// Package msgcrypto encodes message bodies for storage and transport.
//
// Every party that holds the shared secret derives the same key, so the
// scheme hides content from anyone without the secret but offers no
// confidentiality against the server or other clients that know it.
package msgcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the AES-256 key length derived from the shared secret.
	KeySize = 32

	separator = ":"
)

var (
	// ErrDecodeFailure means the ciphertext is unreadable with this codec.
	ErrDecodeFailure = errors.New("message decode failure")
	// ErrEmptySecret is returned when no shared secret is configured.
	ErrEmptySecret = errors.New("shared secret is empty")

	kdfSalt = []byte("pinchat/message-codec/v1")
	kdfInfo = []byte("aes-256-gcm message key")
)

// Codec is a symmetric encoder keyed once from a shared secret.
// It is safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewCodec derives the message key from secret and returns a ready codec.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Codec{aead: aead, rand: rand.Reader}, nil
}

// DeriveKey expands secret into a KeySize key with HKDF-SHA256.
// The derivation is deterministic so every party computes the same key.
func DeriveKey(secret string) ([]byte, error) {
	reader := hkdf.New(sha256.New, []byte(secret), kdfSalt, kdfInfo)
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive message key: %w", err)
	}
	return key, nil
}

// Encode seals plaintext and returns "hex(nonce):hex(ciphertext)".
func (c *Codec) Encode(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + separator + hex.EncodeToString(sealed), nil
}

// Decode opens ciphertext produced by Encode. Any structural problem,
// wrong key or tampering yields an error wrapping ErrDecodeFailure.
func (c *Codec) Decode(ciphertext string) (string, error) {
	nonceHex, bodyHex, ok := strings.Cut(ciphertext, separator)
	if !ok {
		return "", fmt.Errorf("%w: missing nonce separator", ErrDecodeFailure)
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", fmt.Errorf("%w: bad nonce", ErrDecodeFailure)
	}
	body, err := hex.DecodeString(bodyHex)
	if err != nil || len(body) < c.aead.Overhead() {
		return "", fmt.Errorf("%w: bad body", ErrDecodeFailure)
	}
	plain, err := c.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecodeFailure)
	}
	return string(plain), nil
}

// Valid reports whether ciphertext decodes with this codec.
func (c *Codec) Valid(ciphertext string) bool {
	_, err := c.Decode(ciphertext)
	return err == nil
}

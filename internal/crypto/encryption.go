// Package crypto derives a symmetric key from the configured passphrase and
// provides authenticated encrypt/decrypt for values stored on LLMConfig.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// ErrInvalidCiphertext is returned by Decrypt for any tampered, wrong-key,
// or malformed input.
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

const (
	pbkdf2Iterations = 100_000
	keyLength        = 32
	nonceLength      = 12
)

// fixed salt, matching the source implementation's use of a static,
// application-wide salt rather than a per-value one; the passphrase itself
// (ENCRYPTION_KEY) is the actual secret.
var pbkdf2Salt = []byte("whatsapp-agent-salt-v1")

// Encryptor encrypts and decrypts LLM API keys with AES-256-GCM, deriving
// its key once at construction from a configured passphrase.
type Encryptor struct {
	gcm cipher.AEAD
}

// New derives the AEAD key from passphrase via PBKDF2-HMAC-SHA256.
func New(passphrase string) (*Encryptor, error) {
	if len(passphrase) < 32 {
		return nil, fmt.Errorf("encryption passphrase must be at least 32 characters")
	}

	key := pbkdf2.Key([]byte(passphrase), pbkdf2Salt, pbkdf2Iterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to construct cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to construct AEAD: %w", err)
	}

	return &Encryptor{gcm: gcm}, nil
}

// Encrypt returns a URL-safe base64 token of nonce||ciphertext||tag. Empty
// input round-trips to empty. Two encryptions of the same plaintext differ
// because the nonce is freshly randomized each call.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any tamper, wrong key, or malformed token yields
// ErrInvalidCiphertext.
func (e *Encryptor) Decrypt(token string) (string, error) {
	if token == "" {
		return "", nil
	}

	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	if len(raw) < nonceLength {
		return "", ErrInvalidCiphertext
	}

	nonce, ciphertext := raw[:nonceLength], raw[nonceLength:]
	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	return string(plaintext), nil
}

// GenerateKey returns a fresh 32-byte urlsafe-base64 passphrase suitable for
// ENCRYPTION_KEY.
func GenerateKey() (string, error) {
	raw := make([]byte, keyLength)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

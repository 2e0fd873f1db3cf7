package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const encPrefix = "enc:"

// Store encrypts and decrypts sensitive config values (API keys, app
// secrets) with ChaCha20-Poly1305. Encrypted values are stored as
// "enc:" + hex(nonce || ciphertext || tag).
type Store struct {
	key [32]byte
}

// NewStore loads the key at keyPath, generating a fresh one (0600, 64 hex
// chars) when the file does not exist yet.
func NewStore(keyPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(keyPath), 0755); err != nil {
		return nil, fmt.Errorf("secrets: create key directory: %w", err)
	}

	data, err := os.ReadFile(keyPath)
	if err == nil {
		decoded, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil || len(decoded) != 32 {
			return nil, errors.New("secrets: invalid key file (expected 64 hex characters)")
		}
		s := &Store{}
		copy(s.key[:], decoded)
		return s, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("secrets: read key file: %w", err)
	}

	s := &Store{}
	if _, err := rand.Read(s.key[:]); err != nil {
		return nil, fmt.Errorf("secrets: generate key: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(s.key[:])), 0600); err != nil {
		return nil, fmt.Errorf("secrets: write key file: %w", err)
	}
	return s, nil
}

// Encrypt leaves empty and already-encrypted values unchanged.
func (s *Store) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || IsEncrypted(plaintext) {
		return plaintext, nil
	}

	aead, err := chacha20poly1305.NewX(s.key[:])
	if err != nil {
		return "", fmt.Errorf("secrets: create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets: generate nonce: %w", err)
	}
	return encPrefix + hex.EncodeToString(aead.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

// Decrypt leaves plaintext (non-prefixed) values unchanged.
func (s *Store) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	raw, err := hex.DecodeString(value[len(encPrefix):])
	if err != nil {
		return "", fmt.Errorf("secrets: hex decode: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.key[:])
	if err != nil {
		return "", fmt.Errorf("secrets: create cipher: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("secrets: ciphertext too short")
	}
	plaintext, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("secrets: decrypt: %w", err)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether the value carries the "enc:" prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encPrefix)
}

// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package config

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// credentialEncryptionSalt binds derived keys to this use case.
	credentialEncryptionSalt = "skysync-app-passwords"

	// credentialEncryptionInfo is the HKDF info parameter for key derivation.
	credentialEncryptionInfo = "credential-encryption-v1"

	// aesKeySize is the size of the AES key in bytes (256 bits).
	aesKeySize = 32

	// gcmNonceSize is the size of the GCM nonce in bytes.
	gcmNonceSize = 12
)

// tokenDelimiter separates the nonce from the sealed payload inside a token.
var tokenDelimiter = []byte("::")

var (
	// ErrEmptySecret is returned when an empty encryption secret is provided.
	ErrEmptySecret = errors.New("encryption secret cannot be empty")

	// ErrEmptyPlaintext is returned when attempting to encrypt empty data.
	ErrEmptyPlaintext = errors.New("plaintext cannot be empty")

	// ErrEncryptionUnavailable is returned when no key has been set up.
	ErrEncryptionUnavailable = errors.New("encryption unavailable: no key configured")

	// ErrEncryptionFailed is returned when sealing fails (e.g. no entropy).
	ErrEncryptionFailed = errors.New("encryption failed")

	// ErrInvalidFormat is returned for empty or non-base64 tokens.
	ErrInvalidFormat = errors.New("invalid ciphertext format")

	// ErrCorruptedData is returned when a token decodes but its layout is wrong.
	ErrCorruptedData = errors.New("corrupted ciphertext data")

	// ErrDecryptionFailed is returned when authentication of the ciphertext fails.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or authentication tag")
)

// CredentialEncryptor provides AES-256-GCM encryption for app passwords at rest.
// The key is derived from a process-wide secret with HKDF-SHA256, so the raw
// secret never appears in any token.
//
// Token layout: base64(nonce || "::" || ciphertext+tag)
//
// A nil *CredentialEncryptor is valid and reports ErrEncryptionUnavailable.
type CredentialEncryptor struct {
	cipher cipher.AEAD
}

// NewCredentialEncryptor creates an encryptor keyed from secret.
func NewCredentialEncryptor(secret string) (*CredentialEncryptor, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key, err := deriveKey(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &CredentialEncryptor{cipher: gcm}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (e *CredentialEncryptor) Encrypt(plaintext string) (string, error) {
	if e == nil || e.cipher == nil {
		return "", ErrEncryptionUnavailable
	}
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: nonce: %s", ErrEncryptionFailed, err.Error())
	}

	out := make([]byte, 0, gcmNonceSize+len(tokenDelimiter)+len(plaintext)+e.cipher.Overhead())
	out = append(out, nonce...)
	out = append(out, tokenDelimiter...)
	out = e.cipher.Seal(out, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a token produced by Encrypt.
func (e *CredentialEncryptor) Decrypt(token string) (string, error) {
	if e == nil || e.cipher == nil {
		return "", ErrEncryptionUnavailable
	}
	if token == "" {
		return "", ErrInvalidFormat
	}

	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed: %s", ErrInvalidFormat, err.Error())
	}

	// nonce + delimiter + at least 1 byte + tag
	minLength := gcmNonceSize + len(tokenDelimiter) + 1 + e.cipher.Overhead()
	if len(data) < minLength {
		return "", ErrCorruptedData
	}
	if !bytes.Equal(data[gcmNonceSize:gcmNonceSize+len(tokenDelimiter)], tokenDelimiter) {
		return "", fmt.Errorf("%w: missing delimiter", ErrCorruptedData)
	}

	nonce := data[:gcmNonceSize]
	sealed := data[gcmNonceSize+len(tokenDelimiter):]

	plaintext, err := e.cipher.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// ValidateEncryptionSetup performs a round-trip self test.
func (e *CredentialEncryptor) ValidateEncryptionSetup() error {
	const probe = "encryption-validation-test"

	encrypted, err := e.Encrypt(probe)
	if err != nil {
		return fmt.Errorf("encryption test failed: %w", err)
	}

	decrypted, err := e.Decrypt(encrypted)
	if err != nil {
		return fmt.Errorf("decryption test failed: %w", err)
	}

	if decrypted != probe {
		return errors.New("round-trip validation failed: data mismatch")
	}
	return nil
}

// deriveKey derives a 256-bit AES key from the secret using HKDF-SHA256.
func deriveKey(secret string) ([]byte, error) {
	hkdfReader := hkdf.New(
		sha256.New,
		[]byte(secret),
		[]byte(credentialEncryptionSalt),
		[]byte(credentialEncryptionInfo),
	)

	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("failed to read HKDF output: %w", err)
	}
	return key, nil
}

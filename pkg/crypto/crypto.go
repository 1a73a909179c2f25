// Package crypto provides the cryptographic primitives for ivault.
//
// This package implements AES-256-GCM authenticated encryption, Argon2id
// key derivation and HKDF-SHA256 subkey derivation.
//
// # Security Features
//
//   - AES-256-GCM authenticated encryption
//   - Argon2id key derivation (64MB memory, 3 iterations, 4 threads)
//   - Cryptographically secure random nonce and key generation
//   - Secure memory wiping for sensitive data
//
// # Example Usage
//
//	// Generate a random file-vault key
//	key, err := crypto.GenerateKey()
//
//	// Seal plaintext into a combined nonce ‖ ciphertext ‖ tag blob
//	blob, err := crypto.Seal(key, plaintext)
//
//	// Open the combined blob
//	plaintext, err := crypto.Open(key, blob)
//
//	// Securely wipe sensitive data
//	crypto.SecureWipe(key)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// Argon2id parameters following OWASP recommendations.
const (
	// Argon2Memory is the memory cost in KiB (64MB).
	Argon2Memory = 64 * 1024

	// Argon2Time is the number of iterations.
	Argon2Time = 3

	// Argon2Threads is the degree of parallelism.
	Argon2Threads = 4

	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12

	// TagLength is the length of the GCM authentication tag in bytes.
	TagLength = 16
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrDecryptionFailed indicates decryption or authentication tag verification failed.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, authentication tag verification failed")

	// ErrCiphertextTooShort indicates the blob is shorter than nonce plus tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
)

// GenerateKey returns a fresh random 32-byte key from the OS CSPRNG.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate key: %w", err)
	}
	return key, nil
}

// GenerateSalt returns n bytes of cryptographically secure random salt.
func GenerateSalt(n int) ([]byte, error) {
	salt := make([]byte, n)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives a 256-bit key from a passphrase using Argon2id.
//
// The salt should be at least 16 bytes of cryptographically secure random
// data. Returns a 32-byte key suitable for AES-256 encryption.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, Argon2Time, Argon2Memory, Argon2Threads, KeyLength)
}

// DeriveSubkey derives a purpose-bound 32-byte subkey from secret using
// HKDF-SHA256. The info string domain-separates subkeys derived from the
// same secret (e.g. "ivault-audit" vs "ivault-export-mac").
func DeriveSubkey(secret, info []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, info)
	key := make([]byte, KeyLength)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("crypto: failed to derive subkey: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext with AES-256-GCM and returns the combined blob
// nonce ‖ ciphertext ‖ tag. A fresh random 12-byte nonce is generated for
// every call.
func Seal(key, plaintext []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	nonce := make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	// Seal appends ciphertext ‖ tag to the nonce, yielding the combined blob.
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open verifies and decrypts a combined nonce ‖ ciphertext ‖ tag blob
// produced by Seal. Returns ErrDecryptionFailed if the authentication tag
// does not verify (tampered data or wrong key).
func Open(key, blob []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}

	if len(blob) < NonceLength+TagLength {
		return nil, ErrCiphertextTooShort
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	nonce, ciphertext := blob[:NonceLength], blob[NonceLength:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive ensures the write operations are not optimized away
	// by the compiler since b is still "in use" after the loop.
	runtime.KeepAlive(b)
}

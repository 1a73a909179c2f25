// Package keystore stores per-item opaque byte payloads in the operating
// system keyring (macOS Keychain, Secret Service, Windows Credential
// Manager via zalando/go-keyring). Entries are scoped to one service
// name, live on this device only and survive reboots; the OS gates access
// behind device unlock. The store is content-agnostic: callers serialize
// typed payloads before saving and deserialize after reading.
package keystore

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service name scoping all vault entries.
const DefaultService = "com.ispacehq.ivault"

// Sentinel errors. All wrap the backend's own error text as the failure
// code, so callers can distinguish genuine backend failures from absence
// (absence is reported via the ok return of Read, never as an error).
var (
	ErrReadFailed   = errors.New("keystore: read failed")
	ErrWriteFailed  = errors.New("keystore: write failed")
	ErrDeleteFailed = errors.New("keystore: delete failed")
)

// Store is a handle to the OS keyring under one service name.
type Store struct {
	service string
}

// New returns a Store scoped to the given keyring service name. An empty
// service falls back to DefaultService.
func New(service string) *Store {
	if service == "" {
		service = DefaultService
	}
	return &Store{service: service}
}

// Save stores data under itemID with upsert semantics: any existing entry
// is removed first, so a retried save is idempotent. Values are base64
// encoded because keyring backends store strings, not raw bytes.
func (s *Store) Save(data []byte, itemID string) error {
	// Delete-then-set mirrors the keyring's generic-password upsert; a
	// missing previous entry is not a failure.
	if err := keyring.Delete(s.service, itemID); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	if err := keyring.Set(s.service, itemID, encoded); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// Read returns the payload stored under itemID. The second return value
// reports presence: an absent entry returns (nil, false, nil). An error
// is returned only for genuine backend failures.
func (s *Store) Read(itemID string) ([]byte, bool, error) {
	encoded, err := keyring.Get(s.service, itemID)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return data, true, nil
}

// Delete removes the entry under itemID. Deleting an absent entry
// succeeds as a no-op; an error is returned only for genuine backend
// failures.
func (s *Store) Delete(itemID string) error {
	if err := keyring.Delete(s.service, itemID); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	return nil
}

// Package filevault encrypts document payloads at rest. Each payload is
// sealed with AES-256-GCM into one combined nonce ‖ ciphertext ‖ tag blob
// and written as a single file in an application-private directory.
//
// The encryption key is generated randomly on first use and kept in the
// OS keyring; key material never appears in source or in any derived
// constant.
package filevault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ispacehq/ivault/pkg/crypto"
	"github.com/ispacehq/ivault/pkg/keystore"
)

const (
	// KeyEntryID is the keystore entry holding the file vault key.
	KeyEntryID = "filevault.key"

	// FilesDirName is the subdirectory holding encrypted files.
	FilesDirName = "files"

	// FileExt is appended to derived file names.
	FileExt = ".enc"

	// FileMode restricts blob files to the owner.
	FileMode = 0600

	// DirMode restricts the files directory to the owner.
	DirMode = 0700
)

// Sentinel errors.
var (
	// ErrNotFound indicates no file exists under the given name.
	ErrNotFound = errors.New("filevault: file not found")

	// ErrAuthenticationFailed indicates the blob's authentication tag did
	// not verify: the file was tampered with or sealed under another key.
	ErrAuthenticationFailed = errors.New("filevault: authentication failed")

	// ErrInvalidFileName indicates the file name would escape the vault
	// directory.
	ErrInvalidFileName = errors.New("filevault: invalid file name")
)

// Vault seals and opens document files under one directory and one key.
type Vault struct {
	dir  string
	keys *keystore.Store

	mu  sync.Mutex
	key []byte // loaded lazily from the keystore
}

// New returns a Vault storing blobs under dataDir/files and keeping its
// key in the given keystore.
func New(dataDir string, keys *keystore.Store) *Vault {
	return &Vault{
		dir:  filepath.Join(dataDir, FilesDirName),
		keys: keys,
	}
}

// FileNameForItem derives the deterministic blob file name for an item
// id. Deriving from the id avoids collisions and makes cleanup on delete
// unambiguous.
func FileNameForItem(id uuid.UUID) string {
	return id.String() + FileExt
}

// loadKey returns the vault key, generating and enrolling it in the
// keystore on first use.
func (v *Vault) loadKey() ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.key != nil {
		return v.key, nil
	}

	key, ok, err := v.keys.Read(KeyEntryID)
	if err != nil {
		return nil, fmt.Errorf("filevault: failed to load key: %w", err)
	}
	if !ok {
		key, err = crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		if err := v.keys.Save(key, KeyEntryID); err != nil {
			return nil, fmt.Errorf("filevault: failed to enroll key: %w", err)
		}
	}
	if len(key) != crypto.KeyLength {
		return nil, crypto.ErrInvalidKeyLength
	}

	v.key = key
	return key, nil
}

// Key returns the vault key, for deriving purpose-bound subkeys (audit
// chain, export MAC). Callers must not retain or log it.
func (v *Vault) Key() ([]byte, error) {
	return v.loadKey()
}

func (v *Vault) pathFor(fileName string) (string, error) {
	if fileName == "" || fileName != filepath.Base(fileName) || strings.Contains(fileName, "..") {
		return "", ErrInvalidFileName
	}
	return filepath.Join(v.dir, fileName), nil
}

// Save seals plaintext and writes the combined blob to fileName inside
// the vault directory, replacing any previous blob.
func (v *Vault) Save(plaintext []byte, fileName string) error {
	path, err := v.pathFor(fileName)
	if err != nil {
		return err
	}

	key, err := v.loadKey()
	if err != nil {
		return err
	}

	blob, err := crypto.Seal(key, plaintext)
	if err != nil {
		return fmt.Errorf("filevault: failed to seal %q: %w", fileName, err)
	}

	if err := os.MkdirAll(v.dir, DirMode); err != nil {
		return fmt.Errorf("filevault: failed to create files directory: %w", err)
	}
	if err := os.WriteFile(path, blob, FileMode); err != nil {
		return fmt.Errorf("filevault: failed to write %q: %w", fileName, err)
	}
	return nil
}

// Read opens the blob stored under fileName and returns the verified
// plaintext. Returns ErrNotFound if no such file exists and
// ErrAuthenticationFailed if the blob fails tag verification; corrupted
// plaintext is never returned.
func (v *Vault) Read(fileName string) ([]byte, error) {
	path, err := v.pathFor(fileName)
	if err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("filevault: failed to read %q: %w", fileName, err)
	}

	key, err := v.loadKey()
	if err != nil {
		return nil, err
	}

	plaintext, err := crypto.Open(key, blob)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) || errors.Is(err, crypto.ErrCiphertextTooShort) {
			return nil, ErrAuthenticationFailed
		}
		return nil, err
	}
	return plaintext, nil
}

// Delete removes the blob stored under fileName. Deleting an absent file
// is a no-op.
func (v *Vault) Delete(fileName string) error {
	path, err := v.pathFor(fileName)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("filevault: failed to delete %q: %w", fileName, err)
	}
	return nil
}

// Package export provides encrypted vault export and restore.
package export

import "errors"

var (
	// ErrInvalidMagic indicates the file is not an ivault export.
	ErrInvalidMagic = errors.New("invalid export file: magic number mismatch")

	// ErrUnsupportedVersion indicates the export format version is newer
	// than this build supports.
	ErrUnsupportedVersion = errors.New("unsupported export format version")

	// ErrIntegrityFailed indicates the HMAC trailer did not verify.
	ErrIntegrityFailed = errors.New("export integrity check failed: HMAC mismatch")

	// ErrDecryptionFailed indicates a wrong passphrase or corrupted data.
	ErrDecryptionFailed = errors.New("export decryption failed: wrong passphrase or corrupted data")

	// ErrEmptyPassphrase indicates an empty passphrase was provided.
	ErrEmptyPassphrase = errors.New("passphrase cannot be empty")

	// ErrConflict indicates an item with the same name already exists
	// during a restore with ConflictError.
	ErrConflict = errors.New("restore conflict: item already exists")
)

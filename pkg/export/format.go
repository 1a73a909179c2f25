package export

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ispacehq/ivault/pkg/catalog"
)

// MagicNumber identifies ivault export files: "IVLT_EXP".
var MagicNumber = [8]byte{'I', 'V', 'L', 'T', '_', 'E', 'X', 'P'}

// FormatVersion is the current export format version.
const FormatVersion = 1

// KDFParams records the Argon2id parameters used to derive the export
// keys, so future builds can restore older exports.
type KDFParams struct {
	Salt        []byte `json:"salt"`
	Memory      uint32 `json:"memory"`
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
}

// Header is the plaintext export file metadata.
type Header struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	KDFParams KDFParams `json:"kdf_params"`
	ItemCount int       `json:"item_count"`
}

// ExportedItem carries one vault item: its catalog record, its decrypted
// payload, and for documents the decrypted content bytes. The whole
// payload is re-encrypted under the export keys before it touches disk.
type ExportedItem struct {
	Item    catalog.StoredItem `json:"item"`
	Details json.RawMessage    `json:"details"`
	Content []byte             `json:"content,omitempty"`
}

// Payload is the encrypted body of an export file.
type Payload struct {
	Items []ExportedItem `json:"items"`
}

// WriteHeader writes the magic number and JSON header.
func WriteHeader(w io.Writer, header *Header) error {
	if _, err := w.Write(MagicNumber[:]); err != nil {
		return fmt.Errorf("export: failed to write magic number: %w", err)
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("export: failed to marshal header: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(headerJSON))); err != nil {
		return fmt.Errorf("export: failed to write header length: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("export: failed to write header: %w", err)
	}
	return nil
}

// ReadHeader reads and validates the magic number and JSON header.
func ReadHeader(r io.Reader) (*Header, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("export: failed to read magic number: %w", err)
	}
	if magic != MagicNumber {
		return nil, ErrInvalidMagic
	}

	var headerLen uint32
	if err := binary.Read(r, binary.BigEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("export: failed to read header length: %w", err)
	}
	if headerLen > 1024*1024 {
		return nil, fmt.Errorf("export: header too large: %d bytes", headerLen)
	}

	headerJSON := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, fmt.Errorf("export: failed to read header: %w", err)
	}

	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("export: failed to unmarshal header: %w", err)
	}
	if header.Version > FormatVersion {
		return nil, fmt.Errorf("%w: got %d, max supported %d",
			ErrUnsupportedVersion, header.Version, FormatVersion)
	}
	return &header, nil
}

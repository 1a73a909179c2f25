package export

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ispacehq/ivault/pkg/catalog"
	"github.com/ispacehq/ivault/pkg/crypto"
	"github.com/ispacehq/ivault/pkg/vault"
)

// ConflictMode specifies how a restore treats an item whose display name
// already exists in the vault.
type ConflictMode int

const (
	// ConflictError aborts the restore on the first name collision.
	ConflictError ConflictMode = iota
	// ConflictSkip leaves existing items alone and restores the rest.
	ConflictSkip
	// ConflictOverwrite replaces existing items with the exported ones.
	ConflictOverwrite
)

// RestoreResult reports what a restore changed.
type RestoreResult struct {
	ItemsRestored int
	ItemsSkipped  int
}

// VerifyResult reports what a verify pass found without touching the vault.
type VerifyResult struct {
	Valid     bool
	Version   int
	CreatedAt time.Time
	ItemCount int
	Error     string
}

// Export writes an encrypted snapshot of every vault item to w. The
// session must be unlocked: payloads are decrypted from their stores and
// re-encrypted under keys derived from the passphrase with a fresh salt.
//
// Layout: magic ‖ header ‖ ciphertext-length ‖ ciphertext ‖ HMAC, with
// the trailer covering everything before it.
func Export(w io.Writer, svc *vault.Service, passphrase []byte) error {
	salt, err := crypto.GenerateSalt(SaltLength)
	if err != nil {
		return err
	}
	encKey, macKey, err := DeriveExportKeys(passphrase, salt)
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	payload, err := collectItems(svc)
	if err != nil {
		return err
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("export: failed to marshal payload: %w", err)
	}
	defer crypto.SecureWipe(payloadBytes)

	ciphertext, err := crypto.Seal(encKey, payloadBytes)
	if err != nil {
		return fmt.Errorf("export: failed to encrypt payload: %w", err)
	}

	header := &Header{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		KDFParams: KDFParams{
			Salt:        salt,
			Memory:      crypto.Argon2Memory,
			Iterations:  crypto.Argon2Time,
			Parallelism: crypto.Argon2Threads,
		},
		ItemCount: len(payload.Items),
	}

	var buf bytes.Buffer
	if err := WriteHeader(&buf, header); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(ciphertext))); err != nil {
		return fmt.Errorf("export: failed to write ciphertext length: %w", err)
	}
	if _, err := buf.Write(ciphertext); err != nil {
		return fmt.Errorf("export: failed to buffer ciphertext: %w", err)
	}

	mac := ComputeHMAC(buf.Bytes(), macKey)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("export: failed to write export: %w", err)
	}
	if _, err := w.Write(mac); err != nil {
		return fmt.Errorf("export: failed to write HMAC trailer: %w", err)
	}
	return nil
}

func collectItems(svc *vault.Service) (*Payload, error) {
	payload := &Payload{Items: []ExportedItem{}}
	for _, item := range svc.Items() {
		details, err := svc.Details(item)
		if err != nil {
			return nil, fmt.Errorf("export: failed to read %q: %w", item.Name, err)
		}
		raw, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("export: failed to encode %q: %w", item.Name, err)
		}

		exported := ExportedItem{Item: item, Details: raw}
		if item.Type == catalog.TypeDocument {
			content, err := svc.ReadDocument(item)
			if err != nil {
				return nil, fmt.Errorf("export: failed to read document %q: %w", item.Name, err)
			}
			exported.Content = content
		}
		payload.Items = append(payload.Items, exported)
	}
	return payload, nil
}

// open reads and authenticates an export stream, returning the header
// and the decrypted payload.
func open(r io.Reader, passphrase []byte) (*Header, *Payload, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("export: failed to read stream: %w", err)
	}
	if len(raw) < HMACLength {
		return nil, nil, ErrInvalidMagic
	}
	body, trailer := raw[:len(raw)-HMACLength], raw[len(raw)-HMACLength:]

	br := bytes.NewReader(body)
	header, err := ReadHeader(br)
	if err != nil {
		return nil, nil, err
	}

	encKey, macKey, err := DeriveExportKeys(passphrase, header.KDFParams.Salt)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	if !VerifyHMAC(body, trailer, macKey) {
		return nil, nil, ErrIntegrityFailed
	}

	var ciphertextLen uint32
	if err := binary.Read(br, binary.BigEndian, &ciphertextLen); err != nil {
		return nil, nil, fmt.Errorf("export: failed to read ciphertext length: %w", err)
	}
	ciphertext := make([]byte, ciphertextLen)
	if _, err := io.ReadFull(br, ciphertext); err != nil {
		return nil, nil, fmt.Errorf("export: failed to read ciphertext: %w", err)
	}

	payloadBytes, err := crypto.Open(encKey, ciphertext)
	if err != nil {
		return nil, nil, ErrDecryptionFailed
	}
	defer crypto.SecureWipe(payloadBytes)

	var payload Payload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, nil, fmt.Errorf("export: failed to unmarshal payload: %w", err)
	}
	return header, &payload, nil
}

// Verify checks an export stream's integrity and passphrase without
// modifying the vault.
func Verify(r io.Reader, passphrase []byte) (*VerifyResult, error) {
	header, payload, err := open(r, passphrase)
	if err != nil {
		return &VerifyResult{Valid: false, Error: err.Error()}, err
	}
	return &VerifyResult{
		Valid:     true,
		Version:   header.Version,
		CreatedAt: header.CreatedAt,
		ItemCount: len(payload.Items),
	}, nil
}

// Restore imports the items of an export stream into the vault. The
// session must be unlocked. Restored items receive fresh ids; conflicts
// are detected by display name and handled per mode.
func Restore(r io.Reader, svc *vault.Service, passphrase []byte, mode ConflictMode) (*RestoreResult, error) {
	_, payload, err := open(r, passphrase)
	if err != nil {
		return nil, err
	}

	existing := make(map[string]catalog.StoredItem)
	for _, item := range svc.Items() {
		existing[item.Name] = item
	}

	result := &RestoreResult{}
	for _, exported := range payload.Items {
		if prev, ok := existing[exported.Item.Name]; ok {
			switch mode {
			case ConflictError:
				return result, fmt.Errorf("%w: %q", ErrConflict, exported.Item.Name)
			case ConflictSkip:
				result.ItemsSkipped++
				continue
			case ConflictOverwrite:
				if err := svc.DeleteItem(prev.ID); err != nil {
					return result, fmt.Errorf("export: failed to replace %q: %w", prev.Name, err)
				}
			}
		}

		if err := restoreItem(svc, exported); err != nil {
			return result, err
		}
		result.ItemsRestored++
	}
	return result, nil
}

func restoreItem(svc *vault.Service, exported ExportedItem) error {
	name := exported.Item.Name
	switch exported.Item.Type {
	case catalog.TypePassword:
		var d vault.PasswordDetails
		if err := json.Unmarshal(exported.Details, &d); err != nil {
			return fmt.Errorf("export: corrupt payload for %q: %w", name, err)
		}
		_, err := svc.AddItem(name, d)
		return err
	case catalog.TypeCard:
		var d vault.CardDetails
		if err := json.Unmarshal(exported.Details, &d); err != nil {
			return fmt.Errorf("export: corrupt payload for %q: %w", name, err)
		}
		_, err := svc.AddItem(name, d)
		return err
	case catalog.TypeDocument:
		var d vault.DocumentDetails
		if err := json.Unmarshal(exported.Details, &d); err != nil {
			return fmt.Errorf("export: corrupt payload for %q: %w", name, err)
		}
		_, err := svc.AddDocument(name, d, exported.Content)
		return err
	default:
		return fmt.Errorf("export: unknown item type %q for %q", exported.Item.Type, name)
	}
}

// Package vault orchestrates the item catalog, the OS keystore, the
// encrypted file vault and the session lock into the vault's item
// operations: add, read, delete, list and search.
//
// Ordering invariant: on add, the secret payload is written before the
// catalog entry; on delete, the payload is removed before the catalog
// entry. A failure therefore strands at most an orphan payload (invisible
// and unreachable), never a catalog entry pointing at decryptable content
// that should be gone.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ispacehq/ivault/internal/logger"
	"github.com/ispacehq/ivault/pkg/audit"
	"github.com/ispacehq/ivault/pkg/catalog"
	"github.com/ispacehq/ivault/pkg/filevault"
	"github.com/ispacehq/ivault/pkg/keystore"
	"github.com/ispacehq/ivault/pkg/session"
	"github.com/ispacehq/ivault/pkg/settings"
)

// Sentinel errors.
var (
	// ErrNotFound indicates the item does not exist: it is missing from
	// the catalog, or its payload is missing from the backing store.
	ErrNotFound = errors.New("vault: item not found")

	// ErrEncoding indicates a payload could not be serialized.
	ErrEncoding = errors.New("vault: failed to encode payload")

	// ErrDecoding indicates a stored payload could not be deserialized.
	ErrDecoding = errors.New("vault: failed to decode payload")

	// ErrInvalidPayload indicates the payload type does not match the
	// operation or the item's type.
	ErrInvalidPayload = errors.New("vault: payload does not match item type")

	// ErrInvalidName indicates an empty display name.
	ErrInvalidName = errors.New("vault: item name must not be empty")
)

// Options wires a Service's collaborators.
type Options struct {
	Settings *settings.Store
	Secrets  *keystore.Store
	Files    *filevault.Vault
	Session  *session.Lock

	// Audit is optional; nil disables audit logging.
	Audit *audit.Logger
	// Log is optional; nil falls back to a no-op logger.
	Log *logger.Logger
}

// Service is the vault's item-level API. All methods are safe for
// concurrent use.
type Service struct {
	settings *settings.Store
	catalog  *catalog.Catalog
	secrets  *keystore.Store
	files    *filevault.Vault
	session  *session.Lock
	audit    *audit.Logger
	log      *logger.Logger

	mu    sync.Mutex
	items []catalog.StoredItem
}

// NewService builds a Service over the given stores, loads the catalog
// and discards any in-progress draft left over from a previous run.
func NewService(opts Options) (*Service, error) {
	if opts.Settings == nil || opts.Secrets == nil || opts.Files == nil || opts.Session == nil {
		return nil, errors.New("vault: settings, secrets, files and session are required")
	}
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}

	s := &Service{
		settings: opts.Settings,
		catalog:  catalog.New(opts.Settings),
		secrets:  opts.Secrets,
		files:    opts.Files,
		session:  opts.Session,
		audit:    opts.Audit,
		log:      log,
	}
	s.items = s.catalog.Load()

	// A draft that survived the previous process is stale.
	if err := s.ClearDraft(); err != nil {
		log.Warn().Err(err).Msg("failed to clear stale draft")
	}
	return s, nil
}

// Items returns the full catalog in insertion order.
func (s *Service) Items() []catalog.StoredItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]catalog.StoredItem(nil), s.items...)
}

// ListByType returns the items of the given type in insertion order.
func (s *Service) ListByType(t catalog.ItemType) []catalog.StoredItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return catalog.FilterByType(s.items, t)
}

// Search returns the items of the given type whose name matches query
// case-insensitively. An empty query returns the whole type partition.
func (s *Service) Search(t catalog.ItemType, query string) []catalog.StoredItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return catalog.FilterByName(catalog.FilterByType(s.items, t), query)
}

// AddItem stores a password or card item: the payload type determines
// the item type. Document items carry content and go through
// AddDocument. The payload is written to the keystore before the
// catalog entry is appended; on a payload write failure the catalog is
// untouched.
func (s *Service) AddItem(name string, details Details) (catalog.StoredItem, error) {
	var t catalog.ItemType
	switch details.(type) {
	case PasswordDetails:
		t = catalog.TypePassword
	case CardDetails:
		t = catalog.TypeCard
	default:
		return catalog.StoredItem{}, ErrInvalidPayload
	}
	return s.add(name, t, details, nil)
}

// AddDocument stores a document item: its metadata goes to the keystore
// and its content is sealed into the file vault under a name derived
// from the new item's id. The given FileName is kept as display
// metadata only.
func (s *Service) AddDocument(name string, details DocumentDetails, content []byte) (catalog.StoredItem, error) {
	if !details.DocumentType.Valid() {
		return catalog.StoredItem{}, ErrInvalidPayload
	}
	return s.add(name, catalog.TypeDocument, details, content)
}

func (s *Service) add(name string, t catalog.ItemType, details Details, content []byte) (catalog.StoredItem, error) {
	if name == "" {
		return catalog.StoredItem{}, ErrInvalidName
	}
	if err := s.session.RequireUnlocked(); err != nil {
		return catalog.StoredItem{}, err
	}

	item := catalog.StoredItem{ID: uuid.New(), Name: name, Type: t}

	data, err := json.Marshal(details)
	if err != nil {
		return catalog.StoredItem{}, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	// Payload first. The item is invisible until the catalog entry lands.
	if err := s.secrets.Save(data, item.ID.String()); err != nil {
		s.auditError(audit.OpItemAdd, name, "keystore_write", err)
		return catalog.StoredItem{}, err
	}
	if t == catalog.TypeDocument {
		if err := s.files.Save(content, filevault.FileNameForItem(item.ID)); err != nil {
			// Undo the keystore half so no orphan metadata remains.
			if derr := s.secrets.Delete(item.ID.String()); derr != nil {
				s.log.Warn().Err(derr).Str("item_id", item.ID.String()).Msg("failed to undo keystore write")
			}
			s.auditError(audit.OpItemAdd, name, "filevault_write", err)
			return catalog.StoredItem{}, err
		}
	}

	s.mu.Lock()
	s.items = append(s.items, item)
	if err := s.catalog.Save(s.items); err != nil {
		// The persisted catalog still lacks the item; keep memory in sync.
		// The payload stays behind as an unreachable orphan.
		s.items = s.items[:len(s.items)-1]
		s.mu.Unlock()
		s.auditError(audit.OpItemAdd, name, "catalog_write", err)
		return catalog.StoredItem{}, err
	}
	s.mu.Unlock()

	if err := s.ClearDraft(); err != nil {
		s.log.Warn().Err(err).Msg("failed to clear draft after save")
	}
	s.auditSuccess(audit.OpItemAdd, name)
	s.log.Info().Str("item_id", item.ID.String()).Str("type", string(t)).Msg("item added")
	return item, nil
}

// Details returns the decrypted payload of an item. The session must be
// unlocked. The concrete type matches the item's type: PasswordDetails,
// CardDetails or DocumentDetails.
func (s *Service) Details(item catalog.StoredItem) (Details, error) {
	if err := s.session.RequireUnlocked(); err != nil {
		return nil, err
	}

	data, ok, err := s.secrets.Read(item.ID.String())
	if err != nil {
		s.auditError(audit.OpItemGet, item.Name, "keystore_read", err)
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	details, err := decodeDetails(item.Type, data)
	if err != nil {
		s.auditError(audit.OpItemGet, item.Name, "decode", err)
		return nil, err
	}
	s.auditSuccess(audit.OpItemGet, item.Name)
	return details, nil
}

func decodeDetails(t catalog.ItemType, data []byte) (Details, error) {
	switch t {
	case catalog.TypePassword:
		var d PasswordDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
		}
		return d, nil
	case catalog.TypeCard:
		var d CardDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
		}
		return d, nil
	case catalog.TypeDocument:
		var d DocumentDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
		}
		return d, nil
	default:
		return nil, ErrInvalidPayload
	}
}

// DeleteItem removes an item and its payload. The payload is deleted
// first: if that fails the catalog entry is retained so the item stays
// visible and the deletion can be retried. An id not present in the
// catalog returns ErrNotFound.
func (s *Service) DeleteItem(id uuid.UUID) error {
	if err := s.session.RequireUnlocked(); err != nil {
		return err
	}

	s.mu.Lock()
	idx := -1
	for i, item := range s.items {
		if item.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	item := s.items[idx]
	s.mu.Unlock()

	// Payload first; keep the catalog entry if any payload removal fails.
	if item.Type == catalog.TypeDocument {
		if err := s.files.Delete(filevault.FileNameForItem(item.ID)); err != nil {
			s.auditError(audit.OpItemDelete, item.Name, "filevault_delete", err)
			return err
		}
	}
	if err := s.secrets.Delete(item.ID.String()); err != nil {
		s.auditError(audit.OpItemDelete, item.Name, "keystore_delete", err)
		return err
	}

	s.mu.Lock()
	// Re-find under lock; a concurrent delete may have won.
	for i, it := range s.items {
		if it.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	err := s.catalog.Save(s.items)
	s.mu.Unlock()
	if err != nil {
		s.auditError(audit.OpItemDelete, item.Name, "catalog_write", err)
		return err
	}

	s.auditSuccess(audit.OpItemDelete, item.Name)
	s.log.Info().Str("item_id", id.String()).Msg("item deleted")
	return nil
}

func (s *Service) hasItem(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.ID == id {
			return true
		}
	}
	return false
}

func (s *Service) auditSuccess(op, name string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogSuccess(op, name); err != nil {
		s.log.Warn().Err(err).Str("op", op).Msg("audit write failed")
	}
}

func (s *Service) auditError(op, name, code string, cause error) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogError(op, name, code, cause.Error()); err != nil {
		s.log.Warn().Err(err).Str("op", op).Msg("audit write failed")
	}
}

// Package catalog maintains the plaintext item catalog: an ordered list
// of stored item records (id, display name, type) persisted as one JSON
// blob in the settings store. The catalog never holds secret content.
package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/ispacehq/ivault/pkg/settings"
)

// CatalogKey is the fixed settings key holding the serialized item list.
const CatalogKey = "storedItemsList"

// ItemType classifies a stored item. Every item belongs to exactly one type.
type ItemType string

const (
	TypePassword ItemType = "password"
	TypeCard     ItemType = "card"
	TypeDocument ItemType = "document"
)

// Valid reports whether t is one of the known item types.
func (t ItemType) Valid() bool {
	switch t {
	case TypePassword, TypeCard, TypeDocument:
		return true
	}
	return false
}

// StoredItem is one catalog record. Items are immutable once created;
// identity is the ID.
type StoredItem struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Type ItemType  `json:"type"`
}

// Catalog reads and writes the ordered item list.
type Catalog struct {
	store *settings.Store
}

// New returns a Catalog persisting through the given settings store.
func New(store *settings.Store) *Catalog {
	return &Catalog{store: store}
}

// Load returns the stored item list in insertion order. An absent or
// corrupt catalog blob yields an empty list, never an error: corruption
// is recoverable by starting over, and must not brick the vault.
func (c *Catalog) Load() []StoredItem {
	data, ok, err := c.store.Get(CatalogKey)
	if err != nil || !ok {
		return []StoredItem{}
	}

	var items []StoredItem
	if err := json.Unmarshal(data, &items); err != nil {
		return []StoredItem{}
	}
	if items == nil {
		items = []StoredItem{}
	}
	return items
}

// Save serializes the full ordered item list and overwrites the catalog
// blob. The settings store writes the blob in a single statement, so no
// partial catalog is ever observable.
func (c *Catalog) Save(items []StoredItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("catalog: failed to marshal items: %w", err)
	}
	if err := c.store.Set(CatalogKey, data); err != nil {
		return fmt.Errorf("catalog: failed to persist items: %w", err)
	}
	return nil
}

// FilterByType returns the items of the given type, preserving order.
// The input slice is never mutated.
func FilterByType(items []StoredItem, t ItemType) []StoredItem {
	out := make([]StoredItem, 0, len(items))
	for _, item := range items {
		if item.Type == t {
			out = append(out, item)
		}
	}
	return out
}

// FilterByName returns the items whose name contains query as a
// case-insensitive substring, preserving order. Names and query are
// NFC-normalized before comparison so composed and decomposed forms of
// the same text match. An empty query matches everything.
func FilterByName(items []StoredItem, query string) []StoredItem {
	if query == "" {
		return append([]StoredItem(nil), items...)
	}

	needle := foldName(query)
	out := make([]StoredItem, 0, len(items))
	for _, item := range items {
		if strings.Contains(foldName(item.Name), needle) {
			out = append(out, item)
		}
	}
	return out
}

func foldName(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

package catalog

import (
	"testing"

	"github.com/google/uuid"

	"github.com/ispacehq/ivault/pkg/settings"
)

func newTestCatalog(t *testing.T) (*Catalog, *settings.Store) {
	t.Helper()
	store, err := settings.Open(t.TempDir())
	if err != nil {
		t.Fatalf("settings.Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store), store
}

func TestLoadEmptyCatalog(t *testing.T) {
	c, _ := newTestCatalog(t)

	items := c.Load()
	if items == nil {
		t.Fatal("Load returned nil, want empty slice")
	}
	if len(items) != 0 {
		t.Errorf("expected empty catalog, got %d items", len(items))
	}
}

func TestSaveLoadPreservesOrder(t *testing.T) {
	c, _ := newTestCatalog(t)

	want := []StoredItem{
		{ID: uuid.New(), Name: "Google Account", Type: TypePassword},
		{ID: uuid.New(), Name: "Visa", Type: TypeCard},
		{ID: uuid.New(), Name: "Passport Scan", Type: TypeDocument},
	}
	if err := c.Save(want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got := c.Load()
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestLoadCorruptBlobRecoversToEmpty(t *testing.T) {
	c, store := newTestCatalog(t)

	if err := store.Set(CatalogKey, []byte("{garbage not json")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	items := c.Load()
	if len(items) != 0 {
		t.Errorf("expected corrupt catalog to load as empty, got %d items", len(items))
	}
}

func TestFilterByType(t *testing.T) {
	items := []StoredItem{
		{ID: uuid.New(), Name: "Bank", Type: TypePassword},
		{ID: uuid.New(), Name: "Visa", Type: TypeCard},
		{ID: uuid.New(), Name: "Amazon", Type: TypePassword},
	}

	passwords := FilterByType(items, TypePassword)
	if len(passwords) != 2 || passwords[0].Name != "Bank" || passwords[1].Name != "Amazon" {
		t.Errorf("unexpected password partition: %+v", passwords)
	}

	if docs := FilterByType(items, TypeDocument); len(docs) != 0 {
		t.Errorf("expected empty document partition, got %+v", docs)
	}

	// Every item lands in exactly one partition.
	total := len(FilterByType(items, TypePassword)) +
		len(FilterByType(items, TypeCard)) +
		len(FilterByType(items, TypeDocument))
	if total != len(items) {
		t.Errorf("partitions cover %d items, want %d", total, len(items))
	}
}

func TestFilterByName(t *testing.T) {
	items := []StoredItem{
		{ID: uuid.New(), Name: "Google Account", Type: TypePassword},
		{ID: uuid.New(), Name: "Amazon", Type: TypePassword},
	}

	got := FilterByName(items, "goog")
	if len(got) != 1 || got[0].Name != "Google Account" {
		t.Errorf(`FilterByName("goog") = %+v, want only "Google Account"`, got)
	}

	if got := FilterByName(items, "GOOGLE"); len(got) != 1 {
		t.Errorf("match should be case-insensitive, got %+v", got)
	}

	if got := FilterByName(items, ""); len(got) != len(items) {
		t.Errorf("empty query should match everything, got %d items", len(got))
	}

	if got := FilterByName(items, "netflix"); len(got) != 0 {
		t.Errorf("expected no matches, got %+v", got)
	}
}

func TestItemTypeValid(t *testing.T) {
	for _, typ := range []ItemType{TypePassword, TypeCard, TypeDocument} {
		if !typ.Valid() {
			t.Errorf("%q should be valid", typ)
		}
	}
	if ItemType("note").Valid() {
		t.Error(`"note" should not be valid`)
	}
}

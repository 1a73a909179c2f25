package vault

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/ispacehq/ivault/internal/logger"
	"github.com/ispacehq/ivault/pkg/catalog"
	"github.com/ispacehq/ivault/pkg/filevault"
	"github.com/ispacehq/ivault/pkg/keystore"
	"github.com/ispacehq/ivault/pkg/session"
	"github.com/ispacehq/ivault/pkg/settings"
)

type testAuth struct{ available bool }

func (a *testAuth) Available() bool                      { return a.available }
func (a *testAuth) Authenticate(ctx context.Context) error { return nil }

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	keyring.MockInit()

	dir := t.TempDir()
	store, err := settings.Open(dir)
	if err != nil {
		t.Fatalf("opening settings: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	keys := keystore.New("com.ispacehq.ivault.test")
	s, err := NewService(Options{
		Settings: store,
		Secrets:  keys,
		Files:    filevault.New(dir, keys),
		Session:  session.NewLock(&testAuth{available: true}, 0),
		Log:      logger.Nop(),
	})
	if err != nil {
		t.Fatalf("building service: %v", err)
	}
	return s, dir
}

func unlock(t *testing.T, s *Service) {
	t.Helper()
	if err := s.Unlock(context.Background()); err != nil {
		t.Fatalf("unlocking: %v", err)
	}
}

func TestAddPasswordRoundTrip(t *testing.T) {
	s, _ := newTestService(t)
	unlock(t, s)

	want := PasswordDetails{Website: "example.com", Username: "alice", Secret: "hunter2"}
	item, err := s.AddItem("Example", want)
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if item.Type != catalog.TypePassword {
		t.Errorf("item type = %v, want password", item.Type)
	}

	got, err := s.Details(item)
	if err != nil {
		t.Fatalf("Details failed: %v", err)
	}
	if got != want {
		t.Errorf("Details = %+v, want %+v", got, want)
	}
}

func TestAddCardRoundTrip(t *testing.T) {
	s, _ := newTestService(t)
	unlock(t, s)

	want := CardDetails{CardHolderName: "Alice B", CardNumber: "4111111111111111", ExpiryDate: "12/30", CVV: "123"}
	item, err := s.AddItem("Visa", want)
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if item.Type != catalog.TypeCard {
		t.Errorf("item type = %v, want card", item.Type)
	}

	got, err := s.Details(item)
	if err != nil {
		t.Fatalf("Details failed: %v", err)
	}
	if got != want {
		t.Errorf("Details = %+v, want %+v", got, want)
	}
}

func TestAddItemRejectsEmptyName(t *testing.T) {
	s, _ := newTestService(t)
	unlock(t, s)

	_, err := s.AddItem("", PasswordDetails{Website: "x", Username: "y", Secret: "z"})
	if !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
}

func TestAddItemRejectsDocumentPayload(t *testing.T) {
	s, _ := newTestService(t)
	unlock(t, s)

	_, err := s.AddItem("Passport", DocumentDetails{FileName: "p.pdf", DocumentType: DocumentPDF})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestDetailsRequiresUnlockedSession(t *testing.T) {
	s, _ := newTestService(t)
	unlock(t, s)

	item, err := s.AddItem("Example", PasswordDetails{Website: "example.com", Username: "a", Secret: "b"})
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	s.Lock()
	if _, err := s.Details(item); !errors.Is(err, session.ErrNotUnlocked) {
		t.Errorf("expected ErrNotUnlocked while locked, got %v", err)
	}

	// Listing stays available while locked; only decrypted content is gated.
	if got := len(s.ListByType(catalog.TypePassword)); got != 1 {
		t.Errorf("locked ListByType returned %d items, want 1", got)
	}
}

func TestDetailsMissingPayload(t *testing.T) {
	s, _ := newTestService(t)
	unlock(t, s)

	item, err := s.AddItem("Example", PasswordDetails{Website: "example.com", Username: "a", Secret: "b"})
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	// Remove the payload behind the catalog's back.
	if err := keystore.New("com.ispacehq.ivault.test").Delete(item.ID.String()); err != nil {
		t.Fatalf("removing payload: %v", err)
	}

	if _, err := s.Details(item); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDetailsCorruptPayload(t *testing.T) {
	s, _ := newTestService(t)
	unlock(t, s)

	item, err := s.AddItem("Example", PasswordDetails{Website: "example.com", Username: "a", Secret: "b"})
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	if err := keystore.New("com.ispacehq.ivault.test").Save([]byte("{not json"), item.ID.String()); err != nil {
		t.Fatalf("corrupting payload: %v", err)
	}

	if _, err := s.Details(item); !errors.Is(err, ErrDecoding) {
		t.Errorf("expected ErrDecoding, got %v", err)
	}
}

func TestListByTypePartitionsExclusively(t *testing.T) {
	s, _ := newTestService(t)
	unlock(t, s)

	if _, err := s.AddItem("Mail", PasswordDetails{Website: "mail.com", Username: "a", Secret: "b"}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if _, err := s.AddItem("Visa", CardDetails{CardHolderName: "A", CardNumber: "4111111111111111", ExpiryDate: "12/30", CVV: "123"}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	passwords := s.ListByType(catalog.TypePassword)
	cards := s.ListByType(catalog.TypeCard)
	if len(passwords) != 1 || passwords[0].Name != "Mail" {
		t.Errorf("password partition = %v", passwords)
	}
	if len(cards) != 1 || cards[0].Name != "Visa" {
		t.Errorf("card partition = %v", cards)
	}
}

func TestSearchIsCaseInsensitiveAndTypeScoped(t *testing.T) {
	s, _ := newTestService(t)
	unlock(t, s)

	if _, err := s.AddItem("GMail Account", PasswordDetails{Website: "gmail.com", Username: "a", Secret: "b"}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if _, err := s.AddItem("Gmail Rewards Card", CardDetails{CardHolderName: "A", CardNumber: "4111111111111111", ExpiryDate: "12/30", CVV: "123"}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	got := s.Search(catalog.TypePassword, "gmail")
	if len(got) != 1 || got[0].Name != "GMail Account" {
		t.Errorf("Search(password, gmail) = %v", got)
	}

	// Empty query returns the whole partition.
	if got := s.Search(catalog.TypeCard, ""); len(got) != 1 {
		t.Errorf("Search(card, empty) = %v", got)
	}

	if got := s.Search(catalog.TypePassword, "zzz"); len(got) != 0 {
		t.Errorf("Search(password, zzz) = %v", got)
	}
}

func TestDeleteItemRemovesPayloadAndEntry(t *testing.T) {
	s, dir := newTestService(t)
	unlock(t, s)

	content := []byte("%PDF-1.7 passport scan")
	item, err := s.AddDocument("Passport", DocumentDetails{FileName: "passport.pdf", DocumentType: DocumentPDF}, content)
	if err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}

	blobPath := filepath.Join(dir, filevault.FilesDirName, filevault.FileNameForItem(item.ID))
	if _, err := os.Stat(blobPath); err != nil {
		t.Fatalf("expected blob on disk: %v", err)
	}

	if err := s.DeleteItem(item.ID); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}

	if _, err := os.Stat(blobPath); !os.IsNotExist(err) {
		t.Error("blob survived deletion")
	}
	if _, ok, _ := keystore.New("com.ispacehq.ivault.test").Read(item.ID.String()); ok {
		t.Error("keystore payload survived deletion")
	}
	if got := len(s.Items()); got != 0 {
		t.Errorf("catalog holds %d items after deletion", got)
	}
}

func TestDeleteItemUnknownID(t *testing.T) {
	s, _ := newTestService(t)
	unlock(t, s)

	item, err := s.AddItem("Example", PasswordDetails{Website: "example.com", Username: "a", Secret: "b"})
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := s.DeleteItem(item.ID); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}

	if err := s.DeleteItem(item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestCatalogSurvivesRestart(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()
	keys := keystore.New("com.ispacehq.ivault.test")

	store, err := settings.Open(dir)
	if err != nil {
		t.Fatalf("opening settings: %v", err)
	}
	s, err := NewService(Options{
		Settings: store,
		Secrets:  keys,
		Files:    filevault.New(dir, keys),
		Session:  session.NewLock(&testAuth{available: true}, 0),
	})
	if err != nil {
		t.Fatalf("building service: %v", err)
	}
	unlock(t, s)

	item, err := s.AddItem("Example", PasswordDetails{Website: "example.com", Username: "a", Secret: "b"})
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("closing settings: %v", err)
	}

	store2, err := settings.Open(dir)
	if err != nil {
		t.Fatalf("reopening settings: %v", err)
	}
	defer store2.Close()
	s2, err := NewService(Options{
		Settings: store2,
		Secrets:  keys,
		Files:    filevault.New(dir, keys),
		Session:  session.NewLock(&testAuth{available: true}, 0),
	})
	if err != nil {
		t.Fatalf("rebuilding service: %v", err)
	}

	items := s2.Items()
	if len(items) != 1 || items[0].ID != item.ID {
		t.Errorf("catalog after restart = %v", items)
	}
}

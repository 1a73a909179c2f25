package filevault

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/zalando/go-keyring"

	"github.com/ispacehq/ivault/pkg/keystore"
)

func newTestVault(t *testing.T) (*Vault, string) {
	t.Helper()
	keyring.MockInit()
	dataDir := t.TempDir()
	return New(dataDir, keystore.New("com.ispacehq.ivault.test")), dataDir
}

func TestSaveReadRoundTrip(t *testing.T) {
	v, _ := newTestVault(t)

	plaintext := []byte("%PDF-1.7 pretend document content")
	if err := v.Save(plaintext, "doc.enc"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := v.Read("doc.enc")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Error("round trip did not return original plaintext")
	}
}

func TestBlobIsNotPlaintext(t *testing.T) {
	v, dataDir := newTestVault(t)

	plaintext := []byte("very visible marker text")
	if err := v.Save(plaintext, "doc.enc"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	blob, err := os.ReadFile(filepath.Join(dataDir, FilesDirName, "doc.enc"))
	if err != nil {
		t.Fatalf("failed to read blob: %v", err)
	}
	if bytes.Contains(blob, []byte("marker")) {
		t.Error("plaintext visible in stored blob")
	}

	info, _ := os.Stat(filepath.Join(dataDir, FilesDirName, "doc.enc"))
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		t.Errorf("blob file has insecure permissions %04o", perm)
	}
}

func TestReadMissingFile(t *testing.T) {
	v, _ := newTestVault(t)

	if _, err := v.Read("nope.enc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTamperDetection(t *testing.T) {
	v, dataDir := newTestVault(t)

	if err := v.Save([]byte("authentic content"), "doc.enc"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	path := filepath.Join(dataDir, FilesDirName, "doc.enc")
	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read blob: %v", err)
	}

	// Flip a single byte in the stored blob.
	blob[len(blob)/2] ^= 0x01
	if err := os.WriteFile(path, blob, FileMode); err != nil {
		t.Fatalf("failed to write tampered blob: %v", err)
	}

	if _, err := v.Read("doc.enc"); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	v, _ := newTestVault(t)

	if err := v.Save([]byte("content"), "doc.enc"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := v.Delete("doc.enc"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := v.Read("doc.enc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	if err := v.Delete("doc.enc"); err != nil {
		t.Errorf("second Delete returned error: %v", err)
	}
	if err := v.Delete("never-existed.enc"); err != nil {
		t.Errorf("Delete of absent file returned error: %v", err)
	}
}

func TestKeyEnrolledOnceAndReused(t *testing.T) {
	keyring.MockInit()
	keys := keystore.New("com.ispacehq.ivault.test")
	dataDir := t.TempDir()

	v1 := New(dataDir, keys)
	if err := v1.Save([]byte("content"), "doc.enc"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	key, ok, err := keys.Read(KeyEntryID)
	if err != nil || !ok {
		t.Fatalf("expected key in keystore: ok=%v err=%v", ok, err)
	}
	if len(key) != 32 {
		t.Errorf("expected 32-byte key, got %d", len(key))
	}

	// A fresh Vault instance over the same keystore must decrypt.
	v2 := New(dataDir, keys)
	got, err := v2.Read("doc.enc")
	if err != nil {
		t.Fatalf("Read with reloaded key failed: %v", err)
	}
	if string(got) != "content" {
		t.Errorf("unexpected plaintext %q", got)
	}
}

func TestInvalidFileName(t *testing.T) {
	v, _ := newTestVault(t)

	for _, name := range []string{"", "../escape.enc", "a/b.enc", ".."} {
		if err := v.Save([]byte("x"), name); !errors.Is(err, ErrInvalidFileName) {
			t.Errorf("Save(%q): expected ErrInvalidFileName, got %v", name, err)
		}
	}
}

func TestFileNameForItem(t *testing.T) {
	id := uuid.New()
	name := FileNameForItem(id)
	if name != id.String()+FileExt {
		t.Errorf("unexpected derived name %q", name)
	}
	if name != FileNameForItem(id) {
		t.Error("derived name not deterministic")
	}
}

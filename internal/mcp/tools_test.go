package mcp

import (
	"context"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/ispacehq/ivault/pkg/filevault"
	"github.com/ispacehq/ivault/pkg/keystore"
	"github.com/ispacehq/ivault/pkg/session"
	"github.com/ispacehq/ivault/pkg/settings"
	"github.com/ispacehq/ivault/pkg/vault"
)

type alwaysAuth struct{}

func (alwaysAuth) Available() bool                      { return true }
func (alwaysAuth) Authenticate(ctx context.Context) error { return nil }

func newTestServer(t *testing.T, policy *Policy) *Server {
	t.Helper()
	keyring.MockInit()

	dir := t.TempDir()
	store, err := settings.Open(dir)
	if err != nil {
		t.Fatalf("opening settings: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	keys := keystore.New("com.ispacehq.ivault.test")
	svc, err := vault.NewService(vault.Options{
		Settings: store,
		Secrets:  keys,
		Files:    filevault.New(dir, keys),
		Session:  session.NewLock(alwaysAuth{}, 0),
	})
	if err != nil {
		t.Fatalf("building service: %v", err)
	}

	if err := svc.Unlock(context.Background()); err != nil {
		t.Fatalf("unlocking: %v", err)
	}
	if _, err := svc.AddItem("GMail", vault.PasswordDetails{Website: "gmail.com", Username: "a", Secret: "b"}); err != nil {
		t.Fatalf("seeding password: %v", err)
	}
	if _, err := svc.AddItem("Visa", vault.CardDetails{CardHolderName: "A", CardNumber: "4111111111111111", ExpiryDate: "12/30", CVV: "123"}); err != nil {
		t.Fatalf("seeding card: %v", err)
	}
	// The MCP server operates on metadata; it works against a locked
	// session too.
	svc.Lock()

	srv, err := NewServer(ServerOptions{Vault: svc, PolicyPath: "/nonexistent/policy.yaml"})
	if err != nil {
		t.Fatalf("building server: %v", err)
	}
	if policy != nil {
		srv.policy = policy
	}
	return srv
}

func allowAll() *Policy {
	return &Policy{Version: 1, DefaultAction: ActionAllow}
}

func TestItemListReturnsMetadataOnly(t *testing.T) {
	srv := newTestServer(t, allowAll())

	_, out, err := srv.handleItemList(context.Background(), nil, ItemListInput{})
	if err != nil {
		t.Fatalf("item_list failed: %v", err)
	}
	if len(out.Items) != 2 {
		t.Fatalf("item_list returned %d items, want 2", len(out.Items))
	}
	for _, info := range out.Items {
		if info.ID == "" || info.Name == "" || info.Type == "" {
			t.Errorf("incomplete metadata: %+v", info)
		}
	}
}

func TestItemListFiltersByType(t *testing.T) {
	srv := newTestServer(t, allowAll())

	_, out, err := srv.handleItemList(context.Background(), nil, ItemListInput{Type: "card"})
	if err != nil {
		t.Fatalf("item_list failed: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Name != "Visa" {
		t.Errorf("item_list(card) = %v", out.Items)
	}

	if _, _, err := srv.handleItemList(context.Background(), nil, ItemListInput{Type: "wallet"}); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestItemListHonorsPolicy(t *testing.T) {
	srv := newTestServer(t, &Policy{
		Version:       1,
		DefaultAction: ActionDeny,
		ExposedTypes:  []string{"password"},
	})

	_, out, err := srv.handleItemList(context.Background(), nil, ItemListInput{})
	if err != nil {
		t.Fatalf("item_list failed: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Type != "password" {
		t.Errorf("policy-filtered item_list = %v", out.Items)
	}
}

func TestRestrictedModeExposesNothing(t *testing.T) {
	// No policy file: NewServer falls back to the restricted policy.
	srv := newTestServer(t, nil)

	_, out, err := srv.handleItemList(context.Background(), nil, ItemListInput{})
	if err != nil {
		t.Fatalf("item_list failed: %v", err)
	}
	if len(out.Items) != 0 {
		t.Errorf("restricted server exposed %d items", len(out.Items))
	}
}

func TestItemSearch(t *testing.T) {
	srv := newTestServer(t, allowAll())

	_, out, err := srv.handleItemSearch(context.Background(), nil, ItemSearchInput{Type: "password", Query: "gmail"})
	if err != nil {
		t.Fatalf("item_search failed: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Name != "GMail" {
		t.Errorf("item_search = %v", out.Items)
	}
}

func TestItemExists(t *testing.T) {
	srv := newTestServer(t, allowAll())

	_, out, err := srv.handleItemExists(context.Background(), nil, ItemExistsInput{Name: "Visa"})
	if err != nil {
		t.Fatalf("item_exists failed: %v", err)
	}
	if !out.Exists || out.Type != "card" {
		t.Errorf("item_exists(Visa) = %+v", out)
	}

	_, out, err = srv.handleItemExists(context.Background(), nil, ItemExistsInput{Name: "Ghost"})
	if err != nil {
		t.Fatalf("item_exists failed: %v", err)
	}
	if out.Exists {
		t.Error("nonexistent item reported as existing")
	}

	if _, _, err := srv.handleItemExists(context.Background(), nil, ItemExistsInput{}); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestItemExistsHiddenByPolicy(t *testing.T) {
	srv := newTestServer(t, &Policy{
		Version:       1,
		DefaultAction: ActionDeny,
		ExposedTypes:  []string{"password"},
	})

	_, out, err := srv.handleItemExists(context.Background(), nil, ItemExistsInput{Name: "Visa"})
	if err != nil {
		t.Fatalf("item_exists failed: %v", err)
	}
	if out.Exists {
		t.Error("policy-hidden item reported as existing")
	}
}

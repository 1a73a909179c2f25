package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l := NewLogger(t.TempDir())
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	if err := l.SetHMACKey(key); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}
	return l
}

func TestLogRequiresHMACKey(t *testing.T) {
	l := NewLogger(t.TempDir())
	if err := l.LogSuccess(OpItemAdd, "gmail"); err == nil {
		t.Error("expected error without HMAC key")
	}
}

func TestLogWritesChainedEvents(t *testing.T) {
	l := newTestLogger(t)

	if err := l.LogSuccess(OpSessionUnlock, ""); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}
	if err := l.LogSuccess(OpItemAdd, "gmail"); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}
	if err := l.LogError(OpItemGet, "gmail", "not_found", "no such item"); err != nil {
		t.Fatalf("LogError failed: %v", err)
	}

	events, err := l.ListEvents(0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	if events[0].Chain.PrevHash != "genesis" {
		t.Errorf("first record prev = %q, want genesis", events[0].Chain.PrevHash)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Chain.PrevHash != events[i-1].Chain.HMAC {
			t.Errorf("record %d not chained to predecessor", i)
		}
		if events[i].Chain.Sequence != int64(i+1) {
			t.Errorf("record %d sequence = %d", i, events[i].Chain.Sequence)
		}
	}
}

func TestItemNamesAreNotLoggedInClear(t *testing.T) {
	l := newTestLogger(t)
	if err := l.LogSuccess(OpItemAdd, "gmail-password"); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(l.Path(), "audit.jsonl"))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if strings.Contains(string(raw), "gmail-password") {
		t.Error("item name written in clear text")
	}
}

func TestVerifyCleanChain(t *testing.T) {
	l := newTestLogger(t)
	for i := 0; i < 5; i++ {
		if err := l.LogSuccess(OpItemAdd, "item"); err != nil {
			t.Fatalf("LogSuccess failed: %v", err)
		}
	}

	result, err := l.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("clean chain reported invalid: %v", result.Errors)
	}
	if result.RecordsTotal != 5 {
		t.Errorf("RecordsTotal = %d, want 5", result.RecordsTotal)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	l := newTestLogger(t)
	for i := 0; i < 3; i++ {
		if err := l.LogSuccess(OpItemAdd, "item"); err != nil {
			t.Fatalf("LogSuccess failed: %v", err)
		}
	}

	// Flip the result field of the middle record.
	logPath := filepath.Join(l.Path(), "audit.jsonl")
	raw, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	var event Event
	if err := json.Unmarshal([]byte(lines[1]), &event); err != nil {
		t.Fatalf("parsing record: %v", err)
	}
	event.Result = ResultError
	tampered, _ := json.Marshal(event)
	lines[1] = string(tampered)
	if err := os.WriteFile(logPath, []byte(strings.Join(lines, "\n")+"\n"), 0600); err != nil {
		t.Fatalf("rewriting log: %v", err)
	}

	result, err := l.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Valid {
		t.Error("tampered chain reported valid")
	}
}

func TestChainStateSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	key := make([]byte, 32)

	l := NewLogger(dir)
	if err := l.SetHMACKey(key); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}
	if err := l.LogSuccess(OpSessionUnlock, ""); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	// New logger over the same directory continues the chain.
	l2 := NewLogger(dir)
	if err := l2.SetHMACKey(key); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}
	if err := l2.LogSuccess(OpSessionLock, ""); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	result, err := l2.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("chain across restart reported invalid: %v", result.Errors)
	}
	if result.RecordsTotal != 2 {
		t.Errorf("RecordsTotal = %d, want 2", result.RecordsTotal)
	}
}

func TestListEventsLimit(t *testing.T) {
	l := newTestLogger(t)
	for i := 0; i < 4; i++ {
		if err := l.LogSuccess(OpItemAdd, "item"); err != nil {
			t.Fatalf("LogSuccess failed: %v", err)
		}
	}

	events, err := l.ListEvents(2)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Chain.Sequence != 3 || events[1].Chain.Sequence != 4 {
		t.Error("limit did not keep the most recent events")
	}
}

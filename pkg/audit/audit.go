// Package audit provides append-only audit logging with an HMAC chain
// for tamper detection. Events record which vault operations ran and
// their outcome; they never contain secret material or decrypted
// content. Item names are HMACed before being written.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ispacehq/ivault/pkg/crypto"
)

// Operation types.
const (
	OpSessionUnlock       = "session.unlock"
	OpSessionUnlockFailed = "session.unlock_failed"
	OpSessionLock         = "session.lock"

	OpItemAdd    = "item.add"
	OpItemGet    = "item.get"
	OpItemDelete = "item.delete"

	OpExportCreate  = "export.create"
	OpExportRestore = "export.restore"
)

// Result values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

const (
	logFileName  = "audit.jsonl"
	metaFileName = "audit.meta"
	genesisHash  = "genesis"
)

// Event is a single audit record.
type Event struct {
	Version   int    `json:"v"`
	ID        string `json:"id"`
	Timestamp string `json:"ts"` // RFC 3339 nanosecond precision

	Operation string `json:"op"`
	ItemHMAC  string `json:"item,omitempty"` // HMAC of the item name, never the name itself

	Result string     `json:"result"`
	Error  *ErrorInfo `json:"error,omitempty"`

	Chain Chain `json:"chain"`
}

// ErrorInfo carries error details for failed operations.
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain links each record to its predecessor.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// Logger appends audit events to a JSONL file under its directory.
// Writes are serialized; the HMAC key must be set before logging.
type Logger struct {
	path string

	mu         sync.Mutex
	hmacKey    []byte
	hmacKeySet bool
	sequence   int64
	prevHash   string
}

// NewLogger returns a logger writing under dir. The HMAC key must be
// set with SetHMACKey before any event can be recorded.
func NewLogger(dir string) *Logger {
	return &Logger{
		path:     dir,
		prevHash: genesisHash,
	}
}

// SetHMACKey derives the chain HMAC key from the vault key and loads
// any persisted chain state. Call once after the vault key is known.
func (l *Logger) SetHMACKey(vaultKey []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key, err := crypto.DeriveSubkey(vaultKey, []byte("audit-log-v1"))
	if err != nil {
		return fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}
	l.hmacKey = key
	l.hmacKeySet = true

	if err := l.loadChainState(); err != nil {
		// First run or missing metadata; start a fresh chain.
		l.sequence = 0
		l.prevHash = genesisHash
	}
	return nil
}

// Log records an audit event.
func (l *Logger) Log(op, result, itemName string, errInfo *ErrorInfo) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hmacKeySet {
		return fmt.Errorf("audit: HMAC key not set")
	}
	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}

	event := Event{
		Version:   1,
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Operation: op,
		Result:    result,
		Error:     errInfo,
	}
	if itemName != "" {
		event.ItemHMAC = l.itemHMAC(itemName)
	}

	l.sequence++
	event.Chain.Sequence = l.sequence
	event.Chain.PrevHash = l.prevHash

	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write(l.recordData(&event))
	event.Chain.HMAC = hex.EncodeToString(mac.Sum(nil))
	l.prevHash = event.Chain.HMAC

	if err := l.writeEvent(&event); err != nil {
		return err
	}
	return l.saveChainState()
}

// LogSuccess records a successful operation.
func (l *Logger) LogSuccess(op, itemName string) error {
	return l.Log(op, ResultSuccess, itemName, nil)
}

// LogError records a failed operation.
func (l *Logger) LogError(op, itemName, code, msg string) error {
	return l.Log(op, ResultError, itemName, &ErrorInfo{Code: code, Message: msg})
}

func (l *Logger) itemHMAC(name string) string {
	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write([]byte(name))
	return hex.EncodeToString(mac.Sum(nil))
}

// recordData builds the byte string the chain HMAC covers. Every
// significant field participates so edits anywhere break verification.
func (l *Logger) recordData(event *Event) []byte {
	errorData := ""
	if event.Error != nil {
		errorData = fmt.Sprintf("%s|%s", event.Error.Code, event.Error.Message)
	}
	data := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%d|%s",
		event.Version,
		event.ID,
		event.Timestamp,
		event.Operation,
		event.ItemHMAC,
		event.Result,
		errorData,
		event.Chain.Sequence,
		event.Chain.PrevHash,
	)
	return []byte(data)
}

func (l *Logger) writeEvent(event *Event) error {
	f, err := os.OpenFile(filepath.Join(l.path, logFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

type chainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.path, metaFileName))
	if err != nil {
		return err
	}
	var state chainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(chainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.path, metaFileName), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

// VerifyResult reports the outcome of a chain verification pass.
type VerifyResult struct {
	Valid        bool     `json:"valid"`
	RecordsTotal int      `json:"records_total"`
	Errors       []string `json:"errors,omitempty"`
}

// Verify walks the full log and checks sequence continuity, chain
// linkage and per-record HMACs.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hmacKeySet {
		return nil, fmt.Errorf("audit: HMAC key not set")
	}

	result := &VerifyResult{Valid: true}

	events, err := l.readLog()
	if err != nil {
		return nil, err
	}

	expectedPrev := genesisHash
	var expectedSeq int64 = 1
	for i := range events {
		event := &events[i]
		result.RecordsTotal++

		if event.Chain.Sequence != expectedSeq {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"sequence gap at record %s: expected %d, got %d",
				event.ID, expectedSeq, event.Chain.Sequence))
		}
		if event.Chain.PrevHash != expectedPrev {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"chain broken at record %s: expected prev %s, got %s",
				event.ID, expectedPrev, event.Chain.PrevHash))
		}

		mac := hmac.New(sha256.New, l.hmacKey)
		mac.Write(l.recordData(event))
		if event.Chain.HMAC != hex.EncodeToString(mac.Sum(nil)) {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"HMAC mismatch at record %s: possible tampering", event.ID))
		}

		expectedPrev = event.Chain.HMAC
		expectedSeq++
	}

	return result, nil
}

// ListEvents returns logged events, newest last. A positive limit
// returns only the most recent events.
func (l *Logger) ListEvents(limit int) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readLog()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

func (l *Logger) readLog() ([]Event, error) {
	data, err := os.ReadFile(filepath.Join(l.path, logFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: failed to read log: %w", err)
	}

	var events []Event
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1
			if len(line) == 0 {
				continue
			}
			var event Event
			if err := json.Unmarshal(line, &event); err != nil {
				return nil, fmt.Errorf("audit: failed to parse record: %w", err)
			}
			events = append(events, event)
		}
	}
	return events, nil
}

// Path returns the audit log directory.
func (l *Logger) Path() string {
	return l.path
}

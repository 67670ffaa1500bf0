// Package testutil provides in-memory stand-ins for the external backends.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/medledger/medledger/internal/ledger"
)

// FakePinner derives content identifiers by hashing the payload, so equal
// payloads always map to the same identifier.
//
// Thread-safe: all methods take an internal mutex.
type FakePinner struct {
	mu       sync.Mutex
	calls    int
	payloads [][]byte

	// Err, when set, is returned by every PinJSON call.
	Err error
}

// PinJSON returns a deterministic identifier for the payload.
func (f *FakePinner) PinJSON(_ context.Context, payload []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	if f.Err != nil {
		return "", f.Err
	}
	sum := sha256.Sum256(payload)
	return "bafy" + hex.EncodeToString(sum[:16]), nil
}

// Calls returns how many times PinJSON was invoked, including failures.
func (f *FakePinner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Payloads returns copies of every payload PinJSON received, in order.
func (f *FakePinner) Payloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.payloads))
	copy(out, f.payloads)
	return out
}

// FakeAnchor records anchored entries in memory and serves them back
// through the audit read methods.
//
// Thread-safe: all methods take an internal mutex.
type FakeAnchor struct {
	mu      sync.Mutex
	calls   int
	entries []ledger.LogEntry

	// Err, when set, is returned by every CreateRecord call.
	Err error

	// Timestamp stamps appended entries. Zero is fine for tests that do
	// not read the audit log.
	Timestamp int64
}

// CreateRecord appends an entry and returns a synthetic transaction hash.
func (f *FakeAnchor) CreateRecord(_ context.Context, accountAddress, cid string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.Err != nil {
		return "", f.Err
	}
	f.entries = append(f.entries, ledger.LogEntry{
		Patient:   accountAddress,
		CID:       cid,
		Timestamp: f.Timestamp,
	})
	return fmt.Sprintf("0xfake%04d", len(f.entries)), nil
}

// GetLog returns the entry at the given zero-based index.
func (f *FakeAnchor) GetLog(_ context.Context, id int64) (ledger.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id < 0 || id >= int64(len(f.entries)) {
		return ledger.LogEntry{}, fmt.Errorf("no log entry %d", id)
	}
	return f.entries[id], nil
}

// Count returns the number of anchored entries.
func (f *FakeAnchor) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.entries)), nil
}

// Calls returns how many times CreateRecord was invoked, including
// failures.
func (f *FakeAnchor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Entries returns a copy of the anchored entries in order.
func (f *FakeAnchor) Entries() []ledger.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ledger.LogEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

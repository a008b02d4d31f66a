package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type memStore struct {
	entries []Entry

	appendErr error
	listErr   error
}

func (m *memStore) AppendAuditEntry(_ context.Context, entry Entry) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memStore) ListAuditEntries(_ context.Context) ([]Entry, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.entries, nil
}

func (m *memStore) ResetAuditEntries(_ context.Context) error {
	m.entries = nil
	return nil
}

func fixedClock() func() time.Time {
	base := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func TestChecksumDigestDeterministic(t *testing.T) {
	input := CanonicalInput("2025-03-14T09:26:53Z", "ops.chan", "Document Upload", "Uploaded BL draft", GenesisHash)
	first := ChecksumDigest(input)
	second := ChecksumDigest(input)
	if first != second {
		t.Fatalf("digest not deterministic: %s vs %s", first, second)
	}
	if len(first) != 16 {
		t.Fatalf("digest length = %d, want 16", len(first))
	}
	if first == ChecksumDigest(input+"x") {
		t.Fatalf("digest insensitive to content change")
	}
}

func TestAddEntryChainsHashes(t *testing.T) {
	store := &memStore{}
	ledger := NewLedger(store, WithClock(fixedClock()))

	first, err := ledger.AddEntry(context.Background(), "ops.chan", "Shipment Created", "Created shipment ship_1")
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if first.PreviousHash != GenesisHash {
		t.Fatalf("first entry previousHash = %s, want genesis", first.PreviousHash)
	}

	second, err := ledger.AddEntry(context.Background(), "ops.chan", "Document Upload", "Uploaded doc_1 to ship_1")
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if second.PreviousHash != first.Hash {
		t.Fatalf("second entry previousHash = %s, want %s", second.PreviousHash, first.Hash)
	}

	ok, err := ledger.VerifyChain(context.Background())
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !ok {
		t.Fatalf("expected valid chain")
	}
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	store := &memStore{}
	ledger := NewLedger(store, WithClock(fixedClock()))
	for i := 0; i < 3; i++ {
		if _, err := ledger.AddEntry(context.Background(), "ops.chan", "Document Upload", "entry"); err != nil {
			t.Fatalf("AddEntry: %v", err)
		}
	}

	store.entries[1].Details = "rewritten after the fact"
	if ok, _ := ledger.VerifyChain(context.Background()); ok {
		t.Fatalf("expected corrupted chain after details rewrite")
	}

	store.entries[1].Details = "entry"
	store.entries[1].Hash = "deadbeefdeadbeef"
	if ok, _ := ledger.VerifyChain(context.Background()); ok {
		t.Fatalf("expected corrupted chain after hash rewrite")
	}
}

func TestAddEntryFailedAppendDoesNotAdvanceTail(t *testing.T) {
	store := &memStore{}
	ledger := NewLedger(store, WithClock(fixedClock()))

	first, err := ledger.AddEntry(context.Background(), "ops.chan", "Shipment Created", "ship_1")
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}

	store.appendErr = errors.New("connection reset")
	if _, err := ledger.AddEntry(context.Background(), "ops.chan", "Document Upload", "doc_1"); err == nil {
		t.Fatalf("expected append error")
	}

	store.appendErr = nil
	next, err := ledger.AddEntry(context.Background(), "ops.chan", "Document Upload", "doc_1")
	if err != nil {
		t.Fatalf("AddEntry after recovery: %v", err)
	}
	if next.PreviousHash != first.Hash {
		t.Fatalf("previousHash = %s, want %s (failed append must not move the tail)", next.PreviousHash, first.Hash)
	}

	ok, err := ledger.VerifyChain(context.Background())
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !ok {
		t.Fatalf("expected valid chain after recovery")
	}
}

func TestTailLoadedFromExistingEntries(t *testing.T) {
	store := &memStore{}
	seed := NewLedger(store, WithClock(fixedClock()))
	last, err := seed.AddEntry(context.Background(), "ops.chan", "Shipment Created", "ship_1")
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}

	// Fresh ledger over the same store must resume the chain, not restart it.
	resumed := NewLedger(store, WithClock(fixedClock()))
	entry, err := resumed.AddEntry(context.Background(), "ops.chan", "Document Upload", "doc_1")
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if entry.PreviousHash != last.Hash {
		t.Fatalf("previousHash = %s, want %s", entry.PreviousHash, last.Hash)
	}
}

func TestEntriesForEntity(t *testing.T) {
	store := &memStore{}
	ledger := NewLedger(store, WithClock(fixedClock()))

	if _, err := ledger.AddEntry(context.Background(), "ops.chan", "Document Upload", "Uploaded bl.pdf", "ship_1", "doc_1"); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if _, err := ledger.AddEntry(context.Background(), "ops.chan", "Shipment Created", "Created shipment ship_2", "ship_2"); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	// Legacy-shaped entry without structured ids.
	store.entries = append(store.entries, Entry{
		ID:        "audit_legacy",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		User:      "ops.chan",
		Action:    "Validation Complete",
		Details:   "Validation complete for ship_1",
	})

	entries, err := ledger.EntriesForEntity(context.Background(), "ship_1")
	if err != nil {
		t.Fatalf("EntriesForEntity: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries for ship_1, want 2", len(entries))
	}
	for _, entry := range entries {
		if len(entry.RelatedIDs) == 0 && !strings.Contains(entry.Details, "ship_1") {
			t.Fatalf("unexpected entry %s matched", entry.ID)
		}
	}

	// A structured entry must not match on details substring alone.
	if _, err := ledger.AddEntry(context.Background(), "ops.chan", "Comment Added", "Mentioned ship_1 in passing", "ship_2"); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	entries, err = ledger.EntriesForEntity(context.Background(), "ship_1")
	if err != nil {
		t.Fatalf("EntriesForEntity: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries after structured mention, want 2", len(entries))
	}
}

func TestResetClearsChain(t *testing.T) {
	store := &memStore{}
	ledger := NewLedger(store, WithClock(fixedClock()))
	if _, err := ledger.AddEntry(context.Background(), "ops.chan", "Shipment Created", "ship_1"); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := ledger.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	entry, err := ledger.AddEntry(context.Background(), "ops.chan", "Shipment Created", "ship_2")
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if entry.PreviousHash != GenesisHash {
		t.Fatalf("previousHash after reset = %s, want genesis", entry.PreviousHash)
	}
}

func TestSHA256DigestOption(t *testing.T) {
	store := &memStore{}
	ledger := NewLedger(store, WithClock(fixedClock()), WithDigest(SHA256Digest))
	entry, err := ledger.AddEntry(context.Background(), "ops.chan", "Shipment Created", "ship_1")
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if len(entry.Hash) != 64 {
		t.Fatalf("sha256 hash length = %d, want 64", len(entry.Hash))
	}
	if ok, _ := ledger.VerifyChain(context.Background()); !ok {
		t.Fatalf("expected valid chain under sha256 digest")
	}
}

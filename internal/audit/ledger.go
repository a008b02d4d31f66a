// Package audit provides the append-only, hash-chained action ledger.
// Every entry embeds a digest of its own content plus the digest of the
// entry before it, so any rewrite of history breaks the chain.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"cargoops/api/internal/util"
)

// GenesisHash seeds the chain: the first entry's previousHash.
const GenesisHash = "0000000000000000"

// Entry is one immutable ledger record. Timestamp is kept as the exact
// string that was digested so verification can recompute hashes after a
// storage round trip.
type Entry struct {
	ID           string   `json:"id"`
	Timestamp    string   `json:"timestamp"`
	User         string   `json:"user"`
	Action       string   `json:"action"`
	Details      string   `json:"details"`
	RelatedIDs   []string `json:"relatedIds,omitempty"`
	Hash         string   `json:"hash"`
	PreviousHash string   `json:"previousHash"`
}

// CanonicalInput builds the digest input for an entry's content fields.
func CanonicalInput(timestamp, user, action, details, previousHash string) string {
	return timestamp + "|" + user + "|" + action + "|" + details + "|" + previousHash
}

// DigestFunc maps a canonical input string to a hex digest.
type DigestFunc func(canonical string) string

// ChecksumDigest is the default demo-grade digest: a 32-bit rolling
// checksum, zero-padded to 16 hex characters. It is deterministic and
// content-sensitive but NOT cryptographically secure; chain verification
// built on it is an integrity indicator, not a security guarantee.
// Production deployments should construct the ledger with SHA256Digest.
func ChecksumDigest(canonical string) string {
	var h int32
	for _, r := range canonical {
		h = (h << 5) - h + int32(r)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return fmt.Sprintf("%016x", v)
}

// SHA256Digest is the cryptographic upgrade path. It consumes the same
// canonical input, so swapping digests changes nothing about the
// chain-linking algorithm.
func SHA256Digest(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// EntryStore persists ledger entries in append order.
type EntryStore interface {
	AppendAuditEntry(ctx context.Context, entry Entry) error
	ListAuditEntries(ctx context.Context) ([]Entry, error)
	ResetAuditEntries(ctx context.Context) error
}

// Ledger serializes appends and tracks the chain tail. A single Ledger
// instance must own all writes to its store scope; the internal mutex is
// the mutual-exclusion boundary that preserves append order.
type Ledger struct {
	mu     sync.Mutex
	store  EntryStore
	digest DigestFunc
	now    func() time.Time
	newID  func() string

	tail       string
	tailLoaded bool
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithDigest overrides the digest function.
func WithDigest(digest DigestFunc) Option {
	return func(l *Ledger) { l.digest = digest }
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a ledger over the given store.
func NewLedger(store EntryStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		digest: ChecksumDigest,
		now:    time.Now,
		newID:  func() string { return util.NewID("audit") },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddEntry computes the next chained entry and persists it. The append is
// atomic with respect to the chain: if the store write fails the entry is
// not treated as the new tail, and the next append recomputes from the
// previous one.
func (l *Ledger) AddEntry(ctx context.Context, user, action, details string, relatedIDs ...string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	previousHash, err := l.tailHash(ctx)
	if err != nil {
		return Entry{}, err
	}

	timestamp := l.now().UTC().Format(time.RFC3339Nano)
	entry := Entry{
		ID:           l.newID(),
		Timestamp:    timestamp,
		User:         user,
		Action:       action,
		Details:      details,
		RelatedIDs:   append([]string(nil), relatedIDs...),
		PreviousHash: previousHash,
	}
	entry.Hash = l.digest(CanonicalInput(timestamp, user, action, details, previousHash))

	if err := l.store.AppendAuditEntry(ctx, entry); err != nil {
		return Entry{}, fmt.Errorf("append audit entry: %w", err)
	}

	l.tail = entry.Hash
	l.tailLoaded = true
	return entry, nil
}

func (l *Ledger) tailHash(ctx context.Context) (string, error) {
	if l.tailLoaded {
		return l.tail, nil
	}
	entries, err := l.store.ListAuditEntries(ctx)
	if err != nil {
		return "", fmt.Errorf("load audit tail: %w", err)
	}
	l.tail = GenesisHash
	if len(entries) > 0 {
		l.tail = entries[len(entries)-1].Hash
	}
	l.tailLoaded = true
	return l.tail, nil
}

// Entries returns the ledger oldest first. The slice is a snapshot;
// mutating it does not touch the ledger.
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	entries, err := l.store.ListAuditEntries(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := make([]Entry, len(entries))
	copy(snapshot, entries)
	return snapshot, nil
}

// EntriesForEntity filters the ledger down to entries touching the given
// entity id. Entries written by this service carry structured related ids;
// older free-text-only entries fall back to substring containment over
// details.
func (l *Ledger) EntriesForEntity(ctx context.Context, entityID string) ([]Entry, error) {
	entries, err := l.store.ListAuditEntries(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]Entry, 0)
	for _, entry := range entries {
		if entryRelatesTo(entry, entityID) {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

func entryRelatesTo(entry Entry, entityID string) bool {
	if len(entry.RelatedIDs) > 0 {
		for _, id := range entry.RelatedIDs {
			if id == entityID {
				return true
			}
		}
		return false
	}
	return strings.Contains(entry.Details, entityID)
}

// VerifyChain recomputes every entry's digest and checks the link to its
// predecessor. An empty or single-entry ledger is trivially valid.
func (l *Ledger) VerifyChain(ctx context.Context) (bool, error) {
	entries, err := l.store.ListAuditEntries(ctx)
	if err != nil {
		return false, err
	}
	for i, entry := range entries {
		recomputed := l.digest(CanonicalInput(entry.Timestamp, entry.User, entry.Action, entry.Details, entry.PreviousHash))
		if recomputed != entry.Hash {
			return false, nil
		}
		if i > 0 && entry.PreviousHash != entries[i-1].Hash {
			return false, nil
		}
	}
	return true, nil
}

// Reset wipes the ledger. Irreversible; intended only for administrative
// demo-reset flows.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.ResetAuditEntries(ctx); err != nil {
		return fmt.Errorf("reset audit ledger: %w", err)
	}
	l.tail = GenesisHash
	l.tailLoaded = true
	return nil
}

// Package cache holds the single committed detection snapshot and decides
// whether it may still be served.
//
// Cache States:
//   - EMPTY: nothing committed, or dropped by Invalidate
//   - VALID: a snapshot is committed; it is served only while it is younger
//     than the TTL, the environment signature is unchanged and the schema
//     version matches
//
// There is no partial refresh. A snapshot that fails any check is replaced
// wholesale by the next detection.
package cache

import (
	"errors"
	"sync"
	"time"

	"github.com/lajosnagyuk/hostprobe/pkg/facts"
)

// State is the cache state.
type State uint8

const (
	Empty State = iota // Nothing committed
	Valid              // Snapshot committed
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Valid:
		return "valid"
	default:
		return "unknown"
	}
}

// Reasons a lookup misses.
var (
	ErrEmpty            = errors.New("no snapshot committed")
	ErrExpired          = errors.New("snapshot expired")
	ErrSignatureChanged = errors.New("environment signature changed")
	ErrVersionChanged   = errors.New("schema version changed")
)

// Entry is a committed snapshot with the metadata it was validated against.
type Entry struct {
	Snapshot  *facts.Snapshot
	Signature Signature
	Committed time.Time
	Version   string
}

// Age returns how long ago the entry was committed.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Committed)
}

// Cache holds at most one entry.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	version string
	entry   *Entry
}

// New creates an empty cache.
func New(ttl time.Duration, version string) *Cache {
	return &Cache{ttl: ttl, version: version}
}

// TTL returns the configured time to live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Version returns the schema version entries must carry.
func (c *Cache) Version() string {
	return c.version
}

// State returns Empty or Valid. Valid does not imply usable; see Lookup.
func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return Empty
	}
	return Valid
}

// Lookup returns the committed snapshot if it is usable for sig at now.
// The error names the first check that failed.
func (c *Cache) Lookup(sig Signature, now time.Time) (*facts.Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e := c.entry
	switch {
	case e == nil:
		return nil, ErrEmpty
	case e.Version != c.version:
		return nil, ErrVersionChanged
	case e.Age(now) >= c.ttl || e.Age(now) < 0:
		return nil, ErrExpired
	case e.Signature != sig:
		return nil, ErrSignatureChanged
	}
	return e.Snapshot, nil
}

// Current returns the committed entry regardless of usability.
func (c *Cache) Current() (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return Entry{}, false
	}
	return *c.entry, true
}

// Commit replaces the entry in one step. The entry is stamped with the
// version the signature was taken under.
func (c *Cache) Commit(snap *facts.Snapshot, sig Signature, now time.Time) {
	e := &Entry{
		Snapshot:  snap,
		Signature: sig,
		Committed: now,
		Version:   sig.Version,
	}
	c.mu.Lock()
	c.entry = e
	c.mu.Unlock()
}

// Invalidate drops the entry.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

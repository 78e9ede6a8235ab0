// Package objectstore implements the Object Store & Child Fetcher: an in-memory map of the transaction's input objects plus the two
// callback seams the VM's native object runtime uses to resolve dynamic-field
// children that were never direct inputs.
//
// Reworked from two parallel callback types into one fetcher interface
// parameterized by Mode, following the idiom of a small interface passed
// into a state container rather than a trait object.
package objectstore

import (
	"context"

	"github.com/sui-sandbox/replaycore/core/movetypes"
)

// Mode selects how ResolveChild treats versionBound.
type Mode int

const (
	// Sandbox ignores versionBound and returns the latest known value.
	// Good for exploratory execution where historical accuracy doesn't matter.
	Sandbox Mode = iota
	// Replay enforces "version <= versionBound", required for byte-accurate
	// transaction replay.
	Replay
)

func (m Mode) String() string {
	if m == Replay {
		return "replay"
	}
	return "sandbox"
}

// ChildEntry is a dynamic-field child resolved by id.
type ChildEntry struct {
	Type    movetypes.TypeTag
	Bytes   []byte
	Version uint64
}

// KeyedChildEntry is a dynamic-field child resolved by (key type, key bytes).
type KeyedChildEntry struct {
	ChildID movetypes.AccountAddress
	Type    movetypes.TypeTag
	Bytes   []byte
}

// VersionedChildFetcher resolves a child object by id. In Replay mode the
// Store enforces versionBound itself by discarding any entry whose Version
// exceeds it; a fetcher is still free to use the bound to serve the request
// more efficiently.
type VersionedChildFetcher func(ctx context.Context, parent, child movetypes.AccountAddress, versionBound uint64) (*ChildEntry, bool, error)

// KeyedChildFetcher resolves a dynamic field by its raw BCS key.
type KeyedChildFetcher func(ctx context.Context, parent movetypes.AccountAddress, keyType movetypes.TypeTag, keyBytes []byte) (*KeyedChildEntry, bool, error)

type preloadKey struct {
	parent movetypes.AccountAddress
	child  movetypes.AccountAddress
}

// Store is the Object Store: the transaction's registered objects plus the
// dynamic-field resolution seams.
type Store struct {
	mode    Mode
	objects map[movetypes.AccountAddress]*movetypes.Object

	preloadedByChild map[preloadKey]ChildEntry
	preloadedByKey   map[preloadKey]KeyedChildEntry // keyed by (parent, hash-of-key) via PreloadKeyed

	versioned VersionedChildFetcher
	keyed     KeyedChildFetcher
}

// New constructs a Store seeded with objects (the hydrated ReplayState's
// input objects). objects may be nil.
func New(mode Mode, objects map[movetypes.AccountAddress]*movetypes.Object) *Store {
	if objects == nil {
		objects = make(map[movetypes.AccountAddress]*movetypes.Object)
	}
	return &Store{
		mode:             mode,
		objects:          objects,
		preloadedByChild: make(map[preloadKey]ChildEntry),
		preloadedByKey:   make(map[preloadKey]KeyedChildEntry),
	}
}

// SetVersionedFetcher installs the versioned child fetcher callback.
func (s *Store) SetVersionedFetcher(f VersionedChildFetcher) { s.versioned = f }

// SetKeyedFetcher installs the key-based child fetcher callback.
func (s *Store) SetKeyedFetcher(f KeyedChildFetcher) { s.keyed = f }

// Mode reports the store's child-resolution mode.
func (s *Store) Mode() Mode { return s.mode }

// Get returns the registered object for id, if any.
func (s *Store) Get(id movetypes.AccountAddress) (*movetypes.Object, bool) {
	obj, ok := s.objects[id]
	return obj, ok
}

// Put registers or replaces an object (used both for initial input
// registration and for writing back mutated/created objects after
// execution).
func (s *Store) Put(obj *movetypes.Object) {
	s.objects[obj.ID] = obj
}

// Delete removes an object, e.g. after the VM reports it deleted.
func (s *Store) Delete(id movetypes.AccountAddress) {
	delete(s.objects, id)
}

// All returns every currently registered object, for effects computation.
func (s *Store) All() map[movetypes.AccountAddress]*movetypes.Object {
	return s.objects
}

// PreloadChild installs a dynamic-field child that takes precedence over any
// fetcher.
func (s *Store) PreloadChild(parent, child movetypes.AccountAddress, entry ChildEntry) {
	s.preloadedByChild[preloadKey{parent, child}] = entry
}

// ResolveChild resolves a dynamic-field child by id, consulting the preload
// map first, then the versioned fetcher, enforcing versionBound when the
// store is in Replay mode.
func (s *Store) ResolveChild(ctx context.Context, parent, child movetypes.AccountAddress, versionBound uint64) (*ChildEntry, bool, error) {
	if entry, ok := s.preloadedByChild[preloadKey{parent, child}]; ok {
		if s.mode == Replay && entry.Version > versionBound {
			return nil, false, nil
		}
		return &entry, true, nil
	}
	if s.versioned == nil {
		return nil, false, nil
	}
	entry, ok, err := s.versioned(ctx, parent, child, versionBound)
	if err != nil || !ok {
		return nil, ok, err
	}
	if s.mode == Replay && entry.Version > versionBound {
		return nil, false, nil
	}
	return entry, true, nil
}

// ResolveKeyed resolves a dynamic field by its raw BCS key, consulting the
// keyed fetcher. Keyed preloads are installed via PreloadKeyed and looked up
// by the same (parent, keyType, keyBytes) triple the fetcher would receive.
func (s *Store) ResolveKeyed(ctx context.Context, parent movetypes.AccountAddress, keyType movetypes.TypeTag, keyBytes []byte) (*KeyedChildEntry, bool, error) {
	k := preloadKey{parent: parent, child: keyDigestAddress(keyType, keyBytes)}
	if entry, ok := s.preloadedByKey[k]; ok {
		return &entry, true, nil
	}
	if s.keyed == nil {
		return nil, false, nil
	}
	return s.keyed(ctx, parent, keyType, keyBytes)
}

// PreloadKeyed installs a dynamic field reachable by key lookup, taking
// precedence over the keyed fetcher.
func (s *Store) PreloadKeyed(parent movetypes.AccountAddress, keyType movetypes.TypeTag, keyBytes []byte, entry KeyedChildEntry) {
	s.preloadedByKey[preloadKey{parent: parent, child: keyDigestAddress(keyType, keyBytes)}] = entry
}

// keyDigestAddress folds a (keyType, keyBytes) pair into an AccountAddress
// for use as a map key, mirroring the runtime's own hash-the-key-to-an-id
// dynamic field addressing scheme.
func keyDigestAddress(keyType movetypes.TypeTag, keyBytes []byte) movetypes.AccountAddress {
	var a movetypes.AccountAddress
	h := fnv1a(append([]byte(keyType), keyBytes...))
	copy(a[movetypes.AddressLength-8:], h[:])
	return a
}

func fnv1a(data []byte) [8]byte {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	var hash uint64 = offset64
	for _, b := range data {
		hash ^= uint64(b)
		hash *= prime64
	}
	var out [8]byte
	for i := 0; i < 8; i++ {
		out[i] = byte(hash >> (8 * uint(i)))
	}
	return out
}

package source

import (
	"context"
	"sync"

	"github.com/sui-sandbox/replaycore/core/movetypes"
)

// FixtureSource is an in-memory StateSource used by tests to script exact
// responses (including historical versions and linkage redirects) without
// touching a network: an in-memory chain state standing in for scripted
// package and object resolution in tests.
type FixtureSource struct {
	mu sync.Mutex

	Transactions map[string]*FetchedTransaction
	// Packages maps id -> version -> data, so a fixture can serve distinct
	// historical versions of the same package id.
	Packages map[movetypes.AccountAddress]map[uint64]*movetypes.PackageData
	// PackagesLatest is consulted when a caller requests version == nil.
	PackagesLatest map[movetypes.AccountAddress]uint64

	Objects map[movetypes.AccountAddress]map[uint64]*movetypes.Object
	ObjectsLatest map[movetypes.AccountAddress]uint64

	DynamicFields map[movetypes.AccountAddress]map[string]*DynamicFieldEntry

	// Calls records every FetchPackage/FetchObject call for assertions in
	// tests (e.g. asserting the resolver issued exactly one redirected
	// fetch for a self-upgrade).
	Calls []string
}

// NewFixtureSource returns an empty, ready-to-populate fixture.
func NewFixtureSource() *FixtureSource {
	return &FixtureSource{
		Transactions:   map[string]*FetchedTransaction{},
		Packages:       map[movetypes.AccountAddress]map[uint64]*movetypes.PackageData{},
		PackagesLatest: map[movetypes.AccountAddress]uint64{},
		Objects:        map[movetypes.AccountAddress]map[uint64]*movetypes.Object{},
		ObjectsLatest:  map[movetypes.AccountAddress]uint64{},
		DynamicFields:  map[movetypes.AccountAddress]map[string]*DynamicFieldEntry{},
	}
}

// PutPackage registers data as the package state at its own Version, and
// updates the "latest" pointer if this is the highest version seen for id.
func (f *FixtureSource) PutPackage(id movetypes.AccountAddress, data *movetypes.PackageData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Packages[id] == nil {
		f.Packages[id] = map[uint64]*movetypes.PackageData{}
	}
	f.Packages[id][data.Version] = data
	if data.Version >= f.PackagesLatest[id] {
		f.PackagesLatest[id] = data.Version
	}
}

// PutObject registers obj at its own Version.
func (f *FixtureSource) PutObject(obj *movetypes.Object) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Objects[obj.ID] == nil {
		f.Objects[obj.ID] = map[uint64]*movetypes.Object{}
	}
	f.Objects[obj.ID][obj.Version] = obj
	if obj.Version >= f.ObjectsLatest[obj.ID] {
		f.ObjectsLatest[obj.ID] = obj.Version
	}
}

// PutDynamicField registers a child keyed by its raw BCS key bytes under parent.
func (f *FixtureSource) PutDynamicField(parent movetypes.AccountAddress, keyBytes []byte, entry *DynamicFieldEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DynamicFields[parent] == nil {
		f.DynamicFields[parent] = map[string]*DynamicFieldEntry{}
	}
	f.DynamicFields[parent][string(keyBytes)] = entry
}

func (f *FixtureSource) FetchTransaction(_ context.Context, digest string) (*FetchedTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.Transactions[digest]
	if !ok {
		return nil, nil
	}
	return tx, nil
}

func (f *FixtureSource) FetchPackage(_ context.Context, id movetypes.AccountAddress, version *uint64) (*movetypes.PackageData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "FetchPackage:"+id.Hex())
	byVersion, ok := f.Packages[id]
	if !ok {
		return nil, nil
	}
	v := f.PackagesLatest[id]
	if version != nil {
		v = *version
	}
	data, ok := byVersion[v]
	if !ok {
		return nil, nil
	}
	return data, nil
}

func (f *FixtureSource) FetchObject(_ context.Context, id movetypes.AccountAddress, versionBound *uint64) (*movetypes.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "FetchObject:"+id.Hex())
	byVersion, ok := f.Objects[id]
	if !ok {
		return nil, nil
	}
	if versionBound == nil {
		return byVersion[f.ObjectsLatest[id]], nil
	}
	// Highest version <= bound, matching "replay mode" semantics
	// (core/objectstore.VersionedChildFetcher).
	var best *movetypes.Object
	for v, obj := range byVersion {
		if v <= *versionBound && (best == nil || v > best.Version) {
			best = obj
		}
	}
	return best, nil
}

func (f *FixtureSource) FindDynamicField(_ context.Context, parent movetypes.AccountAddress, keyBytes []byte, _ *uint64) (*DynamicFieldEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byKey, ok := f.DynamicFields[parent]
	if !ok {
		return nil, nil
	}
	entry, ok := byKey[string(keyBytes)]
	if !ok {
		return nil, nil
	}
	return entry, nil
}

var _ StateSource = (*FixtureSource)(nil)
